package cart

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Money is an amount in a currency.
type Money struct {
	Amount   decimal.Decimal
	Currency currency.Unit
}

// String formats m with the standard number of decimals for its currency,
// e.g. "EUR 20.00" or "JPY 1500".
func (m Money) String() string {
	return m.Currency.String() + " " + m.Fixed()
}

// Fixed renders the amount with the standard decimals of its currency.
func (m Money) Fixed() string {
	scale, _ := currency.Standard.Rounding(m.Currency)
	return m.Amount.StringFixed(int32(scale))
}

// Summary is the derived view of a cart.
type Summary struct {
	TotalItems     int
	TotalPrice     Money
	DiscountAmount Money
	FinalPrice     Money
	PromoCode      string
	PromoDiscount  int
}

// Summarize computes the cart totals in cur. Total and discount are rounded
// to the currency scale and the final price is derived from the rounded
// values, so FinalPrice always equals TotalPrice minus DiscountAmount.
func (c *Cart) Summarize(cur currency.Unit) Summary {
	scale, _ := currency.Standard.Rounding(cur)
	total := c.TotalPrice().Round(int32(scale))
	discount := c.DiscountAmount().Round(int32(scale))
	money := func(d decimal.Decimal) Money {
		return Money{Amount: d, Currency: cur}
	}
	return Summary{
		TotalItems:     c.TotalItems(),
		TotalPrice:     money(total),
		DiscountAmount: money(discount),
		FinalPrice:     money(total.Sub(discount)),
		PromoCode:      c.PromoCode,
		PromoDiscount:  c.PromoDiscount,
	}
}

// Package cart implements the shopping cart: pure state transitions over
// line items and promo state, derived totals, and a session service that
// persists and notifies around those transitions.
package cart

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/reboul/storefront/internal/domain/product"
	"github.com/reboul/storefront/internal/domain/stock"
	"github.com/reboul/storefront/internal/notify"
)

// ErrInvalidQuantity is returned for quantities the transition does not
// accept. It matches stock.ErrInvalidQuantity so callers map both alike.
var ErrInvalidQuantity = stock.ErrInvalidQuantity

// Snapshot is the owned copy of a product taken when it is added to a cart.
// Later catalog edits do not change it.
type Snapshot struct {
	ID     string
	Name   string
	Price  decimal.Decimal
	Images []string
}

// SnapshotOf copies the cart-relevant fields of p.
func SnapshotOf(p *product.Product) Snapshot {
	images := make([]string, len(p.Images))
	copy(images, p.Images)
	return Snapshot{
		ID:     p.ID,
		Name:   p.Name,
		Price:  p.Price,
		Images: images,
	}
}

// Item is a cart line. A cart holds at most one item per product and size.
type Item struct {
	Product  Snapshot
	Size     string
	Quantity int
}

// Notice is the user-facing message a transition wants surfaced.
type Notice struct {
	Message  string
	Severity notify.Severity
}

func success(format string, args ...any) *Notice {
	return &Notice{Message: fmt.Sprintf(format, args...), Severity: notify.SeveritySuccess}
}

func failure(format string, args ...any) *Notice {
	return &Notice{Message: fmt.Sprintf(format, args...), Severity: notify.SeverityError}
}

// Result describes the outcome of a transition. Changed is false when the
// cart was left untouched and needs no saving.
type Result struct {
	Changed bool
	Notice  *Notice
}

// Cart is a shopping selection plus the active promo code.
type Cart struct {
	Items         []Item
	PromoCode     string
	PromoDiscount int
}

func (c *Cart) find(productID, size string) int {
	for i, item := range c.Items {
		if item.Product.ID == productID && item.Size == size {
			return i
		}
	}
	return -1
}

// Quantity returns the quantity held for the product and size.
func (c *Cart) Quantity(productID, size string) int {
	if i := c.find(productID, size); i >= 0 {
		return c.Items[i].Quantity
	}
	return 0
}

// Add merges qty units of p in size into the cart.
func (c *Cart) Add(p Snapshot, qty int, size string) (Result, error) {
	if qty <= 0 {
		return Result{}, ErrInvalidQuantity
	}
	if i := c.find(p.ID, size); i >= 0 {
		c.Items[i].Quantity += qty
	} else {
		c.Items = append(c.Items, Item{Product: p, Size: size, Quantity: qty})
	}
	return Result{Changed: true, Notice: success("%s added to cart", p.Name)}, nil
}

// Remove drops the matching item. Removing an absent item is a silent no-op.
func (c *Cart) Remove(productID, size string) Result {
	i := c.find(productID, size)
	if i < 0 {
		return Result{}
	}
	name := c.Items[i].Product.Name
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	return Result{Changed: true, Notice: success("%s removed from cart", name)}
}

// UpdateQuantity sets the quantity of an item. Zero removes the item and
// negative quantities are rejected. Absent items are left alone.
func (c *Cart) UpdateQuantity(productID, size string, qty int) (Result, error) {
	if qty < 0 {
		return Result{}, ErrInvalidQuantity
	}
	i := c.find(productID, size)
	if i < 0 {
		return Result{}, nil
	}
	if qty == 0 {
		return c.Remove(productID, size), nil
	}
	c.Items[i].Quantity = qty
	return Result{Changed: true, Notice: success("Quantity updated for %s", c.Items[i].Product.Name)}, nil
}

// ApplyPromo activates code when the table knows it, replacing any previous
// code. Unknown codes leave the cart unchanged.
func (c *Cart) ApplyPromo(code string, table PromoTable) Result {
	code = NormalizeCode(code)
	pct, ok := table.Percent(code)
	if !ok {
		return Result{Notice: failure("Invalid promo code")}
	}
	c.PromoCode = code
	c.PromoDiscount = pct
	return Result{Changed: true, Notice: success("Promo code %s applied: -%d%%", code, pct)}
}

// RemovePromo clears the promo state unconditionally.
func (c *Cart) RemovePromo() Result {
	c.PromoCode = ""
	c.PromoDiscount = 0
	return Result{Changed: true, Notice: success("Promo code removed")}
}

// Clear drops every item and the promo state.
func (c *Cart) Clear() Result {
	if len(c.Items) == 0 && c.PromoCode == "" {
		return Result{}
	}
	c.Items = nil
	c.PromoCode = ""
	c.PromoDiscount = 0
	return Result{Changed: true, Notice: success("Cart cleared")}
}

// TotalItems is the sum of item quantities.
func (c *Cart) TotalItems() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// TotalPrice is the sum of unit price times quantity.
func (c *Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// DiscountAmount is TotalPrice times the promo percentage.
func (c *Cart) DiscountAmount() decimal.Decimal {
	return c.TotalPrice().Mul(decimal.NewFromInt(int64(c.PromoDiscount))).Div(decimal.NewFromInt(100))
}

// FinalPrice is TotalPrice minus DiscountAmount.
func (c *Cart) FinalPrice() decimal.Decimal {
	return c.TotalPrice().Sub(c.DiscountAmount())
}

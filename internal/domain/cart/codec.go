package cart

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Encode serializes the cart into its persisted blob:
//
//	{"items":[{"product":{...},"size":"M","quantity":2}],"promoCode":"","promoDiscount":0}
func Encode(c *Cart) []byte {
	var e jx.Encoder
	c.Encode(&e)
	return e.Bytes()
}

// Encode writes the cart as a JSON object.
func (c *Cart) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for _, item := range c.Items {
		item.encode(e)
	}
	e.ArrEnd()
	e.FieldStart("promoCode")
	e.Str(c.PromoCode)
	e.FieldStart("promoDiscount")
	e.Int(c.PromoDiscount)
	e.ObjEnd()
}

func (i Item) encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("product")
	i.Product.encode(e)
	e.FieldStart("size")
	e.Str(i.Size)
	e.FieldStart("quantity")
	e.Int(i.Quantity)
	e.ObjEnd()
}

func (s Snapshot) encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(s.ID)
	e.FieldStart("name")
	e.Str(s.Name)
	e.FieldStart("price")
	e.Str(s.Price.String())
	e.FieldStart("images")
	e.ArrStart()
	for _, img := range s.Images {
		e.Str(img)
	}
	e.ArrEnd()
	e.ObjEnd()
}

// Decode parses a blob produced by Encode. Unknown fields are skipped.
func Decode(data []byte) (*Cart, error) {
	c := &Cart{}
	if err := c.Decode(jx.DecodeBytes(data)); err != nil {
		return nil, errors.Wrap(err, "decode cart")
	}
	return c, nil
}

// Decode reads the cart from d.
func (c *Cart) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				var item Item
				if err := item.decode(d); err != nil {
					return errors.Wrap(err, "item")
				}
				c.Items = append(c.Items, item)
				return nil
			})
		case "promoCode":
			v, err := d.Str()
			c.PromoCode = v
			return err
		case "promoDiscount":
			v, err := d.Int()
			c.PromoDiscount = v
			return err
		default:
			return d.Skip()
		}
	})
}

func (i *Item) decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "product":
			return i.Product.decode(d)
		case "size":
			v, err := d.Str()
			i.Size = v
			return err
		case "quantity":
			v, err := d.Int()
			i.Quantity = v
			return err
		default:
			return d.Skip()
		}
	})
}

func (s *Snapshot) decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := d.Str()
			s.ID = v
			return err
		case "name":
			v, err := d.Str()
			s.Name = v
			return err
		case "price":
			price, err := decodePrice(d)
			s.Price = price
			return err
		case "images":
			return d.Arr(func(d *jx.Decoder) error {
				v, err := d.Str()
				if err != nil {
					return err
				}
				s.Images = append(s.Images, v)
				return nil
			})
		default:
			return d.Skip()
		}
	})
}

// decodePrice accepts both the string form written by Encode and a bare
// JSON number.
func decodePrice(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		v, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = v
	case jx.Number:
		v, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = v.String()
	default:
		return decimal.Zero, errors.Errorf("price: unexpected %s", d.Next())
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "price")
	}
	return price, nil
}

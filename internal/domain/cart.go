package domain

import "github.com/shopspring/decimal"

// CartLine is a single (item, size) entry of the cart with its quantity.
type CartLine struct {
	Item     Item   `json:"item"`
	Size     string `json:"size"`
	Quantity int    `json:"quantity"`
}

// Matches reports whether the line holds the given item and size.
func (l CartLine) Matches(itemName, size string) bool {
	return l.Item.Name == itemName && l.Size == size
}

// ExtendedPrice returns unit price multiplied by quantity.
func (l CartLine) ExtendedPrice() decimal.Decimal {
	return l.Item.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is the ordered list of cart lines. Lines are unique by (item name, size).
type Cart []CartLine

// Size returns the total number of units across all lines.
func (c Cart) Size() int {
	total := 0
	for _, line := range c {
		total += line.Quantity
	}
	return total
}

// Subtotal sums the extended price of every line.
func (c Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c {
		total = total.Add(line.ExtendedPrice())
	}
	return total
}

// Find returns the index of the matching line or -1.
func (c Cart) Find(itemName, size string) int {
	for i, line := range c {
		if line.Matches(itemName, size) {
			return i
		}
	}
	return -1
}

// Clone returns a copy that can be mutated without affecting the receiver.
func (c Cart) Clone() Cart {
	if c == nil {
		return Cart{}
	}
	out := make(Cart, len(c))
	copy(out, c)
	return out
}

package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/google-pay/storefront/internal/domain"
	"github.com/google-pay/storefront/internal/platform/config"
)

const (
	subtotalLabel        = "Sub total"
	shippingLabel        = "Shipping"
	taxLabel             = "Tax"
	totalPriceLabel      = "Total"
	displayPricePlaces   = 2
	lineItemLabelPattern = "%s (%s) x %d"
)

// TransactionBuilder turns a cart into a priced transaction snapshot. Build is a pure function of
// its arguments and the immutable policy, so identical inputs give identical snapshots.
type TransactionBuilder struct {
	tax      TaxPolicy
	shipping *ShippingResolver
	currency string
	country  string
}

func NewTransactionBuilder(policy config.Policy) (*TransactionBuilder, error) {
	shipping, err := NewShippingResolver(policy)
	if err != nil {
		return nil, err
	}
	return &TransactionBuilder{
		tax:      NewTaxPolicy(policy),
		shipping: shipping,
		currency: policy.CurrencyCode,
		country:  policy.CountryCode,
	}, nil
}

// Shipping exposes the resolver used for shipping prices.
func (b *TransactionBuilder) Shipping() *ShippingResolver {
	return b.shipping
}

// Build prices the cart for the destination and shipping selection. An empty or ineligible
// selection prices shipping at zero under the generic "Shipping" label.
func (b *TransactionBuilder) Build(cart domain.Cart, address *domain.Address, shippingOptionID string) domain.TransactionSnapshot {
	items := make([]domain.DisplayItem, 0, len(cart)+3)
	subtotal := decimal.Zero
	for _, line := range cart {
		extended := line.ExtendedPrice()
		subtotal = subtotal.Add(extended)
		items = append(items, domain.DisplayItem{
			Label: fmt.Sprintf(lineItemLabelPattern, line.Item.Title, line.Size, line.Quantity),
			Type:  domain.DisplayItemLineItem,
			Price: formatPrice(extended),
		})
	}

	shipping := decimal.Zero
	label := shippingLabel
	resolvedID := ""
	if option, ok := b.shipping.Lookup(address, shippingOptionID); ok {
		shipping = option.Price
		label = option.Label
		resolvedID = option.ID
	}

	tax := subtotal.Mul(b.tax.Rate(address))
	total := subtotal.Add(shipping).Add(tax)

	items = append(items,
		domain.DisplayItem{Label: subtotalLabel, Type: domain.DisplayItemSubtotal, Price: formatPrice(subtotal)},
		domain.DisplayItem{Label: label, Type: domain.DisplayItemShippingOption, Price: formatPrice(shipping)},
	)
	if tax.IsPositive() {
		items = append(items, domain.DisplayItem{Label: taxLabel, Type: domain.DisplayItemTax, Price: formatPrice(tax)})
	}

	return domain.TransactionSnapshot{
		DisplayItems:     items,
		Subtotal:         subtotal,
		Shipping:         shipping,
		Tax:              tax,
		Total:            total,
		TotalPrice:       formatPrice(total),
		TotalPriceStatus: domain.TotalPriceStatusFinal,
		TotalPriceLabel:  totalPriceLabel,
		CurrencyCode:     b.currency,
		CountryCode:      b.country,
		ShippingOptionID: resolvedID,
	}
}

func formatPrice(amount decimal.Decimal) string {
	return amount.StringFixed(displayPricePlaces)
}

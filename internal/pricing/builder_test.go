package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google-pay/storefront/internal/domain"
	"github.com/google-pay/storefront/internal/platform/config"
)

func newTestBuilder(t *testing.T) *TransactionBuilder {
	t.Helper()
	builder, err := NewTransactionBuilder(config.DefaultPolicy())
	require.NoError(t, err)
	return builder
}

func tee(price string) domain.Item {
	return domain.Item{Name: "tee", Title: "Tee", Category: "mens_tshirts", Price: decimal.RequireFromString(price)}
}

func us() *domain.Address {
	return &domain.Address{CountryCode: "US", PostalCode: "94043"}
}

func TestBuildSingleLineDomestic(t *testing.T) {
	builder := newTestBuilder(t)
	cart := domain.Cart{{Item: tee("10.00"), Size: "M", Quantity: 2}}

	snapshot := builder.Build(cart, us(), "free")

	assert.Equal(t, "22.00", snapshot.TotalPrice)
	assert.Equal(t, "FINAL", snapshot.TotalPriceStatus)
	assert.Equal(t, "Total", snapshot.TotalPriceLabel)
	assert.Equal(t, "USD", snapshot.CurrencyCode)
	assert.Equal(t, "US", snapshot.CountryCode)
	assert.Equal(t, "free", snapshot.ShippingOptionID)
	assert.Equal(t, []domain.DisplayItem{
		{Label: "Tee (M) x 2", Type: domain.DisplayItemLineItem, Price: "20.00"},
		{Label: "Sub total", Type: domain.DisplayItemSubtotal, Price: "20.00"},
		{Label: "Free shipping", Type: domain.DisplayItemShippingOption, Price: "0.00"},
		{Label: "Tax", Type: domain.DisplayItemTax, Price: "2.00"},
	}, snapshot.DisplayItems)
}

func TestBuildEmptyCartHasNoTaxLine(t *testing.T) {
	builder := newTestBuilder(t)

	snapshot := builder.Build(domain.Cart{}, us(), "express")

	assert.Equal(t, "5.00", snapshot.TotalPrice)
	require.Len(t, snapshot.DisplayItems, 2)
	assert.Equal(t, domain.DisplayItem{Label: "Sub total", Type: domain.DisplayItemSubtotal, Price: "0.00"}, snapshot.DisplayItems[0])
	assert.Equal(t, domain.DisplayItemShippingOption, snapshot.DisplayItems[1].Type)
}

func TestBuildUnresolvedShippingIsFree(t *testing.T) {
	builder := newTestBuilder(t)
	cart := domain.Cart{{Item: tee("10.00"), Size: "M", Quantity: 1}}

	for _, selection := range []string{"", "teleport", "international"} {
		snapshot := builder.Build(cart, us(), selection)
		shipping := snapshot.DisplayItems[2]
		assert.Equal(t, "Shipping", shipping.Label, "selection %q", selection)
		assert.Equal(t, "0.00", shipping.Price, "selection %q", selection)
		assert.Empty(t, snapshot.ShippingOptionID)
		assert.Equal(t, "11.00", snapshot.TotalPrice)
	}
}

func TestBuildReselectingShippingKeepsLines(t *testing.T) {
	builder := newTestBuilder(t)
	cart := domain.Cart{{Item: tee("10.00"), Size: "M", Quantity: 2}}

	free := builder.Build(cart, us(), "free")
	express := builder.Build(cart, us(), "express")

	assert.Equal(t, "27.00", express.TotalPrice)
	assert.True(t, express.Total.Sub(free.Total).Equal(decimal.NewFromInt(5)))
	assert.Equal(t, free.DisplayItems[0], express.DisplayItems[0])
	assert.Equal(t, "Express shipping", express.DisplayItems[2].Label)
	assert.Equal(t, "5.00", express.DisplayItems[2].Price)
}

func TestBuildIsIdempotent(t *testing.T) {
	builder := newTestBuilder(t)
	cart := domain.Cart{
		{Item: tee("19.99"), Size: "S", Quantity: 3},
		{Item: domain.Item{Name: "jacket", Title: "Jacket", Price: decimal.RequireFromString("79.95")}, Size: "L", Quantity: 1},
	}
	address := &domain.Address{CountryCode: "de"}

	first := builder.Build(cart, address, "express")
	second := builder.Build(cart, address, "express")
	assert.Equal(t, first, second)
}

func TestBuildTotalMatchesComponents(t *testing.T) {
	builder := newTestBuilder(t)
	carts := []domain.Cart{
		{},
		{{Item: tee("0.01"), Size: "XS", Quantity: 1}},
		{{Item: tee("19.99"), Size: "S", Quantity: 7}, {Item: domain.Item{Name: "cap", Title: "Cap", Price: decimal.RequireFromString("3.33")}, Size: "OS", Quantity: 3}},
		{{Item: tee("22.15"), Size: "M", Quantity: 13}},
	}
	addresses := []*domain.Address{nil, us(), {CountryCode: "JP"}}
	tolerance := decimal.RequireFromString("0.015")

	for _, cart := range carts {
		for _, address := range addresses {
			for _, selection := range []string{"free", "express", "international"} {
				snapshot := builder.Build(cart, address, selection)
				require.True(t, snapshot.Total.Equal(snapshot.Subtotal.Add(snapshot.Shipping).Add(snapshot.Tax)))

				rounded := decimal.Zero
				for _, item := range snapshot.DisplayItems {
					if item.Type == domain.DisplayItemLineItem {
						continue
					}
					rounded = rounded.Add(decimal.RequireFromString(item.Price))
				}
				total := decimal.RequireFromString(snapshot.TotalPrice)
				assert.True(t, total.Sub(rounded).Abs().LessThanOrEqual(tolerance),
					"total %s drifted from rounded terms %s", total, rounded)
			}
		}
	}
}

func TestBuildTaxDependsOnCountry(t *testing.T) {
	builder := newTestBuilder(t)
	cart := domain.Cart{{Item: tee("100.00"), Size: "M", Quantity: 1}}

	assert.Equal(t, "110.00", builder.Build(cart, us(), "").TotalPrice)
	assert.Equal(t, "111.00", builder.Build(cart, &domain.Address{CountryCode: "FR"}, "").TotalPrice)
	assert.Equal(t, "111.00", builder.Build(cart, nil, "").TotalPrice)
}

func TestBuildInternationalShipping(t *testing.T) {
	builder := newTestBuilder(t)
	cart := domain.Cart{{Item: tee("10.00"), Size: "M", Quantity: 1}}
	address := &domain.Address{CountryCode: "CA"}

	snapshot := builder.Build(cart, address, "international")
	assert.Equal(t, "International shipping", snapshot.DisplayItems[2].Label)
	assert.Equal(t, "15.00", snapshot.DisplayItems[2].Price)
	assert.Equal(t, "26.10", snapshot.TotalPrice)

	freeAbroad := builder.Build(cart, address, "free")
	assert.Equal(t, "Shipping", freeAbroad.DisplayItems[2].Label)
}

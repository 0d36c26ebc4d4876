package domain

import "github.com/shopspring/decimal"

// DisplayItemType classifies a line of the transaction breakdown.
type DisplayItemType string

const (
	DisplayItemLineItem       DisplayItemType = "LINE_ITEM"
	DisplayItemSubtotal       DisplayItemType = "SUBTOTAL"
	DisplayItemShippingOption DisplayItemType = "SHIPPING_OPTION"
	DisplayItemTax            DisplayItemType = "TAX"
)

// TotalPriceStatusFinal marks a total that will not change after the sheet closes.
const TotalPriceStatusFinal = "FINAL"

// Address is the subset of a shipping address that affects pricing.
type Address struct {
	Name               string `json:"name,omitempty"`
	PostalCode         string `json:"postalCode,omitempty"`
	CountryCode        string `json:"countryCode"`
	Locality           string `json:"locality,omitempty"`
	AdministrativeArea string `json:"administrativeArea,omitempty"`
}

// ShippingScope restricts which destinations a shipping option serves.
type ShippingScope string

const (
	ShippingScopeDomestic      ShippingScope = "domestic"
	ShippingScopeInternational ShippingScope = "international"
	ShippingScopeAny           ShippingScope = "any"
)

// ShippingOption is a flat-rate delivery method.
type ShippingOption struct {
	ID          string          `json:"id"`
	Label       string          `json:"label"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Scope       ShippingScope   `json:"scope"`
}

// DisplayItem is one priced line of the transaction breakdown. Price is fixed to 2 decimals.
type DisplayItem struct {
	Label string          `json:"label"`
	Type  DisplayItemType `json:"type"`
	Price string          `json:"price"`
}

// TransactionSnapshot is the complete priced breakdown of a cart at a point in time.
// Amounts are unrounded; TotalPrice is the formatted total.
type TransactionSnapshot struct {
	DisplayItems     []DisplayItem   `json:"displayItems"`
	Subtotal         decimal.Decimal `json:"-"`
	Shipping         decimal.Decimal `json:"-"`
	Tax              decimal.Decimal `json:"-"`
	Total            decimal.Decimal `json:"-"`
	TotalPrice       string          `json:"totalPrice"`
	TotalPriceStatus string          `json:"totalPriceStatus"`
	TotalPriceLabel  string          `json:"totalPriceLabel"`
	CurrencyCode     string          `json:"currencyCode"`
	CountryCode      string          `json:"countryCode"`
	ShippingOptionID string          `json:"-"`
}

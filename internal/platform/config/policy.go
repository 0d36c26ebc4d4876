package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/google-pay/storefront/internal/domain"
)

// Policy holds the pricing tables: currency, tax rates, shipping catalog and categories.
type Policy struct {
	CurrencyCode                 string
	CountryCode                  string
	DomesticCountry              string
	TaxRates                     map[string]decimal.Decimal
	DefaultTaxRate               decimal.Decimal
	MissingAddressTaxRate        decimal.Decimal
	ShippingOptions              []domain.ShippingOption
	DefaultDomesticShipping      string
	DefaultInternationalShipping string
	Categories                   []domain.Category
}

type policyFile struct {
	Currency        string `yaml:"currency"`
	Country         string `yaml:"country"`
	DomesticCountry string `yaml:"domesticCountry"`
	Tax             struct {
		Default        string            `yaml:"default"`
		MissingAddress string            `yaml:"missingAddress"`
		Rates          map[string]string `yaml:"rates"`
	} `yaml:"tax"`
	Shipping struct {
		DomesticDefault      string               `yaml:"domesticDefault"`
		InternationalDefault string               `yaml:"internationalDefault"`
		Options              []shippingOptionFile `yaml:"options"`
	} `yaml:"shipping"`
	Categories []domain.Category `yaml:"categories"`
}

type shippingOptionFile struct {
	ID          string `yaml:"id"`
	Label       string `yaml:"label"`
	Description string `yaml:"description"`
	Price       string `yaml:"price"`
	Scope       string `yaml:"scope"`
}

// DefaultPolicy returns the built-in storefront policy.
func DefaultPolicy() Policy {
	return Policy{
		CurrencyCode:    "USD",
		CountryCode:     "US",
		DomesticCountry: "US",
		TaxRates: map[string]decimal.Decimal{
			"US": decimal.RequireFromString("0.10"),
		},
		DefaultTaxRate:        decimal.RequireFromString("0.11"),
		MissingAddressTaxRate: decimal.RequireFromString("0.11"),
		ShippingOptions: []domain.ShippingOption{
			{ID: "free", Label: "Free shipping", Description: "Arrives in 5 to 7 days", Price: decimal.Zero, Scope: domain.ShippingScopeDomestic},
			{ID: "express", Label: "Express shipping", Description: "$5.00 - Arrives in 1 to 3 days", Price: decimal.NewFromInt(5), Scope: domain.ShippingScopeAny},
			{ID: "international", Label: "International shipping", Description: "$15.00 - Arrives in 7 to 14 days", Price: decimal.NewFromInt(15), Scope: domain.ShippingScopeInternational},
		},
		DefaultDomesticShipping:      "free",
		DefaultInternationalShipping: "international",
		Categories: []domain.Category{
			{Name: "mens_outerwear", Title: "Men's Outerwear", Image: "/images/mens_outerwear.jpg"},
			{Name: "ladies_outerwear", Title: "Lady's Outerwear", Image: "/images/ladies_outerwear.jpg"},
			{Name: "mens_tshirts", Title: "Men's T-Shirts", Image: "/images/mens_tshirts.jpg"},
			{Name: "ladies_tshirts", Title: "Lady's T-Shirts", Image: "/images/ladies_tshirts.jpg"},
		},
	}
}

// LoadPolicyFile reads a YAML policy. Sections left out of the file keep their built-in values.
func LoadPolicyFile(path string) (Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("config: read policy %s: %w", path, err)
	}
	return ParsePolicy(raw)
}

// ParsePolicy decodes and validates a YAML policy document.
func ParsePolicy(raw []byte) (Policy, error) {
	var doc policyFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Policy{}, fmt.Errorf("config: decode policy: %w", err)
	}

	policy := DefaultPolicy()
	var invalid []string

	if v := strings.ToUpper(strings.TrimSpace(doc.Currency)); v != "" {
		policy.CurrencyCode = v
	}
	if v := strings.TrimSpace(doc.Country); v != "" {
		policy.CountryCode = v
	}
	if v := strings.TrimSpace(doc.DomesticCountry); v != "" {
		policy.DomesticCountry = v
	}

	if doc.Tax.Default != "" {
		rate, err := parseRate(doc.Tax.Default)
		if err != nil {
			invalid = append(invalid, "Policy.Tax.Default")
		}
		policy.DefaultTaxRate = rate
	}
	if doc.Tax.MissingAddress != "" {
		rate, err := parseRate(doc.Tax.MissingAddress)
		if err != nil {
			invalid = append(invalid, "Policy.Tax.MissingAddress")
		}
		policy.MissingAddressTaxRate = rate
	}
	if len(doc.Tax.Rates) > 0 {
		policy.TaxRates = make(map[string]decimal.Decimal, len(doc.Tax.Rates))
		for country, value := range doc.Tax.Rates {
			code, err := NormalizeCountry(country)
			if err != nil {
				invalid = append(invalid, fmt.Sprintf("Policy.Tax.Rates[%s]", country))
				continue
			}
			rate, err := parseRate(value)
			if err != nil {
				invalid = append(invalid, fmt.Sprintf("Policy.Tax.Rates[%s]", country))
				continue
			}
			policy.TaxRates[code] = rate
		}
	}

	if len(doc.Shipping.Options) > 0 {
		policy.ShippingOptions = make([]domain.ShippingOption, 0, len(doc.Shipping.Options))
		for i, opt := range doc.Shipping.Options {
			option, err := parseShippingOption(opt)
			if err != nil {
				invalid = append(invalid, fmt.Sprintf("Policy.Shipping.Options[%d]", i))
				continue
			}
			policy.ShippingOptions = append(policy.ShippingOptions, option)
		}
	}
	if v := strings.TrimSpace(doc.Shipping.DomesticDefault); v != "" {
		policy.DefaultDomesticShipping = v
	}
	if v := strings.TrimSpace(doc.Shipping.InternationalDefault); v != "" {
		policy.DefaultInternationalShipping = v
	}
	if len(doc.Categories) > 0 {
		policy.Categories = doc.Categories
	}

	invalid = append(invalid, validatePolicy(&policy)...)
	if len(invalid) > 0 {
		return Policy{}, &ValidationError{fields: invalid}
	}
	return policy, nil
}

// NormalizeCountry canonicalises an ISO 3166-1 alpha-2 country code.
func NormalizeCountry(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", errors.New("config: empty country code")
	}
	region, err := language.ParseRegion(code)
	if err != nil {
		return "", fmt.Errorf("config: invalid country code %q: %w", code, err)
	}
	if !region.IsCountry() {
		return "", fmt.Errorf("config: %q is not a country", code)
	}
	return region.String(), nil
}

func validatePolicy(policy *Policy) []string {
	var invalid []string

	if unit, err := currency.ParseISO(policy.CurrencyCode); err != nil {
		invalid = append(invalid, "Policy.Currency")
	} else {
		policy.CurrencyCode = unit.String()
	}
	if code, err := NormalizeCountry(policy.CountryCode); err != nil {
		invalid = append(invalid, "Policy.Country")
	} else {
		policy.CountryCode = code
	}
	if code, err := NormalizeCountry(policy.DomesticCountry); err != nil {
		invalid = append(invalid, "Policy.DomesticCountry")
	} else {
		policy.DomesticCountry = code
	}

	seen := make(map[string]domain.ShippingOption, len(policy.ShippingOptions))
	for _, option := range policy.ShippingOptions {
		if _, dup := seen[option.ID]; dup {
			invalid = append(invalid, fmt.Sprintf("Policy.Shipping.Options[%s]", option.ID))
			continue
		}
		seen[option.ID] = option
	}
	if len(seen) == 0 {
		invalid = append(invalid, "Policy.Shipping.Options")
	}
	if opt, ok := seen[policy.DefaultDomesticShipping]; !ok || opt.Scope == domain.ShippingScopeInternational {
		invalid = append(invalid, "Policy.Shipping.DomesticDefault")
	}
	if opt, ok := seen[policy.DefaultInternationalShipping]; !ok || opt.Scope == domain.ShippingScopeDomestic {
		invalid = append(invalid, "Policy.Shipping.InternationalDefault")
	}
	for i, category := range policy.Categories {
		if strings.TrimSpace(category.Name) == "" {
			invalid = append(invalid, fmt.Sprintf("Policy.Categories[%d]", i))
		}
	}
	return invalid
}

func parseRate(value string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, err
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("config: tax rate %s out of range", value)
	}
	return rate, nil
}

func parseShippingOption(opt shippingOptionFile) (domain.ShippingOption, error) {
	id := strings.TrimSpace(opt.ID)
	if id == "" || strings.TrimSpace(opt.Label) == "" {
		return domain.ShippingOption{}, errors.New("config: shipping option requires id and label")
	}
	price, err := decimal.NewFromString(strings.TrimSpace(opt.Price))
	if err != nil || price.IsNegative() {
		return domain.ShippingOption{}, fmt.Errorf("config: invalid shipping price %q", opt.Price)
	}
	scope := domain.ShippingScope(strings.ToLower(strings.TrimSpace(opt.Scope)))
	switch scope {
	case "":
		scope = domain.ShippingScopeAny
	case domain.ShippingScopeDomestic, domain.ShippingScopeInternational, domain.ShippingScopeAny:
	default:
		return domain.ShippingOption{}, fmt.Errorf("config: invalid shipping scope %q", opt.Scope)
	}
	return domain.ShippingOption{
		ID:          id,
		Label:       strings.TrimSpace(opt.Label),
		Description: strings.TrimSpace(opt.Description),
		Price:       price,
		Scope:       scope,
	}, nil
}

package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/google-pay/storefront/internal/domain"
	"github.com/google-pay/storefront/internal/platform/config"
)

// TaxPolicy is a step function from destination country to tax rate.
type TaxPolicy struct {
	rates       map[string]decimal.Decimal
	defaultRate decimal.Decimal
	missingRate decimal.Decimal
}

func NewTaxPolicy(policy config.Policy) TaxPolicy {
	rates := make(map[string]decimal.Decimal, len(policy.TaxRates))
	for country, rate := range policy.TaxRates {
		rates[country] = rate
	}
	return TaxPolicy{
		rates:       rates,
		defaultRate: policy.DefaultTaxRate,
		missingRate: policy.MissingAddressTaxRate,
	}
}

// Rate returns the rate for the address country. Unlisted countries use the default rate and a
// missing address uses the missing-address rate.
func (p TaxPolicy) Rate(address *domain.Address) decimal.Decimal {
	country := CountryOf(address)
	if country == "" {
		return p.missingRate
	}
	if rate, ok := p.rates[country]; ok {
		return rate
	}
	return p.defaultRate
}

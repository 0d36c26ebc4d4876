package pricing

import (
	"errors"
	"strings"

	"github.com/google-pay/storefront/internal/domain"
	"github.com/google-pay/storefront/internal/platform/config"
)

// ShippingEligibility is the option set offered for one destination.
type ShippingEligibility struct {
	DefaultOptionID string
	Options         []domain.ShippingOption
}

// Contains reports whether id is part of the eligible set.
func (e ShippingEligibility) Contains(id string) bool {
	_, ok := e.Option(id)
	return ok
}

// Option looks up an eligible option by id.
func (e ShippingEligibility) Option(id string) (domain.ShippingOption, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.ShippingOption{}, false
	}
	for _, option := range e.Options {
		if option.ID == id {
			return option, true
		}
	}
	return domain.ShippingOption{}, false
}

// ShippingResolver partitions the static shipping catalog into domestic and international sets.
type ShippingResolver struct {
	domesticCountry string
	domestic        ShippingEligibility
	international   ShippingEligibility
}

func NewShippingResolver(policy config.Policy) (*ShippingResolver, error) {
	if len(policy.ShippingOptions) == 0 {
		return nil, errors.New("shipping resolver: at least one shipping option is required")
	}
	domesticCountry, err := config.NormalizeCountry(policy.DomesticCountry)
	if err != nil {
		return nil, err
	}

	resolver := &ShippingResolver{domesticCountry: domesticCountry}
	for _, option := range policy.ShippingOptions {
		switch option.Scope {
		case domain.ShippingScopeDomestic:
			resolver.domestic.Options = append(resolver.domestic.Options, option)
		case domain.ShippingScopeInternational:
			resolver.international.Options = append(resolver.international.Options, option)
		default:
			resolver.domestic.Options = append(resolver.domestic.Options, option)
			resolver.international.Options = append(resolver.international.Options, option)
		}
	}
	resolver.domestic.DefaultOptionID = pickDefault(resolver.domestic, policy.DefaultDomesticShipping)
	resolver.international.DefaultOptionID = pickDefault(resolver.international, policy.DefaultInternationalShipping)
	return resolver, nil
}

// Eligible returns the options for the destination. A missing address (or one without a
// country) gets the domestic set.
func (r *ShippingResolver) Eligible(address *domain.Address) ShippingEligibility {
	set := r.domestic
	if country := CountryOf(address); country != "" && country != r.domesticCountry {
		set = r.international
	}
	return ShippingEligibility{
		DefaultOptionID: set.DefaultOptionID,
		Options:         append([]domain.ShippingOption(nil), set.Options...),
	}
}

// Lookup resolves an eligible option for the destination.
func (r *ShippingResolver) Lookup(address *domain.Address, id string) (domain.ShippingOption, bool) {
	return r.Eligible(address).Option(id)
}

// Select keeps id when it is eligible for the destination and otherwise returns the default.
func (r *ShippingResolver) Select(address *domain.Address, id string) string {
	eligible := r.Eligible(address)
	if eligible.Contains(id) {
		return strings.TrimSpace(id)
	}
	return eligible.DefaultOptionID
}

func pickDefault(set ShippingEligibility, preferred string) string {
	if set.Contains(preferred) {
		return preferred
	}
	if len(set.Options) > 0 {
		return set.Options[0].ID
	}
	return ""
}

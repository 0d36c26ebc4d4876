package pricing

import (
	"strings"

	"golang.org/x/text/language"

	"github.com/google-pay/storefront/internal/domain"
)

// CountryOf returns the canonical ISO country code of the address, or "" when the address is
// missing or carries no usable country.
func CountryOf(address *domain.Address) string {
	if address == nil {
		return ""
	}
	code := strings.TrimSpace(address.CountryCode)
	if code == "" {
		return ""
	}
	region, err := language.ParseRegion(code)
	if err != nil {
		return strings.ToUpper(code)
	}
	return region.String()
}

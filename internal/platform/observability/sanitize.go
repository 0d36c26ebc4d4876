package observability

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxRouteLen  = 180
	maxMethodLen = 10
	maxAddrLen   = 64
)

// clip removes control characters and caps value at limit runes.
func clip(value string, limit int) string {
	value = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
	if utf8.RuneCountInString(value) > limit {
		value = string([]rune(value)[:limit])
	}
	return value
}

// SanitizeRoute prepares a request path or chi route pattern for log fields and span attributes.
func SanitizeRoute(route string) string {
	if route = clip(route, maxRouteLen); route == "" {
		return "/"
	}
	return route
}

// SanitizeMethod upper-cases the HTTP method and strips anything that could break a log line.
func SanitizeMethod(method string) string {
	return strings.ToUpper(clip(method, maxMethodLen))
}

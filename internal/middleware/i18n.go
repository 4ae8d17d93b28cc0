package middleware

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

type localeKey struct{}
type countryKey struct{}

// countryHints are set by CDNs and gateways in front of the API, most trusted first.
var countryHints = []string{"X-Country-Code", "X-IP-Country", "CF-IPCountry", "X-Appengine-Country"}

// CountryLookup resolves an ISO country code for an IP address.
type CountryLookup func(ip string) (string, error)

// I18NOptions configures locale and country detection.
type I18NOptions struct {
	// Supported locales, most preferred first. Defaults to "en".
	Supported []string
	// Default is used when the caller sends no usable language hint. Empty
	// leaves the locale unset.
	Default string
	Lookup  CountryLookup
}

// I18N stores the caller's locale and country in the request context.
//
// Locale comes from X-Locale, then Accept-Language, matched against the
// supported set. Country comes from gateway hint headers, then the region of
// an explicit locale, then the lookup on the client IP.
func I18N(opts I18NOptions) func(http.Handler) http.Handler {
	supported := parseTags(opts.Supported)
	if len(supported) == 0 {
		supported = []language.Tag{language.English}
	}
	m := &localeMatcher{tags: supported, matcher: language.NewMatcher(supported), fallback: opts.Default}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if locale := m.detect(r); locale != "" {
				ctx = context.WithValue(ctx, localeKey{}, locale)
			}
			if country := ResolveCountry(r, opts.Lookup); country != "" {
				ctx = context.WithValue(ctx, countryKey{}, country)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type localeMatcher struct {
	tags     []language.Tag
	matcher  language.Matcher
	fallback string
}

func (m *localeMatcher) detect(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("X-Locale")); v != "" {
		if tag, err := language.Parse(v); err == nil {
			if locale := m.match(tag); locale != "" {
				return locale
			}
		}
	}
	if tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language")); err == nil && len(tags) > 0 {
		if locale := m.match(tags...); locale != "" {
			return locale
		}
	}
	return m.fallback
}

func (m *localeMatcher) match(tags ...language.Tag) string {
	_, idx, conf := m.matcher.Match(tags...)
	if conf == language.No {
		return ""
	}
	return m.tags[idx].String()
}

// LocaleFromContext returns the detected locale, or "" when none was set.
func LocaleFromContext(ctx context.Context) string {
	v, _ := ctx.Value(localeKey{}).(string)
	return v
}

// CountryFromContext returns the upper-case ISO country code, or "".
func CountryFromContext(ctx context.Context) string {
	v, _ := ctx.Value(countryKey{}).(string)
	return v
}

// ResolveCountry returns a best-effort ISO country code for r. Lookup errors
// are treated as unknown.
func ResolveCountry(r *http.Request, lookup CountryLookup) string {
	for _, h := range countryHints {
		if code := countryCode(r.Header.Get(h)); code != "" {
			return code
		}
	}
	for _, h := range []string{"X-Locale", "Accept-Language"} {
		if code := explicitRegion(r.Header.Get(h)); code != "" {
			return code
		}
	}
	if lookup == nil {
		return ""
	}
	code, err := lookup(ClientIP(r))
	if err != nil {
		return ""
	}
	return countryCode(code)
}

// countryCode validates v as an ISO 3166 country. Private-use, group and
// malformed codes such as "XX", "EU" or "T1" are rejected.
func countryCode(v string) string {
	region, err := language.ParseRegion(strings.TrimSpace(v))
	if err != nil || !region.IsCountry() {
		return ""
	}
	return region.String()
}

// explicitRegion returns the region of the first language tag that names one,
// e.g. "ID" for "id-ID". A bare "id" does not imply a country.
func explicitRegion(header string) string {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil {
		return ""
	}
	for _, tag := range tags {
		if region, conf := tag.Region(); conf == language.Exact && region.IsCountry() {
			return region.String()
		}
	}
	return ""
}

func parseTags(values []string) []language.Tag {
	var tags []language.Tag
	for _, v := range values {
		if tag, err := language.Parse(strings.TrimSpace(v)); err == nil {
			tags = append(tags, tag)
		}
	}
	return tags
}

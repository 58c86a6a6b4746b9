// Package proxycache stores upstream ArcGIS responses in Redis so the proxy
// can serve repeated task requests without re-dialing the server.
package proxycache

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// Key builds the cache key for one upstream response. The query string is
// normalized (parsed and re-encoded, which sorts parameters) before hashing,
// so reordered but equivalent requests share an entry. A readable prefix of
// the query is kept in the key for operator greppability.
func Key(service, endpoint, rawQuery string) string {
	norm := normalizeQuery(rawQuery)
	safe := sanitizeForKey(norm)

	const maxQueryTextLen = 120
	if len(safe) > maxQueryTextLen {
		safe = safe[:maxQueryTextLen]
	}

	sum := xxhash.Sum64String(norm)
	return fmt.Sprintf("esri:resp:%s:%s:%s:q=%016x", sanitizeService(service), endpoint, safe, sum)
}

// IndexKey is the Redis set holding every response key cached for a service.
// Invalidation reads it to delete per-service entries without a SCAN.
func IndexKey(service string) string {
	return "esri:idx:" + sanitizeService(service)
}

func normalizeQuery(raw string) string {
	v, err := url.ParseQuery(raw)
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return v.Encode()
}

func sanitizeService(s string) string {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "https://"), "http://")
	return sanitizeForKey(s)
}

func sanitizeForKey(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		var out rune
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == '.' || r == '/' || r == '_' || r == '-' || r == '=' || r == '&':
			out = r
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}

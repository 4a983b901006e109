package origin

import (
	"net/http"
	"regexp"
	"strings"
)

// Fixed preflight surface of the proxy. Browsers only send simple GET
// requests here, so the allowance never varies per request.
const (
	allowMethods = "GET, OPTIONS"
	allowHeaders = "Content-Type"
	maxAge       = "86400"
)

// IsAllowed reports whether origin matches any pattern, first match wins.
// "*" alone matches anything. A pattern without a wildcard matches by exact
// equality only. A pattern containing "*" matches as a glob where each star
// spans any run of characters, anchored at both ends.
func IsAllowed(origin string, patterns []string) bool {
	for _, p := range patterns {
		if p == "*" {
			return true
		}
		if !strings.Contains(p, "*") {
			if p == origin {
				return true
			}
			continue
		}
		re, err := regexp.Compile("^" + strings.ReplaceAll(regexp.QuoteMeta(p), `\*`, ".*") + "$")
		if err != nil {
			continue
		}
		if re.MatchString(origin) {
			return true
		}
	}
	return false
}

// BuildCorsHeaders decides the CORS response for a request. ok=false means an
// Origin header is present but matches no pattern and the caller must reject.
// With no allow list configured, or no Origin header on the request, the map
// is empty and the request proceeds without CORS headers.
//
// A matched request echoes the caller's exact Origin rather than "*" so the
// response stays usable with credentialed fetches.
func BuildCorsHeaders(r *http.Request, patterns []string) (map[string]string, bool) {
	headers := map[string]string{}
	if len(patterns) == 0 {
		return headers, true
	}
	org := r.Header.Get("Origin")
	if org == "" {
		return headers, true
	}
	if !IsAllowed(org, patterns) {
		return nil, false
	}
	headers["Access-Control-Allow-Origin"] = org
	headers["Access-Control-Allow-Methods"] = allowMethods
	headers["Access-Control-Allow-Headers"] = allowHeaders
	headers["Access-Control-Max-Age"] = maxAge
	headers["Vary"] = "Origin"
	return headers, true
}

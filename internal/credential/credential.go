// Package credential extracts bearer tokens from incoming requests.
package credential

import (
	"net/http"
	"strings"
)

const (
	// QueryParam is the query parameter consulted before any header.
	QueryParam = "api_token"

	authorizationHeader = "Authorization"
)

// FromRequest returns the token carried by r, or "" if there is none.
//
// A present api_token query parameter wins even when its value is empty.
// Otherwise the last whitespace-separated field of the first Authorization
// header value is used, which accepts "Bearer <token>" as well as a bare
// token or an unexpected scheme.
func FromRequest(r *http.Request) string {
	if r.URL != nil {
		if vals, ok := r.URL.Query()[QueryParam]; ok && len(vals) > 0 {
			return vals[0]
		}
	}

	var header string
	if vals := r.Header.Values(authorizationHeader); len(vals) > 0 {
		header = vals[0]
	}
	return FromAuthorization(header)
}

// FromAuthorization returns the last whitespace-separated field of an
// Authorization header value.
func FromAuthorization(header string) string {
	fields := strings.Fields(header)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

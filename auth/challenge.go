package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// AuthenticationChallenge describes an HTTP rejection (status + WWW-Authenticate header).
type AuthenticationChallenge struct {
	Status          int
	WWWAuthenticate string
	Message         string
}

// StatusCode maps an authentication error onto the HTTP status a transport
// should respond with. Unknown errors map to 500.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInternal):
		return http.StatusInternalServerError
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrUpstreamUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// NewChallenge builds the challenge for err. Upstream rejections carry the
// provider's message so clients can diagnose them; internal failures never
// expose their cause.
func NewChallenge(err error, realm string) *AuthenticationChallenge {
	status := StatusCode(err)
	switch {
	case status == http.StatusInternalServerError:
		return &AuthenticationChallenge{Status: status, Message: "internal error"}
	case errors.Is(err, ErrUpstreamUnauthorized):
		desc := strings.ReplaceAll(err.Error(), "\n", ": ")
		return &AuthenticationChallenge{
			Status:          status,
			Message:         desc,
			WWWAuthenticate: BearerChallenge(realm, "invalid_token", desc),
		}
	default:
		// RFC 6750 §3.1: no error code when the request lacked credentials.
		return &AuthenticationChallenge{
			Status:          status,
			Message:         "unauthorized",
			WWWAuthenticate: BearerChallenge(realm, "", ""),
		}
	}
}

// BearerChallenge builds a Bearer challenge header value:
//
//	Bearer realm="<realm>", error="...", error_description="..."
//
// Empty attributes are omitted.
func BearerChallenge(realm, code, description string) string {
	esc := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\r", " ", "\n", " ")
	pieces := make([]string, 0, 3)
	if realm != "" {
		pieces = append(pieces, fmt.Sprintf(`realm="%s"`, esc.Replace(realm)))
	}
	if code != "" {
		pieces = append(pieces, fmt.Sprintf(`error="%s"`, esc.Replace(code)))
	}
	if description != "" {
		pieces = append(pieces, fmt.Sprintf(`error_description="%s"`, esc.Replace(description)))
	}
	if len(pieces) == 0 {
		return "Bearer"
	}
	return "Bearer " + strings.Join(pieces, ", ")
}

// Package auth defines the identity model and error taxonomy shared by the
// authentication gate and the handlers it protects.
//
// The gate resolves an opaque bearer token into a UserInfo and attaches it to
// the request context under AttributeName ("auth_user"). Downstream handlers
// read it back with UserInfoFromContext:
//
//	ui, ok := auth.UserInfoFromContext(r.Context())
//	if !ok { /* gate not installed */ }
//	var me struct {
//	    ID      int    `json:"id"`
//	    Company struct{ Name string } `json:"company"`
//	}
//	_ = ui.Claims(&me)
//
// The payload is whatever the identity provider returned in its "data"
// member. This package never validates its shape beyond requiring
// well-formed JSON; Raw returns the bytes untouched.
//
// # Errors
//
// ErrUnauthorized signals that no credential was supplied.
// ErrUpstreamUnauthorized signals the identity provider rejected the token or
// could not be consulted. ErrInternal signals an infrastructure failure such as
// an unreachable cache store. StatusCode and NewChallenge translate these into
// HTTP responses; errors returned by the gate wrap exactly one of them.
package auth

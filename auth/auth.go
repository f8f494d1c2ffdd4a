package auth

import (
	"context"
	"errors"
)

// ErrUnauthorized indicates no usable credential was supplied with the request.
var ErrUnauthorized = errors.New("unauthorized")

// ErrUpstreamUnauthorized indicates the identity provider rejected the token or
// could not be reached or understood. Callers map it to HTTP 401.
var ErrUpstreamUnauthorized = errors.New("upstream unauthorized")

// ErrInternal indicates a failure that is not the caller's fault, such as an
// unreachable cache store. Callers map it to HTTP 500.
var ErrInternal = errors.New("internal failure")

// Authenticator resolves bearer tokens into user info.
// It should return an error matching ErrUnauthorized, ErrUpstreamUnauthorized
// or ErrInternal so transports can choose a status code.
type Authenticator interface {
	CheckAuthentication(ctx context.Context, tok string) (UserInfo, error)
}

// AuthenticatorFunc adapts a function to the Authenticator interface.
type AuthenticatorFunc func(ctx context.Context, tok string) (UserInfo, error)

func (f AuthenticatorFunc) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	return f(ctx, tok)
}

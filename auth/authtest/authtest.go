package authtest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ggoodman/authgate-go/auth"
)

// NoAuth is a test authenticator that accepts any token and returns the same
// identity for all of them. Use it to exercise handlers that sit behind the
// gate without a running identity provider.
type NoAuth struct {
	UserID string
}

// NewNoAuth creates a new NoAuth authenticator with the specified user ID
// If userID is empty, it defaults to "test-user"
func NewNoAuth(userID string) *NoAuth {
	if userID == "" {
		userID = "test-user"
	}
	return &NoAuth{UserID: userID}
}

// CheckAuthentication always returns an authenticated result
func (n *NoAuth) CheckAuthentication(ctx context.Context, tok string) (auth.UserInfo, error) {
	payload, err := json.Marshal(map[string]string{"id": n.UserID})
	if err != nil {
		return nil, err
	}
	return auth.NewUserInfo(payload)
}

// Resolver is an in-memory identity provider keyed by token. Unknown tokens
// fail with auth.ErrUpstreamUnauthorized. It records how often it was asked.
type Resolver struct {
	mu         sync.Mutex
	identities map[string]json.RawMessage
	calls      int
	// Err, when set, is returned for every call.
	Err error
}

// NewResolver creates a Resolver that knows the given token → payload pairs.
func NewResolver(identities map[string]string) *Resolver {
	r := &Resolver{identities: make(map[string]json.RawMessage, len(identities))}
	for tok, payload := range identities {
		r.identities[tok] = json.RawMessage(payload)
	}
	return r
}

// Resolve implements the gate's resolver contract.
func (r *Resolver) Resolve(ctx context.Context, tok string) (json.RawMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.Err != nil {
		return nil, r.Err
	}
	payload, ok := r.identities[tok]
	if !ok {
		return nil, auth.ErrUpstreamUnauthorized
	}
	return append(json.RawMessage(nil), payload...), nil
}

// Calls reports how many times Resolve was invoked.
func (r *Resolver) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

var _ auth.Authenticator = (*NoAuth)(nil)

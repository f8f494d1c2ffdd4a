package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/authgate-go/auth"
	"github.com/ggoodman/authgate-go/config"
	"github.com/ggoodman/authgate-go/internal/credential"
	"github.com/ggoodman/authgate-go/internal/logctx"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

var _ auth.Authenticator = (*Gate)(nil)

var jsonMediaType = contenttype.NewMediaType("application/json")

const wwwAuthenticateHeader = "WWW-Authenticate"

const (
	sourceCache    = "cache"
	sourceUpstream = "upstream"
)

// IdentityCache is the cache-aside store consulted before the resolver.
// *identitycache.Cache satisfies it.
type IdentityCache interface {
	Key(token string) string
	Get(ctx context.Context, token string) (json.RawMessage, bool, error)
	Put(ctx context.Context, token string, payload json.RawMessage) error
}

// Resolver turns a token into an identity payload by asking the identity
// provider. *idp.Client satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, token string) (json.RawMessage, error)
}

// ErrorHandler renders an authentication failure. err always matches one of
// auth.ErrUnauthorized, auth.ErrUpstreamUnauthorized or auth.ErrInternal.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Option configures the Gate.
type Option func(*Gate)

// WithLogger sets the slog logger used by the gate. Defaults to slog.Default(),
// which is also used when l is nil.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) { g.log = l }
}

// WithRealm sets the realm advertised in WWW-Authenticate challenges. If
// empty (default), the realm attribute is omitted.
func WithRealm(realm string) Option {
	return func(g *Gate) { g.realm = strings.TrimSpace(realm) }
}

// WithCacheWritePolicy decides whether a failed cache write after a
// successful lookup fails the request (config.CacheWriteFail, the default)
// or is only logged (config.CacheWriteIgnore).
func WithCacheWritePolicy(p config.CacheWritePolicy) Option {
	return func(g *Gate) { g.writePolicy = p }
}

// WithSingleFlight coalesces concurrent lookups of the same uncached token
// into a single upstream call.
func WithSingleFlight(enabled bool) Option {
	return func(g *Gate) {
		if enabled {
			g.flight = &singleflight.Group{}
		} else {
			g.flight = nil
		}
	}
}

// WithErrorHandler replaces the default JSON error rendering used by Middleware.
func WithErrorHandler(h ErrorHandler) Option {
	return func(g *Gate) { g.onError = h }
}

// Gate authenticates requests by resolving their bearer token, cache first.
// It holds no per-request state and is safe for concurrent use.
type Gate struct {
	cache       IdentityCache
	resolver    Resolver
	log         *slog.Logger
	realm       string
	writePolicy config.CacheWritePolicy
	flight      *singleflight.Group
	onError     ErrorHandler
	metrics     *Metrics

	// owned is closed by Close; set when the gate built its own store.
	owned io.Closer
}

// New returns a Gate that consults cache before resolver.
func New(cache IdentityCache, resolver Resolver, opts ...Option) *Gate {
	g := &Gate{
		cache:       cache,
		resolver:    resolver,
		log:         slog.Default(),
		writePolicy: config.CacheWriteFail,
		metrics:     NewMetrics(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.log == nil {
		g.log = slog.Default()
	}
	if _, wrapped := g.log.Handler().(logctx.Handler); !wrapped {
		g.log = slog.New(logctx.Handler{Handler: g.log.Handler()})
	}
	if g.onError == nil {
		g.onError = g.writeError
	}
	return g
}

// Metrics returns the gate's Prometheus collector. Register it with the
// host's registry to export it.
func (g *Gate) Metrics() *Metrics { return g.metrics }

// Close releases resources the gate created itself (see NewFromConfig).
func (g *Gate) Close() error {
	if g.owned == nil {
		return nil
	}
	return g.owned.Close()
}

// CheckAuthentication resolves tok into user info.
func (g *Gate) CheckAuthentication(ctx context.Context, tok string) (auth.UserInfo, error) {
	ui, _, err := g.check(ctx, tok)
	return ui, err
}

// Authenticate extracts the credential from r, resolves it and returns a
// shallow copy of r whose context carries the identity (see
// auth.UserInfoFromContext). On failure, r is not forwarded anywhere and the
// error classifies the failure.
func (g *Gate) Authenticate(r *http.Request) (*http.Request, error) {
	ctx := r.Context()

	tok := credential.FromRequest(r)
	if tok == "" {
		g.log.InfoContext(ctx, "auth.check.missing")
		g.metrics.request(auth.ErrUnauthorized)
		return nil, auth.ErrUnauthorized
	}

	ui, source, err := g.check(ctx, tok)
	g.metrics.request(err)
	if err != nil {
		g.log.InfoContext(ctx, "auth.check.fail", slog.Int("status", auth.StatusCode(err)), slog.String("err", err.Error()))
		return nil, err
	}

	ctx = auth.WithUserInfo(ctx, ui)
	ctx = logctx.WithAuthData(ctx, &logctx.AuthData{UserID: ui.UserID(), Source: source})
	g.log.InfoContext(ctx, "auth.ok")

	return r.WithContext(ctx), nil
}

// Middleware wraps next so that it only sees authenticated requests.
// next's response is returned unchanged.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(logctx.WithRequestData(r.Context(), &logctx.RequestData{
			RequestID:  uuid.NewString(),
			Method:     r.Method,
			UserAgent:  r.UserAgent(),
			RemoteAddr: r.RemoteAddr,
			Path:       r.URL.Path,
		}))

		ar, err := g.Authenticate(r)
		if err != nil {
			g.onError(w, r, err)
			return
		}
		next.ServeHTTP(w, ar)
	})
}

func (g *Gate) check(ctx context.Context, tok string) (auth.UserInfo, string, error) {
	if tok == "" {
		return nil, "", auth.ErrUnauthorized
	}

	payload, found, err := g.cache.Get(ctx, tok)
	if err != nil {
		g.metrics.cacheLookup(cacheResultError)
		g.log.ErrorContext(ctx, "auth.cache.read.fail", slog.String("err", err.Error()))
		return nil, "", fmt.Errorf("%w: %w", auth.ErrInternal, err)
	}

	source := sourceCache
	if found {
		g.metrics.cacheLookup(cacheResultHit)
		g.log.DebugContext(ctx, "auth.cache.hit")
	} else {
		g.metrics.cacheLookup(cacheResultMiss)
		g.log.DebugContext(ctx, "auth.cache.miss")
		source = sourceUpstream
		payload, err = g.resolve(ctx, tok)
		if err != nil {
			return nil, "", err
		}
	}

	ui, err := auth.NewUserInfo(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", auth.ErrInternal, err)
	}
	return ui, source, nil
}

// resolve performs the upstream lookup and cache write, coalescing callers
// for the same token when single-flight is enabled.
func (g *Gate) resolve(ctx context.Context, tok string) (json.RawMessage, error) {
	if g.flight == nil {
		return g.resolveAndStore(ctx, tok)
	}

	// The shared call must not die with whichever caller happened to start
	// it; the resolver's own timeout bounds it.
	flightCtx := context.WithoutCancel(ctx)
	ch := g.flight.DoChan(g.cache.Key(tok), func() (any, error) {
		return g.resolveAndStore(flightCtx, tok)
	})

	select {
	case res := <-ch:
		if res.Shared {
			g.metrics.coalesced()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(json.RawMessage), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", auth.ErrUpstreamUnauthorized, ctx.Err())
	}
}

func (g *Gate) resolveAndStore(ctx context.Context, tok string) (json.RawMessage, error) {
	start := time.Now()
	payload, err := g.resolver.Resolve(ctx, tok)
	g.metrics.upstream(time.Since(start), err)
	if err != nil {
		g.log.WarnContext(ctx, "auth.upstream.fail", slog.String("err", err.Error()))
		if errors.Is(err, auth.ErrUpstreamUnauthorized) || errors.Is(err, auth.ErrInternal) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", auth.ErrInternal, err)
	}

	if err := g.cache.Put(ctx, tok, payload); err != nil {
		g.metrics.cacheWrite(err)
		if g.writePolicy == config.CacheWriteIgnore {
			g.log.WarnContext(ctx, "auth.cache.write.fail", slog.String("err", err.Error()), slog.String("policy", string(g.writePolicy)))
			return payload, nil
		}
		g.log.ErrorContext(ctx, "auth.cache.write.fail", slog.String("err", err.Error()), slog.String("policy", string(g.writePolicy)))
		return nil, fmt.Errorf("%w: %w", auth.ErrInternal, err)
	}
	g.metrics.cacheWrite(nil)

	return payload, nil
}

// writeError emits a minimal JSON body plus a Bearer challenge on 401s.
// Shape: {"error":{"code":<httpStatus>,"message":"<reason>"}}
func (g *Gate) writeError(w http.ResponseWriter, r *http.Request, err error) {
	c := auth.NewChallenge(err, g.realm)
	if c.WWWAuthenticate != "" {
		w.Header().Set(wwwAuthenticateHeader, c.WWWAuthenticate)
	}
	writeJSONError(w, c.Status, c.Message)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

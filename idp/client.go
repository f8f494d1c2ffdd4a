// Package idp is a client for the remote identity provider that is the
// single source of truth for bearer tokens. It performs exactly one
// `GET {base}/me` per call and never retries.
package idp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/authgate-go/auth"
)

const (
	// DefaultTimeout bounds a single identity lookup.
	DefaultTimeout = 10 * time.Second
	// DefaultReferer is sent on every lookup; the provider expects it.
	DefaultReferer = "https://app.3c.plus/"

	mePath = "me"
	// maxBodyBytes caps how much of an identity response is read.
	maxBodyBytes = 1 << 20
	// maxErrorExcerpt caps how much of an error body is forwarded to callers.
	maxErrorExcerpt = 512
)

// DefaultInclude lists the related entities expanded on every lookup.
var DefaultInclude = []string{"company", "permissions", "teams.instances"}

var jsonMediaType = contenttype.NewMediaType("application/json")

// Client resolves bearer tokens against the identity provider. It is safe
// for concurrent use and should be shared for the life of the process so the
// underlying connection pool is reused.
type Client struct {
	meURL   string
	http    *http.Client
	referer string
}

// Option configures a Client.
type Option func(*config)

type config struct {
	httpClient *http.Client
	timeout    time.Duration
	referer    string
	include    []string
}

// WithHTTPClient supplies the HTTP client used for lookups. Its Timeout is
// left untouched unless it is zero, in which case WithTimeout (or the
// default) applies.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *config) { cfg.httpClient = c }
}

// WithTimeout bounds each lookup. Non-positive values select DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(cfg *config) { cfg.timeout = d }
}

// WithReferer overrides DefaultReferer.
func WithReferer(referer string) Option {
	return func(cfg *config) { cfg.referer = referer }
}

// WithInclude overrides DefaultInclude. An empty list omits the parameter.
func WithInclude(include ...string) Option {
	return func(cfg *config) { cfg.include = append([]string{}, include...) }
}

// New returns a Client for the provider rooted at baseURL, which must be an
// absolute http(s) URL.
func New(baseURL string, opts ...Option) (*Client, error) {
	cfg := &config{referer: DefaultReferer, include: DefaultInclude}
	for _, opt := range opts {
		opt(cfg)
	}

	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("idp: base URL is required")
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("idp: invalid base URL: %w", err)
	}
	if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("idp: base URL must be absolute http(s), got %q", baseURL)
	}

	me := base.JoinPath(mePath)
	if len(cfg.include) > 0 {
		q := me.Query()
		q.Set("include", strings.Join(cfg.include, ","))
		me.RawQuery = q.Encode()
	}

	timeout := cfg.timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	} else if hc.Timeout == 0 {
		dup := *hc
		dup.Timeout = timeout
		hc = &dup
	}

	return &Client{meURL: me.String(), http: hc, referer: cfg.referer}, nil
}

// MeURL returns the fully-qualified lookup URL. It never contains a token.
func (c *Client) MeURL() string { return c.meURL }

type meResponse struct {
	Data json.RawMessage `json:"data"`
}

// Resolve looks up the identity behind token and returns the provider's
// "data" member verbatim.
//
// Any failure to reach the provider or to understand its answer (transport
// error, timeout, non-2xx status, undecodable body, missing data) is reported
// as auth.ErrUpstreamUnauthorized. Failures to even build the request are
// reported as auth.ErrInternal.
func (c *Client) Resolve(ctx context.Context, token string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.meURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build identity request: %w", auth.ErrInternal, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", jsonMediaType.String())
	if c.referer != "" {
		req.Header.Set("Referer", c.referer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: identity provider unreachable: %s", auth.ErrUpstreamUnauthorized, describeTransportError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorExcerpt))
		msg := fmt.Sprintf("identity provider responded %d", resp.StatusCode)
		if s := strings.TrimSpace(string(excerpt)); s != "" {
			msg += ": " + s
		}
		return nil, fmt.Errorf("%w: %s", auth.ErrUpstreamUnauthorized, msg)
	}

	// The body is trusted by shape alone; Content-Type is not consulted.
	var body meResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode identity response: %w", auth.ErrUpstreamUnauthorized, err)
	}
	if len(body.Data) == 0 || string(body.Data) == "null" {
		return nil, fmt.Errorf("%w: identity response has no data", auth.ErrUpstreamUnauthorized)
	}

	return body.Data, nil
}

// describeTransportError reports err without the request URL.
func describeTransportError(err error) string {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		if uerr.Timeout() {
			return "timeout"
		}
		return uerr.Err.Error()
	}
	return err.Error()
}

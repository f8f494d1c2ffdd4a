// Package gate is an HTTP authentication gate for handlers that trust a
// single remote identity provider.
//
// For every request the gate extracts a bearer token (the api_token query
// parameter, else the last field of the Authorization header), looks up the
// identity in a cache keyed by a digest of the token, and on a miss asks the
// identity provider and writes the answer back with a fixed TTL. The
// resolved identity is attached to the request context before the next
// handler runs:
//
//	cfg, err := config.Load()
//	if err != nil { log.Fatal(err) }
//	g, err := gate.NewFromConfig(ctx, cfg, gate.WithLogger(logger))
//	if err != nil { log.Fatal(err) }
//	defer g.Close()
//
//	mux.Handle("/reports", g.Middleware(reportsHandler))
//
//	// inside reportsHandler:
//	ui, _ := auth.UserInfoFromContext(r.Context())
//
// Nothing is retried. Missing credentials and upstream rejections map to
// 401; cache store failures and other unexpected errors map to 500, and are
// detected before the identity provider is consulted. Cached entries are
// only ever removed by expiry: revoking a token upstream takes effect once
// its entry's TTL elapses.
package gate

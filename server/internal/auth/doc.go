// Package auth provides API key authentication for churn-server.
//
// APIKeyInterceptor(mode, header, key) returns a gRPC UnaryServerInterceptor
// that validates the key from the named gRPC metadata header. The standard
// health service stays open for probes.
//
// APIKeyMiddleware(mode, header, key) guards the REST API and WebSocket
// endpoint with the same key, read from the HTTP header or the api_key query
// parameter.
//
// When mode != "apikey" or key == "", everything passes through (useful for
// local development with auth disabled). Keys are compared in constant time.
package auth

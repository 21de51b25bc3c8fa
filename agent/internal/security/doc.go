// Package security inspects the TLS certificates of https ingest sources.
//
// Check(ctx, src) dials the endpoint and reports the leaf certificate's
// expiry as a types.CertStatus (valid | expiring | expired | unreachable),
// which the agent attaches to the derived batch so the server can alert on
// cert_days_left.
package security

// Package history persists one summary row per derivation run so trends
// survive server restarts and snapshot TTL eviction.
//
// Postgres stores runs through database/sql and lib/pq; Nop is used when
// storage is disabled. RunRetention purges runs older than the configured
// retention on a fixed interval.
package history

// Package types defines shared Go types used by both the agent and server.
// Customer and DerivedRecord are the canonical in-memory rows; Batch is the
// JSON message the agent publishes to the broker and the server consumes.
package types

// Package store holds the latest derived batch of every source in memory,
// with TTL eviction. Run history lives in the history package.
package store

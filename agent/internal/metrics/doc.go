// Package metrics exposes the agent's derivation counters to Prometheus.
//
// New(reg) registers the collectors with promauto; ObserveBatch, LoadFailed
// and Shipped update them; Handler serves /metrics. WriteText renders a
// registry in the text exposition format (used by churnctl --metrics) and
// Sum reads a family back out of a gatherer.
package metrics

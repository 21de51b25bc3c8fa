// Package compute derives whole customer tables.
//
// Engine.Process fans the rows of a cleaned table out over a bounded worker
// pool (errgroup), applies derive.Record to each, keeps the input order, and
// summarises the batch into types.BatchStats. The Engine also tracks per-source
// load uptime over the last 20 runs; Fail records an outage and returns a
// failed Result so the server still hears about it. Process takes the current
// time explicitly so tests are deterministic.
package compute

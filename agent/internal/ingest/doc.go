// Package ingest loads raw customer tables from the configured sources.
//
// Supported source types, selected by New(config.Source):
//   - csv: local file, first row is the header (csv.go)
//   - xlsx: one worksheet of an Excel workbook via excelize (xlsx.go)
//   - http: remote export, CSV or a JSON array of objects (http.go)
//
// Every loader returns a Table whose rows are padded to the header width and
// whose fully blank rows are dropped. Typing and validation happen later in
// package clean.
//
// Authentication for http sources (mTLS, API key, bearer, basic) is handled by
// the shared authRoundTripper in base.go.
package ingest

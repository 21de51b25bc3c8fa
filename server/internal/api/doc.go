// Package api implements the HTTP REST API for churn-server on a chi router.
//
// New(opts) serves:
//
//	GET  /api/v1/health                 source counts, pooled churn rate, consumer state
//	GET  /api/v1/sources                all live sources ([]SourceResponse)
//	GET  /api/v1/sources/{id}           single source; 404 if unknown or stale
//	GET  /api/v1/sources/{id}/records   derived records, ?page= and ?limit=
//	GET  /api/v1/summary                group-by over live records, ?by= and ?source=
//	GET  /api/v1/history/{id}           persisted runs, ?limit=
//	GET  /api/v1/alerts                 firing and recently resolved alerts
//	GET  /api/v1/snapshot               all live sources, alerts and generated_at
//	POST /api/v1/derive                 derive features for a posted JSON array
//
// Every response is JSON, errors included. Routes other than health sit
// behind the API key middleware from package auth. Each source carries
// diagnostic hints computed from its latest batch.
package api

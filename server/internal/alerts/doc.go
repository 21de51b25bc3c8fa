// Package alerts evaluates threshold rules over the stats of incoming churn
// batches ("churn_rate > 30", "rejected_pct > 5", "status == failed") and
// delivers firing and resolved notifications to Slack, Teams or plain HTTP
// webhooks. A rule fires at most once per cooldown per source.
package alerts

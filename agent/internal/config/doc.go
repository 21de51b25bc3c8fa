// Package config loads and watches the agent configuration file.
//
// Top-level types:
//   - Config{Agent}: the `agent:` section of config.yaml
//   - AgentConfig: log_level, scan_interval, workers, buffer_size,
//     metrics_addr, broker, clean, sources []
//   - Source: id, type (csv|xlsx|http), path, sheet, endpoint, auth, tls
//   - AuthConfig: mode (mtls|apikey|bearer|basic|none); Key(), Token() and
//     Password() resolve secrets from environment variables
//   - CleanConfig: drop_columns, impute_zero_tenure, strict
//
// Load(path) reads the YAML file, applies defaults (5m scan, 4 workers,
// buffer 100, queue "churn.batches", the Telco drop-column set), then
// validates required fields and enums.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. Atomic-save editors replace the
// inode, so the watch is re-added after every reload.
package config

// Package config loads the server-side configuration from the `server:` section
// of config.yaml (the `agent:` key is ignored by the server binary).
//
// Config fields:
//   - GRPCPort, HTTPPort: gRPC health protocol and REST/WebSocket ports
//   - Auth: API key mode, the env var holding the key, and the header name
//   - Broker: queue name, prefetch and the env var holding the amqp:// URL
//   - Snapshot.TTL: how long a source's latest batch stays live
//   - Storage: postgres history (DSN from env) with retention, or none
//   - Alerts: rules over batch stats and webhook targets
//
// Load(path) applies defaults before unmarshalling, then validates. Secrets
// are never read from YAML, only from the environment variables it names.
package config

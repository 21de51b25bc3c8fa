// Package receiver consumes churn batch messages published by agents to the
// broker queue.
//
// Handle decodes and validates one message body, saves it to run history,
// records it as the source's latest state in the store, and evaluates alert
// rules. Malformed messages wrap ErrInvalid and are rejected without requeue;
// any other failure (a history write, for instance) requeues the message.
//
// Run holds the broker connection with manual acknowledgement and prefetch,
// reconnecting with exponential backoff. While connected it reports SERVING
// for HealthService on the gRPC health server.
package receiver

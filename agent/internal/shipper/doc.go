// Package shipper publishes derived batches to the broker queue as JSON
// types.Batch messages (persistent delivery, MessageId = batch ID).
//
// Shipper.Ship() is non-blocking: results are converted and placed in an
// in-memory channel sized by agent.buffer_size. When the buffer is full the
// oldest entry is evicted so the latest derivation is always kept.
//
// Shipper.Run() drains the buffer in a loop, reconnecting with truncated
// exponential backoff (1s→60s, ±25% jitter) on dial, publish or connection
// close errors. A batch whose publish failed is put back on the buffer; one
// that cannot be encoded is discarded.
//
// The dialFn field is injectable for testing.
package shipper

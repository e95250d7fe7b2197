// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Notification socket state and reconnect scheduling
//   - Frames received and rejected by kind
//   - Archive batch sizes and write failures
//   - Relay publish counts and failures
package metrics

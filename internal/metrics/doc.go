// Package metrics provides Prometheus metrics for monitoring a session.
//
// Key metrics:
//   - Session state
//   - Request counts and latencies per method and outcome
//   - Reconnect attempts
//   - Published events per kind and received messages
//
// Collectors live on a private registry so several clients can coexist in
// one process.
package metrics

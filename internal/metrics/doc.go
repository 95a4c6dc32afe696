// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - WebSocket connection state and reconnect scheduling
//   - Inbound and outbound message counts
//   - Subscriber callback panics
//
// The HTTP handler also serves /healthz, which reports the connection state.
package metrics

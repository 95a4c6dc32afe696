// Package connection implements the session connection client.
//
// The Client:
//   - Holds at most one authenticated WebSocket connection (token in the query string)
//   - Reconnects after abnormal closures with capped exponential backoff
//   - Re-reads the token from a TokenSource before every reconnect
//   - Dispatches connect, disconnect and message events to registered callbacks
//   - Keeps the link alive with pings and treats a silent peer as an abnormal closure
//
// Close codes 1000 and 1001 end a session without reconnecting. Every other code,
// including 1008 (token rejected), goes through the reconnect path; reacting to 1008
// is left to subscribers.
package connection

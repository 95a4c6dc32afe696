// Package session persists the logged-in agent's token and identity.
//
// Every Store also satisfies connection.TokenSource, so the WebSocket client
// re-reads the current token before each reconnect.
package session

package connection

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
)

// Close codes the client and its collaborators care about.
const (
	CloseNormal          = websocket.CloseNormalClosure   // 1000
	CloseGoingAway       = websocket.CloseGoingAway       // 1001
	CloseAbnormal        = websocket.CloseAbnormalClosure // 1006
	ClosePolicyViolation = websocket.ClosePolicyViolation // 1008, token rejected
)

// LogoutReason is sent with the close frame when Disconnect is called.
const LogoutReason = "User logged out"

// ErrNoToken is logged when a scheduled reconnect finds no stored token.
var ErrNoToken = errors.New("no token available")

// State is the connection lifecycle state.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// CloseEvent describes why a connection ended.
type CloseEvent struct {
	Code   int
	Reason string
}

// Intentional reports whether the close code means the session was ended on purpose.
func (e CloseEvent) Intentional() bool {
	return e.Code == CloseNormal || e.Code == CloseGoingAway
}

// Message is an inbound text frame.
type Message struct {
	// Data is the decoded JSON value, or map[string]any{"raw": Text} when the
	// frame is not valid JSON.
	Data       any
	Text       string
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
	raw        bool
}

// IsRaw reports whether the frame failed to parse as JSON.
func (m Message) IsRaw() bool {
	return m.raw
}

// Decode unmarshals the original frame text into v.
func (m Message) Decode(v any) error {
	return json.Unmarshal([]byte(m.Text), v)
}

// ParseMessage decodes an inbound frame, falling back to a raw wrapper for
// text that is not JSON.
func ParseMessage(data []byte, receivedAt time.Time) Message {
	msg := Message{
		Text:       string(data),
		ReceivedAt: receivedAt,
	}
	if err := json.Unmarshal(data, &msg.Data); err != nil {
		msg.Data = map[string]any{"raw": msg.Text}
		msg.raw = true
	}
	return msg
}

// TokenSource supplies the current bearer token for reconnect attempts.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Metrics receives connection telemetry.
type Metrics interface {
	SetState(s State)
	ReconnectScheduled(attempt int, delay time.Duration)
	MessageReceived(raw bool)
	MessageSent()
	CallbackPanicked(event string)
}

type nopMetrics struct{}

func (nopMetrics) SetState(State) {}
func (nopMetrics) ReconnectScheduled(int, time.Duration) {}
func (nopMetrics) MessageReceived(bool) {}
func (nopMetrics) MessageSent() {}
func (nopMetrics) CallbackPanicked(string) {}

// Config configures a Client.
type Config struct {
	URL              string          // WebSocket URL (e.g., ws://localhost:8000/ws)
	Reconnect        ReconnectPolicy // Backoff for abnormal closures
	HandshakeTimeout time.Duration   // Dial handshake timeout
	WriteTimeout     time.Duration   // Write deadline for sends
	PingInterval     time.Duration   // Keepalive ping interval (0 = disabled)
	PingTimeout      time.Duration   // Max time without ping/pong before considering connection stale
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Reconnect:        DefaultReconnectPolicy(),
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      60 * time.Second,
	}
}

// Package auth coordinates agent login and logout across the backend API,
// the session store, and the WebSocket connection.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rickgao/agentlink/internal/api"
	"github.com/rickgao/agentlink/internal/connection"
	"github.com/rickgao/agentlink/internal/session"
)

// SessionExpiredMessage is passed to expiry handlers when the server rejects the token.
const SessionExpiredMessage = "Session expired. Please login again."

var (
	// ErrMissingCredentials is returned when the agent name or password is blank.
	ErrMissingCredentials = errors.New("agent name and password are required")

	// ErrNotLoggedIn is returned when no session is stored.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrConnectFailed is returned when the connection client refuses to start.
	ErrConnectFailed = errors.New("connection could not be started")
)

// clearTimeout bounds the store cleanup done from a disconnect callback.
const clearTimeout = 5 * time.Second

// Authenticator performs the backend login and logout calls.
type Authenticator interface {
	Login(ctx context.Context, req api.LoginRequest) (*api.LoginResponse, error)
	Logout(ctx context.Context, token string, agentID int64) error
}

// Connector is the part of the connection client the flow drives.
type Connector interface {
	Connect(token string) bool
	Disconnect()
	OnDisconnect(cb connection.DisconnectHandler) connection.Subscription
}

// Flow runs login, logout, and resume, and reacts to token rejection.
type Flow struct {
	auth   Authenticator
	store  session.Store
	conn   Connector
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	expired []func(reason string)
	sub     connection.Subscription
}

// Option configures a Flow.
type Option func(*Flow)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Flow) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithClock sets the time source used for LoggedInAt.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) {
		f.now = now
	}
}

// NewFlow creates a Flow and subscribes it to conn's disconnect events.
func NewFlow(auth Authenticator, store session.Store, conn Connector, opts ...Option) *Flow {
	f := &Flow{
		auth:   auth,
		store:  store,
		conn:   conn,
		logger: slog.Default(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(f)
	}

	f.sub = conn.OnDisconnect(f.handleDisconnect)
	return f
}

// Login authenticates the agent, stores the session, and opens the connection.
func (f *Flow) Login(ctx context.Context, agentName, password string) (session.Session, error) {
	agentName = strings.TrimSpace(agentName)
	password = strings.TrimSpace(password)
	if agentName == "" || password == "" {
		return session.Session{}, ErrMissingCredentials
	}

	resp, err := f.auth.Login(ctx, api.LoginRequest{AgentName: agentName, Password: password})
	if err != nil {
		return session.Session{}, err
	}

	s := session.Session{
		Token:      resp.Token,
		AgentID:    resp.Agent.ID,
		AgentName:  resp.Agent.AgentName,
		Persona:    resp.Agent.Persona,
		LoggedInAt: f.now().UTC(),
	}
	if err := f.store.Save(ctx, s); err != nil {
		return session.Session{}, fmt.Errorf("save session: %w", err)
	}

	if !f.conn.Connect(s.Token) {
		return s, ErrConnectFailed
	}

	f.logger.Info("login complete", "agent_id", s.AgentID, "agent_name", s.AgentName)
	return s, nil
}

// Resume reconnects with a previously stored session.
func (f *Flow) Resume(ctx context.Context) (session.Session, error) {
	s, err := f.store.Load(ctx)
	if errors.Is(err, session.ErrNoSession) {
		return session.Session{}, ErrNotLoggedIn
	}
	if err != nil {
		return session.Session{}, fmt.Errorf("load session: %w", err)
	}

	if !f.conn.Connect(s.Token) {
		return s, ErrConnectFailed
	}

	f.logger.Info("session resumed", "agent_id", s.AgentID, "agent_name", s.AgentName)
	return s, nil
}

// Logout closes the connection, notifies the backend, and clears the stored
// session. The local session is cleared even when the backend call fails.
func (f *Flow) Logout(ctx context.Context) error {
	s, err := f.store.Load(ctx)
	if errors.Is(err, session.ErrNoSession) {
		f.conn.Disconnect()
		return ErrNotLoggedIn
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	f.conn.Disconnect()

	apiErr := f.auth.Logout(ctx, s.Token, s.AgentID)
	if apiErr != nil {
		f.logger.Warn("backend logout failed", "agent_id", s.AgentID, "error", apiErr)
	}

	var clearErr error
	if err := f.store.Clear(ctx); err != nil {
		clearErr = fmt.Errorf("clear session: %w", err)
	}

	f.logger.Info("logout complete", "agent_id", s.AgentID)
	return errors.Join(apiErr, clearErr)
}

// OnSessionExpired registers fn to run when the server rejects the stored token.
func (f *Flow) OnSessionExpired(fn func(reason string)) {
	if fn == nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired = append(f.expired, fn)
}

// Close detaches the flow from the connection client.
func (f *Flow) Close() {
	f.sub.Unsubscribe()
}

func (f *Flow) handleDisconnect(ev connection.CloseEvent) {
	if ev.Code != connection.ClosePolicyViolation {
		return
	}

	f.logger.Warn("token rejected by server", "reason", ev.Reason)

	// Cancel the pending reconnect.
	f.conn.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), clearTimeout)
	defer cancel()
	if err := f.store.Clear(ctx); err != nil {
		f.logger.Error("failed to clear expired session", "error", err)
	}

	f.mu.Lock()
	handlers := append([]func(string){}, f.expired...)
	f.mu.Unlock()

	for _, fn := range handlers {
		fn(SessionExpiredMessage)
	}
}

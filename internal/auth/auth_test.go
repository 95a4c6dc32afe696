package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/agentlink/internal/api"
	"github.com/rickgao/agentlink/internal/connection"
	"github.com/rickgao/agentlink/internal/session"
)

type fakeAuth struct {
	loginResp *api.LoginResponse
	loginErr  error
	logoutErr error

	logins  []api.LoginRequest
	logouts []int64
	tokens  []string
}

func (f *fakeAuth) Login(ctx context.Context, req api.LoginRequest) (*api.LoginResponse, error) {
	f.logins = append(f.logins, req)
	return f.loginResp, f.loginErr
}

func (f *fakeAuth) Logout(ctx context.Context, token string, agentID int64) error {
	f.tokens = append(f.tokens, token)
	f.logouts = append(f.logouts, agentID)
	return f.logoutErr
}

type fakeConn struct {
	mu          sync.Mutex
	refuse      bool
	connects    []string
	disconnects int
	handlers    []connection.DisconnectHandler
}

func (f *fakeConn) Connect(token string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects = append(f.connects, token)
	return !f.refuse && token != ""
}

func (f *fakeConn) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
}

func (f *fakeConn) OnDisconnect(cb connection.DisconnectHandler) connection.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, cb)
	return connection.Subscription{}
}

func (f *fakeConn) fire(ev connection.CloseEvent) {
	f.mu.Lock()
	handlers := append([]connection.DisconnectHandler(nil), f.handlers...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

var fixedNow = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

func newTestFlow(a *fakeAuth, store session.Store, conn *fakeConn) *Flow {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewFlow(a, store, conn,
		WithLogger(logger),
		WithClock(func() time.Time { return fixedNow }),
	)
}

func okLogin() *fakeAuth {
	return &fakeAuth{loginResp: &api.LoginResponse{
		Token: "jwt-abc",
		Agent: api.Agent{ID: 7, AgentName: "alice", Persona: "friendly"},
	}}
}

func TestFlow_Login(t *testing.T) {
	a := okLogin()
	store := session.NewMemoryStore()
	conn := &fakeConn{}
	flow := newTestFlow(a, store, conn)

	s, err := flow.Login(context.Background(), "  alice ", "s3cret")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if len(a.logins) != 1 || a.logins[0].AgentName != "alice" || a.logins[0].Password != "s3cret" {
		t.Errorf("login requests = %+v", a.logins)
	}

	want := session.Session{Token: "jwt-abc", AgentID: 7, AgentName: "alice", Persona: "friendly", LoggedInAt: fixedNow}
	if s != want {
		t.Errorf("Login() = %+v, want %+v", s, want)
	}

	stored, err := store.Load(context.Background())
	if err != nil || stored != want {
		t.Errorf("stored session = %+v, %v", stored, err)
	}

	if len(conn.connects) != 1 || conn.connects[0] != "jwt-abc" {
		t.Errorf("connects = %v, want [jwt-abc]", conn.connects)
	}
}

func TestFlow_LoginMissingCredentials(t *testing.T) {
	tests := []struct {
		name, agent, password string
	}{
		{"no agent", "", "pw"},
		{"no password", "alice", ""},
		{"whitespace", "   ", "  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := okLogin()
			flow := newTestFlow(a, session.NewMemoryStore(), &fakeConn{})

			_, err := flow.Login(context.Background(), tt.agent, tt.password)
			if !errors.Is(err, ErrMissingCredentials) {
				t.Errorf("Login() error = %v, want ErrMissingCredentials", err)
			}
			if len(a.logins) != 0 {
				t.Error("backend should not be called")
			}
		})
	}
}

func TestFlow_LoginRejected(t *testing.T) {
	a := &fakeAuth{loginErr: &api.APIError{StatusCode: 401, Detail: "Invalid credentials"}}
	store := session.NewMemoryStore()
	conn := &fakeConn{}
	flow := newTestFlow(a, store, conn)

	_, err := flow.Login(context.Background(), "alice", "wrong")

	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Detail != "Invalid credentials" {
		t.Errorf("Login() error = %v, want API error", err)
	}
	if _, err := store.Load(context.Background()); !errors.Is(err, session.ErrNoSession) {
		t.Error("session should not be stored")
	}
	if len(conn.connects) != 0 {
		t.Error("should not connect")
	}
}

func TestFlow_LoginConnectRefused(t *testing.T) {
	store := session.NewMemoryStore()
	flow := newTestFlow(okLogin(), store, &fakeConn{refuse: true})

	s, err := flow.Login(context.Background(), "alice", "pw")
	if !errors.Is(err, ErrConnectFailed) {
		t.Errorf("Login() error = %v, want ErrConnectFailed", err)
	}
	if s.Token != "jwt-abc" {
		t.Errorf("session token = %q, want jwt-abc", s.Token)
	}
	if token, _ := store.Token(context.Background()); token != "jwt-abc" {
		t.Error("session should stay stored for a later resume")
	}
}

func TestFlow_Resume(t *testing.T) {
	store := session.NewMemoryStore()
	conn := &fakeConn{}
	flow := newTestFlow(okLogin(), store, conn)

	if _, err := flow.Resume(context.Background()); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("Resume() with empty store error = %v, want ErrNotLoggedIn", err)
	}

	store.Save(context.Background(), session.Session{Token: "stored", AgentID: 3})

	s, err := flow.Resume(context.Background())
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if s.AgentID != 3 {
		t.Errorf("AgentID = %d, want 3", s.AgentID)
	}
	if len(conn.connects) != 1 || conn.connects[0] != "stored" {
		t.Errorf("connects = %v, want [stored]", conn.connects)
	}
}

func TestFlow_Logout(t *testing.T) {
	a := okLogin()
	store := session.NewMemoryStore()
	conn := &fakeConn{}
	flow := newTestFlow(a, store, conn)

	if _, err := flow.Login(context.Background(), "alice", "pw"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := flow.Logout(context.Background()); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	if conn.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", conn.disconnects)
	}
	if len(a.logouts) != 1 || a.logouts[0] != 7 || a.tokens[0] != "jwt-abc" {
		t.Errorf("logout calls = %v tokens = %v", a.logouts, a.tokens)
	}
	if _, err := store.Load(context.Background()); !errors.Is(err, session.ErrNoSession) {
		t.Error("session should be cleared")
	}

	// A second logout has nothing to do.
	if err := flow.Logout(context.Background()); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("second Logout() error = %v, want ErrNotLoggedIn", err)
	}
	if len(a.logouts) != 1 {
		t.Error("backend should not be called without a session")
	}
}

func TestFlow_LogoutBackendFailureStillClears(t *testing.T) {
	a := okLogin()
	a.logoutErr = errors.New("backend unavailable")
	store := session.NewMemoryStore()
	conn := &fakeConn{}
	flow := newTestFlow(a, store, conn)

	flow.Login(context.Background(), "alice", "pw")

	err := flow.Logout(context.Background())
	if !errors.Is(err, a.logoutErr) {
		t.Errorf("Logout() error = %v, want backend error", err)
	}
	if _, err := store.Load(context.Background()); !errors.Is(err, session.ErrNoSession) {
		t.Error("session should be cleared despite backend failure")
	}
	if conn.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", conn.disconnects)
	}
}

func TestFlow_SessionExpired(t *testing.T) {
	store := session.NewMemoryStore()
	conn := &fakeConn{}
	flow := newTestFlow(okLogin(), store, conn)
	flow.Login(context.Background(), "alice", "pw")

	var reasons []string
	flow.OnSessionExpired(func(reason string) { reasons = append(reasons, reason) })

	// Other close codes leave the session alone.
	conn.fire(connection.CloseEvent{Code: connection.CloseAbnormal})
	if len(reasons) != 0 {
		t.Fatalf("expiry fired for 1006: %v", reasons)
	}
	if _, err := store.Token(context.Background()); err != nil {
		t.Fatalf("session cleared on 1006: %v", err)
	}

	conn.fire(connection.CloseEvent{Code: connection.ClosePolicyViolation, Reason: "invalid token"})

	if len(reasons) != 1 || reasons[0] != SessionExpiredMessage {
		t.Errorf("reasons = %v, want [%q]", reasons, SessionExpiredMessage)
	}
	if _, err := store.Token(context.Background()); !errors.Is(err, session.ErrNoSession) {
		t.Errorf("Token() after expiry error = %v, want ErrNoSession", err)
	}
	if conn.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", conn.disconnects)
	}
}

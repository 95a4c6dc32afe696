package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrNoSession is returned when nothing has been saved.
	ErrNoSession = errors.New("no session")

	// ErrEmptyToken is returned when saving a session without a token.
	ErrEmptyToken = errors.New("session token is empty")
)

// Session is the identity returned by a successful login.
type Session struct {
	Token      string    `yaml:"token"`
	AgentID    int64     `yaml:"agent_id"`
	AgentName  string    `yaml:"agent_name"`
	Persona    string    `yaml:"persona"`
	LoggedInAt time.Time `yaml:"logged_in_at"`
}

// Store persists a single session.
type Store interface {
	Save(ctx context.Context, s Session) error
	Load(ctx context.Context) (Session, error)
	Token(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
}

// MemoryStore keeps the session in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	current *Session
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Save(ctx context.Context, s Session) error {
	if s.Token == "" {
		return ErrEmptyToken
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = &s
	return nil
}

func (m *MemoryStore) Load(ctx context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return Session{}, ErrNoSession
	}
	return *m.current, nil
}

func (m *MemoryStore) Token(ctx context.Context) (string, error) {
	return tokenOf(m.Load(ctx))
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
	return nil
}

func tokenOf(s Session, err error) (string, error) {
	if err != nil {
		return "", err
	}
	if s.Token == "" {
		return "", ErrNoSession
	}
	return s.Token, nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*FileStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool used by PostgresStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS agent_sessions (
	profile      TEXT PRIMARY KEY,
	token        TEXT NOT NULL,
	agent_id     BIGINT NOT NULL,
	agent_name   TEXT NOT NULL,
	persona      TEXT NOT NULL DEFAULT '',
	logged_in_at TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore keeps one session row per profile in the agent_sessions table.
type PostgresStore struct {
	db      DB
	profile string
}

// NewPostgresStore creates a PostgresStore for profile.
func NewPostgresStore(db DB, profile string) *PostgresStore {
	return &PostgresStore{db: db, profile: profile}
}

// EnsureSchema creates the agent_sessions table if it does not exist.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create agent_sessions: %w", err)
	}
	return nil
}

func (p *PostgresStore) Save(ctx context.Context, s Session) error {
	if s.Token == "" {
		return ErrEmptyToken
	}

	_, err := p.db.Exec(ctx, `
		INSERT INTO agent_sessions (profile, token, agent_id, agent_name, persona, logged_in_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (profile) DO UPDATE SET
			token = EXCLUDED.token,
			agent_id = EXCLUDED.agent_id,
			agent_name = EXCLUDED.agent_name,
			persona = EXCLUDED.persona,
			logged_in_at = EXCLUDED.logged_in_at,
			updated_at = now()
	`, p.profile, s.Token, s.AgentID, s.AgentName, s.Persona, s.LoggedInAt)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (p *PostgresStore) Load(ctx context.Context) (Session, error) {
	var s Session
	err := p.db.QueryRow(ctx, `
		SELECT token, agent_id, agent_name, persona, logged_in_at
		FROM agent_sessions
		WHERE profile = $1
	`, p.profile).Scan(&s.Token, &s.AgentID, &s.AgentName, &s.Persona, &s.LoggedInAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	return s, nil
}

func (p *PostgresStore) Token(ctx context.Context) (string, error) {
	return tokenOf(p.Load(ctx))
}

func (p *PostgresStore) Clear(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, `DELETE FROM agent_sessions WHERE profile = $1`, p.profile); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

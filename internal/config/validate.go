package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if err := validateURL("api.base_url", c.API.BaseURL, "http", "https"); err != nil {
		return err
	}
	if !strings.HasPrefix(c.API.LoginPath, "/") {
		return errors.New("api.login_path must start with /")
	}
	if !strings.HasPrefix(c.API.LogoutPath, "/") {
		return errors.New("api.logout_path must start with /")
	}
	if c.API.Timeout <= 0 {
		return errors.New("api.timeout must be > 0")
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}

	if err := validateURL("connection.ws_url", c.Connection.WSURL, "ws", "wss"); err != nil {
		return err
	}
	if c.Connection.PingInterval < 0 {
		return errors.New("connection.ping_interval must be >= 0")
	}
	if c.Connection.PingInterval > 0 && c.Connection.PingTimeout <= c.Connection.PingInterval {
		return fmt.Errorf("connection.ping_timeout (%s) must exceed ping_interval (%s)",
			c.Connection.PingTimeout, c.Connection.PingInterval)
	}

	r := c.Connection.Reconnect
	if r.BaseDelay <= 0 {
		return errors.New("connection.reconnect.base_delay must be > 0")
	}
	if r.Multiplier < 1 {
		return fmt.Errorf("connection.reconnect.multiplier must be >= 1, got %g", r.Multiplier)
	}
	if r.MaxDelay < r.BaseDelay {
		return fmt.Errorf("connection.reconnect.max_delay (%s) cannot be less than base_delay (%s)", r.MaxDelay, r.BaseDelay)
	}
	if r.MaxAttempts < 0 {
		return errors.New("connection.reconnect.max_attempts must be >= 0")
	}

	switch c.Session.Driver {
	case SessionDriverMemory:
	case SessionDriverFile:
		if c.Session.Path == "" {
			return errors.New("session.path is required for the file driver")
		}
	case SessionDriverPostgres:
		if err := c.Database.Postgres.validate("database.postgres"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("session.driver must be one of memory, file, postgres, got %q", c.Session.Driver)
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				return fmt.Errorf("%s must include a host", field)
			}
			return nil
		}
	}
	return fmt.Errorf("%s must use scheme %s, got %q", field, strings.Join(schemes, " or "), raw)
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultBaseURL           = "http://localhost:8000"
	DefaultLoginPath         = "/login"
	DefaultLogoutPath        = "/logout"
	DefaultAPITimeout        = 10 * time.Second
	DefaultMaxRetries        = 2
	DefaultRetryBackoff      = 500 * time.Millisecond
	DefaultWSURL             = "ws://localhost:8000/ws"
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultPingInterval      = 30 * time.Second
	DefaultPingTimeout       = 60 * time.Second
	DefaultReconnectBase     = 2 * time.Second
	DefaultReconnectMult     = 1.5
	DefaultReconnectMax      = 30 * time.Second
	DefaultReconnectAttempts = 5
	DefaultSessionDriver     = SessionDriverFile
	DefaultSessionFile       = ".agentlink/session.yaml"
	DefaultSessionProfile    = "default"
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 4
	DefaultMinConns          = 0
	DefaultConnectTimeout    = 5 * time.Second
	DefaultApplicationName   = "agentlink"
	DefaultMetricsPort       = 9090
	DefaultMetricsPath       = "/metrics"
	DefaultMetricsNamespace  = "agentlink"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
)

func (c *Config) applyDefaults() {
	// API defaults
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.LoginPath == "" {
		c.API.LoginPath = DefaultLoginPath
	}
	if c.API.LogoutPath == "" {
		c.API.LogoutPath = DefaultLogoutPath
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}
	if c.API.RetryBackoff == 0 {
		c.API.RetryBackoff = DefaultRetryBackoff
	}

	// Connection defaults
	if c.Connection.WSURL == "" {
		c.Connection.WSURL = DefaultWSURL
	}
	if c.Connection.HandshakeTimeout == 0 {
		c.Connection.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.PingInterval == 0 {
		c.Connection.PingInterval = DefaultPingInterval
	}
	if c.Connection.PingTimeout == 0 {
		c.Connection.PingTimeout = DefaultPingTimeout
	}

	r := &c.Connection.Reconnect
	if r.BaseDelay == 0 {
		r.BaseDelay = DefaultReconnectBase
	}
	if r.Multiplier == 0 {
		r.Multiplier = DefaultReconnectMult
	}
	if r.MaxDelay == 0 {
		r.MaxDelay = DefaultReconnectMax
	}
	if r.MaxAttempts == 0 {
		r.MaxAttempts = DefaultReconnectAttempts
	}

	// Session defaults
	if c.Session.Driver == "" {
		c.Session.Driver = DefaultSessionDriver
	}
	if c.Session.Path == "" {
		c.Session.Path = DefaultSessionFile
	}
	if c.Session.Profile == "" {
		c.Session.Profile = DefaultSessionProfile
	}

	// Database defaults
	applyDBDefaults(&c.Database.Postgres)

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultMetricsNamespace
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
	if db.ConnectTimeout == 0 {
		db.ConnectTimeout = DefaultConnectTimeout
	}
	if db.ApplicationName == "" {
		db.ApplicationName = DefaultApplicationName
	}
}

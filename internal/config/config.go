package config

import "time"

// Config is the root configuration for an agentlink client.
type Config struct {
	API        APIConfig        `yaml:"api"`
	Connection ConnectionConfig `yaml:"connection"`
	Session    SessionConfig    `yaml:"session"`
	Database   DatabaseConfig   `yaml:"database"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
}

// APIConfig holds the assist backend HTTP settings.
type APIConfig struct {
	BaseURL      string        `yaml:"base_url"`
	LoginPath    string        `yaml:"login_path"`
	LogoutPath   string        `yaml:"logout_path"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// ConnectionConfig holds WebSocket client settings.
type ConnectionConfig struct {
	WSURL            string          `yaml:"ws_url"`
	HandshakeTimeout time.Duration   `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration   `yaml:"write_timeout"`
	PingInterval     time.Duration   `yaml:"ping_interval"`
	PingTimeout      time.Duration   `yaml:"ping_timeout"`
	Reconnect        ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig holds the backoff policy for abnormal closures.
type ReconnectConfig struct {
	BaseDelay   time.Duration `yaml:"base_delay"`
	Multiplier  float64       `yaml:"multiplier"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// SessionConfig selects where the login session is persisted.
type SessionConfig struct {
	Driver  string `yaml:"driver"`  // memory, file, or postgres
	Path    string `yaml:"path"`    // file driver only
	Profile string `yaml:"profile"` // row key for the postgres driver
}

// Session drivers.
const (
	SessionDriverMemory   = "memory"
	SessionDriverFile     = "file"
	SessionDriverPostgres = "postgres"
)

// DatabaseConfig holds the PostgreSQL connection used by the postgres session driver.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConns        int           `yaml:"max_conns"`
	MinConns        int           `yaml:"min_conns"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	ApplicationName string        `yaml:"application_name"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/rickgao/agentlink/internal/api"
	"github.com/rickgao/agentlink/internal/auth"
	"github.com/rickgao/agentlink/internal/config"
	"github.com/rickgao/agentlink/internal/connection"
	"github.com/rickgao/agentlink/internal/database"
	"github.com/rickgao/agentlink/internal/metrics"
	"github.com/rickgao/agentlink/internal/session"
	"github.com/rickgao/agentlink/internal/version"
)

// runtime wires the components a subcommand needs.
type runtime struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   session.Store
	api     *api.Client
	conn    *connection.Client
	flow    *auth.Flow
	metrics *metrics.Registry

	closers []func()
}

func newRuntime(ctx context.Context, opts *rootOptions, logOut io.Writer) (*runtime, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.Log, logOut)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	logger.Debug("configuration loaded",
		"version", version.Version,
		"config", opts.configPath,
		"api_url", cfg.API.BaseURL,
		"ws_url", cfg.Connection.WSURL,
		"session_driver", cfg.Session.Driver,
	)

	rt := &runtime{cfg: cfg, logger: logger}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	rt.store = store
	rt.closers = append(rt.closers, closeStore)

	reg, err := metrics.New(metrics.Config{Namespace: cfg.Metrics.Namespace})
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.metrics = reg

	rt.api = api.NewClient(cfg.API.BaseURL,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, cfg.API.RetryBackoff),
		api.WithEndpoints(cfg.API.LoginPath, cfg.API.LogoutPath),
	)

	rt.conn = connection.NewClient(connectionConfig(cfg.Connection), store,
		connection.WithLogger(logger),
		connection.WithMetrics(reg),
	)

	rt.flow = auth.NewFlow(rt.api, store, rt.conn, auth.WithLogger(logger))
	rt.closers = append(rt.closers, rt.flow.Close)

	return rt, nil
}

// Close disconnects and releases resources in reverse order of creation.
func (r *runtime) Close() {
	if r.conn != nil {
		r.conn.Disconnect()
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func loadConfig(opts *rootOptions) (*config.Config, error) {
	if opts.envFile != "" {
		if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", opts.envFile, err)
		}
	}

	if opts.configPath == "" {
		return config.Default(), nil
	}
	return config.LoadAndValidate(opts.configPath)
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (session.Store, func(), error) {
	switch cfg.Session.Driver {
	case config.SessionDriverMemory:
		return session.NewMemoryStore(), func() {}, nil

	case config.SessionDriverFile:
		return session.NewFileStore(expandHome(cfg.Session.Path)), func() {}, nil

	case config.SessionDriverPostgres:
		db := cfg.Database.Postgres
		logger.Info("connecting to database",
			"host", db.Host,
			"port", db.Port,
			"database", db.Name,
		)

		pool, err := database.Connect(ctx, db)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}

		store := session.NewPostgresStore(pool, cfg.Session.Profile)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown session driver %q", cfg.Session.Driver)
	}
}

func connectionConfig(cfg config.ConnectionConfig) connection.Config {
	return connection.Config{
		URL: cfg.WSURL,
		Reconnect: connection.ReconnectPolicy{
			BaseDelay:   cfg.Reconnect.BaseDelay,
			Multiplier:  cfg.Reconnect.Multiplier,
			MaxDelay:    cfg.Reconnect.MaxDelay,
			MaxAttempts: cfg.Reconnect.MaxAttempts,
		},
		HandshakeTimeout: cfg.HandshakeTimeout,
		WriteTimeout:     cfg.WriteTimeout,
		PingInterval:     cfg.PingInterval,
		PingTimeout:      cfg.PingTimeout,
	}
}

// expandHome resolves "~/" and bare relative session paths against the home directory.
func expandHome(path string) string {
	switch {
	case strings.HasPrefix(path, "~/"):
		path = path[2:]
	case filepath.IsAbs(path), strings.HasPrefix(path, "./"), strings.HasPrefix(path, "../"):
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path)
}

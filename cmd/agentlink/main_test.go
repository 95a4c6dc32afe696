package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/agentlink/internal/config"
	"github.com/rickgao/agentlink/internal/session"
	"github.com/rickgao/agentlink/internal/version"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()

	want := map[string]bool{"login": false, "logout": false, "connect": false, "version": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}

	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("--config flag missing")
	}
}

func TestVersionCmd(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	if err := root.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(out.String(), version.String()) {
		t.Errorf("output = %q, want version string", out.String())
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("AGENTLINK_TEST_WS=wss://assist.example.com/ws\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("AGENTLINK_TEST_WS") })

	cfgPath := filepath.Join(dir, "agentlink.yaml")
	yaml := "connection:\n  ws_url: ${AGENTLINK_TEST_WS}\nsession:\n  driver: memory\n"
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadConfig(&rootOptions{configPath: cfgPath, envFile: envPath})
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Connection.WSURL != "wss://assist.example.com/ws" {
		t.Errorf("WSURL = %q, want value from .env", cfg.Connection.WSURL)
	}
	if cfg.API.BaseURL != config.DefaultBaseURL {
		t.Errorf("BaseURL = %q, want default", cfg.API.BaseURL)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(&rootOptions{envFile: filepath.Join(t.TempDir(), "missing.env")})
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Connection.WSURL != config.DefaultWSURL {
		t.Errorf("WSURL = %q, want default", cfg.Connection.WSURL)
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		cfg       config.LogConfig
		wantDebug bool
		wantJSON  bool
		wantErr   bool
	}{
		{cfg: config.LogConfig{Level: "debug", Format: "text"}, wantDebug: true},
		{cfg: config.LogConfig{Level: "info", Format: "json"}, wantJSON: true},
		{cfg: config.LogConfig{Level: "warn", Format: "text"}},
		{cfg: config.LogConfig{Level: "loud", Format: "text"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.cfg.Level, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := newLogger(tt.cfg, &buf)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("newLogger failed: %v", err)
			}

			if got := logger.Enabled(context.Background(), -4); got != tt.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tt.wantDebug)
			}

			logger.Warn("hello", "k", "v")
			if tt.wantJSON != strings.HasPrefix(buf.String(), "{") {
				t.Errorf("output = %q, json = %v", buf.String(), tt.wantJSON)
			}
		})
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	logger := discardLogger()

	cfg := config.Default()
	cfg.Session.Driver = config.SessionDriverMemory
	store, closeFn, err := openStore(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("openStore(memory) failed: %v", err)
	}
	closeFn()
	if _, ok := store.(*session.MemoryStore); !ok {
		t.Errorf("store = %T, want *session.MemoryStore", store)
	}

	path := filepath.Join(t.TempDir(), "session.yaml")
	cfg.Session.Driver = config.SessionDriverFile
	cfg.Session.Path = path
	store, _, err = openStore(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("openStore(file) failed: %v", err)
	}
	fs, ok := store.(*session.FileStore)
	if !ok {
		t.Fatalf("store = %T, want *session.FileStore", store)
	}
	if fs.Path() != path {
		t.Errorf("Path() = %q, want %q", fs.Path(), path)
	}

	cfg.Session.Driver = "redis"
	if _, _, err := openStore(ctx, cfg, logger); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestConnectionConfig(t *testing.T) {
	cfg := config.Default().Connection
	cfg.WSURL = "wss://assist.example.com/ws"
	cfg.Reconnect.MaxAttempts = 9

	got := connectionConfig(cfg)

	if got.URL != "wss://assist.example.com/ws" {
		t.Errorf("URL = %q", got.URL)
	}
	if got.Reconnect.BaseDelay != 2*time.Second || got.Reconnect.Multiplier != 1.5 ||
		got.Reconnect.MaxDelay != 30*time.Second || got.Reconnect.MaxAttempts != 9 {
		t.Errorf("Reconnect = %+v", got.Reconnect)
	}
	if got.HandshakeTimeout != cfg.HandshakeTimeout || got.PingInterval != cfg.PingInterval ||
		got.PingTimeout != cfg.PingTimeout || got.WriteTimeout != cfg.WriteTimeout {
		t.Errorf("timeouts = %+v", got)
	}
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		in, want string
	}{
		{"~/.agentlink/session.yaml", filepath.Join(home, ".agentlink/session.yaml")},
		{".agentlink/session.yaml", filepath.Join(home, ".agentlink/session.yaml")},
		{"/var/lib/agentlink/session.yaml", "/var/lib/agentlink/session.yaml"},
		{"./session.yaml", "./session.yaml"},
	}

	for _, tt := range tests {
		if got := expandHome(tt.in); got != tt.want {
			t.Errorf("expandHome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

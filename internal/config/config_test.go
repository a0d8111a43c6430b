package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	cfg := New()

	if cfg.Server.Address != DefaultServerAddress {
		t.Errorf("Server.Address = %q, want %q", cfg.Server.Address, DefaultServerAddress)
	}
	if cfg.Server.Path != DefaultPath {
		t.Errorf("Server.Path = %q, want %q", cfg.Server.Path, DefaultPath)
	}
	if cfg.Session.MaxReconnectAttempts != 5 {
		t.Errorf("Session.MaxReconnectAttempts = %d, want 5", cfg.Session.MaxReconnectAttempts)
	}
	if cfg.Source.MaxBytes != DefaultMaxSourceBytes {
		t.Errorf("Source.MaxBytes = %d, want %d", cfg.Source.MaxBytes, DefaultMaxSourceBytes)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults error = %v", err)
	}
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()

	// Missing file
	_, err := Load(tmpDir)
	if err == nil {
		t.Fatal("Expected error for missing config")
	}
	if !strings.Contains(err.Error(), "W040") {
		t.Errorf("Expected W040 error, got: %v", err)
	}

	configJSON := `{
  "url": "wss://example.com/_ws",
  "protocols": ["wsm.v1"],
  "session": {
    "maxReconnectAttempts": 8,
    "pingInterval": "10s",
    "pingTimeout": "25s"
  },
  "server": {
    "address": "127.0.0.1:9000",
    "maxPeersPerIP": 4
  },
  "log": {"level": "debug", "format": "json"},
  "source": {"s3": {"region": "eu-west-1", "usePathStyle": true, "anonymous": true}}
}
`
	if err := os.WriteFile(filepath.Join(tmpDir, ConfigFileName), []byte(configJSON), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.URL != "wss://example.com/_ws" {
		t.Errorf("URL = %q", cfg.URL)
	}
	if cfg.Session.MaxReconnectAttempts != 8 {
		t.Errorf("Session.MaxReconnectAttempts = %d, want 8", cfg.Session.MaxReconnectAttempts)
	}
	// untouched fields keep their defaults
	if cfg.Session.ReconnectInterval != "1s" {
		t.Errorf("Session.ReconnectInterval = %q, want 1s", cfg.Session.ReconnectInterval)
	}
	if cfg.Server.Path != DefaultPath {
		t.Errorf("Server.Path = %q, want %q", cfg.Server.Path, DefaultPath)
	}
	if cfg.Server.MaxPeersPerIP != 4 {
		t.Errorf("Server.MaxPeersPerIP = %d, want 4", cfg.Server.MaxPeersPerIP)
	}
	if cfg.Source.S3.Region != "eu-west-1" || !cfg.Source.S3.UsePathStyle || !cfg.Source.S3.Anonymous {
		t.Errorf("Source.S3 = %+v", cfg.Source.S3)
	}
	if cfg.Path() != filepath.Join(tmpDir, ConfigFileName) {
		t.Errorf("Path() = %q", cfg.Path())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadFile_InvalidJSON(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), ConfigFileName)
	if err := os.WriteFile(configPath, []byte("not valid json"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFile(configPath)
	if err == nil {
		t.Fatal("Expected error for invalid JSON")
	}
	if !strings.Contains(err.Error(), "W041") {
		t.Errorf("Expected W041 error, got: %v", err)
	}
}

func TestFindRoot(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	if err := New().SaveTo(filepath.Join(root, ConfigFileName)); err != nil {
		t.Fatal(err)
	}

	got, err := FindRoot(nested)
	if err != nil {
		t.Fatalf("FindRoot error: %v", err)
	}
	want, _ := filepath.Abs(root)
	if got != want {
		t.Errorf("FindRoot = %q, want %q", got, want)
	}
}

func TestSave(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), ConfigFileName)

	cfg := New()
	cfg.URL = "ws://localhost:8080/_ws"

	if err := cfg.Save(); err == nil {
		t.Error("Expected error when saving without path")
	}
	if err := cfg.SaveTo(configPath); err != nil {
		t.Fatalf("SaveTo error: %v", err)
	}

	loaded, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if loaded.URL != cfg.URL {
		t.Errorf("URL = %q, want %q", loaded.URL, cfg.URL)
	}

	loaded.Server.Greeting = "salut"
	if err := loaded.Save(); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	reloaded, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if reloaded.Server.Greeting != "salut" {
		t.Errorf("Server.Greeting = %q, want salut", reloaded.Server.Greeting)
	}
}

func TestSessionConfig(t *testing.T) {
	cfg := New()
	cfg.URL = "ws://localhost/_ws"
	cfg.Protocols = []string{"wsm.v1"}
	cfg.Session.PingInterval = "5s"
	cfg.Session.PingTimeout = "12s"
	cfg.Session.ReconnectJitter = true
	cfg.Session.ChunkSize = 4096

	sc, err := cfg.SessionConfig()
	if err != nil {
		t.Fatalf("SessionConfig error: %v", err)
	}
	if sc.URL != cfg.URL || len(sc.Protocols) != 1 {
		t.Errorf("URL/Protocols not copied: %+v", sc)
	}
	if sc.PingInterval != 5*time.Second || sc.PingTimeout != 12*time.Second {
		t.Errorf("ping = %v/%v, want 5s/12s", sc.PingInterval, sc.PingTimeout)
	}
	if sc.ReconnectInterval != time.Second || sc.MaxReconnectDelay != 30*time.Second {
		t.Errorf("reconnect = %v/%v, want 1s/30s", sc.ReconnectInterval, sc.MaxReconnectDelay)
	}
	if !sc.ReconnectJitter || sc.ChunkSize != 4096 {
		t.Errorf("jitter/chunk not copied: %+v", sc)
	}
}

func TestSessionConfig_DelayCap(t *testing.T) {
	tests := []struct {
		name     string
		interval string
		cap      string
		want     time.Duration
	}{
		{"defaults", "", "", 30 * time.Second},
		{"long interval raises default cap", "45s", "", 45 * time.Second},
		{"explicit cap", "2s", "10s", 10 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			cfg.URL = "ws://localhost:8080/_ws"
			if tt.interval != "" {
				cfg.Session.ReconnectInterval = tt.interval
			}
			cfg.Session.MaxReconnectDelay = tt.cap

			sc, err := cfg.SessionConfig()
			if err != nil {
				t.Fatalf("SessionConfig error: %v", err)
			}
			if sc.MaxReconnectDelay != tt.want {
				t.Errorf("MaxReconnectDelay = %v, want %v", sc.MaxReconnectDelay, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad duration", func(c *Config) { c.Session.PingInterval = "soon" }},
		{"negative duration", func(c *Config) { c.Session.ReconnectInterval = "-1s" }},
		{"timeout not above interval", func(c *Config) {
			c.Session.PingInterval = "30s"
			c.Session.PingTimeout = "30s"
		}},
		{"delay cap below base", func(c *Config) {
			c.Session.ReconnectInterval = "10s"
			c.Session.MaxReconnectDelay = "5s"
		}},
		{"server path", func(c *Config) { c.Server.Path = "ws" }},
		{"server timeout", func(c *Config) { c.Server.WriteTimeout = "x" }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
		{"negative limit", func(c *Config) { c.Server.MaxPeers = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() succeeded, want error")
			}
			if !strings.Contains(err.Error(), "W042") {
				t.Errorf("Validate() error = %v, want W042", err)
			}
		})
	}
}

func TestServerConfig(t *testing.T) {
	cfg := New()
	cfg.Server.MaxPeers = 100
	cfg.Server.TrustedProxies = []string{"10.0.0.0/8"}
	cfg.Server.ShutdownTimeout = "3s"

	sc, err := cfg.ServerConfig()
	if err != nil {
		t.Fatalf("ServerConfig error: %v", err)
	}
	if sc.MaxPeers != 100 || len(sc.TrustedProxies) != 1 {
		t.Errorf("limits not copied: %+v", sc)
	}
	if sc.ShutdownTimeout != 3*time.Second || sc.WriteTimeout != 10*time.Second {
		t.Errorf("timeouts = %v/%v", sc.ShutdownTimeout, sc.WriteTimeout)
	}
	if sc.Greeting != DefaultGreeting {
		t.Errorf("Greeting = %q", sc.Greeting)
	}
}

func TestLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		cfg := New()
		cfg.Log.Level = in
		got, err := cfg.LogLevel()
		if err != nil {
			t.Errorf("LogLevel(%q) error = %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("LogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

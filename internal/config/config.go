package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vango-dev/wsm/internal/errors"
	"github.com/vango-dev/wsm/pkg/server"
	"github.com/vango-dev/wsm/pkg/session"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "wsm.json"

	// DefaultServerAddress is the default listen address for `wsm serve`.
	DefaultServerAddress = ":8080"

	// DefaultPath is the default WebSocket endpoint path.
	DefaultPath = "/_ws"

	// DefaultGreeting is sent to every peer in the "connected" envelope.
	DefaultGreeting = "Bonjour"

	// DefaultMaxSourceBytes caps payloads read by `wsm send`.
	DefaultMaxSourceBytes = 16 << 20

	// DefaultMetricsNamespace prefixes every exported metric.
	DefaultMetricsNamespace = "wsm"
)

// Config represents the complete wsm.json configuration.
type Config struct {
	// URL is the WebSocket endpoint used by connect and send.
	URL string `json:"url,omitempty"`

	// Protocols are offered as WebSocket subprotocols.
	Protocols []string `json:"protocols,omitempty"`

	// Session contains client session tuning.
	Session SessionConfig `json:"session,omitempty"`

	// Server contains `wsm serve` settings.
	Server ServerConfig `json:"server,omitempty"`

	// Log contains logging settings.
	Log LogConfig `json:"log,omitempty"`

	// Metrics contains Prometheus settings.
	Metrics MetricsConfig `json:"metrics,omitempty"`

	// Source contains payload source settings for `wsm send`.
	Source SourceConfig `json:"source,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// SessionConfig contains client session settings. Durations use Go syntax
// (e.g., "30s").
type SessionConfig struct {
	MaxReconnectAttempts int    `json:"maxReconnectAttempts,omitempty"`
	ReconnectInterval    string `json:"reconnectInterval,omitempty"`

	// MaxReconnectDelay caps the backoff. Empty means 30s, or
	// reconnectInterval when that is longer.
	MaxReconnectDelay string `json:"maxReconnectDelay,omitempty"`

	ReconnectJitter bool   `json:"reconnectJitter,omitempty"`
	PingInterval    string `json:"pingInterval,omitempty"`
	PingTimeout     string `json:"pingTimeout,omitempty"`
	ChunkSize       int    `json:"chunkSize,omitempty"`

	// ReconnectOnHeartbeatTimeout retries after a heartbeat timeout instead
	// of closing with 3010.
	ReconnectOnHeartbeatTimeout bool `json:"reconnectOnHeartbeatTimeout,omitempty"`
}

// ServerConfig contains peer server settings.
type ServerConfig struct {
	Address         string   `json:"address,omitempty"`
	Path            string   `json:"path,omitempty"`
	Greeting        string   `json:"greeting,omitempty"`
	Subprotocols    []string `json:"subprotocols,omitempty"`
	MaxPeers        int      `json:"maxPeers,omitempty"`
	MaxPeersPerIP   int      `json:"maxPeersPerIP,omitempty"`
	TrustedProxies  []string `json:"trustedProxies,omitempty"`
	WriteTimeout    string   `json:"writeTimeout,omitempty"`
	ShutdownTimeout string   `json:"shutdownTimeout,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	// Address serves /metrics for the client commands when set.
	Address string `json:"address,omitempty"`

	// Namespace prefixes metric names.
	Namespace string `json:"namespace,omitempty"`
}

// SourceConfig contains payload source settings.
type SourceConfig struct {
	// MaxBytes caps the size of a payload read from a file or S3.
	MaxBytes int64 `json:"maxBytes,omitempty"`

	// S3 configures the S3 client used for s3:// sources.
	S3 S3Config `json:"s3,omitempty"`
}

// S3Config configures the S3 client. Credentials come from the AWS
// environment and shared config files.
type S3Config struct {
	Region       string `json:"region,omitempty"`
	Endpoint     string `json:"endpoint,omitempty"`
	UsePathStyle bool   `json:"usePathStyle,omitempty"`

	// Anonymous sends unsigned requests to public buckets.
	Anonymous bool `json:"anonymous,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Session: SessionConfig{
			MaxReconnectAttempts: 5,
			ReconnectInterval:    "1s",
			PingInterval:         "30s",
			PingTimeout:          "60s",
		},
		Server: ServerConfig{
			Address:         DefaultServerAddress,
			Path:            DefaultPath,
			Greeting:        DefaultGreeting,
			WriteTimeout:    "10s",
			ShutdownTimeout: "10s",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Namespace: DefaultMetricsNamespace,
		},
		Source: SourceConfig{
			MaxBytes: DefaultMaxSourceBytes,
		},
	}
}

// Load reads configuration from the specified directory.
// It looks for wsm.json in the directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("W040").
				WithDetail("No wsm.json found in " + filepath.Dir(path))
		}
		return nil, errors.New("W041").Wrap(err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("W041").
			WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error())
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

// LoadFromWorkingDir loads wsm.json from the current directory or the
// nearest parent that has one.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	root, err := FindRoot(wd)
	if err != nil {
		return nil, err
	}
	return Load(root)
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// FindRoot walks up from startDir to the first directory holding wsm.json.
func FindRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}
	for {
		if Exists(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("W040").
				WithDetail("No wsm.json found in " + startDir + " or any parent directory")
		}
		dir = parent
	}
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("W041").Wrap(err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("W041").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	def := New()

	// Session
	if c.Session.MaxReconnectAttempts <= 0 {
		c.Session.MaxReconnectAttempts = def.Session.MaxReconnectAttempts
	}
	if c.Session.ReconnectInterval == "" {
		c.Session.ReconnectInterval = def.Session.ReconnectInterval
	}
	if c.Session.PingInterval == "" {
		c.Session.PingInterval = def.Session.PingInterval
	}
	if c.Session.PingTimeout == "" {
		c.Session.PingTimeout = def.Session.PingTimeout
	}

	// Server
	if c.Server.Address == "" {
		c.Server.Address = def.Server.Address
	}
	if c.Server.Path == "" {
		c.Server.Path = def.Server.Path
	}
	if c.Server.Greeting == "" {
		c.Server.Greeting = def.Server.Greeting
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = def.Server.WriteTimeout
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = def.Server.ShutdownTimeout
	}

	// Log
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}

	// Metrics and sources
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = def.Metrics.Namespace
	}
	if c.Source.MaxBytes <= 0 {
		c.Source.MaxBytes = def.Source.MaxBytes
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if _, err := c.SessionConfig(); err != nil {
		return err
	}
	if _, err := c.ServerConfig(); err != nil {
		return err
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return invalid("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Server.MaxPeers < 0 || c.Server.MaxPeersPerIP < 0 {
		return invalid("server peer limits must not be negative")
	}
	return nil
}

// SessionConfig converts the session section into a session.Config. URL and
// Protocols come from the top level. Collaborators such as the logger and
// dialer are left for the caller.
func (c *Config) SessionConfig() (session.Config, error) {
	cfg := session.DefaultConfig()
	cfg.URL = c.URL
	cfg.Protocols = c.Protocols
	cfg.MaxReconnectAttempts = c.Session.MaxReconnectAttempts
	cfg.ReconnectJitter = c.Session.ReconnectJitter
	cfg.ReconnectOnHeartbeatTimeout = c.Session.ReconnectOnHeartbeatTimeout
	if c.Session.ChunkSize > 0 {
		cfg.ChunkSize = c.Session.ChunkSize
	}

	fields := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"session.reconnectInterval", c.Session.ReconnectInterval, &cfg.ReconnectInterval},
		{"session.maxReconnectDelay", c.Session.MaxReconnectDelay, &cfg.MaxReconnectDelay},
		{"session.pingInterval", c.Session.PingInterval, &cfg.PingInterval},
		{"session.pingTimeout", c.Session.PingTimeout, &cfg.PingTimeout},
	}
	for _, f := range fields {
		if err := parseDuration(f.name, f.value, f.dst); err != nil {
			return session.Config{}, err
		}
	}

	if cfg.PingTimeout <= cfg.PingInterval {
		return session.Config{}, invalid("session.pingTimeout (%s) must be greater than session.pingInterval (%s)",
			cfg.PingTimeout, cfg.PingInterval)
	}
	if c.Session.MaxReconnectDelay == "" {
		cfg.MaxReconnectDelay = max(cfg.MaxReconnectDelay, cfg.ReconnectInterval)
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectInterval {
		return session.Config{}, invalid("session.maxReconnectDelay (%s) is below session.reconnectInterval (%s)",
			cfg.MaxReconnectDelay, cfg.ReconnectInterval)
	}
	return cfg, nil
}

// ServerConfig converts the server section into a server.Config. Hooks,
// metrics and the logger are left for the caller.
func (c *Config) ServerConfig() (*server.Config, error) {
	cfg := server.DefaultConfig()
	cfg.Address = c.Server.Address
	cfg.Path = c.Server.Path
	cfg.Greeting = c.Server.Greeting
	cfg.Subprotocols = c.Server.Subprotocols
	cfg.MaxPeers = c.Server.MaxPeers
	cfg.MaxPeersPerIP = c.Server.MaxPeersPerIP
	cfg.TrustedProxies = c.Server.TrustedProxies

	if !strings.HasPrefix(cfg.Path, "/") {
		return nil, invalid("server.path must start with /, got %q", cfg.Path)
	}
	if err := parseDuration("server.writeTimeout", c.Server.WriteTimeout, &cfg.WriteTimeout); err != nil {
		return nil, err
	}
	if err := parseDuration("server.shutdownTimeout", c.Server.ShutdownTimeout, &cfg.ShutdownTimeout); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, invalid("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	return level, nil
}

// parseDuration parses value into dst. An empty value leaves dst unchanged.
func parseDuration(name, value string, dst *time.Duration) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return invalid("%s: %v", name, err)
	}
	if d <= 0 {
		return invalid("%s must be positive, got %s", name, value)
	}
	*dst = d
	return nil
}

func invalid(format string, args ...any) *errors.Error {
	return errors.New("W042").WithDetail(fmt.Sprintf(format, args...))
}

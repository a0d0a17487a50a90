package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vango-dev/bridge/internal/errors"
	"github.com/vango-dev/bridge/pkg/wire"
)

const (
	// ConfigFileName is the name of the JSON configuration file.
	ConfigFileName = "bridge.json"

	// DefaultAddr is the default listen address of "bridge serve".
	DefaultAddr = ":8090"

	// DefaultNamespace is the default Prometheus namespace.
	DefaultNamespace = "bridge"

	// DefaultTopic is the default pub/sub topic prefix.
	DefaultTopic = "bridge"
)

// candidates are tried in order by Load.
var candidates = []string{ConfigFileName, "bridge.yaml", "bridge.yml"}

// Config is the complete bridge configuration.
type Config struct {
	Server  ServerConfig  `json:"server" yaml:"server"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
	Redis   RedisConfig   `json:"redis" yaml:"redis"`
	Log     LogConfig     `json:"log" yaml:"log"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig configures the worker host.
type ServerConfig struct {
	// Addr is the address to listen on.
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`

	ReadTimeout       Duration `json:"readTimeout,omitempty" yaml:"readTimeout,omitempty"`
	WriteTimeout      Duration `json:"writeTimeout,omitempty" yaml:"writeTimeout,omitempty"`
	HandshakeTimeout  Duration `json:"handshakeTimeout,omitempty" yaml:"handshakeTimeout,omitempty"`
	HeartbeatInterval Duration `json:"heartbeatInterval,omitempty" yaml:"heartbeatInterval,omitempty"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout Duration `json:"shutdownTimeout,omitempty" yaml:"shutdownTimeout,omitempty"`

	// MaxMessageSize is the largest accepted WebSocket message in bytes.
	MaxMessageSize int64 `json:"maxMessageSize,omitempty" yaml:"maxMessageSize,omitempty"`

	// MailboxSize is the number of inputs that may wait per worker.
	MailboxSize int `json:"mailboxSize,omitempty" yaml:"mailboxSize,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Path      string `json:"path,omitempty" yaml:"path,omitempty"`
}

// TracingConfig configures OpenTelemetry spans.
type TracingConfig struct {
	TracerName string `json:"tracerName,omitempty" yaml:"tracerName,omitempty"`
}

// RedisConfig configures the Redis Streams pub/sub worker server.
type RedisConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	Addr          string `json:"addr,omitempty" yaml:"addr,omitempty"`
	Password      string `json:"password,omitempty" yaml:"password,omitempty"`
	DB            int    `json:"db,omitempty" yaml:"db,omitempty"`
	Topic         string `json:"topic,omitempty" yaml:"topic,omitempty"`
	ConsumerGroup string `json:"consumerGroup,omitempty" yaml:"consumerGroup,omitempty"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty" yaml:"level,omitempty"`

	// Format is "text" or "json".
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// New creates a Config with default values.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              DefaultAddr,
			ReadTimeout:       Duration(60 * time.Second),
			WriteTimeout:      Duration(10 * time.Second),
			HandshakeTimeout:  Duration(10 * time.Second),
			HeartbeatInterval: Duration(30 * time.Second),
			ShutdownTimeout:   Duration(15 * time.Second),
			MaxMessageSize:    wire.MaxFrameSize,
			MailboxSize:       128,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: DefaultNamespace,
			Path:      "/metrics",
		},
		Tracing: TracingConfig{
			TracerName: "github.com/vango-dev/bridge",
		},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			Topic:         DefaultTopic,
			ConsumerGroup: "bridge-workers",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from dir, trying bridge.json, bridge.yaml and
// bridge.yml in that order.
func Load(dir string) (*Config, error) {
	for _, name := range candidates {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, errors.New("B080").
		WithDetail("No bridge.json or bridge.yaml found in " + dir).
		WithSuggestion("Create bridge.json or pass --config")
}

// LoadFile reads configuration from path. Files ending in .yaml or .yml are
// parsed as YAML, everything else as JSON.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("B080").WithDetail("No config file at " + path)
		}
		return nil, errors.New("B081").Wrap(err)
	}

	cfg := New()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, errors.New("B081").
			WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error()).
			WithSuggestion("Check the file syntax and that durations look like \"30s\"")
	}

	cfg.configPath = path
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveTo writes the configuration to path in the format its extension
// selects.
func (c *Config) SaveTo(path string) error {
	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return errors.New("B081").Wrap(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("B081").Wrap(err)
	}
	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Exists reports whether dir contains a configuration file.
func Exists(dir string) bool {
	for _, name := range candidates {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	invalid := func(detail string) error {
		return errors.New("B081").WithDetail(detail)
	}
	switch {
	case c.Server.Addr == "":
		return invalid("server.addr must not be empty")
	case c.Server.ReadTimeout <= 0, c.Server.WriteTimeout <= 0, c.Server.HandshakeTimeout <= 0:
		return invalid("server timeouts must be positive")
	case c.Server.HeartbeatInterval < 0:
		return invalid("server.heartbeatInterval must not be negative")
	case c.Server.HeartbeatInterval > 0 && c.Server.HeartbeatInterval >= c.Server.ReadTimeout:
		return invalid("server.heartbeatInterval must be shorter than server.readTimeout")
	case c.Server.MaxMessageSize < wire.MaxFrameSize:
		return invalid(fmt.Sprintf("server.maxMessageSize must be at least %d", wire.MaxFrameSize))
	case c.Server.MailboxSize <= 0:
		return invalid("server.mailboxSize must be positive")
	case c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/"):
		return invalid("metrics.path must start with /")
	case c.Redis.Enabled && c.Redis.Addr == "":
		return invalid("redis.addr is required when redis is enabled")
	case c.Redis.Enabled && c.Redis.Topic == "":
		return invalid("redis.topic is required when redis is enabled")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	if f := c.Log.Format; f != "" && f != "text" && f != "json" {
		return invalid(fmt.Sprintf("log.format %q is not text or json", f))
	}
	return nil
}

// SlogLevel parses Level. Empty means info.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, errors.New("B081").WithDetail(fmt.Sprintf("log.level %q", l.Level)).Wrap(err)
	}
	return level, nil
}

// Logger builds a logger writing to w in the configured format and level.
func (l LogConfig) Logger(w io.Writer) *slog.Logger {
	level, err := l.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

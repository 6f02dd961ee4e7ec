// Package config loads the hub and peer configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/patternkit/patternkit/internal/codec"
	"github.com/patternkit/patternkit/pkg/constants"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Store       StoreConfig       `yaml:"store"`
	History     HistoryConfig     `yaml:"history"`
	Replication ReplicationConfig `yaml:"replication"`
	Auth        AuthConfig        `yaml:"auth"`
	Library     LibraryConfig     `yaml:"library"`
	Log         LogConfig         `yaml:"log"`
}

type ServerConfig struct {
	// Addr is the listen address of the hub.
	Addr string `yaml:"addr"`
	// WSPath is where peers connect.
	WSPath string `yaml:"ws_path"`
	// MetricsPath serves prometheus metrics. Empty disables them.
	MetricsPath string `yaml:"metrics_path"`
	// RequestTimeout bounds how long a peer waits for a hub answer.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type StoreConfig struct {
	// Path of the SQLite database. ":memory:" keeps everything in memory.
	Path string `yaml:"path"`
}

type HistoryConfig struct {
	Capacity     int           `yaml:"capacity"`
	SaveDebounce time.Duration `yaml:"save_debounce"`
}

type ReplicationConfig struct {
	// Codec is the envelope wire format: json or cbor.
	Codec string `yaml:"codec"`
	// ResyncOnDrop requests a checkpoint when an update cannot be applied.
	ResyncOnDrop bool `yaml:"resync_on_drop"`
	// ReconnectInterval is how often a lost peer connection is redialed.
	// Zero disables reconnecting.
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

type AuthConfig struct {
	// Secret signs HS256 peer tokens. Empty disables authentication.
	Secret   string        `yaml:"secret"`
	TokenTTL time.Duration `yaml:"token_ttl"`
	Issuer   string        `yaml:"issuer"`
}

// LibraryWatch binds an analysis file to a library of a project. An empty
// LibraryID adds the library on the first analysis.
type LibraryWatch struct {
	File      string `yaml:"file"`
	ProjectID string `yaml:"project_id"`
	LibraryID string `yaml:"library_id"`
}

type LibraryConfig struct {
	Watch    []LibraryWatch `yaml:"watch"`
	Debounce time.Duration  `yaml:"debounce"`
}

type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is text, json or zerolog.
	Format string `yaml:"format"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           "127.0.0.1:7420",
			WSPath:         "/ws",
			MetricsPath:    "/metrics",
			RequestTimeout: constants.DefaultWSTimeout,
		},
		Store: StoreConfig{
			Path: defaultStorePath(),
		},
		History: HistoryConfig{
			Capacity:     constants.DefaultHistoryCapacity,
			SaveDebounce: constants.DefaultSaveDebounce,
		},
		Replication: ReplicationConfig{
			Codec:             codec.NameJSON,
			ResyncOnDrop:      true,
			ReconnectInterval: 5 * time.Second,
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
			Issuer:   "patternkit",
		},
		Library: LibraryConfig{
			Debounce: 100 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "patternkit.db"
	}
	return filepath.Join(dir, "patternkit", "patternkit.db")
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.WSPath == "" || c.Server.WSPath[0] != '/' {
		errs = append(errs, fmt.Errorf("server.ws_path must start with '/': %q", c.Server.WSPath))
	}
	if c.Server.MetricsPath != "" && c.Server.MetricsPath[0] != '/' {
		errs = append(errs, fmt.Errorf("server.metrics_path must start with '/': %q", c.Server.MetricsPath))
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	if c.History.Capacity < 1 {
		errs = append(errs, fmt.Errorf("history.capacity must be positive: %d", c.History.Capacity))
	}
	if c.History.SaveDebounce < 0 {
		errs = append(errs, errors.New("history.save_debounce must not be negative"))
	}
	if _, err := codec.ByName(c.Replication.Codec); err != nil {
		errs = append(errs, fmt.Errorf("replication.codec: %w", err))
	}
	if c.Auth.Secret != "" && len(c.Auth.Secret) < 16 {
		errs = append(errs, errors.New("auth.secret must be at least 16 bytes"))
	}
	for i, w := range c.Library.Watch {
		if w.File == "" || w.ProjectID == "" {
			errs = append(errs, fmt.Errorf("library.watch[%d] needs file and project_id", i))
		}
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn or error: %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json", "zerolog":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text, json or zerolog: %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// LoadFromFile reads path on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// loadLayer reads path without defaults, so that Merge only picks up the
// values the file sets.
func loadLayer(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	layer := &Config{}
	if err := yaml.Unmarshal(data, layer); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return layer, nil
}

func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge copies the non-zero values of other into c. Booleans cannot be told
// apart from their zero value and are taken from other only when true.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if other.Server.WSPath != "" {
		c.Server.WSPath = other.Server.WSPath
	}
	if other.Server.MetricsPath != "" {
		c.Server.MetricsPath = other.Server.MetricsPath
	}
	if other.Server.RequestTimeout != 0 {
		c.Server.RequestTimeout = other.Server.RequestTimeout
	}

	if other.Store.Path != "" {
		c.Store.Path = other.Store.Path
	}

	if other.History.Capacity != 0 {
		c.History.Capacity = other.History.Capacity
	}
	if other.History.SaveDebounce != 0 {
		c.History.SaveDebounce = other.History.SaveDebounce
	}

	if other.Replication.Codec != "" {
		c.Replication.Codec = other.Replication.Codec
	}
	if other.Replication.ResyncOnDrop {
		c.Replication.ResyncOnDrop = true
	}
	if other.Replication.ReconnectInterval != 0 {
		c.Replication.ReconnectInterval = other.Replication.ReconnectInterval
	}

	if other.Auth.Secret != "" {
		c.Auth.Secret = other.Auth.Secret
	}
	if other.Auth.TokenTTL != 0 {
		c.Auth.TokenTTL = other.Auth.TokenTTL
	}
	if other.Auth.Issuer != "" {
		c.Auth.Issuer = other.Auth.Issuer
	}

	if len(other.Library.Watch) > 0 {
		c.Library.Watch = append([]LibraryWatch(nil), other.Library.Watch...)
	}
	if other.Library.Debounce != 0 {
		c.Library.Debounce = other.Library.Debounce
	}

	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}
}

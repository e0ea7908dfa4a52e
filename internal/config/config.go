// Package config loads the YAML configuration of the nanodiscover server.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coffersTech/nanodiscover/internal/logging"
	"github.com/coffersTech/nanodiscover/internal/model"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Sources  SourcesConfig  `yaml:"sources"`
	Engine   EngineConfig   `yaml:"engine"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Library  LibraryConfig  `yaml:"library"`
	LiveTail LiveTailConfig `yaml:"livetail"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	AuthTokens   []string      `yaml:"auth_tokens"` // bcrypt hashes; empty disables auth
	IngestRate   float64       `yaml:"ingest_rate"` // requests per second, 0 disables limiting
	IngestBurst  int           `yaml:"ingest_burst"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type SourcesConfig struct {
	Paths    []string      `yaml:"paths"` // glob patterns
	Watch    bool          `yaml:"watch"`
	Debounce time.Duration `yaml:"debounce"`
}

type EngineConfig struct {
	MaxDocuments  int           `yaml:"max_documents"` // 0 is unbounded
	Retention     time.Duration `yaml:"retention"`     // 0 keeps everything
	CleanInterval time.Duration `yaml:"clean_interval"`
	DefaultLimit  int           `yaml:"default_limit"`
	BucketMinutes int           `yaml:"bucket_minutes"`
}

type SnapshotConfig struct {
	Path     string        `yaml:"path"`     // empty disables snapshots
	Interval time.Duration `yaml:"interval"` // 0 flushes only on shutdown
}

type LibraryConfig struct {
	Path string `yaml:"path"` // empty keeps the library in memory
}

type LiveTailConfig struct {
	Enabled           bool          `yaml:"enabled"`
	BaseURL           string        `yaml:"base_url"`
	WebsocketURL      string        `yaml:"websocket_url"`
	TenantID          string        `yaml:"tenant_id"`
	Query             string        `yaml:"query"`
	Limit             int           `yaml:"limit"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:         ":8088",
			IngestRate:   50,
			IngestBurst:  100,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Sources: SourcesConfig{
			Debounce: 250 * time.Millisecond,
		},
		Engine: EngineConfig{
			MaxDocuments:  100000,
			CleanInterval: time.Minute,
			DefaultLimit:  500,
			BucketMinutes: 1,
		},
		LiveTail: LiveTailConfig{
			Limit:             500,
			ReconnectInterval: 5 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
// Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := decode(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate returns every problem found; nil means the config is usable.
func (c Config) Validate() []error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(c.Server.Addr) == "" {
		add("server.addr must be set")
	}
	for i, h := range c.Server.AuthTokens {
		if !strings.HasPrefix(h, "$2") {
			add("server.auth_tokens[%d] is not a bcrypt hash", i)
		}
	}
	if c.Server.IngestRate < 0 {
		add("server.ingest_rate must not be negative")
	}
	if c.Server.IngestRate > 0 && c.Server.IngestBurst < 1 {
		add("server.ingest_burst must be at least 1 when ingest_rate is set")
	}
	if c.Sources.Watch && len(c.Sources.Paths) == 0 {
		add("sources.watch requires sources.paths")
	}
	if c.Engine.MaxDocuments < 0 {
		add("engine.max_documents must not be negative")
	}
	if c.Engine.Retention < 0 {
		add("engine.retention must not be negative")
	}
	if c.Engine.Retention > 0 && c.Engine.CleanInterval <= 0 {
		add("engine.clean_interval must be positive when retention is set")
	}
	if c.Engine.DefaultLimit < 0 {
		add("engine.default_limit must not be negative")
	}
	if c.Engine.BucketMinutes < 0 || c.Engine.BucketMinutes > model.MaxBucketMinutes {
		add("engine.bucket_minutes must be between 0 and %d", model.MaxBucketMinutes)
	}
	if c.Snapshot.Interval < 0 {
		add("snapshot.interval must not be negative")
	}
	if c.LiveTail.Enabled {
		if c.LiveTail.BaseURL == "" && c.LiveTail.WebsocketURL == "" {
			add("livetail requires base_url or websocket_url")
		}
		if c.LiveTail.ReconnectInterval <= 0 {
			add("livetail.reconnect_interval must be positive")
		}
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		add("log.level: %v", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		add("log.format must be text or json, got %q", c.Log.Format)
	}
	return errs
}

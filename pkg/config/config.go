// Package config defines collabd's server configuration schema and loads it
// from a YAML file on disk, with environment variables overriding individual
// fields for container deployments where editing a mounted file is awkward.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is collabd's full server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	WAL      WALConfig      `yaml:"wal"`
	Room     RoomConfig     `yaml:"room"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig controls the WebSocket listener.
type ServerConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PongTimeout  time.Duration `yaml:"pong_timeout"`
}

// StorageConfig controls the embedded BadgerDB store.
type StorageConfig struct {
	Dir string `yaml:"dir"`
}

// WALConfig controls the write-ahead log buffering policy.
type WALConfig struct {
	FlushEntries int           `yaml:"flush_entries"`
	FlushBytes   int           `yaml:"flush_bytes"`
	SyncInterval time.Duration `yaml:"sync_interval"`
}

// RoomConfig controls the broadcast fan-out fabric.
type RoomConfig struct {
	PeerBufferSize int `yaml:"peer_buffer_size"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	JSON    bool   `yaml:"json"`
	LogFile string `yaml:"log_file"`
}

// MetricsConfig controls the Prometheus /metrics endpoint.
type MetricsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ListenAddr   string `yaml:"listen_addr"`
}

// Default returns collabd's default configuration, suitable for local
// development without any config file present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:   ":7417",
			WriteTimeout: 10 * time.Second,
			PongTimeout:  60 * time.Second,
		},
		Storage: StorageConfig{
			Dir: "./data/collabd",
		},
		WAL: WALConfig{
			FlushEntries: 64,
			FlushBytes:   1 << 20,
			SyncInterval: 500 * time.Millisecond,
		},
		Room: RoomConfig{
			PeerBufferSize: 256,
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  false,
		},
		Metrics: MetricsConfig{
			Enabled:    true,
			ListenAddr: ":9417",
		},
	}
}

// Load reads path as YAML on top of Default(), then applies environment
// variable overrides via applyEnvOverrides. A missing path is not an error —
// the caller gets Default() plus any env overrides, matching collabd's
// "works with zero config" posture for local development.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyEnvOverrides lets a handful of deployment-critical fields be set
// without touching the config file — the same override pattern the
// orchestrator's env-driven bootstrap uses, narrowed to what a containerized
// collabd deployment actually needs to flip per-environment.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("COLLABD_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("COLLABD_STORAGE_DIR"); v != "" {
		cfg.Storage.Dir = v
	}
	if v := os.Getenv("COLLABD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("COLLABD_LOG_JSON"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Logging.JSON = b
		}
	}
	if v := os.Getenv("COLLABD_METRICS_ADDR"); v != "" {
		cfg.Metrics.ListenAddr = v
	}
}

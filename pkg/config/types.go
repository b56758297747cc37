package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Client    ClientConfig    `yaml:"client"`
	API       APIConfig       `yaml:"api"`
	Logging   LoggingConfig   `yaml:"logging"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Retention RetentionConfig `yaml:"retention"`
}

// ClientConfig holds the local account and storage settings.
type ClientConfig struct {
	DBPath      string    `yaml:"db_path"`
	SelfKeyHex  string    `yaml:"self_key_hex"`
	SelfKeyFile string    `yaml:"self_key_file"`
	CacheSize   SizeBytes `yaml:"cache_size"`
}

// APIConfig holds the local inspection HTTP endpoint settings.
type APIConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// Addr renders the listen address, defaulting to localhost only: the
// inspection API is a local debug surface, never a public one.
func (a APIConfig) Addr() string {
	host := a.Address
	if host == "" {
		host = "127.0.0.1"
	}
	port := a.Port
	if port == 0 {
		port = 8089
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ReconcileConfig holds event queue tunables.
type ReconcileConfig struct {
	Shards        int `yaml:"shards"`
	QueueCapacity int `yaml:"queue_capacity"`
}

// DispatchConfig holds the per-chat outbound send rate limit.
type DispatchConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// RetentionConfig holds the tombstone sweep schedule.
type RetentionConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Cron         string   `yaml:"cron"`
	TombstoneTTL Duration `yaml:"tombstone_ttl"`
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly
// strings like "64MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

func (s SizeBytes) Int64() int64 { return int64(s) }

// Duration is a wrapper around time.Duration that supports YAML parsing
// from strings like "100ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

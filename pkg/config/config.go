package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ParseCommandFlags parses the standard command line flags and returns the
// raw values plus a set of flags the user explicitly provided, so explicit
// flags can win over file and env values.
func ParseCommandFlags() (addr, db, cfg string, set map[string]bool) {
	flag.StringVar(&addr, "addr", "127.0.0.1:8089", "inspection API listen address")
	flag.StringVar(&db, "db", "./peerchat-db", "ledger database path")
	flag.StringVar(&cfg, "config", "", "path to YAML config file")
	flag.Parse()
	set = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return addr, db, cfg, set
}

// ResolveConfigPath picks the config file path: explicit flag wins, then
// PEERCHAT_CONFIG, then the default ./peerchat.yaml if it exists.
func ResolveConfigPath(flagVal string, flagSet bool) string {
	if flagSet && flagVal != "" {
		return flagVal
	}
	if p := os.Getenv("PEERCHAT_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("peerchat.yaml"); err == nil {
		return "peerchat.yaml"
	}
	return ""
}

// Load reads the YAML config file (optional) and applies environment
// overrides. A missing path yields the zero config plus env.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv overlays PEERCHAT_* environment variables onto cfg. Env wins
// over file values; explicit flags win over both (handled by the caller).
func applyEnv(cfg *Config) {
	if v := os.Getenv("PEERCHAT_DB_PATH"); v != "" {
		cfg.Client.DBPath = v
	}
	if v := os.Getenv("PEERCHAT_SELF_KEY"); v != "" {
		cfg.Client.SelfKeyHex = v
	}
	if v := os.Getenv("PEERCHAT_API_ADDRESS"); v != "" {
		cfg.API.Address = v
	}
	if v := os.Getenv("PEERCHAT_API_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = p
		}
	}
	if v := os.Getenv("PEERCHAT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PEERCHAT_RETENTION_CRON"); v != "" {
		cfg.Retention.Cron = v
		cfg.Retention.Enabled = true
	}
}

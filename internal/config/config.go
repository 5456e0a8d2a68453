// Package config loads the stash CLI configuration from a TOML file,
// STASH_* environment variables and command-line flags, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Backend kinds understood by the CLI.
const (
	BackendMemory    = "memory"
	BackendFile      = "file"
	BackendSQLite    = "sqlite"
	BackendRedis     = "redis"
	BackendPostgres  = "postgres"
	BackendNATS      = "nats"
	BackendEtcd      = "etcd"
	BackendConsul    = "consul"
	BackendZookeeper = "zookeeper"
	BackendFirestore = "firestore"
)

// Backends lists every supported backend kind.
var Backends = []string{
	BackendMemory, BackendFile, BackendSQLite, BackendRedis, BackendPostgres,
	BackendNATS, BackendEtcd, BackendConsul, BackendZookeeper, BackendFirestore,
}

type Config struct {
	Key     string        `toml:"key"`
	Codec   string        `toml:"codec"`
	Backend BackendConfig `toml:"backend"`
	Persist PersistConfig `toml:"persist"`
	Logging LoggingConfig `toml:"logging"`
}

type BackendConfig struct {
	Kind      string   `toml:"kind"`
	Dir       string   `toml:"dir"`
	DSN       string   `toml:"dsn"`
	Addr      string   `toml:"addr"`
	Endpoints []string `toml:"endpoints"`
	Prefix    string   `toml:"prefix"`
	Bucket    string   `toml:"bucket"`
	Table     string   `toml:"table"`

	// Project is the GCP project of the firestore backend. The client honors
	// FIRESTORE_EMULATOR_HOST.
	Project    string `toml:"project"`
	Collection string `toml:"collection"`
}

type PersistConfig struct {
	Retries int           `toml:"retries"`
	Timeout time.Duration `toml:"timeout"`
}

type LoggingConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Default returns the configuration used when no file is given: a file
// backend under the user's config directory.
func Default() *Config {
	dir := ".stash"
	if base, err := os.UserConfigDir(); err == nil {
		dir = base + string(os.PathSeparator) + "stash"
	}
	return &Config{
		Key:   "user",
		Codec: "json",
		Backend: BackendConfig{
			Kind:       BackendFile,
			Dir:        dir,
			Bucket:     "stash",
			Table:      "stash",
			Collection: "stash",
		},
		Persist: PersistConfig{
			Timeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

// Load reads config from the given path on top of Default, expanding
// ${VAR} environment references.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if _, err := toml.Decode(expandEnvVars(string(data)), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

// ApplyEnv overrides fields from STASH_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"STASH_KEY":       &c.Key,
		"STASH_CODEC":     &c.Codec,
		"STASH_BACKEND":   &c.Backend.Kind,
		"STASH_DIR":       &c.Backend.Dir,
		"STASH_DSN":       &c.Backend.DSN,
		"STASH_ADDR":      &c.Backend.Addr,
		"STASH_PREFIX":    &c.Backend.Prefix,
		"STASH_PROJECT":   &c.Backend.Project,
		"STASH_LOG_LEVEL": &c.Logging.Level,
		"STASH_LOG_FILE":  &c.Logging.File,
	}
	for name, field := range str {
		if v, ok := lookup(name); ok {
			*field = v
		}
	}

	if v, ok := lookup("STASH_ENDPOINTS"); ok {
		c.Backend.Endpoints = strings.Split(v, ",")
	}
	if v, ok := lookup("STASH_PERSIST_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("STASH_PERSIST_TIMEOUT: %w", err)
		}
		c.Persist.Timeout = d
	}
	return nil
}

// Validate checks that required config fields are present and valid.
func (c *Config) Validate() error {
	if c.Key == "" {
		return errors.New("key is required")
	}
	if c.Codec != "json" && c.Codec != "yaml" {
		return fmt.Errorf("codec must be json or yaml, got %q", c.Codec)
	}
	if c.Persist.Retries < 0 {
		return errors.New("persist.retries must be >= 0")
	}

	b := c.Backend
	switch b.Kind {
	case BackendMemory:
	case BackendFile:
		if b.Dir == "" {
			return errors.New("backend.dir is required for the file backend")
		}
	case BackendSQLite, BackendPostgres:
		if b.DSN == "" {
			return fmt.Errorf("backend.dsn is required for the %s backend", b.Kind)
		}
	case BackendRedis, BackendNATS, BackendConsul:
		if b.Addr == "" {
			return fmt.Errorf("backend.addr is required for the %s backend", b.Kind)
		}
	case BackendFirestore:
		if b.Project == "" {
			return errors.New("backend.project is required for the firestore backend")
		}
	case BackendEtcd, BackendZookeeper:
		if len(b.Endpoints) == 0 {
			return fmt.Errorf("backend.endpoints is required for the %s backend", b.Kind)
		}
	default:
		return fmt.Errorf("unknown backend %q: must be one of %v", b.Kind, Backends)
	}
	return nil
}

// Package config defines MFP's operator-facing configuration: where
// compiled servers land, how the cache and sandbox are tuned, and which
// sources to compile. Credentials are deliberately absent here — see
// internal/vault, the sole component permitted to read them.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mfp-dev/mfp/internal/errs"
	"github.com/mfp-dev/mfp/internal/spec"
)

// Config is the merged, validated configuration for one MFP process.
type Config struct {
	CompiledDir string               `yaml:"compiled_dir"`
	Sources     []spec.SwaggerSource `yaml:"sources"`

	CacheDBPath     string        `yaml:"cache_db_path"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	CacheMaxEntries int           `yaml:"cache_max_entries"`

	MaxCodeBytes    int      `yaml:"max_code_bytes"`
	DomainAllowlist []string `yaml:"domain_allowlist"`

	CacheEnabled bool `yaml:"cache_enabled"`

	ContainerImage      string        `yaml:"container_image"`
	ContainerMemoryMiB  int           `yaml:"container_memory_mib"`
	ContainerCPUPercent int           `yaml:"container_cpu_percent"`
	ExecutionTimeout    time.Duration `yaml:"execution_timeout"`

	LogLevel string `yaml:"log_level"`
	Verbose  bool   `yaml:"verbose"`

	Transport string `yaml:"transport"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
}

// Default returns MFP's out-of-the-box configuration. Every field is
// safe to run with on a developer machine with a Docker daemon and no
// further tuning.
func Default() Config {
	return Config{
		CompiledDir:         "compiled",
		CacheDBPath:         "mfp-cache.db",
		CacheTTL:            24 * time.Hour,
		CacheMaxEntries:     10_000,
		CacheEnabled:        true,
		MaxCodeBytes:        64 * 1024,
		ContainerImage:      "python:3.12-slim",
		ContainerMemoryMiB:  256,
		ContainerCPUPercent: 50,
		ExecutionTimeout:    30 * time.Second,
		LogLevel:            "info",
		Transport:           "stdio",
		Host:                "127.0.0.1",
		Port:                8080,
	}
}

// Load reads a YAML config file and merges it over Default(). A missing
// file is not an error: callers that want an explicit file to exist
// should stat it themselves first.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, errs.Wrap(errs.ConfigError, err, "config: read %s: %v", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, errs.Wrap(errs.ConfigError, err, "config: parse %s: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects a Config that would misbehave rather than fail
// loudly later: duplicate server names, non-positive resource caps.
func (c Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Sources))
	for _, s := range c.Sources {
		if s.Name == "" {
			return errs.New(errs.ConfigError, "config: source with empty name")
		}
		if _, dup := seen[s.Name]; dup {
			return errs.New(errs.ConfigError, "config: duplicate server name %q", s.Name)
		}
		seen[s.Name] = struct{}{}
		if s.Location() == "" {
			return errs.New(errs.ConfigError, "config: source %q has neither swagger_url nor swagger_path", s.Name)
		}
	}
	if c.MaxCodeBytes <= 0 {
		return errs.New(errs.ConfigError, "config: max_code_bytes must be positive")
	}
	if c.ContainerMemoryMiB <= 0 || c.ContainerCPUPercent <= 0 {
		return errs.New(errs.ConfigError, "config: container resource limits must be positive")
	}
	return nil
}

// envOverrides lists the environment variables that tune MFP's runtime
// behavior, matching the exact names MFP documents as its external
// interface. Deliberately narrow: anything credential-shaped
// (MFP_{SERVER}_BASE_URL, MFP_{SERVER}_AUTH) belongs in internal/vault
// instead, since those are per-source, not process-wide.
var envOverrides = map[string]func(*Config, string) error{
	"MFP_COMPILED_OUTPUT_DIR": func(c *Config, v string) error { c.CompiledDir = v; return nil },
	"MFP_CACHE_DB_PATH":       func(c *Config, v string) error { c.CacheDBPath = v; return nil },
	"MFP_CACHE_ENABLED": func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MFP_CACHE_ENABLED: %w", err)
		}
		c.CacheEnabled = b
		return nil
	},
	"MFP_CACHE_TTL_SECONDS": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MFP_CACHE_TTL_SECONDS: %w", err)
		}
		c.CacheTTL = time.Duration(n) * time.Second
		return nil
	},
	"MFP_CACHE_MAX_ENTRIES": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MFP_CACHE_MAX_ENTRIES: %w", err)
		}
		c.CacheMaxEntries = n
		return nil
	},
	"MFP_EXECUTION_TIMEOUT_SECONDS": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MFP_EXECUTION_TIMEOUT_SECONDS: %w", err)
		}
		c.ExecutionTimeout = time.Duration(n) * time.Second
		return nil
	},
	"MFP_MAX_CODE_SIZE_BYTES": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MFP_MAX_CODE_SIZE_BYTES: %w", err)
		}
		c.MaxCodeBytes = n
		return nil
	},
	"MFP_ALLOWED_DOMAINS": func(c *Config, v string) error {
		c.DomainAllowlist = splitAndTrim(v)
		return nil
	},
	"MFP_DOCKER_IMAGE": func(c *Config, v string) error { c.ContainerImage = v; return nil },
	"MFP_LOG_LEVEL":    func(c *Config, v string) error { c.LogLevel = v; return nil },
}

// ApplyEnvOverrides mutates cfg in place from the process environment.
// Env vars win over file config: the more specific, more recently set
// source wins.
func ApplyEnvOverrides(cfg *Config) error {
	for name, apply := range envOverrides {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			continue
		}
		if err := apply(cfg, v); err != nil {
			return errs.Wrap(errs.ConfigError, err, "config: %v", err)
		}
	}
	return nil
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

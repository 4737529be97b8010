// Package config loads the settings shared by the server and the CLI.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// environment variables. Each layer only overrides what it sets.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sakif/fargate-executor/internal/executor/docker"
	"github.com/sakif/fargate-executor/internal/executor/fargate"
)

// Backend names.
const (
	BackendFargate = "fargate"
	BackendDocker  = "docker"
)

// Config is the full application configuration.
type Config struct {
	// Backend selects the executor: "fargate" (default) or "docker".
	Backend   string `yaml:"backend"`
	Port      int    `yaml:"port"`
	DBPath    string `yaml:"dbPath"`
	JWTSecret string `yaml:"jwtSecret"`
	// AllowedOrigins lists the browser origins allowed to call the API.
	AllowedOrigins []string `yaml:"allowedOrigins"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"logLevel"`

	Fargate fargate.Config `yaml:"fargate"`
	Docker  docker.Config  `yaml:"docker"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Backend:  BackendFargate,
		Port:     8080,
		DBPath:   "data/executions.db",
		LogLevel: "info",
		Fargate:  fargate.DefaultConfig(),
		Docker:   docker.DefaultConfig(),
	}
}

// Load builds the configuration. path may be empty; a named file that does
// not exist is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("config: file %s not found", path)
			}
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings that apply regardless of backend. The
// Fargate network settings are checked when the executor is built, so
// commands that never talk to AWS (token) work without them.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendFargate, BackendDocker:
	default:
		return fmt.Errorf("config: unknown backend %q (want %q or %q)", c.Backend, BackendFargate, BackendDocker)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Level returns the slog level named by LogLevel.
func (c Config) Level() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: invalid log level %q", s)
	}
	return level, nil
}

func (c *Config) applyEnv() error {
	c.Backend = envOr("EXECUTOR_BACKEND", c.Backend)
	c.DBPath = envOr("DB_PATH", c.DBPath)
	c.JWTSecret = envOr("JWT_SECRET", c.JWTSecret)
	c.LogLevel = envOr("LOG_LEVEL", c.LogLevel)
	c.AllowedOrigins = envList("ALLOWED_ORIGINS", c.AllowedOrigins)

	var err error
	if c.Port, err = envInt("PORT", c.Port); err != nil {
		return err
	}

	f := &c.Fargate
	f.Image = envOr("FARGATE_IMAGE", f.Image)
	f.Region = envOr("FARGATE_REGION", f.Region)
	f.Subnets = envList("FARGATE_SUBNETS", f.Subnets)
	f.SecurityGroups = envList("FARGATE_SECURITY_GROUPS", f.SecurityGroups)
	f.PipDependencies = envList("FARGATE_PIP_DEPENDENCIES", f.PipDependencies)
	f.RoleName = envOr("FARGATE_ROLE_NAME", f.RoleName)
	f.ClusterName = envOr("FARGATE_CLUSTER_NAME", f.ClusterName)
	f.Family = envOr("FARGATE_FAMILY", f.Family)
	f.LogGroup = envOr("FARGATE_LOG_GROUP", f.LogGroup)
	f.CPU = envOr("FARGATE_CPU", f.CPU)
	f.Memory = envOr("FARGATE_MEMORY", f.Memory)
	if f.AssignPublicIP, err = envBool("FARGATE_ASSIGN_PUBLIC_IP", f.AssignPublicIP); err != nil {
		return err
	}
	if f.PollInterval, err = envDuration("FARGATE_POLL_INTERVAL", f.PollInterval); err != nil {
		return err
	}
	if f.Timeout, err = envDuration("FARGATE_TIMEOUT", f.Timeout); err != nil {
		return err
	}
	if f.MaxAttempts, err = envInt("FARGATE_MAX_ATTEMPTS", f.MaxAttempts); err != nil {
		return err
	}

	c.Docker.Image = envOr("DOCKER_IMAGE", c.Docker.Image)
	if c.Docker.Timeout, err = envDuration("DOCKER_TIMEOUT", c.Docker.Timeout); err != nil {
		return err
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envList splits a comma-separated variable, dropping empty entries.
func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer, got %q", key, v)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s must be a boolean, got %q", key, v)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be a duration like 30s or 15m, got %q", key, v)
	}
	return d, nil
}

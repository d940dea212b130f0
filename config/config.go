// Package config loads the server configuration from an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/harveysanders/meanstoend/log"
	"gopkg.in/yaml.v3"
)

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Environment variables that override file values.
const (
	EnvHost        = "HOST"
	EnvPort        = "PORT"
	EnvLogFile     = "LOG_FILE"
	EnvLogLevel    = "LOG_LEVEL"
	EnvStore       = "STORE"
	EnvIdleTimeout = "IDLE_TIMEOUT"
)

var (
	ErrInvalidPort        = errors.New("invalid port")
	ErrUnknownStore       = errors.New("unknown store")
	ErrInvalidIdleTimeout = errors.New("invalid idle timeout")
)

type Config struct {
	Host     string `yaml:"host"`      // Empty listens on all interfaces.
	Port     int    `yaml:"port"`      // 0 picks a free port.
	LogFile  string `yaml:"log_file"`  // Logs are written here in addition to stderr.
	LogLevel string `yaml:"log_level"` // debug, info, warn or error.
	Store    string `yaml:"store"`     // Session store backend: "memory" or "sqlite".

	// IdleTimeout closes connections that do not complete a record in time. Zero disables it.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Port:     9002,
		LogLevel: "info",
		Store:    StoreMemory,
	}
}

// Load reads a YAML config file over the defaults. ${VAR} references in the file are expanded from the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return cfg, fmt.Errorf("parse config yaml: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides c with any of the HOST, PORT, LOG_FILE, LOG_LEVEL, STORE and IDLE_TIMEOUT environment variables that are set.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvHost); ok {
		c.Host = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidPort, EnvPort, v)
		}
		c.Port = port
	}
	if v := os.Getenv(EnvLogFile); v != "" {
		c.LogFile = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvStore); v != "" {
		c.Store = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv(EnvIdleTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidIdleTimeout, EnvIdleTimeout, v)
		}
		c.IdleTimeout = d
	}
	return nil
}

func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}
	switch c.Store {
	case StoreMemory, StoreSQLite:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStore, c.Store)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidIdleTimeout, c.IdleTimeout)
	}
	return nil
}

// Addr returns the listen address in host:port form.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Package config loads server configuration from a YAML file and applies
// the environment variable overrides listed in spec §6.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	StdioEnabled bool   `yaml:"stdio_enabled"`
	HTTPPort     string `yaml:"http_port"`
	SSEPort      string `yaml:"sse_port"`
}

type StorageConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnectionString returns URL verbatim when set, otherwise composes one
// from the discrete host/port/user/database fields plus password (spec §6:
// "DB_URL or DB_PASSWORD + composed URL").
func (s StorageConfig) ConnectionString(password string) string {
	if s.URL != "" {
		return s.URL
	}
	sslMode := s.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		s.User, password, s.Host, s.Port, s.Database, sslMode)
}

type AdmissionConfig struct {
	APIKeys           []string      `yaml:"api_keys"`
	AllowedIPs        []string      `yaml:"allowed_ips"`
	RateLimit         int           `yaml:"rate_limit"`
	RatePerSeconds    int           `yaml:"rate_per_seconds"`
	MaxConnections    int           `yaml:"max_connections"`
	RequestTimeoutSec int           `yaml:"request_timeout_sec"`
	RedisAddr         string        `yaml:"redis_addr"`
}

func (a AdmissionConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSec <= 0 {
		return 300 * time.Second
	}
	return time.Duration(a.RequestTimeoutSec) * time.Second
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type AIConfig struct {
	Provider  string `yaml:"provider"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Admission AdmissionConfig `yaml:"admission"`
	Logging   LoggingConfig   `yaml:"logging"`
	AI        AIConfig        `yaml:"ai"`
}

// Default mirrors the defaults a conforming implementation falls back to
// when a section is absent from the config file.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			StdioEnabled: true,
			HTTPPort:     "8080",
			SSEPort:      "8081",
		},
		Admission: AdmissionConfig{
			RateLimit:         60,
			RatePerSeconds:    60,
			MaxConnections:    100,
			RequestTimeoutSec: 300,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path as YAML into Default(), then applies environment
// variable overrides per spec §6.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to Default() (still with
// environment overrides applied) when path is empty or does not exist,
// rather than failing startup over a missing, optional config file.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		applyEnvOverrides(cfg)
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		applyEnvOverrides(cfg)
		return cfg, nil
	}
	return Load(path)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DB_URL"); v != "" {
		cfg.Storage.URL = v
	} else if pw := os.Getenv("DB_PASSWORD"); pw != "" {
		cfg.Storage.URL = cfg.Storage.ConnectionString(pw)
	}
	if v := os.Getenv("API_KEYS"); v != "" {
		cfg.Admission.APIKeys = splitNonEmpty(v)
	}
	if v := os.Getenv("ALLOWED_IPS"); v != "" {
		cfg.Admission.AllowedIPs = splitNonEmpty(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Admission.MaxConnections = n
		}
	}
	if v := os.Getenv("RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Admission.RateLimit = n
		}
	}
	if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Admission.RequestTimeoutSec = n
		}
	}
}

func splitNonEmpty(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

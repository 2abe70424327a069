// Package config loads the gateway configuration from config/chassis.yaml
// with environment overrides for secrets and endpoints.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chassisworks/chassis/internal/scrambler"
	"github.com/chassisworks/chassis/internal/sessionstore"
	"github.com/chassisworks/chassis/internal/storage"
)

// ServerConfig describes the HTTP/WS listener and protocol surface.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	APIPrefix      string   `yaml:"api_prefix"`
	WSPath         string   `yaml:"ws_path"`
	ServerTag      string   `yaml:"server_tag"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LanguageConfig describes language negotiation defaults for services that
// do not override them.
type LanguageConfig struct {
	Supported []string `yaml:"supported"`
	Default   string   `yaml:"default"`
}

// LogConfig describes the log sink.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the full gateway configuration.
type Config struct {
	Server    ServerConfig        `yaml:"server"`
	Languages LanguageConfig      `yaml:"languages"`
	Log       LogConfig           `yaml:"log"`
	Scrambler scrambler.Config    `yaml:"scrambler"`
	Redis     sessionstore.Config `yaml:"redis"`
	Storage   storage.Config      `yaml:"storage"`
}

// Load reads the configuration from the default location.
func Load() (*Config, error) {
	return LoadFromPath(filepath.Join("config", "chassis.yaml"))
}

// LoadFromPath reads and validates the configuration from a specific path.
// A missing file is not an error; defaults plus environment apply.
func LoadFromPath(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// fall through to env overrides
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:      "0.0.0.0",
			Port:      8080,
			APIPrefix: "/api/v1",
			WSPath:    "/ws",
			ServerTag: "chassis",
		},
		Languages: LanguageConfig{
			Supported: []string{"en"},
			Default:   "en",
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Redis: sessionstore.Config{
			Addr: "localhost:6379",
		},
	}
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("CHASSIS_JWT_SECRET")); v != "" {
		cfg.Scrambler.Secret = v
	}
	if v := strings.TrimSpace(os.Getenv("CHASSIS_DATABASE_DSN")); v != "" {
		cfg.Storage.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("CHASSIS_REDIS_ADDR")); v != "" {
		cfg.Redis.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("CHASSIS_REDIS_PASSWORD")); v != "" {
		cfg.Redis.Password = v
	}
	if v := strings.TrimSpace(os.Getenv("CHASSIS_SERVER_TAG")); v != "" {
		cfg.Server.ServerTag = v
	}
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	if !strings.HasPrefix(c.Server.APIPrefix, "/") {
		return fmt.Errorf("config: api_prefix %q must start with /", c.Server.APIPrefix)
	}
	if c.Scrambler.Secret == "" {
		return fmt.Errorf("config: scrambler secret is required (CHASSIS_JWT_SECRET)")
	}
	if c.Languages.Default == "" {
		return fmt.Errorf("config: default language is required")
	}
	for _, lang := range c.Languages.Supported {
		if lang == c.Languages.Default {
			return nil
		}
	}
	return fmt.Errorf("config: default language %q not in supported list", c.Languages.Default)
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

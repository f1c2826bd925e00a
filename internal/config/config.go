// Package config loads the preview server configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// nested keys: EDITPREVIEW_STORAGE__BACKEND sets storage.backend.
const EnvPrefix = "EDITPREVIEW_"

// Storage backends.
const (
	BackendFS       = "fs"
	BackendSupabase = "supabase"
)

// Config is the previewd configuration, corresponding to editpreview.yml.
type Config struct {
	Listen         string        `yaml:"listen" koanf:"listen"`
	DatabasePath   string        `yaml:"database_path" koanf:"database_path"`
	TemplatesDir   string        `yaml:"templates_dir" koanf:"templates_dir"`
	LogLevel       string        `yaml:"log_level" koanf:"log_level"`
	Dev            bool          `yaml:"dev" koanf:"dev"`
	Minify         bool          `yaml:"minify" koanf:"minify"`
	PopoverGrace   time.Duration `yaml:"popover_grace" koanf:"popover_grace"`
	SweepInterval  time.Duration `yaml:"sweep_interval" koanf:"sweep_interval"`
	AllowedOrigins []string      `yaml:"allowed_origins" koanf:"allowed_origins"`
	Auth           AuthConfig    `yaml:"auth" koanf:"auth"`
	Storage        StorageConfig `yaml:"storage" koanf:"storage"`
	Upload         UploadConfig  `yaml:"upload" koanf:"upload"`
}

// AuthConfig selects how upload requests are attributed to a user.
type AuthConfig struct {
	// JWTSecret verifies the managed backend's access tokens.
	JWTSecret string `yaml:"jwt_secret" koanf:"jwt_secret"`
	// DevUser signs every request in as this user when no secret is set.
	DevUser string `yaml:"dev_user" koanf:"dev_user"`
}

// StorageConfig holds the image bucket settings.
type StorageConfig struct {
	Backend string `yaml:"backend" koanf:"backend"`
	// Dir and BaseURL configure the fs backend.
	Dir     string `yaml:"dir" koanf:"dir"`
	BaseURL string `yaml:"base_url" koanf:"base_url"`
	// SupabaseURL, SupabaseKey and Bucket configure the supabase backend.
	SupabaseURL string `yaml:"supabase_url" koanf:"supabase_url"`
	SupabaseKey string `yaml:"supabase_key" koanf:"supabase_key"`
	Bucket      string `yaml:"bucket" koanf:"bucket"`
}

// UploadConfig limits image uploads.
type UploadConfig struct {
	MaxBytes      int64   `yaml:"max_bytes" koanf:"max_bytes"`
	RatePerMinute float64 `yaml:"rate_per_minute" koanf:"rate_per_minute"`
	Burst         int     `yaml:"burst" koanf:"burst"`
}

// DefaultConfig returns the development defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:        ":8080",
		DatabasePath:  "editpreview.db",
		LogLevel:      "info",
		Minify:        true,
		PopoverGrace:  150 * time.Millisecond,
		SweepInterval: 10 * time.Minute,
		Storage: StorageConfig{
			Backend: BackendFS,
			Dir:     "media",
			BaseURL: "/media",
			Bucket:  "site-images",
		},
		Upload: UploadConfig{
			MaxBytes:      5 << 20,
			RatePerMinute: 30,
			Burst:         5,
		},
	}
}

// Load reads configuration from the given YAML file, if it exists, then
// overlays environment variable overrides.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate checks that the configuration contains usable values.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path is required")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.Storage.Backend {
	case BackendFS:
		if c.Storage.Dir == "" {
			return fmt.Errorf("storage.dir is required for the fs backend")
		}
	case BackendSupabase:
		if c.Storage.SupabaseURL == "" || c.Storage.SupabaseKey == "" {
			return fmt.Errorf("storage.supabase_url and storage.supabase_key are required for the supabase backend")
		}
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret is required with the supabase backend")
		}
	default:
		return fmt.Errorf("invalid storage.backend %q: must be one of fs, supabase", c.Storage.Backend)
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload.max_bytes must be positive")
	}
	if c.Upload.RatePerMinute < 0 {
		return fmt.Errorf("upload.rate_per_minute must be non-negative")
	}
	if c.PopoverGrace < 0 {
		return fmt.Errorf("popover_grace must be non-negative")
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (zapcore.Level, error) {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

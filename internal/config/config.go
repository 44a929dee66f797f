package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port     string `envconfig:"PORT" default:"8000"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Storage
	DatabasePath string `envconfig:"DATABASE_PATH" default:"data/personnel.db"`
	DataDir      string `envconfig:"DATA_DIR" default:"data"`
	OutputDir    string `envconfig:"OUTPUT_DIR" default:"output"`
	ProfilesPath string `envconfig:"PROFILES_PATH" default:"profiles.yaml"`

	// Auth for personnel writes; empty disables the check.
	AdminAPIKey string `envconfig:"ADMIN_API_KEY"`

	// Limits
	MaxUploadBytes  int64 `envconfig:"MAX_UPLOAD_BYTES" default:"20971520"` // 20MB
	MaxConnections  int   `envconfig:"MAX_CONNECTIONS" default:"64"`
	ScheduleMaxRows int   `envconfig:"SCHEDULE_MAX_ROWS" default:"1000"`

	// Stored schedules
	UploadTTL time.Duration `envconfig:"UPLOAD_TTL" default:"72h"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if strings.TrimSpace(c.ProfilesPath) == "" {
		return fmt.Errorf("PROFILES_PATH is required")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("MAX_CONNECTIONS must be positive")
	}
	if c.ScheduleMaxRows <= 0 {
		return fmt.Errorf("SCHEDULE_MAX_ROWS must be positive")
	}
	if c.UploadTTL <= 0 {
		return fmt.Errorf("UPLOAD_TTL must be positive")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL %q: use debug, info, warn or error", c.LogLevel)
	}
	return l, nil
}

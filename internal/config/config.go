// Package config assembles runtime configuration from a .env file,
// environment variables, and CLI overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port    int  `env:"SCRIBED_PORT" envDefault:"5000"`
	BindAll bool `env:"SCRIBED_BIND_ALL" envDefault:"false"`

	MaxBodyBytes       int64         `env:"SCRIBED_MAX_BODY" envDefault:"524288000"` // 500MB
	IdleTimeout        time.Duration `env:"SCRIBED_IDLE_TIMEOUT" envDefault:"30s"`
	LargeUploadTimeout time.Duration `env:"SCRIBED_LARGE_UPLOAD_TIMEOUT" envDefault:"2m"`
	HeartbeatInterval  time.Duration `env:"SCRIBED_HEARTBEAT_INTERVAL" envDefault:"15s"`
	ProcessingCeiling  time.Duration `env:"SCRIBED_PROCESSING_CEILING" envDefault:"20m"`

	ModelsDir string `env:"SCRIBED_MODELS_DIR" envDefault:"./models"`
	Model     string `env:"SCRIBED_MODEL"`

	WhisperBin     string `env:"SCRIBED_WHISPER_BIN"`
	WhisperURL     string `env:"SCRIBED_WHISPER_URL"`
	WhisperThreads int    `env:"SCRIBED_WHISPER_THREADS" envDefault:"4"`

	ReplacementsFile string `env:"SCRIBED_REPLACEMENTS_FILE"`
	EnhanceURL       string `env:"SCRIBED_ENHANCE_URL"`
	EnhanceModel     string `env:"SCRIBED_ENHANCE_MODEL" envDefault:"gpt-4o-mini"`
	EnhanceAPIKey    string `env:"SCRIBED_ENHANCE_API_KEY"`

	AdminAddr string `env:"SCRIBED_ADMIN_ADDR" envDefault:"127.0.0.1:5001"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile   string
	Port      int
	ModelsDir string
	Model     string
	LogLevel  string
}

// Load reads configuration from .env file, environment variables, and CLI
// overrides. Priority: CLI flags > environment variables > .env file >
// struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.Port != 0 {
		cfg.Port = overrides.Port
	}
	if overrides.ModelsDir != "" {
		cfg.ModelsDir = overrides.ModelsDir
	}
	if overrides.Model != "" {
		cfg.Model = overrides.Model
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("config: max body must be positive, got %d", c.MaxBodyBytes)
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("config: idle timeout must be positive, got %s", c.IdleTimeout)
	}
	if c.LargeUploadTimeout <= 0 {
		return fmt.Errorf("config: large upload timeout must be positive, got %s", c.LargeUploadTimeout)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("config: heartbeat interval must be positive, got %s", c.HeartbeatInterval)
	}
	if c.ProcessingCeiling <= 0 {
		return fmt.Errorf("config: processing ceiling must be positive, got %s", c.ProcessingCeiling)
	}
	if c.WhisperBin == "" && c.WhisperURL == "" {
		return fmt.Errorf("config: one of SCRIBED_WHISPER_BIN or SCRIBED_WHISPER_URL is required")
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SCRIBED_WHISPER_BIN", "/usr/local/bin/whisper-cli")

	cfg, err := Load(Overrides{EnvFile: filepath.Join(t.TempDir(), "absent.env")})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 5000 {
		t.Errorf("port = %d, want 5000", cfg.Port)
	}
	if cfg.BindAll {
		t.Error("bind must default to loopback only")
	}
	if cfg.MaxBodyBytes != 524288000 {
		t.Errorf("max body = %d", cfg.MaxBodyBytes)
	}
	if cfg.IdleTimeout != 30*time.Second {
		t.Errorf("idle timeout = %s", cfg.IdleTimeout)
	}
	if cfg.LargeUploadTimeout != 2*time.Minute {
		t.Errorf("large upload timeout = %s", cfg.LargeUploadTimeout)
	}
	if cfg.HeartbeatInterval != 15*time.Second {
		t.Errorf("heartbeat interval = %s", cfg.HeartbeatInterval)
	}
	if cfg.ProcessingCeiling != 20*time.Minute {
		t.Errorf("processing ceiling = %s", cfg.ProcessingCeiling)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
}

func TestOverridesWin(t *testing.T) {
	t.Setenv("SCRIBED_PORT", "6000")
	t.Setenv("SCRIBED_WHISPER_URL", "http://localhost:9000/v1/audio/transcriptions")
	t.Setenv("SCRIBED_MODELS_DIR", "/env/models")

	cfg, err := Load(Overrides{
		EnvFile:   filepath.Join(t.TempDir(), "absent.env"),
		Port:      7000,
		ModelsDir: "/flag/models",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 7000 {
		t.Errorf("port = %d, CLI override must win", cfg.Port)
	}
	if cfg.ModelsDir != "/flag/models" {
		t.Errorf("models dir = %q, CLI override must win", cfg.ModelsDir)
	}
}

func TestEnvFileLoaded(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	body := "SCRIBED_PORT=8123\nSCRIBED_WHISPER_BIN=/opt/whisper\n"
	if err := os.WriteFile(envFile, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	// godotenv sets these in the process; scrub them so later tests see a
	// clean environment.
	t.Cleanup(func() {
		os.Unsetenv("SCRIBED_PORT")
		os.Unsetenv("SCRIBED_WHISPER_BIN")
	})

	cfg, err := Load(Overrides{EnvFile: envFile})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8123 {
		t.Errorf("port = %d, want value from env file", cfg.Port)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"no engine configured", map[string]string{}},
		{"zero max body", map[string]string{
			"SCRIBED_WHISPER_BIN": "/opt/whisper",
			"SCRIBED_MAX_BODY":    "0",
		}},
		{"negative idle timeout", map[string]string{
			"SCRIBED_WHISPER_BIN":  "/opt/whisper",
			"SCRIBED_IDLE_TIMEOUT": "-5s",
		}},
		{"zero heartbeat interval", map[string]string{
			"SCRIBED_WHISPER_BIN":        "/opt/whisper",
			"SCRIBED_HEARTBEAT_INTERVAL": "0s",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(Overrides{EnvFile: filepath.Join(t.TempDir(), "absent.env")}); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

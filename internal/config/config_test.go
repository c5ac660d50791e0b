package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	// Set required env vars for all subtests
	cleanup := setEnvs(t, map[string]string{
		"SERVER_URL": "http://scanner.local:3000",
	})
	defer cleanup()

	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.PinFile != ".freescanner-pin" {
			t.Errorf("PinFile = %q, want .freescanner-pin", cfg.PinFile)
		}
		if cfg.ReconnectInterval != 5*time.Second {
			t.Errorf("ReconnectInterval = %v, want 5s", cfg.ReconnectInterval)
		}
		if cfg.HTTPAddr != "" {
			t.Errorf("HTTPAddr = %q, want empty (API disabled)", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "info" {
			t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
		}
		if cfg.MQTTTopicPrefix != "freescanner" {
			t.Errorf("MQTTTopicPrefix = %q, want freescanner", cfg.MQTTTopicPrefix)
		}
		if cfg.S3.Region != "us-east-1" {
			t.Errorf("S3.Region = %q, want us-east-1", cfg.S3.Region)
		}
		if !cfg.S3.LocalCache {
			t.Error("S3.LocalCache = false, want true")
		}
		if cfg.S3.PresignExpiry != time.Hour {
			t.Errorf("S3.PresignExpiry = %v, want 1h", cfg.S3.PresignExpiry)
		}
		if cfg.S3.Enabled() || cfg.ArchiveEnabled() {
			t.Error("archive enabled without AUDIO_DIR or S3_BUCKET")
		}
		if cfg.AudioRetention != 0 || cfg.AudioMaxGB != 0 {
			t.Error("archive pruning should default to disabled")
		}
		if cfg.LivefeedAutostart || cfg.Headless {
			t.Error("boolean switches should default to false")
		}
	})

	t.Run("cli_overrides_take_priority", func(t *testing.T) {
		cfg, err := Load(Overrides{
			EnvFile:     "nonexistent.env",
			ServerURL:   "https://override.example.com",
			HTTPAddr:    ":9090",
			LogLevel:    "debug",
			DatabaseURL: "postgres://override/db",
			AudioDir:    "/tmp/audio",
			AudioPlayer: "ffplay -nodisp -autoexit -",
			Headless:    true,
			Autostart:   true,
		})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.ServerURL != "https://override.example.com" {
			t.Errorf("ServerURL = %q, want override", cfg.ServerURL)
		}
		if cfg.HTTPAddr != ":9090" {
			t.Errorf("HTTPAddr = %q, want :9090", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "debug" {
			t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
		}
		if cfg.DatabaseURL != "postgres://override/db" {
			t.Errorf("DatabaseURL = %q, want override", cfg.DatabaseURL)
		}
		if cfg.AudioDir != "/tmp/audio" || !cfg.ArchiveEnabled() {
			t.Errorf("AudioDir = %q, want /tmp/audio", cfg.AudioDir)
		}
		if cfg.AudioPlayer != "ffplay -nodisp -autoexit -" {
			t.Errorf("AudioPlayer = %q", cfg.AudioPlayer)
		}
		if !cfg.Headless || !cfg.LivefeedAutostart {
			t.Error("boolean overrides not applied")
		}
	})

	t.Run("env_vars_read", func(t *testing.T) {
		restore := setEnvs(t, map[string]string{
			"S3_BUCKET":          "calls",
			"S3_LOCAL_CACHE":     "false",
			"RECONNECT_INTERVAL": "250ms",
			"CORS_ORIGINS":       "http://a.local,http://b.local",
		})
		defer restore()

		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.ServerURL != "http://scanner.local:3000" {
			t.Errorf("ServerURL = %q, want env value", cfg.ServerURL)
		}
		if !cfg.S3.Enabled() || cfg.S3.LocalCache {
			t.Errorf("S3 = %+v, want bucket set and no local cache", cfg.S3)
		}
		if cfg.ReconnectInterval != 250*time.Millisecond {
			t.Errorf("ReconnectInterval = %v, want 250ms", cfg.ReconnectInterval)
		}
		if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b.local" {
			t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
		}
	})

	t.Run("dotenv_file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.env")
		if err := os.WriteFile(path, []byte("MQTT_BROKER_URL=tcp://broker:1883\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		restore := setEnvs(t, map[string]string{})
		defer func() {
			os.Unsetenv("MQTT_BROKER_URL")
			restore()
		}()

		cfg, err := Load(Overrides{EnvFile: path})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.MQTTBrokerURL != "tcp://broker:1883" {
			t.Errorf("MQTTBrokerURL = %q, want value from .env", cfg.MQTTBrokerURL)
		}
	})
}

func TestLoadMissingRequired(t *testing.T) {
	// Clear any existing values
	cleanup := setEnvs(t, map[string]string{
		"SERVER_URL": "",
	})
	defer cleanup()
	os.Unsetenv("SERVER_URL")

	_, err := Load(Overrides{EnvFile: "nonexistent.env"})
	if err == nil {
		t.Error("expected error when SERVER_URL is missing")
	}
}

func TestLoadServerURLFromFlagOnly(t *testing.T) {
	cleanup := setEnvs(t, map[string]string{"SERVER_URL": ""})
	defer cleanup()
	os.Unsetenv("SERVER_URL")
	defer os.Unsetenv("SERVER_URL")

	cfg, err := Load(Overrides{EnvFile: "nonexistent.env", ServerURL: "ws://10.0.0.2:3000"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerURL != "ws://10.0.0.2:3000" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
}

// setEnvs sets environment variables and returns a cleanup function.
func setEnvs(t *testing.T, envs map[string]string) func() {
	t.Helper()
	originals := make(map[string]string)
	unset := make([]string, 0)

	for k, v := range envs {
		if orig, ok := os.LookupEnv(k); ok {
			originals[k] = orig
		} else {
			unset = append(unset, k)
		}
		os.Setenv(k, v)
	}

	return func() {
		for k, v := range originals {
			os.Setenv(k, v)
		}
		for _, k := range unset {
			os.Unsetenv(k)
		}
	}
}

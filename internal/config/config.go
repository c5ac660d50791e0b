package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	ServerURL         string        `env:"SERVER_URL,required"`
	Pin               string        `env:"PIN"`
	PinFile           string        `env:"PIN_FILE" envDefault:".freescanner-pin"`
	ReconnectInterval time.Duration `env:"RECONNECT_INTERVAL" envDefault:"5s"`
	LivefeedAutostart bool          `env:"LIVEFEED_AUTOSTART" envDefault:"false"`
	Headless          bool          `env:"HEADLESS" envDefault:"false"`

	// AudioPlayer is a shell command fed each call's audio on stdin. Empty
	// simulates playback from the call's timing.
	AudioPlayer string `env:"AUDIO_PLAYER"`
	// AudioDir enables the local audio archive.
	AudioDir string `env:"AUDIO_DIR"`
	// AudioRetention and AudioMaxGB bound the local archive. Zero keeps everything.
	AudioRetention time.Duration `env:"AUDIO_RETENTION" envDefault:"0"`
	AudioMaxGB     int           `env:"AUDIO_MAX_GB" envDefault:"0"`

	S3 S3Config `envPrefix:"S3_"`

	DatabaseURL string `env:"DATABASE_URL"`

	MQTTBrokerURL   string `env:"MQTT_BROKER_URL"`
	MQTTClientID    string `env:"MQTT_CLIENT_ID"`
	MQTTTopicPrefix string `env:"MQTT_TOPIC_PREFIX" envDefault:"freescanner"`
	MQTTUsername    string `env:"MQTT_USERNAME"`
	MQTTPassword    string `env:"MQTT_PASSWORD"`

	HTTPAddr     string        `env:"HTTP_ADDR"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	AuthToken   string   `env:"AUTH_TOKEN"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`
	LogLevel    string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFile     string   `env:"LOG_FILE"`
}

// S3Config configures the S3 audio archive backend.
type S3Config struct {
	Bucket        string        `env:"BUCKET"`
	Endpoint      string        `env:"ENDPOINT"`
	Region        string        `env:"REGION" envDefault:"us-east-1"`
	AccessKey     string        `env:"ACCESS_KEY"`
	SecretKey     string        `env:"SECRET_KEY"`
	Prefix        string        `env:"PREFIX"`
	LocalCache    bool          `env:"LOCAL_CACHE" envDefault:"true"`
	PresignExpiry time.Duration `env:"PRESIGN_EXPIRY" envDefault:"1h"`
}

// Enabled reports whether an S3 bucket is configured.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

// ArchiveEnabled reports whether played calls should be archived anywhere.
func (c *Config) ArchiveEnabled() bool { return c.AudioDir != "" || c.S3.Enabled() }

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile     string
	ServerURL   string
	HTTPAddr    string
	LogLevel    string
	LogFile     string
	DatabaseURL string
	AudioDir    string
	AudioPlayer string
	Headless    bool
	Autostart   bool
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	// The server URL may come from a flag alone.
	if overrides.ServerURL != "" {
		if _, ok := os.LookupEnv("SERVER_URL"); !ok {
			os.Setenv("SERVER_URL", overrides.ServerURL)
		}
	}

	// Parse environment variables into config struct
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.ServerURL != "" {
		cfg.ServerURL = overrides.ServerURL
	}
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.LogFile != "" {
		cfg.LogFile = overrides.LogFile
	}
	if overrides.DatabaseURL != "" {
		cfg.DatabaseURL = overrides.DatabaseURL
	}
	if overrides.AudioDir != "" {
		cfg.AudioDir = overrides.AudioDir
	}
	if overrides.AudioPlayer != "" {
		cfg.AudioPlayer = overrides.AudioPlayer
	}
	if overrides.Headless {
		cfg.Headless = true
	}
	if overrides.Autostart {
		cfg.LivefeedAutostart = true
	}

	return cfg, nil
}

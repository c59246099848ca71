package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	CredentialsFile string        `env:"GOOGLE_APPLICATION_CREDENTIALS"`
	SpeechEndpoint  string        `env:"SPEECH_ENDPOINT" envDefault:"https://speech.googleapis.com"`
	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`

	OutputDir       string `env:"OUTPUT_DIR"`
	MetricsTextfile string `env:"METRICS_TEXTFILE"`

	S3   S3Config
	MQTT MQTTConfig

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// S3Config holds settings for the optional S3-compatible result store.
type S3Config struct {
	Bucket    string `env:"S3_BUCKET"`
	Endpoint  string `env:"S3_ENDPOINT"`
	Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	AccessKey string `env:"S3_ACCESS_KEY"`
	SecretKey string `env:"S3_SECRET_KEY"`
	Prefix    string `env:"S3_PREFIX"`
}

// Enabled reports whether results should be pushed to S3.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// MQTTConfig holds settings for the optional completion notification.
type MQTTConfig struct {
	BrokerURL string `env:"MQTT_BROKER_URL"`
	ClientID  string `env:"MQTT_CLIENT_ID" envDefault:"speech-async"`
	Topic     string `env:"MQTT_TOPIC" envDefault:"speech-async/operations"`
	Username  string `env:"MQTT_USERNAME"`
	Password  string `env:"MQTT_PASSWORD"`
}

func (c MQTTConfig) Enabled() bool {
	return c.BrokerURL != ""
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile         string
	LogLevel        string
	CredentialsFile string
	SpeechEndpoint  string
	OutputDir       string
	MetricsTextfile string
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

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.CredentialsFile != "" {
		cfg.CredentialsFile = overrides.CredentialsFile
	}
	if overrides.SpeechEndpoint != "" {
		cfg.SpeechEndpoint = overrides.SpeechEndpoint
	}
	if overrides.OutputDir != "" {
		cfg.OutputDir = overrides.OutputDir
	}
	if overrides.MetricsTextfile != "" {
		cfg.MetricsTextfile = overrides.MetricsTextfile
	}

	return cfg, nil
}

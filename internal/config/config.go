package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Supported speech recognition providers
const (
	ProviderMock     = "mock"
	ProviderDeepgram = "deepgram"
	ProviderGoogle   = "google"
)

// Supported storage drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all configuration for the conversation pipeline service
type Config struct {
	// Server configuration
	Port           string `envconfig:"PORT" default:"8080"`
	GRPCHealthPort string `envconfig:"GRPC_HEALTH_PORT" default:"9090"` // gRPC health endpoint, empty disables it

	// Audio framing configuration
	AudioSampleRate   int `envconfig:"AUDIO_SAMPLE_RATE" default:"16000"`    // Capture sample rate in Hz
	AudioFrameMs      int `envconfig:"AUDIO_FRAME_MS" default:"500"`         // Frame duration produced by the chunker
	MaxWireFrameBytes int `envconfig:"MAX_WIRE_FRAME_BYTES" default:"8192"` // Largest single write into a recognition stream

	// Speech recognition configuration
	STTProvider        string `envconfig:"STT_PROVIDER" default:"mock"` // mock, deepgram, google
	DeepgramAPIKey     string `envconfig:"DEEPGRAM_API_KEY"`
	DeepgramModel      string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramLanguage   string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`
	GoogleLanguageCode string `envconfig:"GOOGLE_LANGUAGE_CODE" default:"en-US"`

	// Session lifecycle configuration
	SessionStaleAfter      int `envconfig:"SESSION_STALE_AFTER" default:"7200"`     // seconds
	SessionCleanupInterval int `envconfig:"SESSION_CLEANUP_INTERVAL" default:"60"` // seconds

	// Persistence configuration
	StorageDriver  string `envconfig:"STORAGE_DRIVER" default:"sqlite"` // sqlite, postgres
	SQLitePath     string `envconfig:"SQLITE_PATH" default:"pipeline.sqlite"`
	DatabaseURL    string `envconfig:"DATABASE_URL"`
	PersistTimeout int    `envconfig:"PERSIST_TIMEOUT" default:"10"` // seconds

	// AI reply provenance
	AIProvider string `envconfig:"AI_PROVIDER" default:"openai"`

	// Kafka fan-out configuration
	KafkaEnabled          bool     `envconfig:"KAFKA_ENABLED" default:"false"`
	KafkaBrokers          []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	KafkaTopicTranscripts string   `envconfig:"KAFKA_TOPIC_TRANSCRIPTS" default:"conversation.transcript.final"`
	KafkaTopicTurns       string   `envconfig:"KAFKA_TOPIC_TURNS" default:"conversation.ai.turn"`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	CircuitBreakerProbes       int `envconfig:"CIRCUIT_BREAKER_PROBES" default:"3"`         // Successful probes that close the circuit
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`         // Maximum reconnection attempts
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"`           // Reconnection backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field requirements that struct tags cannot express
func (c *Config) Validate() error {
	switch c.STTProvider {
	case ProviderMock, ProviderGoogle:
	case ProviderDeepgram:
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required when STT_PROVIDER=deepgram")
		}
	default:
		return fmt.Errorf("unsupported STT_PROVIDER %q", c.STTProvider)
	}

	switch c.StorageDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORAGE_DRIVER=sqlite")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.StorageDriver)
	}

	if c.AudioSampleRate <= 0 {
		return fmt.Errorf("AUDIO_SAMPLE_RATE must be positive, got %d", c.AudioSampleRate)
	}
	if c.AudioFrameMs <= 0 {
		return fmt.Errorf("AUDIO_FRAME_MS must be positive, got %d", c.AudioFrameMs)
	}
	if c.MaxWireFrameBytes <= 0 {
		return fmt.Errorf("MAX_WIRE_FRAME_BYTES must be positive, got %d", c.MaxWireFrameBytes)
	}
	if c.SessionStaleAfter <= 0 || c.SessionCleanupInterval <= 0 {
		return fmt.Errorf("SESSION_STALE_AFTER and SESSION_CLEANUP_INTERVAL must be positive")
	}

	return nil
}

// FrameDuration returns the chunker frame duration
func (c *Config) FrameDuration() time.Duration {
	return time.Duration(c.AudioFrameMs) * time.Millisecond
}

// StaleAfter returns the age after which an unterminated session is swept
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.SessionStaleAfter) * time.Second
}

// CleanupInterval returns how often the session janitor runs
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.SessionCleanupInterval) * time.Second
}

// PersistTimeoutDuration bounds a single persistence call
func (c *Config) PersistTimeoutDuration() time.Duration {
	return time.Duration(c.PersistTimeout) * time.Second
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

package config

import (
	"os"
	"strconv"
	"time"

	vstrings "vetting/pkg/platform/strings"
)

// Config is the full process configuration.
type Config struct {
	Server    Server
	Storage   Storage
	Redis     RedisConfig
	Kafka     KafkaConfig
	Workflow  Workflow
	Logging   Logging
	Telemetry Telemetry
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	JWTIssuer     string
	// AdminToken guards the operator routes. They are not mounted when empty.
	AdminToken    string
	ShutdownGrace time.Duration
}

// Storage selects the persistence backend. Driver is memory, postgres
// (lib/pq) or pgx.
type Storage struct {
	Driver       string
	DatabaseURL  string
	MaxOpenConns int
	MaxIdleConns int
	TxTimeout    time.Duration
	Migrate      bool
}

// RedisConfig enables the distributed lock backend when URL is set.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig enables the event publisher when Brokers is non-empty.
type KafkaConfig struct {
	Brokers    []string
	Topic      string
	ClientID   string
	BufferSize int
}

// Workflow tunes engine behaviour.
type Workflow struct {
	PolicyFile        string
	DirectorySeedFile string
	SweepInterval     time.Duration
	SweepBatchSize    int
	RetryAttempts     int
	LockTTL           time.Duration
	SkipAccessLevel   int
}

type Logging struct {
	Format string
	Level  string
}

// Telemetry enables OTLP tracing when Tracing is set.
type Telemetry struct {
	ServiceName  string
	Tracing      bool
	OTLPEndpoint string
	OTLPInsecure bool
	SampleRate   float64
}

// FromEnv builds the config from environment variables so main stays lean.
func FromEnv() Config {
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Config{
		Server: Server{
			Addr:          envOr("VETTING_ADDR", ":8080"),
			JWTSigningKey: jwtSigningKey,
			JWTIssuer:     envOr("JWT_ISSUER", "vetting"),
			AdminToken:    os.Getenv("ADMIN_API_TOKEN"),
			ShutdownGrace: envDuration("SHUTDOWN_GRACE", 15*time.Second),
		},
		Storage: Storage{
			Driver:       envOr("STORAGE_DRIVER", "memory"),
			DatabaseURL:  os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
			TxTimeout:    envDuration("DATABASE_TX_TIMEOUT", 5*time.Second),
			Migrate:      envBool("DATABASE_MIGRATE", true),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    envList("KAFKA_BROKERS"),
			Topic:      envOr("KAFKA_TOPIC", "vetting.events"),
			ClientID:   envOr("KAFKA_CLIENT_ID", "vetting"),
			BufferSize: envInt("EVENT_BUFFER_SIZE", 4096),
		},
		Workflow: Workflow{
			PolicyFile:        os.Getenv("VETTING_POLICY_FILE"),
			DirectorySeedFile: os.Getenv("VETTING_DIRECTORY_FILE"),
			SweepInterval:     envDuration("DOCUMENT_SWEEP_INTERVAL", time.Minute),
			SweepBatchSize:    envInt("DOCUMENT_SWEEP_BATCH", 50),
			RetryAttempts:     envInt("CONTENTION_RETRY_ATTEMPTS", 5),
			LockTTL:           envDuration("LOCK_TTL", 10*time.Second),
			SkipAccessLevel:   envInt("SKIP_ACCESS_LEVEL", 3),
		},
		Logging: Logging{
			Format: envOr("LOG_FORMAT", "json"),
			Level:  envOr("LOG_LEVEL", "info"),
		},
		Telemetry: Telemetry{
			ServiceName:  envOr("OTEL_SERVICE_NAME", "vetting"),
			Tracing:      envBool("TRACING_ENABLED", false),
			OTLPEndpoint: envOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			OTLPInsecure: envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
			SampleRate:   envFloat("TRACE_SAMPLE_RATE", 1),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envList(key string) []string {
	return vstrings.SplitList(os.Getenv(key), ",")
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, time.Minute, cfg.Workflow.SweepInterval)
	assert.Equal(t, 3, cfg.Workflow.SkipAccessLevel)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("VETTING_ADDR", ":9090")
	t.Setenv("STORAGE_DRIVER", "pgx")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("DOCUMENT_SWEEP_INTERVAL", "30s")
	t.Setenv("CONTENTION_RETRY_ATTEMPTS", "not-a-number")

	cfg := FromEnv()

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "pgx", cfg.Storage.Driver)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 30*time.Second, cfg.Workflow.SweepInterval)
	assert.Equal(t, 5, cfg.Workflow.RetryAttempts)
}

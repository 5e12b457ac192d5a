package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "STORE_DRIVER", "DEPOSIT_THRESHOLD_PERCENT", "WORKER_CONCURRENCY", "RUN_MIGRATIONS", "KAFKA_BROKERS"} {
		t.Setenv(k, "")
	}
	c := Load()
	assert.Equal(t, ":8081", c.HTTPAddr)
	assert.Equal(t, "postgres", c.StoreDriver)
	assert.Equal(t, 0.0, c.DepositThresholdPercent)
	assert.Equal(t, 8, c.WorkerConcurrency)
	assert.False(t, c.RunMigrations)
	assert.Equal(t, []string{"kafka:9092"}, c.KafkaBrokers)
	assert.Equal(t, "@hourly", c.OverdueSchedule)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("DEPOSIT_THRESHOLD_PERCENT", "30")
	t.Setenv("WORKER_CONCURRENCY", "3")
	t.Setenv("RUN_MIGRATIONS", "yes")
	t.Setenv("KAFKA_BROKERS", " a:9092, ,b:9092 ")
	c := Load()
	assert.Equal(t, "memory", c.StoreDriver)
	assert.Equal(t, 30.0, c.DepositThresholdPercent)
	assert.Equal(t, 3, c.WorkerConcurrency)
	assert.True(t, c.RunMigrations)
	assert.Equal(t, []string{"a:9092", "b:9092"}, c.KafkaBrokers)
}

func TestBadNumbersFallBack(t *testing.T) {
	t.Setenv("DEPOSIT_THRESHOLD_PERCENT", "150")
	t.Setenv("WORKER_CONCURRENCY", "zero")
	c := Load()
	assert.Equal(t, 0.0, c.DepositThresholdPercent)
	assert.Equal(t, 8, c.WorkerConcurrency)
}

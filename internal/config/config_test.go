package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("STORE_TIMEOUT", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := Load()

	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, StorePostgres, cfg.StoreDriver)
	assert.Equal(t, 3*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 2*time.Second, cfg.PublishTimeout)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 30, cfg.BookingRatePerMinute)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Mongo")
	t.Setenv("STORE_TIMEOUT", "750ms")
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("ACTIVITY_WORKERS", "12")

	cfg := Load()

	assert.Equal(t, StoreMongo, cfg.StoreDriver)
	assert.Equal(t, 750*time.Millisecond, cfg.StoreTimeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 12, cfg.ActivityWorkers)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("STORE_TIMEOUT", "soon")
	t.Setenv("ACTIVITY_WORKERS", "-3")
	t.Setenv("BOOKING_RATE_PER_MINUTE", "lots")

	cfg := Load()

	assert.Equal(t, 3*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 4, cfg.ActivityWorkers)
	assert.Equal(t, 30, cfg.BookingRatePerMinute)
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GROCERY_JWT_SECRET", "s3cret")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, StoreMySQL, c.StoreDriver)
	assert.Equal(t, 30*time.Minute, c.SessionExpiry)
	assert.Equal(t, 5*time.Second, c.TxTimeout)
	assert.Equal(t, "orders.placed", c.KafkaTopic)
	assert.Empty(t, c.KafkaBrokers)
	assert.Empty(t, c.RedisAddr)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("GROCERY_JWT_SECRET", "s3cret")
	t.Setenv("GROCERY_STORE_DRIVER", "memory")
	t.Setenv("GROCERY_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("GROCERY_TX_TIMEOUT", "250ms")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, c.StoreDriver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.KafkaBrokers)
	assert.Equal(t, 250*time.Millisecond, c.TxTimeout)
}

func TestLoad_Rejects(t *testing.T) {
	t.Run("missing secret", func(t *testing.T) {
		t.Setenv("GROCERY_JWT_SECRET", "")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("unknown driver", func(t *testing.T) {
		t.Setenv("GROCERY_JWT_SECRET", "s3cret")
		t.Setenv("GROCERY_STORE_DRIVER", "sqlite")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("zero timeout", func(t *testing.T) {
		t.Setenv("GROCERY_JWT_SECRET", "s3cret")
		t.Setenv("GROCERY_TX_TIMEOUT", "0s")
		_, err := Load()
		assert.Error(t, err)
	})
}

package config

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"VISITORBOOK_ADDR", "STORE_DRIVER", "OWNER_ADDRESS", "CONTRACT_ADDRESS", "KAFKA_BROKERS", "ARCHIVE_INTERVAL"} {
		t.Setenv(key, "")
	}

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, common.HexToAddress(DefaultContractAddress), cfg.Contract)
	require.NotNil(t, cfg.Owner)
	assert.Equal(t, common.HexToAddress(DefaultOwnerAddress), *cfg.Owner)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, time.Second, cfg.Outbox.PollInterval)
	assert.Zero(t, cfg.Archive.Interval)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/visitorbook")
	t.Setenv("OWNER_ADDRESS", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("OUTBOX_POLL_INTERVAL", "250ms")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	require.NotNil(t, cfg.Owner)
	assert.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", cfg.Owner.Hex())
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 250*time.Millisecond, cfg.Outbox.PollInterval)
}

func TestFromEnvRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"postgres without url": {"STORE_DRIVER": "postgres", "DATABASE_URL": ""},
		"unknown driver":       {"STORE_DRIVER": "sqlite"},
		"bad owner":            {"OWNER_ADDRESS": "0x1234"},
		"bad duration":         {"OUTBOX_POLL_INTERVAL": "soon"},
		"bad integer":          {"REDIS_POOL_SIZE": "many"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

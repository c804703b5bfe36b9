package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"CERTLEDGER_ADDR", "ADMIN_API_TOKEN", "SIGNER_MODE", "MINT_BATCH_DELAY",
		"ASSET_NAME_PREFIX", "TRUSTED_PROXIES", "OUTBOX_POLL_INTERVAL", "KAFKA_CREDENTIAL_TOPIC",
	} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "dev-admin-token-change-in-production", cfg.AdminToken)
	assert.Equal(t, "local", cfg.Signer.Mode)
	assert.Equal(t, BatchDelay, cfg.Mint.BatchDelay)
	assert.Equal(t, "D", cfg.Mint.AssetPrefix)
	assert.Equal(t, "credential-events", cfg.Kafka.Topic)
	assert.Equal(t, 200*time.Millisecond, cfg.Kafka.OutboxPollInterval)
	assert.Empty(t, cfg.TrustedProxies)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("CERTLEDGER_ADDR", ":9090")
	t.Setenv("MINT_CONFIRM_TIMEOUT", "45s")
	t.Setenv("MINT_FEE_A", "50")
	t.Setenv("INDEXER_BASE_URL", "https://indexer.example/api/v0/")
	t.Setenv("VERIFY_TRUSTED_POLICIES", " abc ,def,abc,, ")

	cfg := FromEnv()

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, 45*time.Second, cfg.Mint.ConfirmTimeout)
	assert.Equal(t, uint64(50), cfg.Mint.FeeA)
	assert.Equal(t, "https://indexer.example/api/v0", cfg.Indexer.BaseURL)
	assert.Equal(t, []string{"abc", "def"}, cfg.Verify.TrustedPolicies)
}

func TestFromEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("MINT_BATCH_DELAY", "soon")
	t.Setenv("REDIS_POOL_SIZE", "many")

	cfg := FromEnv()

	assert.Equal(t, BatchDelay, cfg.Mint.BatchDelay)
	assert.Equal(t, 10, cfg.Redis.PoolSize)
}

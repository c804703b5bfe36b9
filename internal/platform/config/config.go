package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	strutil "certledger/pkg/platform/strings"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string
	Environment    string
	AdminToken     string
	LogLevel       string
	DatabaseURL    string
	CodePrefix     string
	RequestTimeout time.Duration
	TrustedProxies []string // CIDRs allowed to set X-Forwarded-For
	Redis          RedisConfig
	Kafka          KafkaConfig
	Indexer        IndexerConfig
	Signer         SignerConfig
	Mint           MintConfig
	Verify         VerifyConfig
}

// VerifyConfig configures credential verification.
type VerifyConfig struct {
	SourceTimeout   time.Duration
	IPFSGateway     string
	TrustedPolicies []string
}

// RedisConfig configures the indexer lookup cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CacheTTL     time.Duration
}

// KafkaConfig configures credential lifecycle event publishing.
type KafkaConfig struct {
	Brokers string
	Topic   string
	Acks    string
	// Outbox relays events through Postgres when a database is configured.
	OutboxPollInterval time.Duration
	OutboxRetention    time.Duration
}

// IndexerConfig configures the ledger indexer client.
// An empty BaseURL selects the in-process ledger used for local runs.
type IndexerConfig struct {
	BaseURL   string
	ProjectID string
	Timeout   time.Duration
}

// SignerConfig selects and configures the wallet connector.
type SignerConfig struct {
	Mode      string // "local" or "remote"
	SeedHex   string
	Address   string
	RemoteURL string
	Timeout   time.Duration
}

// MintConfig holds ledger protocol parameters and pipeline pacing.
type MintConfig struct {
	MinUTxOLovelace     uint64
	FeeA                uint64
	FeeB                uint64
	TTLSlots            uint64
	ConfirmTimeout      time.Duration
	ConfirmPollInterval time.Duration
	BatchDelay          time.Duration
	AssetPrefix         string
	AssetBucket         time.Duration
}

// Defaults for the minting pipeline. Overridable via environment.
var (
	ConfirmTimeout      = 3 * time.Minute
	ConfirmPollInterval = 5 * time.Second
	BatchDelay          = 2 * time.Second
	AssetBucket         = 10 * time.Minute
	IndexerCacheTTL     = 5 * time.Minute
)

// FromEnv builds a Server config from environment variables so main stays lean.
// A .env file in the working directory is loaded first when present.
func FromEnv() Server {
	_ = godotenv.Load() //nolint:errcheck // missing .env is the normal case

	addr := os.Getenv("CERTLEDGER_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	adminToken := os.Getenv("ADMIN_API_TOKEN")
	if adminToken == "" {
		// Use a default for development - should be overridden in production
		adminToken = "dev-admin-token-change-in-production"
	}

	return Server{
		Addr:           addr,
		Environment:    envString("CERTLEDGER_ENV", "development"),
		AdminToken:     adminToken,
		LogLevel:       envString("LOG_LEVEL", "info"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		CodePrefix:     envString("CREDENTIAL_CODE_PREFIX", "CERT"),
		RequestTimeout: envDuration("HTTP_REQUEST_TIMEOUT", 30*time.Second),
		TrustedProxies: envList("TRUSTED_PROXIES"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			CacheTTL:     envDuration("INDEXER_CACHE_TTL", IndexerCacheTTL),
		},
		Kafka: KafkaConfig{
			Brokers: os.Getenv("KAFKA_BROKERS"),
			Topic:   envString("KAFKA_CREDENTIAL_TOPIC", "credential-events"),
			Acks:    envString("KAFKA_ACKS", "all"),

			OutboxPollInterval: envDuration("OUTBOX_POLL_INTERVAL", 200*time.Millisecond),
			OutboxRetention:    envDuration("OUTBOX_RETENTION", 7*24*time.Hour),
		},
		Indexer: IndexerConfig{
			BaseURL:   strings.TrimRight(os.Getenv("INDEXER_BASE_URL"), "/"),
			ProjectID: os.Getenv("INDEXER_PROJECT_ID"),
			Timeout:   envDuration("INDEXER_TIMEOUT", 10*time.Second),
		},
		Signer: SignerConfig{
			Mode:      envString("SIGNER_MODE", "local"),
			SeedHex:   os.Getenv("SIGNER_SEED_HEX"),
			Address:   os.Getenv("SIGNER_ADDRESS"),
			RemoteURL: strings.TrimRight(os.Getenv("SIGNER_REMOTE_URL"), "/"),
			Timeout:   envDuration("SIGNER_TIMEOUT", 2*time.Minute),
		},
		Mint: MintConfig{
			MinUTxOLovelace:     uint64(envInt("MINT_MIN_UTXO_LOVELACE", 1_500_000)),
			FeeA:                uint64(envInt("MINT_FEE_A", 44)),
			FeeB:                uint64(envInt("MINT_FEE_B", 155_381)),
			TTLSlots:            uint64(envInt("MINT_TTL_SLOTS", 7200)),
			ConfirmTimeout:      envDuration("MINT_CONFIRM_TIMEOUT", ConfirmTimeout),
			ConfirmPollInterval: envDuration("MINT_CONFIRM_POLL_INTERVAL", ConfirmPollInterval),
			BatchDelay:          envDuration("MINT_BATCH_DELAY", BatchDelay),
			AssetPrefix:         envString("ASSET_NAME_PREFIX", "D"),
			AssetBucket:         envDuration("ASSET_NAME_BUCKET", AssetBucket),
		},
		Verify: VerifyConfig{
			SourceTimeout:   envDuration("VERIFY_SOURCE_TIMEOUT", 5*time.Second),
			IPFSGateway:     envString("IPFS_GATEWAY", "https://ipfs.io/ipfs/"),
			TrustedPolicies: envList("VERIFY_TRUSTED_POLICIES"),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envList splits a comma-separated variable, dropping empty and repeated items.
func envList(key string) []string {
	return strutil.DedupeAndTrim(strings.Split(os.Getenv(key), ","))
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"visitorbook/pkg/domain"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// DefaultContractAddress is the account that holds registration fees when
// CONTRACT_ADDRESS is not set.
const DefaultContractAddress = "0x00000000000000000000000000000000000000C0"

// DefaultOwnerAddress administers a development deployment when OWNER_ADDRESS
// is not set. Like the default JWT signing key it must be overridden in
// production.
const DefaultOwnerAddress = "0x00000000000000000000000000000000000000A0"

// Server captures process level configuration.
type Server struct {
	Addr          string
	StoreDriver   string
	DatabaseURL   string
	JWTSigningKey string
	JWTIssuer     string

	Contract common.Address
	Owner    *common.Address

	Redis   RedisConfig
	Kafka   KafkaConfig
	Outbox  OutboxConfig
	Archive ArchiveConfig
}

// RedisConfig configures the optional registry read cache. The cache only
// fronts the Postgres store: cached facts outlive a restart, and in-memory
// state does not.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures event delivery. With no brokers, events go to the log.
type KafkaConfig struct {
	Brokers           []string
	VisitTopic        string
	Partitions        int32
	ReplicationFactor int16
}

// OutboxConfig configures the relay worker.
type OutboxConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// ArchiveConfig configures snapshot export. An empty bucket keeps snapshots in memory.
type ArchiveConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Interval        time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:          getEnv("VISITORBOOK_ADDR", ":8080"),
		StoreDriver:   strings.ToLower(getEnv("STORE_DRIVER", DriverMemory)),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		JWTSigningKey: getEnv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:     getEnv("JWT_ISSUER", "visitorbook"),
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Kafka: KafkaConfig{
			Brokers:    splitList(os.Getenv("KAFKA_BROKERS")),
			VisitTopic: getEnv("KAFKA_VISIT_TOPIC", "visitorbook.visits"),
		},
		Archive: ArchiveConfig{
			Bucket:          os.Getenv("ARCHIVE_BUCKET"),
			Region:          getEnv("ARCHIVE_REGION", "us-east-1"),
			Endpoint:        os.Getenv("ARCHIVE_ENDPOINT"),
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		},
	}

	var err error
	if cfg.Redis.PoolSize, err = getInt("REDIS_POOL_SIZE", 10); err != nil {
		return Server{}, err
	}
	if cfg.Redis.MinIdleConns, err = getInt("REDIS_MIN_IDLE_CONNS", 2); err != nil {
		return Server{}, err
	}
	if cfg.Redis.DialTimeout, err = getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Redis.ReadTimeout, err = getDuration("REDIS_READ_TIMEOUT", 3*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Redis.WriteTimeout, err = getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second); err != nil {
		return Server{}, err
	}
	partitions, err := getInt("KAFKA_VISIT_TOPIC_PARTITIONS", 3)
	if err != nil {
		return Server{}, err
	}
	cfg.Kafka.Partitions = int32(partitions)
	replication, err := getInt("KAFKA_REPLICATION_FACTOR", 1)
	if err != nil {
		return Server{}, err
	}
	cfg.Kafka.ReplicationFactor = int16(replication)
	if cfg.Outbox.PollInterval, err = getDuration("OUTBOX_POLL_INTERVAL", time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Outbox.BatchSize, err = getInt("OUTBOX_BATCH_SIZE", 100); err != nil {
		return Server{}, err
	}
	if cfg.Archive.Interval, err = getDuration("ARCHIVE_INTERVAL", 0); err != nil {
		return Server{}, err
	}

	if cfg.Contract, err = domain.ParseAddress(getEnv("CONTRACT_ADDRESS", DefaultContractAddress)); err != nil {
		return Server{}, fmt.Errorf("CONTRACT_ADDRESS: %w", err)
	}
	owner, err := domain.ParseAddress(getEnv("OWNER_ADDRESS", DefaultOwnerAddress))
	if err != nil {
		return Server{}, fmt.Errorf("OWNER_ADDRESS: %w", err)
	}
	cfg.Owner = &owner

	switch cfg.StoreDriver {
	case DriverMemory:
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return Server{}, fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=%s", DriverPostgres)
		}
	default:
		return Server{}, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

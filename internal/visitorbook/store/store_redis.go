package store

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"visitorbook/pkg/domain"
	"visitorbook/pkg/platform/tx"
)

var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "visitorbook_cache_lookups_total",
		Help: "Registry cache lookups by kind and result",
	}, []string{"kind", "result"}) // result: "hit", "miss", "error"

	cacheLookupDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "visitorbook_cache_lookup_duration_ms",
		Help:    "Latency of registry cache lookups in milliseconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
	})
)

// Backend is the registry store a RedisCache sits in front of.
type Backend interface {
	InitFee(ctx context.Context, fee *uint256.Int) error
	Fee(ctx context.Context) (*uint256.Int, error)
	AppendVisitor(ctx context.Context, addr common.Address) error
	CountVisitors(ctx context.Context) (uint64, error)
	VisitorAt(ctx context.Context, index uint64) (common.Address, error)
	HasVisited(ctx context.Context, addr common.Address) (bool, error)
	ListVisitors(ctx context.Context) ([]common.Address, error)
}

// RedisCache caches the registry facts that never change once true: the fee,
// membership of an address, and the address at an index. The visitor count
// changes on every registration and always goes to the backend.
//
// Entries are only written after a read of committed state (never from inside
// a transaction), so a rolled-back registration cannot leak into the cache.
// Redis failures are logged and the backend answers instead.
type RedisCache struct {
	next   Backend
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// RedisCacheOption configures a RedisCache instance.
type RedisCacheOption func(*RedisCache)

// WithCacheLogger sets the logger used to report Redis failures.
func WithCacheLogger(logger *slog.Logger) RedisCacheOption {
	return func(c *RedisCache) {
		c.logger = logger
	}
}

// NewRedisCache wraps next. Keys are namespaced by contract address so several
// registries can share one Redis.
func NewRedisCache(next Backend, client *redis.Client, contract common.Address, opts ...RedisCacheOption) *RedisCache {
	c := &RedisCache{
		next:   next,
		client: client,
		prefix: "visitorbook:" + contract.Hex() + ":",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *RedisCache) feeKey() string      { return c.prefix + "fee" }
func (c *RedisCache) visitedKey() string  { return c.prefix + "visited" }
func (c *RedisCache) visitorsKey() string { return c.prefix + "visitors" }

func (c *RedisCache) InitFee(ctx context.Context, fee *uint256.Int) error {
	return c.next.InitFee(ctx, fee)
}

func (c *RedisCache) Fee(ctx context.Context) (*uint256.Int, error) {
	start := time.Now()
	raw, err := c.client.Get(ctx, c.feeKey()).Result()
	observe(start)
	switch {
	case err == nil:
		if fee, perr := domain.ParseAmount(raw); perr == nil {
			cacheLookups.WithLabelValues("fee", "hit").Inc()
			return fee, nil
		}
		c.logger.WarnContext(ctx, "discarding malformed cached fee", "value", raw)
	case errors.Is(err, redis.Nil):
		cacheLookups.WithLabelValues("fee", "miss").Inc()
	default:
		c.lookupFailed(ctx, "fee", err)
	}

	fee, err := c.next.Fee(ctx)
	if err != nil {
		return nil, err
	}
	if c.cacheable(ctx) {
		if err := c.client.Set(ctx, c.feeKey(), domain.FormatAmount(fee), 0).Err(); err != nil {
			c.logger.WarnContext(ctx, "failed to cache fee", "error", err)
		}
	}
	return fee, nil
}

func (c *RedisCache) AppendVisitor(ctx context.Context, addr common.Address) error {
	return c.next.AppendVisitor(ctx, addr)
}

func (c *RedisCache) CountVisitors(ctx context.Context) (uint64, error) {
	return c.next.CountVisitors(ctx)
}

func (c *RedisCache) VisitorAt(ctx context.Context, index uint64) (common.Address, error) {
	field := strconv.FormatUint(index, 10)
	start := time.Now()
	raw, err := c.client.HGet(ctx, c.visitorsKey(), field).Result()
	observe(start)
	switch {
	case err == nil && common.IsHexAddress(raw):
		cacheLookups.WithLabelValues("visitor", "hit").Inc()
		return common.HexToAddress(raw), nil
	case err == nil, errors.Is(err, redis.Nil):
		cacheLookups.WithLabelValues("visitor", "miss").Inc()
	default:
		c.lookupFailed(ctx, "visitor", err)
	}

	addr, err := c.next.VisitorAt(ctx, index)
	if err != nil {
		return common.Address{}, err
	}
	if c.cacheable(ctx) {
		if err := c.client.HSet(ctx, c.visitorsKey(), field, addr.Hex()).Err(); err != nil {
			c.logger.WarnContext(ctx, "failed to cache visitor", "index", index, "error", err)
		}
	}
	return addr, nil
}

// HasVisited only caches positive answers; a negative one can turn positive.
func (c *RedisCache) HasVisited(ctx context.Context, addr common.Address) (bool, error) {
	start := time.Now()
	member, err := c.client.SIsMember(ctx, c.visitedKey(), addr.Hex()).Result()
	observe(start)
	switch {
	case err != nil:
		c.lookupFailed(ctx, "visited", err)
	case member:
		cacheLookups.WithLabelValues("visited", "hit").Inc()
		return true, nil
	default:
		cacheLookups.WithLabelValues("visited", "miss").Inc()
	}

	visited, err := c.next.HasVisited(ctx, addr)
	if err != nil {
		return false, err
	}
	if visited && c.cacheable(ctx) {
		if err := c.client.SAdd(ctx, c.visitedKey(), addr.Hex()).Err(); err != nil {
			c.logger.WarnContext(ctx, "failed to cache visited address", "address", addr.Hex(), "error", err)
		}
	}
	return visited, nil
}

func (c *RedisCache) ListVisitors(ctx context.Context) ([]common.Address, error) {
	return c.next.ListVisitors(ctx)
}

func (c *RedisCache) cacheable(ctx context.Context) bool {
	_, inTx := tx.From(ctx)
	return !inTx
}

func (c *RedisCache) lookupFailed(ctx context.Context, kind string, err error) {
	cacheLookups.WithLabelValues(kind, "error").Inc()
	c.logger.WarnContext(ctx, "registry cache lookup failed",
		"kind", kind,
		"error", err,
	)
}

func observe(start time.Time) {
	cacheLookupDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
}

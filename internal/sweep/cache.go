package sweep

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/resilience"
)

const keyPrefix = "bcast:report:"

// Store is the key-value backend of a ReportCache. *redis.Client satisfies
// it; Get must return an error matching redis.ErrNil for missing keys.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// CacheKey identifies a report: the broadcast it swept and the query set.
type CacheKey struct {
	Fingerprint uint64
	QuerySet    uint64
}

func (k CacheKey) String() string {
	return fmt.Sprintf("%s%016x:%016x", keyPrefix, k.Fingerprint, k.QuerySet)
}

// ReportCache memoises sweep reports as zstd-compressed JSON. Concurrent
// requests for the same key share one computation. Store outages are logged
// and treated as misses; the circuit breaker stops calling a failing store
// for a while.
type ReportCache struct {
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	breaker *resilience.CircuitBreaker
	enc     *zstd.Encoder
	dec     *zstd.Decoder
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewReportCache(store Store, ttl time.Duration, m *metrics.Metrics) (*ReportCache, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &ReportCache{
		store: store,
		ttl:   ttl,
		breaker: resilience.NewCircuitBreaker("report-cache", resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     30 * time.Second,
			IsFailure: func(err error) bool {
				return err != nil && !pkgredis.IsNilError(err)
			},
		}),
		enc:     enc,
		dec:     dec,
		metrics: m,
		logger:  slog.Default().With("component", "report-cache"),
	}, nil
}

// Get returns the cached report for key, if any.
func (c *ReportCache) Get(ctx context.Context, key CacheKey) (*Report, bool) {
	k := key.String()
	var data []byte
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.store.Get(ctx, k)
		return err
	})
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Warn("cache get failed", "key", k, "error", err)
		}
		c.miss()
		return nil, false
	}
	raw, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		c.logger.Error("cache decompress failed", "key", k, "error", err)
		c.miss()
		return nil, false
	}
	var report Report
	if err := json.Unmarshal(raw, &report); err != nil {
		c.logger.Error("cache unmarshal failed", "key", k, "error", err)
		c.miss()
		return nil, false
	}
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "key", k)
	return &report, true
}

func (c *ReportCache) Set(ctx context.Context, key CacheKey, report *Report) {
	k := key.String()
	raw, err := json.Marshal(report)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", k, "error", err)
		return
	}
	data := c.enc.EncodeAll(raw, make([]byte, 0, len(raw)/2))
	err = c.breaker.Execute(func() error {
		return c.store.Set(ctx, k, data, c.ttl)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", k, "error", err)
	}
}

// GetOrCompute returns the cached report for key or computes and stores it.
// The bool reports a cache hit.
func (c *ReportCache) GetOrCompute(
	ctx context.Context,
	key CacheKey,
	computeFn func(context.Context) (*Report, error),
) (*Report, bool, error) {
	if report, ok := c.Get(ctx, key); ok {
		return report, true, nil
	}
	type outcome struct {
		report *Report
		hit    bool
	}
	val, err, _ := c.group.Do(key.String(), func() (any, error) {
		if report, ok := c.Get(ctx, key); ok {
			return outcome{report, true}, nil
		}
		report, err := computeFn(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, report)
		return outcome{report, false}, nil
	})
	if err != nil {
		return nil, false, err
	}
	o := val.(outcome)
	return o.report, o.hit, nil
}

// Invalidate drops every report of the broadcast with the given fingerprint.
func (c *ReportCache) Invalidate(ctx context.Context, fingerprint uint64) (int64, error) {
	pattern := fmt.Sprintf("%s%016x:*", keyPrefix, fingerprint)
	deleted, err := c.store.FlushByPattern(ctx, pattern)
	if err != nil {
		return deleted, fmt.Errorf("invalidating reports: %w", err)
	}
	c.logger.Info("cache invalidate", "pattern", pattern, "keys_deleted", deleted)
	return deleted, nil
}

// BreakerState exposes the state of the store circuit breaker.
func (c *ReportCache) BreakerState() resilience.State {
	return c.breaker.State()
}

func (c *ReportCache) Close() {
	c.dec.Close()
	_ = c.enc.Close()
}

func (c *ReportCache) miss() {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

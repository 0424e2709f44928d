package sweep

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/internal/broadcast/builder"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/internal/dataset"
	apperrors "github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/resilience"
)

func build(t *testing.T, mode builder.Mode, src *dataset.Synthetic) *builder.Broadcast {
	t.Helper()
	batches, err := src.Batches(context.Background())
	require.NoError(t, err)
	b, err := builder.New(mode, builder.DefaultOptions())
	require.NoError(t, err)
	for _, batch := range batches {
		require.NoError(t, b.AssignRecords(batch.Records))
	}
	if mode != builder.ModeFlat {
		require.NoError(t, b.DeclareGroupOrder(dataset.GroupOrder(batches)))
	}
	require.NoError(t, b.BuildGlobalIndexes())
	bc, err := b.AssembleBroadcast()
	require.NoError(t, err)
	return bc
}

func TestRunFlat(t *testing.T) {
	bc := build(t, builder.ModeFlat, &dataset.Synthetic{Flat: true, RecordsPerGroup: 10})
	require.Equal(t, 312, bc.Len())

	queries := QueriesFor(bc, 0)
	require.Len(t, queries, 260)
	queries = append(queries, Query{Key: "zzz"}, Query{Key: "a00000x"})

	m := metrics.New(nil)
	report, err := Run(context.Background(), bc, queries, Options{Concurrency: 4}, m)
	require.NoError(t, err)

	assert.True(t, report.OK(), "%+v", report.Failures)
	assert.Equal(t, "flat", report.Mode)
	assert.Equal(t, 312, report.Starts)
	assert.Equal(t, 262*312, report.Lookups)
	assert.Equal(t, 260*312, report.Found)
	assert.Equal(t, 2*312, report.NotFound)
	assert.NotEmpty(t, report.ID)

	assert.GreaterOrEqual(t, report.Tuning.Min, 2)
	assert.GreaterOrEqual(t, report.Tuning.Max, report.Tuning.Min)
	assert.GreaterOrEqual(t, report.Tuning.Mean, float64(report.Tuning.Min))
	assert.LessOrEqual(t, report.Tuning.Mean, float64(report.Tuning.Max))
	assert.GreaterOrEqual(t, report.Access.Min, report.Tuning.Min)
	assert.GreaterOrEqual(t, report.Access.Max, report.Tuning.Max)
	assert.GreaterOrEqual(t, report.Hops.Min, 1)

	assert.Equal(t, float64(260*312), testutil.ToFloat64(m.TraversalsTotal.WithLabelValues("found")))
	assert.Equal(t, float64(2*312), testutil.ToFloat64(m.TraversalsTotal.WithLabelValues("not_found")))
}

func TestRunClustered(t *testing.T) {
	bc := build(t, builder.ModeClustered, &dataset.Synthetic{Groups: 3, RecordsPerGroup: 20})
	require.Equal(t, 72, bc.Len())

	queries := append(QueriesFor(bc, 0),
		Query{Group: "G02", Key: "k99999"},
		Query{Group: "G09", Key: "k00001"},
	)
	report, err := Run(context.Background(), bc, queries, Options{Concurrency: 3, StartStride: 5}, nil)
	require.NoError(t, err)
	assert.True(t, report.OK(), "%+v", report.Failures)
	assert.Equal(t, 15, report.Starts)
	assert.Equal(t, 60*15, report.Found)
	assert.Equal(t, 2*15, report.NotFound)
}

func TestRunReportsFailures(t *testing.T) {
	bc := build(t, builder.ModeFlat, &dataset.Synthetic{Flat: true, RecordsPerGroup: 10})
	queries := []Query{
		{Key: "m00003", Present: true},
		{Key: "m00003x", Present: true},
		{Key: "q00007", Present: false},
	}
	report, err := Run(context.Background(), bc, queries, Options{Concurrency: 2}, nil)
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Equal(t, 2*312, report.FailureCount)
	require.Len(t, report.Failures, maxFailures)
	assert.Equal(t, 0, report.Failures[0].Start)
	assert.Equal(t, "present key not found", report.Failures[0].Reason)
	assert.Equal(t, "absent key found", report.Failures[1].Reason)
}

func TestRunRejectsEmptyQuerySet(t *testing.T) {
	bc := build(t, builder.ModeFlat, &dataset.Synthetic{Flat: true, RecordsPerGroup: 10})
	_, err := Run(context.Background(), bc, nil, Options{}, nil)
	require.ErrorIs(t, err, apperrors.ErrNoRecords)
}

func TestRunHonoursCancellation(t *testing.T) {
	bc := build(t, builder.ModeFlat, &dataset.Synthetic{Flat: true, RecordsPerGroup: 10})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, bc, QueriesFor(bc, 0), Options{Concurrency: 2}, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestQueriesForSamples(t *testing.T) {
	bc := build(t, builder.ModeFlat, &dataset.Synthetic{Flat: true, RecordsPerGroup: 10})
	qs := QueriesFor(bc, 26)
	require.Len(t, qs, 26)
	assert.Equal(t, "a00000", qs[0].Key)
	assert.Equal(t, "b00000", qs[1].Key)
	assert.True(t, qs[0].Present)
}

func TestQuerySetHash(t *testing.T) {
	a := []Query{{Key: "a", Present: true}, {Key: "b", Present: true}}
	b := []Query{{Key: "b", Present: true}, {Key: "a", Present: true}}
	assert.Equal(t, QuerySetHash(a, Options{}), QuerySetHash(a, Options{StartStride: 1}))
	assert.NotEqual(t, QuerySetHash(a, Options{}), QuerySetHash(b, Options{}))
	assert.NotEqual(t, QuerySetHash(a, Options{}), QuerySetHash(a, Options{StartStride: 2}))
}

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	fail error
	gets int
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.fail != nil {
		return nil, s.fail
	}
	v, ok := s.data[key]
	if !ok {
		return nil, pkgredis.ErrNil
	}
	return v, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.data[key] = value
	return nil
}

func (s *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

func newCache(t *testing.T, store Store, m *metrics.Metrics) *ReportCache {
	t.Helper()
	c, err := NewReportCache(store, time.Hour, m)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestReportCacheRoundTrip(t *testing.T) {
	store := newMemStore()
	m := metrics.New(nil)
	c := newCache(t, store, m)
	key := CacheKey{Fingerprint: 0xabc, QuerySet: 0x1}

	var computed atomic.Int32
	compute := func(context.Context) (*Report, error) {
		computed.Add(1)
		return &Report{ID: "r1", Mode: "flat", Lookups: 42, Tuning: Distribution{Min: 3, Max: 9, Mean: 5.5}}, nil
	}

	r, hit, err := c.GetOrCompute(context.Background(), key, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "r1", r.ID)

	r, hit, err = c.GetOrCompute(context.Background(), key, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 42, r.Lookups)
	assert.Equal(t, 5.5, r.Tuning.Mean)
	assert.Equal(t, int32(1), computed.Load())

	stored := store.data[key.String()]
	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	raw, err := dec.DecodeAll(stored, nil)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"id":"r1"`)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheHitsTotal))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.CacheMissesTotal))
}

func TestReportCacheSharesComputation(t *testing.T) {
	c := newCache(t, newMemStore(), nil)
	key := CacheKey{Fingerprint: 7, QuerySet: 7}

	var computed atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) (*Report, error) {
		computed.Add(1)
		<-release
		return &Report{ID: "shared"}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, _, err := c.GetOrCompute(context.Background(), key, compute)
			assert.NoError(t, err)
			assert.Equal(t, "shared", r.ID)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), computed.Load())
}

func TestReportCacheSurvivesStoreOutage(t *testing.T) {
	store := newMemStore()
	store.fail = errors.New("connection refused")
	c := newCache(t, store, nil)
	key := CacheKey{Fingerprint: 1, QuerySet: 2}

	for i := 0; i < 5; i++ {
		r, hit, err := c.GetOrCompute(context.Background(), key, func(context.Context) (*Report, error) {
			return &Report{ID: "fresh"}, nil
		})
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, "fresh", r.ID)
	}
	assert.Equal(t, resilience.StateOpen, c.BreakerState())

	// Open circuit: the store is no longer called.
	gets := store.gets
	_, ok := c.Get(context.Background(), key)
	assert.False(t, ok)
	assert.Equal(t, gets, store.gets)
}

func TestReportCacheIgnoresCorruptEntries(t *testing.T) {
	store := newMemStore()
	c := newCache(t, store, nil)
	key := CacheKey{Fingerprint: 3, QuerySet: 4}
	store.data[key.String()] = []byte("not zstd")

	r, hit, err := c.GetOrCompute(context.Background(), key, func(context.Context) (*Report, error) {
		return &Report{ID: "recomputed"}, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "recomputed", r.ID)
	assert.Equal(t, resilience.StateClosed, c.BreakerState())
}

func TestReportCacheComputeError(t *testing.T) {
	c := newCache(t, newMemStore(), nil)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), CacheKey{}, func(context.Context) (*Report, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestReportCacheInvalidate(t *testing.T) {
	store := newMemStore()
	c := newCache(t, store, nil)
	for _, k := range []CacheKey{{1, 1}, {1, 2}, {2, 1}} {
		c.Set(context.Background(), k, &Report{ID: "x"})
	}
	n, err := c.Invalidate(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	_, ok := c.Get(context.Background(), CacheKey{2, 1})
	assert.True(t, ok)
}

// Package sweep checks an assembled broadcast by looking keys up from every
// tune-in position and summarising what the reader paid for each lookup.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/internal/broadcast/builder"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/internal/broadcast/traversal"
	apperrors "github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/metrics"
)

// maxFailures bounds the failures kept in a report. FailureCount still
// counts all of them.
const maxFailures = 20

// Query is a key to look up. Present keys must be found from every start
// position and absent ones never.
type Query struct {
	Group   string `json:"group"`
	Key     string `json:"key"`
	Present bool   `json:"present"`
}

type Options struct {
	Concurrency int
	// StartStride tunes in at every StartStride-th position.
	StartStride int
}

func (o Options) normalize() Options {
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	if o.StartStride < 1 {
		o.StartStride = 1
	}
	return o
}

// Distribution summarises one per-lookup cost in blocks.
type Distribution struct {
	Min  int     `json:"min"`
	Max  int     `json:"max"`
	Mean float64 `json:"mean"`
}

// Failure is a lookup whose outcome contradicts its query.
type Failure struct {
	Group  string `json:"group,omitempty"`
	Key    string `json:"key"`
	Start  int    `json:"start"`
	Reason string `json:"reason"`
}

type Report struct {
	ID           string       `json:"id"`
	Fingerprint  string       `json:"fingerprint"`
	Mode         string       `json:"mode"`
	Length       int          `json:"length"`
	Buckets      int          `json:"buckets"`
	Queries      int          `json:"queries"`
	Starts       int          `json:"starts"`
	Lookups      int          `json:"lookups"`
	Found        int          `json:"found"`
	NotFound     int          `json:"not_found"`
	Tuning       Distribution `json:"tuning"`
	Access       Distribution `json:"access"`
	Hops         Distribution `json:"hops"`
	FailureCount int          `json:"failure_count"`
	Failures     []Failure    `json:"failures,omitempty"`
	GeneratedAt  time.Time    `json:"generated_at"`
}

// OK reports whether every lookup behaved as its query expected.
func (r *Report) OK() bool { return r.FailureCount == 0 }

// Run looks every query up from every start position. Start positions are
// spread over Concurrency workers; the broadcast is only read. A structural
// error from any lookup aborts the sweep.
func Run(ctx context.Context, bc *builder.Broadcast, queries []Query, opts Options, m *metrics.Metrics) (*Report, error) {
	if len(queries) == 0 {
		return nil, apperrors.New(apperrors.ErrNoRecords, "no queries to sweep")
	}
	opts = opts.normalize()
	logger := slog.Default().With("component", "sweep")
	started := time.Now()

	var starts []int
	for s := 0; s < bc.Len(); s += opts.StartStride {
		starts = append(starts, s)
	}

	var (
		mu    sync.Mutex
		total tally
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for _, start := range starts {
		start := start
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			var t tally
			for _, q := range queries {
				if err := gctx.Err(); err != nil {
					return err
				}
				res, err := traversal.Search(bc, traversal.Query{Group: q.Group, Key: q.Key, Start: start})
				if err != nil {
					if m != nil {
						m.TraversalsTotal.WithLabelValues("error").Inc()
					}
					return fmt.Errorf("looking up %q from position %d: %w", q.Key, start, err)
				}
				t.observe(bc, q, start, res)
				if m != nil {
					observe(m, res)
				}
			}
			mu.Lock()
			total.merge(&t)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(total.failures, func(i, j int) bool {
		a, b := total.failures[i], total.failures[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.Key < b.Key
	})
	if len(total.failures) > maxFailures {
		total.failures = total.failures[:maxFailures]
	}

	report := &Report{
		ID:           uuid.NewString(),
		Fingerprint:  fmt.Sprintf("%016x", bc.Fingerprint()),
		Mode:         bc.Mode().String(),
		Length:       bc.Len(),
		Buckets:      bc.Buckets(),
		Queries:      len(queries),
		Starts:       len(starts),
		Lookups:      total.tuning.n,
		Found:        total.found,
		NotFound:     total.notFound,
		Tuning:       total.tuning.distribution(),
		Access:       total.access.distribution(),
		Hops:         total.hops.distribution(),
		FailureCount: total.failureCount,
		Failures:     total.failures,
		GeneratedAt:  time.Now().UTC(),
	}
	logger.Info("sweep complete",
		"mode", report.Mode,
		"lookups", report.Lookups,
		"failures", report.FailureCount,
		"mean_tuning", report.Tuning.Mean,
		"mean_access", report.Access.Mean,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return report, nil
}

func observe(m *metrics.Metrics, res traversal.Result) {
	result := "not_found"
	if res.Found {
		result = "found"
	}
	m.TraversalsTotal.WithLabelValues(result).Inc()
	m.TuningBlocks.Observe(float64(res.Reads))
	m.AccessBlocks.Observe(float64(res.Elapsed))
	m.IndexHops.Observe(float64(res.Hops))
}

// QueriesFor returns present-key queries for the broadcast's records, keyed
// by the field the broadcast was built on. A positive sample keeps an evenly
// spaced subset of about that size.
func QueriesFor(bc *builder.Broadcast, sample int) []Query {
	records := bc.Records()
	step := 1
	if sample > 0 && len(records) > sample {
		step = (len(records) + sample - 1) / sample
	}
	field := bc.KeyField()
	out := make([]Query, 0, len(records)/step+1)
	for i := 0; i < len(records); i += step {
		out = append(out, Query{Group: records[i].Group, Key: field.Of(records[i]), Present: true})
	}
	return out
}

// QuerySetHash identifies a query set swept with opts.
func QuerySetHash(queries []Query, opts Options) uint64 {
	opts = opts.normalize()
	d := xxhash.New()
	fmt.Fprintf(d, "stride=%d\x00", opts.StartStride)
	for _, q := range queries {
		fmt.Fprintf(d, "%s\x00%s\x00%t\x00", q.Group, q.Key, q.Present)
	}
	return d.Sum64()
}

type accumulator struct {
	n, min, max, sum int
}

func (a *accumulator) add(v int) {
	if a.n == 0 || v < a.min {
		a.min = v
	}
	if v > a.max {
		a.max = v
	}
	a.sum += v
	a.n++
}

func (a *accumulator) merge(b accumulator) {
	if b.n == 0 {
		return
	}
	if a.n == 0 || b.min < a.min {
		a.min = b.min
	}
	if b.max > a.max {
		a.max = b.max
	}
	a.sum += b.sum
	a.n += b.n
}

func (a accumulator) distribution() Distribution {
	if a.n == 0 {
		return Distribution{}
	}
	return Distribution{Min: a.min, Max: a.max, Mean: float64(a.sum) / float64(a.n)}
}

type tally struct {
	tuning, access, hops accumulator
	found, notFound      int
	failureCount         int
	failures             []Failure
}

func (t *tally) observe(bc *builder.Broadcast, q Query, start int, res traversal.Result) {
	t.tuning.add(res.Reads)
	t.access.add(res.Elapsed)
	t.hops.add(res.Hops)

	var reason string
	switch {
	case res.Found:
		t.found++
		got := res.Record
		switch {
		case !q.Present:
			reason = "absent key found"
		case bc.KeyField().Of(got) != q.Key:
			reason = fmt.Sprintf("landed on %s", got)
		case bc.Mode() != builder.ModeFlat && !strings.EqualFold(got.Group, q.Group):
			reason = fmt.Sprintf("landed in group %s", got.Group)
		}
	default:
		t.notFound++
		if q.Present {
			reason = "present key not found"
		}
	}
	if reason == "" {
		return
	}
	t.failureCount++
	if len(t.failures) < maxFailures {
		t.failures = append(t.failures, Failure{Group: q.Group, Key: q.Key, Start: start, Reason: reason})
	}
}

func (t *tally) merge(o *tally) {
	t.tuning.merge(o.tuning)
	t.access.merge(o.access)
	t.hops.merge(o.hops)
	t.found += o.found
	t.notFound += o.notFound
	t.failureCount += o.failureCount
	t.failures = append(t.failures, o.failures...)
}

// Package broadcast runs one broadcast construction: it feeds record batches
// to the builder for the configured organisation, drives the remaining
// phases and reports each of them through logs, spans and metrics.
package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/internal/broadcast/block"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/internal/broadcast/builder"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/tracing"
)

// Engine owns the builder of a single run. It is not safe for concurrent
// use; the Broadcast it returns is.
type Engine struct {
	mode    builder.Mode
	builder builder.Builder
	metrics *metrics.Metrics
	logger  *slog.Logger
	runID   string
	batches int
	trace   *tracing.Span
}

// OptionsFromConfig translates the broadcast config section.
func OptionsFromConfig(cfg config.BroadcastConfig) (builder.Mode, builder.Options, error) {
	if err := cfg.Validate(); err != nil {
		return 0, builder.Options{}, err
	}
	mode, err := builder.ParseMode(cfg.Mode)
	if err != nil {
		return 0, builder.Options{}, err
	}
	field, err := block.ParseKeyField(cfg.KeyField)
	if err != nil {
		return 0, builder.Options{}, err
	}
	return mode, builder.Options{
		BucketSize:        cfg.BucketSize,
		ExponentialFactor: cfg.ExponentialFactor,
		KeyField:          field,
	}, nil
}

// New starts a run. A nil m disables metrics.
func New(cfg config.BroadcastConfig, m *metrics.Metrics) (*Engine, error) {
	mode, opts, err := OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	b, err := builder.New(mode, opts)
	if err != nil {
		return nil, err
	}
	runID := tracing.NewTraceID()
	e := &Engine{
		mode:    mode,
		builder: b,
		metrics: m,
		runID:   runID,
		logger:  slog.Default().With("component", "broadcast-engine", "run_id", runID, "mode", mode.String()),
	}
	e.logger.Info("broadcast run started",
		"bucket_size", opts.BucketSize,
		"exponential_factor", opts.ExponentialFactor,
		"key_field", opts.KeyField.String(),
	)
	return e, nil
}

func (e *Engine) RunID() string { return e.runID }

func (e *Engine) Mode() builder.Mode { return e.mode }

func (e *Engine) Stats() builder.Stats { return e.builder.Stats() }

// Context tags ctx with the run ID.
func (e *Engine) Context(ctx context.Context) context.Context {
	return logger.WithRunID(ctx, e.runID)
}

// Submit hands one batch to the builder. A rejected batch leaves the run
// usable.
func (e *Engine) Submit(ctx context.Context, records []*block.Record) error {
	err := e.builder.AssignRecords(records)
	if err != nil {
		e.count("rejected")
		e.logger.WarnContext(ctx, "batch rejected",
			"records", len(records),
			"error", err,
		)
		return err
	}
	e.batches++
	e.count("accepted")
	if e.metrics != nil {
		e.metrics.RecordsAssigned.Add(float64(len(records)))
	}
	e.logger.Debug("batch accepted",
		"batch", e.batches,
		"records", len(records),
		"buckets", e.builder.Stats().Buckets,
	)
	return nil
}

// Build declares the group order (grouped modes only), builds the global
// indexes and assembles the cycle. Flat runs ignore order.
func (e *Engine) Build(ctx context.Context, order []string) (bc *builder.Broadcast, err error) {
	ctx, root := tracing.StartSpan(e.Context(ctx), "broadcast.build", e.runID)
	root.SetAttr("mode", e.mode.String())
	e.trace = root
	defer func() {
		root.EndWithError(err)
		status := buildStatus(err)
		if e.metrics != nil {
			e.metrics.BuildsTotal.WithLabelValues(e.mode.String(), status).Inc()
		}
		if err != nil {
			e.logger.Error("broadcast build failed", "status", status, "error", err)
		}
	}()

	if e.mode == builder.ModeFlat {
		if len(order) > 0 {
			e.logger.Warn("group order ignored by flat broadcast", "groups", len(order))
		}
	} else {
		err = e.phase(ctx, "declare", func() error {
			return e.builder.DeclareGroupOrder(order)
		})
		if err != nil {
			return nil, err
		}
		e.logger.Info("group order declared", "order", order)
	}

	if err = e.phase(ctx, "index", e.builder.BuildGlobalIndexes); err != nil {
		return nil, err
	}
	stats := e.builder.Stats()
	e.logger.Info("global indexes built",
		"records", stats.Records,
		"buckets", stats.Buckets,
		"groups", stats.Groups,
		"cycle_buckets", stats.CycleBuckets,
	)

	err = e.phase(ctx, "assemble", func() error {
		var aerr error
		bc, aerr = e.builder.AssembleBroadcast()
		return aerr
	})
	if err != nil {
		return nil, err
	}
	root.SetAttr("length", bc.Len())
	root.SetAttr("fingerprint", fmt.Sprintf("%016x", bc.Fingerprint()))
	if e.metrics != nil {
		e.metrics.BroadcastLength.WithLabelValues(e.mode.String()).Set(float64(bc.Len()))
		e.metrics.BroadcastBuckets.WithLabelValues(e.mode.String()).Set(float64(bc.Buckets()))
	}
	e.logger.Info("broadcast assembled", "length", bc.Len(), "buckets", bc.Buckets())
	if e.logger.Enabled(ctx, slog.LevelDebug) {
		for i := 0; i < bc.Len(); i++ {
			e.logger.Debug("block", "position", i, "block", bc.At(i).String())
		}
	}
	return bc, nil
}

// Trace returns the span tree of the last Build, or nil.
func (e *Engine) Trace() *tracing.Span { return e.trace }

func (e *Engine) phase(ctx context.Context, name string, fn func() error) error {
	_, span := tracing.StartChildSpan(ctx, "broadcast."+name)
	start := time.Now()
	err := fn()
	span.EndWithError(err)
	if e.metrics != nil {
		e.metrics.BuildPhaseDuration.WithLabelValues(e.mode.String(), name).Observe(time.Since(start).Seconds())
	}
	return err
}

func (e *Engine) count(outcome string) {
	if e.metrics != nil {
		e.metrics.BatchesTotal.WithLabelValues(outcome).Inc()
	}
}

func buildStatus(err error) string {
	if err == nil {
		return "ok"
	}
	switch apperrors.Classify(err) {
	case apperrors.ClassInput:
		return "input_error"
	case apperrors.ClassCorruption:
		return "corrupt"
	default:
		return "error"
	}
}

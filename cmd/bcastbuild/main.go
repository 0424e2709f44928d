// Command bcastbuild builds one broadcast cycle from the configured dataset,
// then sweeps it: every broadcast key is looked up from every tune-in
// position and the tuning and access costs are reported as JSON.
//
// Usage:
//
//	go run ./cmd/bcastbuild [-config configs/development.yaml] [-mode skewed] [-order A,B,A]
//
// The exit status is 2 for rejected input, 3 for a broadcast that fails
// verification and 1 for anything else.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/internal/broadcast"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/internal/broadcast/builder"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/internal/sweep"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/redis"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	mode := flag.String("mode", "", "broadcast mode override (flat, clustered, skewed)")
	order := flag.String("order", "", "comma-separated group order override")
	dumpPath := flag.String("dump", "", "write the block sequence to this file")
	reportPath := flag.String("report", "", "write the sweep report to this file instead of stdout")
	serve := flag.Bool("serve", false, "keep serving metrics and health after the build")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return apperrors.ExitCode(err)
	}
	if *mode != "" {
		cfg.Broadcast.Mode = *mode
	}
	if *order != "" {
		cfg.Broadcast.GroupOrder = strings.Split(*order, ",")
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	checker := health.NewChecker()
	if cfg.Metrics.Enabled {
		shutdown := m.StartServer(cfg.Metrics.Port, checker.Routes())
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		}()
	}

	bc, err := build(ctx, cfg, m)
	if err != nil {
		slog.Error("build failed", "error", err, "class", apperrors.Classify(err).String())
		return apperrors.ExitCode(err)
	}
	checker.Register("broadcast", func(context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%s, %d blocks", bc.Mode(), bc.Len())}
	})

	if *dumpPath != "" {
		if err := dump(*dumpPath, bc); err != nil {
			slog.Error("dump failed", "path", *dumpPath, "error", err)
			return 1
		}
		slog.Info("block sequence written", "path", *dumpPath)
	}

	code := 0
	if cfg.Sweep.Enabled {
		var store *redis.Client
		if cfg.Sweep.CacheReports {
			store, err = redis.NewClient(ctx, cfg.Redis)
			if err != nil {
				slog.Warn("report cache unavailable, sweeping directly", "error", err)
			} else {
				defer store.Close()
				checker.Register("redis", health.Ping(true, store.Ping))
			}
		}
		report, err := runSweep(ctx, cfg, bc, m, store)
		if err != nil {
			slog.Error("sweep failed", "error", err)
			return apperrors.ExitCode(err)
		}
		if err := writeReport(*reportPath, report); err != nil {
			slog.Error("writing report failed", "error", err)
			return 1
		}
		checker.Register("sweep", func(context.Context) health.ComponentHealth {
			if report.OK() {
				return health.ComponentHealth{Status: health.StatusUp}
			}
			return health.ComponentHealth{
				Status:  health.StatusDegraded,
				Message: fmt.Sprintf("%d failed lookups", report.FailureCount),
			}
		})
		if !report.OK() {
			slog.Error("broadcast failed verification", "failures", report.FailureCount)
			code = apperrors.ExitCode(apperrors.New(apperrors.ErrCorruptIndex, "sweep found failed lookups"))
		}
	}

	if *serve && cfg.Metrics.Enabled {
		slog.Info("serving metrics until interrupted", "port", cfg.Metrics.Port)
		<-ctx.Done()
	}
	return code
}

func build(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*builder.Broadcast, error) {
	src, err := dataset.Open(cfg)
	if err != nil {
		return nil, err
	}
	batches, err := dataset.Load(ctx, src, cfg.Dataset.LoadTimeout)
	if err != nil {
		return nil, fmt.Errorf("loading dataset: %w", err)
	}

	engine, err := broadcast.New(cfg.Broadcast, m)
	if err != nil {
		return nil, err
	}
	for i, b := range batches {
		if err := engine.Submit(ctx, b.Records); err != nil {
			return nil, fmt.Errorf("batch %d (group %s): %w", i, b.Group, err)
		}
	}

	order := cfg.Broadcast.GroupOrder
	if len(order) == 0 {
		order = dataset.GroupOrder(batches)
	}
	bc, err := engine.Build(ctx, order)
	if cfg.Tracing.Enabled && engine.Trace() != nil {
		engine.Trace().Log(logger.FromContext(engine.Context(ctx)))
	}
	return bc, err
}

// runSweep sweeps bc, going through the report cache when store is set.
func runSweep(ctx context.Context, cfg *config.Config, bc *builder.Broadcast, m *metrics.Metrics, store *redis.Client) (*sweep.Report, error) {
	queries := sweep.QueriesFor(bc, cfg.Sweep.SampleKeys)
	opts := sweep.Options{Concurrency: cfg.Sweep.Concurrency, StartStride: cfg.Sweep.StartStride}
	compute := func(ctx context.Context) (*sweep.Report, error) {
		return sweep.Run(ctx, bc, queries, opts, m)
	}
	if store == nil {
		return compute(ctx)
	}
	cache, err := sweep.NewReportCache(store, cfg.Redis.CacheTTL, m)
	if err != nil {
		return nil, err
	}
	defer cache.Close()
	key := sweep.CacheKey{Fingerprint: bc.Fingerprint(), QuerySet: sweep.QuerySetHash(queries, opts)}
	report, hit, err := cache.GetOrCompute(ctx, key, compute)
	if err != nil {
		return nil, err
	}
	slog.Info("sweep report ready", "cache_hit", hit, "key", key.String())
	return report, nil
}

func dump(path string, bc *builder.Broadcast) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	for i := 0; i < bc.Len(); i++ {
		if _, err := fmt.Fprintf(f, "%4d  %s\n", i, bc.At(i)); err != nil {
			_ = f.Close()
			return err
		}
	}
	return f.Close()
}

func writeReport(path string, report *sweep.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

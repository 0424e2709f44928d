// Command bcastseed generates the synthetic dataset described by the config
// and stores it where bcastbuild can load it: a Kafka topic, a Postgres table
// or a JSON-lines file.
//
// Usage:
//
//	go run ./cmd/bcastseed -target kafka [-config configs/development.yaml] [-dataset run-1]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	target := flag.String("target", "file", "where to store the dataset (kafka, postgres, file)")
	out := flag.String("out", "", "output path for the file target (defaults to dataset.path)")
	name := flag.String("dataset", "", "dataset name for the kafka target (defaults to a random id)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src := &dataset.Synthetic{
		Flat:            strings.EqualFold(cfg.Broadcast.Mode, "flat"),
		Groups:          cfg.Dataset.Groups,
		RecordsPerGroup: cfg.Dataset.RecordsPerGroup,
	}
	batches, err := src.Batches(ctx)
	if err != nil {
		slog.Error("generating dataset failed", "error", err)
		os.Exit(apperrors.ExitCode(err))
	}
	slog.Info("dataset generated", "batches", len(batches), "flat", src.Flat)

	switch strings.ToLower(*target) {
	case "kafka":
		err = seedKafka(ctx, cfg, *name, batches)
	case "postgres":
		err = seedPostgres(ctx, cfg, batches)
	case "file":
		path := *out
		if path == "" {
			path = cfg.Dataset.Path
		}
		err = seedFile(path, batches)
	default:
		err = apperrors.Newf(apperrors.ErrInvalidConfig, "unknown target %q", *target)
	}
	if err != nil {
		slog.Error("seeding failed", "target", *target, "error", err)
		os.Exit(apperrors.ExitCode(err))
	}
	slog.Info("seeding complete", "target", *target)
}

func seedKafka(ctx context.Context, cfg *config.Config, name string, batches []dataset.Batch) error {
	if name == "" {
		name = uuid.NewString()
	}
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.RecordBatches)
	defer producer.Close()
	// No outer retry: the writer retries by itself.
	if err := dataset.PublishKafka(ctx, producer, name, batches); err != nil {
		return err
	}
	slog.Info("dataset published", "topic", cfg.Kafka.Topics.RecordBatches, "dataset", name)
	return nil
}

func seedPostgres(ctx context.Context, cfg *config.Config, batches []dataset.Batch) error {
	var client *postgres.Client
	err := resilience.Retry(ctx, "postgres connect", resilience.RetryFromConfig(cfg.Retry), func() error {
		var err error
		client, err = postgres.New(ctx, cfg.Postgres)
		return err
	})
	if err != nil {
		return err
	}
	defer client.Close()
	if err := dataset.StorePostgres(ctx, client, cfg.Dataset.Table, batches); err != nil {
		return err
	}
	slog.Info("dataset stored", "table", cfg.Dataset.Table)
	return nil
}

func seedFile(path string, batches []dataset.Batch) error {
	if path == "" {
		return apperrors.New(apperrors.ErrInvalidConfig, "file target needs -out or dataset.path")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := dataset.WriteJSONLines(f, batches); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

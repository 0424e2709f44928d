// Package dataset supplies the record batches a broadcast is built from.
// Every source yields batches in submission order: each batch holds records
// of one group in key order, sized to whole buckets.
package dataset

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/internal/broadcast/block"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/resilience"
)

// Batch is one submission to a builder.
type Batch struct {
	Group   string          `json:"group"`
	Records []*block.Record `json:"records"`
}

// Source produces the full dataset.
type Source interface {
	Batches(ctx context.Context) ([]Batch, error)
}

// Load reads src under timeout.
func Load(ctx context.Context, src Source, timeout time.Duration) ([]Batch, error) {
	return resilience.Call(ctx, timeout, "dataset load", src.Batches)
}

// Open builds the source named by cfg.Dataset. Sources backed by a service
// connect lazily inside Batches.
func Open(cfg *config.Config) (Source, error) {
	switch strings.ToLower(cfg.Dataset.Source) {
	case "synthetic", "":
		return &Synthetic{
			Flat:            strings.EqualFold(cfg.Broadcast.Mode, "flat"),
			Groups:          cfg.Dataset.Groups,
			RecordsPerGroup: cfg.Dataset.RecordsPerGroup,
		}, nil
	case "file":
		if cfg.Dataset.Path == "" {
			return nil, apperrors.New(apperrors.ErrInvalidConfig, "file dataset needs a path")
		}
		return &File{Path: cfg.Dataset.Path}, nil
	case "postgres":
		return &Postgres{
			Config: cfg.Postgres,
			Table:  cfg.Dataset.Table,
			Retry:  resilience.RetryFromConfig(cfg.Retry),
		}, nil
	case "kafka":
		return &Kafka{
			Config: cfg.Kafka,
			Topic:  cfg.Kafka.Topics.RecordBatches,
		}, nil
	default:
		return nil, apperrors.Newf(apperrors.ErrInvalidConfig, "unknown dataset source %q", cfg.Dataset.Source)
	}
}

// GroupOrder lists the groups of batches in order of first appearance.
// Names differing only by case are one group, listed under its first spelling.
func GroupOrder(batches []Batch) []string {
	seen := make(map[string]bool)
	var order []string
	for _, b := range batches {
		key := strings.ToLower(b.Group)
		if !seen[key] {
			seen[key] = true
			order = append(order, b.Group)
		}
	}
	return order
}

// splitByGroup cuts a record stream into batches at every change of group.
func splitByGroup(records []*block.Record) []Batch {
	var out []Batch
	for _, r := range records {
		if n := len(out); n > 0 && strings.EqualFold(out[n-1].Group, r.Group) {
			out[n-1].Records = append(out[n-1].Records, r)
			continue
		}
		out = append(out, Batch{Group: r.Group, Records: []*block.Record{r}})
	}
	return out
}

func countRecords(batches []Batch) int {
	n := 0
	for _, b := range batches {
		n += len(b.Records)
	}
	return n
}

func describe(batches []Batch) string {
	return fmt.Sprintf("%d batches, %d records, %d groups", len(batches), countRecords(batches), len(GroupOrder(batches)))
}

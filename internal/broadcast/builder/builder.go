// Package builder turns submitted record batches into an assembled broadcast.
// Three organisations are supported: flat (one implicit group), clustered
// (each group once per cycle) and skewed (groups may repeat in the cycle).
//
// Construction is phase ordered and driven by exactly one caller:
//
//	AssignRecords (one or more batches)
//	DeclareGroupOrder (clustered and skewed only)
//	BuildGlobalIndexes (exactly once)
//	AssembleBroadcast
//
// A builder whose call failed must be discarded.
package builder

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/internal/broadcast/block"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/internal/broadcast/bucket"
	apperrors "github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/errors"
)

// Mode selects the broadcast organisation.
type Mode int

const (
	ModeFlat Mode = iota
	ModeClustered
	ModeSkewed
)

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "flat", "":
		return ModeFlat, nil
	case "clustered":
		return ModeClustered, nil
	case "skewed":
		return ModeSkewed, nil
	default:
		return 0, apperrors.Newf(apperrors.ErrInvalidConfig, "unknown broadcast mode %q", s)
	}
}

func (m Mode) String() string {
	switch m {
	case ModeClustered:
		return "clustered"
	case ModeSkewed:
		return "skewed"
	default:
		return "flat"
	}
}

// Options are the construction parameters shared by every builder.
type Options struct {
	BucketSize        int
	ExponentialFactor int
	KeyField          block.KeyField
}

func DefaultOptions() Options {
	return Options{
		BucketSize:        10,
		ExponentialFactor: 2,
		KeyField:          block.KeySearchKey,
	}
}

func (o Options) Validate() error {
	if o.BucketSize < 1 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, "bucket size %d must be at least 1", o.BucketSize)
	}
	if o.ExponentialFactor < 2 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, "exponential factor %d must be at least 2", o.ExponentialFactor)
	}
	return nil
}

// Builder is the construction surface common to all organisations.
type Builder interface {
	AssignRecords(records []*block.Record) error
	DeclareGroupOrder(order []string) error
	BuildGlobalIndexes() error
	AssembleBroadcast() (*Broadcast, error)
	Stats() Stats
}

// Stats summarises what a builder holds.
type Stats struct {
	Mode    Mode
	Records int
	Buckets int
	Groups  int
	// CycleBuckets counts buckets per cycle, replicas included. It is zero
	// until the cycle order is known.
	CycleBuckets int
}

// New returns an empty builder for the given mode.
func New(mode Mode, opts Options) (Builder, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	switch mode {
	case ModeFlat:
		return NewFlat(opts), nil
	case ModeClustered:
		return NewClustered(opts), nil
	case ModeSkewed:
		return NewSkewed(opts), nil
	default:
		return nil, apperrors.Newf(apperrors.ErrInvalidConfig, "unknown broadcast mode %d", int(mode))
	}
}

type phase int

const (
	phaseCollecting phase = iota
	phaseOrdered
	phaseBuilt
)

func (p phase) String() string {
	switch p {
	case phaseOrdered:
		return "ordered"
	case phaseBuilt:
		return "built"
	default:
		return "collecting"
	}
}

// base carries the running counters of one construction run.
type base struct {
	opts           Options
	phase          phase
	dataBlockIndex int
	bucketIndex    int
}

func (b *base) expect(want phase, op string) error {
	if b.phase != want {
		return apperrors.Newf(apperrors.ErrPhaseOrder, "%s requires phase %s, builder is %s", op, want, b.phase)
	}
	return nil
}

// partition splits a batch into sealed buckets, numbering buckets and data
// blocks with the run's counters.
func (b *base) partition(records []*block.Record) ([]*bucket.Bucket, error) {
	if len(records) == 0 {
		return nil, apperrors.New(apperrors.ErrEmptyBatch, "batch has no records")
	}
	if len(records)%b.opts.BucketSize != 0 {
		return nil, apperrors.Newf(apperrors.ErrMisalignedBatch,
			"batch of %d records does not fill buckets of %d", len(records), b.opts.BucketSize)
	}
	buckets := make([]*bucket.Bucket, 0, len(records)/b.opts.BucketSize)
	var cur *bucket.Bucket
	for i, rec := range records {
		if i%b.opts.BucketSize == 0 {
			b.bucketIndex++
			cur = bucket.New(strconv.Itoa(b.bucketIndex), b.opts.BucketSize, b.opts.KeyField)
		}
		b.dataBlockIndex++
		if err := cur.Add(rec, fmt.Sprintf("Data Block %d", b.dataBlockIndex)); err != nil {
			return nil, err
		}
		if cur.Full() {
			cur.ConstructLocalIndex()
			buckets = append(buckets, cur)
		}
	}
	return buckets, nil
}

// blockDistance converts a distance in buckets into the number of blocks a
// reader sitting on a global index dozes through before the target bucket's
// global index.
func blockDistance(buckets, bucketSize int) int {
	if buckets == 0 {
		return 0
	}
	return buckets*(bucketSize+2) - 1
}

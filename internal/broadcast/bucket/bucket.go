// Package bucket groups a fixed number of records with the local and global
// index blocks that precede them in the broadcast.
//
// A bucket is filled with Add, sealed with ConstructLocalIndex, given a global
// index with AssignGlobalIndex, and finally has its skip offsets computed by
// UpdateNextIndexOffsets before Flatten lays it out as
// [global index, local index, record 0 .. record n-1].
package bucket

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/internal/broadcast/block"
	apperrors "github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/errors"
)

type Bucket struct {
	label    string
	capacity int
	keyField block.KeyField

	// records are shared with clones and never mutated.
	records      []*block.Record
	recordLabels []string
	recordSkips  []int

	local      *block.LocalIndex
	localSkip  int
	global     block.Block
	hasGlobal  bool
	offsetsSet bool
}

// New returns an empty bucket holding up to capacity records.
func New(label string, capacity int, keyField block.KeyField) *Bucket {
	return &Bucket{
		label:        label,
		capacity:     capacity,
		keyField:     keyField,
		records:      make([]*block.Record, 0, capacity),
		recordLabels: make([]string, 0, capacity),
	}
}

// Add appends a record under the given block label.
func (b *Bucket) Add(rec *block.Record, label string) error {
	if b.Full() {
		return apperrors.Newf(apperrors.ErrMisalignedBatch, "bucket %s already holds %d records", b.label, b.capacity)
	}
	if b.local != nil {
		return apperrors.Newf(apperrors.ErrPhaseOrder, "bucket %s is sealed", b.label)
	}
	b.records = append(b.records, rec)
	b.recordLabels = append(b.recordLabels, label)
	return nil
}

func (b *Bucket) Full() bool {
	return len(b.records) >= b.capacity
}

func (b *Bucket) Len() int {
	return len(b.records)
}

func (b *Bucket) Label() string {
	return b.label
}

// Records returns the bucket's records in broadcast order.
func (b *Bucket) Records() []*block.Record {
	return b.records
}

// FirstKey returns the ordering key of the first record.
func (b *Bucket) FirstKey() string {
	return b.keyField.Of(b.records[0])
}

// LastKey returns the ordering key of the last record.
func (b *Bucket) LastKey() string {
	return b.keyField.Of(b.records[len(b.records)-1])
}

// ConstructLocalIndex seals the bucket. Row i points i blocks past the local
// index block, at record i. Skips count blocks passed over, so row 0 is 0.
func (b *Bucket) ConstructLocalIndex() {
	rows := make([]block.LocalRow, len(b.records))
	for i, rec := range b.records {
		rows[i] = block.LocalRow{Skip: i, Key: b.keyField.Of(rec)}
	}
	b.local = &block.LocalIndex{Rows: rows}
}

// LocalIndex returns the sealed local index, or nil before ConstructLocalIndex.
func (b *Bucket) LocalIndex() *block.LocalIndex {
	return b.local
}

// AssignGlobalIndex attaches the global index block that leads the bucket.
func (b *Bucket) AssignGlobalIndex(g block.Block) error {
	if !g.Kind.IsGlobalIndex() {
		return apperrors.Newf(apperrors.ErrUnexpectedBlock, "%s cannot lead bucket %s", g.Kind, b.label)
	}
	if b.hasGlobal {
		return apperrors.Newf(apperrors.ErrPhaseOrder, "bucket %s already has a global index", b.label)
	}
	b.global = g
	b.hasGlobal = true
	return nil
}

// GlobalIndex returns the attached global index block.
func (b *Bucket) GlobalIndex() (block.Block, bool) {
	return b.global, b.hasGlobal
}

// UpdateNextIndexOffsets assigns every block of the bucket the number of
// blocks it must pass to reach the following bucket's global index: n+1 for
// the global index, n for the local index, then n-1 down to 0 for the
// records. It depends only on the bucket size. A skip counts the blocks
// passed over, not the blocks advanced, so the last record skips 0.
func (b *Bucket) UpdateNextIndexOffsets() error {
	if !b.hasGlobal {
		return apperrors.Newf(apperrors.ErrPhaseOrder, "bucket %s has no global index", b.label)
	}
	n := len(b.records)
	b.global.Skip = n + 1
	b.localSkip = n
	b.recordSkips = make([]int, n)
	for i := range b.recordSkips {
		b.recordSkips[i] = n - 1 - i
	}
	b.offsetsSet = true
	return nil
}

// Clone returns a bucket holding the same records under a new label with no
// global index. The clone's labels and offsets are its own.
func (b *Bucket) Clone(label string) *Bucket {
	c := &Bucket{
		label:        label,
		capacity:     b.capacity,
		keyField:     b.keyField,
		records:      b.records,
		recordLabels: make([]string, len(b.recordLabels)),
		local:        b.local,
	}
	copy(c.recordLabels, b.recordLabels)
	return c
}

// Flatten lays the bucket out in broadcast order.
func (b *Bucket) Flatten() ([]block.Block, error) {
	if b.local == nil {
		return nil, apperrors.Newf(apperrors.ErrPhaseOrder, "bucket %s has no local index", b.label)
	}
	if !b.offsetsSet {
		return nil, apperrors.Newf(apperrors.ErrPhaseOrder, "bucket %s offsets not computed", b.label)
	}
	out := make([]block.Block, 0, len(b.records)+2)
	out = append(out, b.global)
	out = append(out, block.Block{
		Kind:  block.KindLocalIndex,
		Label: fmt.Sprintf("LocalIndex %s", b.label),
		Skip:  b.localSkip,
		Local: b.local,
	})
	for i, rec := range b.records {
		out = append(out, block.Block{
			Kind:   block.KindData,
			Label:  b.recordLabels[i],
			Skip:   b.recordSkips[i],
			Record: rec,
		})
	}
	return out, nil
}

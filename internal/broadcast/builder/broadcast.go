package builder

import (
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/internal/broadcast/block"
	apperrors "github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/errors"
)

// Broadcast is one assembled cycle. Position len-1 is followed by position 0.
// It is read-only and safe for concurrent readers.
type Broadcast struct {
	mode       Mode
	bucketSize int
	keyField   block.KeyField
	buckets    int
	blocks     []block.Block
}

// ExpectedLength is the cycle length of buckets buckets of bucketSize records:
// each bucket adds a global and a local index block.
func ExpectedLength(buckets, bucketSize int) int {
	return buckets * (bucketSize + 2)
}

func newBroadcast(mode Mode, opts Options, buckets int, blocks []block.Block) (*Broadcast, error) {
	want := ExpectedLength(buckets, opts.BucketSize)
	if len(blocks) != want {
		return nil, apperrors.Newf(apperrors.ErrCorruptIndex,
			"assembled %d blocks, %d buckets of %d records need %d", len(blocks), buckets, opts.BucketSize, want)
	}
	return &Broadcast{
		mode:       mode,
		bucketSize: opts.BucketSize,
		keyField:   opts.KeyField,
		buckets:    buckets,
		blocks:     blocks,
	}, nil
}

func (b *Broadcast) Len() int { return len(b.blocks) }

// At returns the block at position i modulo the cycle length.
func (b *Broadcast) At(i int) block.Block {
	n := len(b.blocks)
	return b.blocks[((i%n)+n)%n]
}

func (b *Broadcast) Mode() Mode { return b.mode }

func (b *Broadcast) BucketSize() int { return b.bucketSize }

// KeyField is the record field readers must query by.
func (b *Broadcast) KeyField() block.KeyField { return b.keyField }

// Buckets is the number of buckets per cycle, replicas included.
func (b *Broadcast) Buckets() int { return b.buckets }

// Blocks returns a copy of the block sequence.
func (b *Broadcast) Blocks() []block.Block {
	out := make([]block.Block, len(b.blocks))
	copy(out, b.blocks)
	return out
}

// Records returns each broadcast record once, in order of first appearance.
func (b *Broadcast) Records() []*block.Record {
	seen := make(map[*block.Record]bool)
	var out []*block.Record
	for _, blk := range b.blocks {
		if blk.Kind == block.KindData && !seen[blk.Record] {
			seen[blk.Record] = true
			out = append(out, blk.Record)
		}
	}
	return out
}

// RecordPositions maps every record to the positions of the data blocks
// carrying it. Replicated records have several positions.
func (b *Broadcast) RecordPositions() map[*block.Record][]int {
	out := make(map[*block.Record][]int)
	for i, blk := range b.blocks {
		if blk.Kind == block.KindData {
			out[blk.Record] = append(out[blk.Record], i)
		}
	}
	return out
}

// Fingerprint hashes the observable content of the cycle: kinds, labels,
// skips, keys and index rows. Two builds of the same input in the same order
// have equal fingerprints.
func (b *Broadcast) Fingerprint() uint64 {
	d := xxhash.New()
	write := func(s string) {
		_, _ = d.WriteString(s)
		_, _ = d.Write([]byte{0})
	}
	writeRows := func(rows []block.GlobalRow) {
		for _, r := range rows {
			write(strconv.Itoa(r.Buckets))
			write(strconv.Itoa(r.Blocks))
			write(r.Bound)
		}
	}
	for _, blk := range b.blocks {
		write(blk.Kind.String())
		write(blk.Label)
		write(strconv.Itoa(blk.Skip))
		switch blk.Kind {
		case block.KindData:
			write(blk.Record.UniqueID)
			write(blk.Record.Group)
			write(blk.Record.SearchKey)
		case block.KindLocalIndex:
			for _, r := range blk.Local.Rows {
				write(strconv.Itoa(r.Skip))
				write(r.Key)
			}
		case block.KindGlobalFlatIndex:
			write(blk.Flat.FirstBucketValue)
			writeRows(blk.Flat.Rows)
		case block.KindGlobalClusterIndex:
			write(blk.Cluster.Group)
			write(blk.Cluster.FirstBucketValue)
			writeRows(blk.Cluster.ClusterRows)
			writeRows(blk.Cluster.ExponentialRows)
		}
	}
	return d.Sum64()
}

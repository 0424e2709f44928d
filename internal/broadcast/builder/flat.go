package builder

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/internal/broadcast/block"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/internal/broadcast/bucket"
	apperrors "github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/errors"
)

// Flat treats all records as one key-ordered run of buckets. Batches must be
// submitted in key order.
type Flat struct {
	base
	buckets []*bucket.Bucket
	records int
}

func NewFlat(opts Options) *Flat {
	return &Flat{base: base{opts: opts}}
}

// AssignRecords appends records as whole buckets. The batch must continue the
// key order of earlier batches; it is not checked, and an out-of-order batch
// builds a broadcast whose index rows miss keys. Group names are ignored.
func (f *Flat) AssignRecords(records []*block.Record) error {
	if err := f.expect(phaseCollecting, "AssignRecords"); err != nil {
		return err
	}
	buckets, err := f.partition(records)
	if err != nil {
		return err
	}
	f.buckets = append(f.buckets, buckets...)
	f.records += len(records)
	return nil
}

// DeclareGroupOrder is meaningless for a flat broadcast.
func (f *Flat) DeclareGroupOrder([]string) error {
	return apperrors.New(apperrors.ErrUnsupported, "flat broadcasts have no group order")
}

func (f *Flat) BuildGlobalIndexes() error {
	if err := f.expect(phaseCollecting, "BuildGlobalIndexes"); err != nil {
		return err
	}
	if len(f.buckets) == 0 {
		return apperrors.New(apperrors.ErrNoRecords, "no records submitted")
	}
	for p, b := range f.buckets {
		g := block.Block{
			Kind:  block.KindGlobalFlatIndex,
			Label: fmt.Sprintf("GlobalIndex %d", p+1),
			Flat: &block.FlatIndex{
				FirstBucketValue: b.FirstKey(),
				Rows:             flatRows(f.buckets, p, f.opts),
			},
		}
		if err := b.AssignGlobalIndex(g); err != nil {
			return err
		}
		if err := b.UpdateNextIndexOffsets(); err != nil {
			return err
		}
	}
	f.phase = phaseBuilt
	return nil
}

func (f *Flat) AssembleBroadcast() (*Broadcast, error) {
	if err := f.expect(phaseBuilt, "AssembleBroadcast"); err != nil {
		return nil, err
	}
	blocks := make([]block.Block, 0, len(f.buckets)*(f.opts.BucketSize+2))
	for _, b := range f.buckets {
		out, err := b.Flatten()
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, out...)
	}
	return newBroadcast(ModeFlat, f.opts, len(f.buckets), blocks)
}

func (f *Flat) Stats() Stats {
	return Stats{
		Mode:         ModeFlat,
		Records:      f.records,
		Buckets:      len(f.buckets),
		Groups:       1,
		CycleBuckets: len(f.buckets),
	}
}

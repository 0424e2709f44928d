package dataset

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/internal/broadcast/block"
	apperrors "github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/errors"
)

// FlatGroup labels every record of a flat synthetic dataset.
const FlatGroup = "all"

// Synthetic generates a deterministic dataset. Flat datasets are 26 batches,
// one per leading letter, of RecordsPerGroup keys each. Grouped datasets are
// Groups batches named G01, G02, ... of RecordsPerGroup keys each.
type Synthetic struct {
	Flat            bool
	Groups          int
	RecordsPerGroup int
}

func (s *Synthetic) Batches(ctx context.Context) ([]Batch, error) {
	if s.RecordsPerGroup < 1 {
		return nil, apperrors.Newf(apperrors.ErrInvalidConfig, "recordsPerGroup %d must be positive", s.RecordsPerGroup)
	}
	if s.Flat {
		batches := make([]Batch, 0, 26)
		for l := 'a'; l <= 'z'; l++ {
			recs := make([]*block.Record, s.RecordsPerGroup)
			for i := range recs {
				key := fmt.Sprintf("%c%05d", l, i)
				recs[i] = &block.Record{UniqueID: key, Group: FlatGroup, SearchKey: key}
			}
			batches = append(batches, Batch{Group: FlatGroup, Records: recs})
		}
		return batches, nil
	}
	if s.Groups < 1 {
		return nil, apperrors.Newf(apperrors.ErrInvalidConfig, "groups %d must be positive", s.Groups)
	}
	batches := make([]Batch, 0, s.Groups)
	for g := 1; g <= s.Groups; g++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := fmt.Sprintf("G%02d", g)
		recs := make([]*block.Record, s.RecordsPerGroup)
		for i := range recs {
			key := fmt.Sprintf("k%05d", i)
			recs[i] = &block.Record{UniqueID: name + ":" + key, Group: name, SearchKey: key}
		}
		batches = append(batches, Batch{Group: name, Records: recs})
	}
	return batches, nil
}

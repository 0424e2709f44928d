// Package traversal simulates a reader tuning into a broadcast at an
// arbitrary position and following index blocks to a record.
package traversal

import (
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/internal/broadcast/block"
	apperrors "github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/errors"
)

// Sequence is a cyclic block sequence. At must accept any position in
// [0, Len()).
type Sequence interface {
	Len() int
	At(i int) block.Block
}

// Query is one lookup. Group is ignored by flat broadcasts.
type Query struct {
	Group string `json:"group"`
	Key   string `json:"key"`
	Start int    `json:"start"`
}

// Step is one block the reader actually read.
type Step struct {
	Position int
	Label    string
	Kind     block.Kind
	Skip     int
}

// Result describes a completed lookup. A key that is not broadcast is a
// normal result with Found unset.
type Result struct {
	Found    bool
	Position int
	Record   *block.Record
	// Reads counts blocks read (tuning time), Skipped the blocks dozed
	// through and Elapsed every block from the start position to the last
	// read (access time).
	Reads   int
	Skipped int
	Elapsed int
	// Hops counts global index blocks consulted.
	Hops  int
	Steps []Step
}

// Search looks q.Key up starting at q.Start.
func Search(seq Sequence, q Query) (Result, error) {
	n := seq.Len()
	if n == 0 {
		return Result{}, apperrors.New(apperrors.ErrCorruptIndex, "empty broadcast")
	}
	start := ((q.Start % n) + n) % n
	var res Result
	pos := start

	read := func() block.Block {
		b := seq.At(pos % n)
		res.Reads++
		res.Steps = append(res.Steps, Step{Position: pos % n, Label: b.Label, Kind: b.Kind, Skip: b.Skip})
		return b
	}
	advance := func(skip int) {
		res.Skipped += skip
		pos += skip + 1
	}
	done := func(found bool, b block.Block) (Result, error) {
		res.Found = found
		res.Position = pos % n
		res.Elapsed = pos - start + 1
		if found {
			res.Record = b.Record
		}
		return res, nil
	}

	// Tune in: whatever is under the reader only says where the next bucket
	// starts.
	first := read()
	advance(first.Skip)

	for {
		cur := read()
		if cur.Kind == block.KindLocalIndex {
			break
		}
		if !cur.Kind.IsGlobalIndex() {
			return Result{}, apperrors.Newf(apperrors.ErrUnexpectedBlock,
				"expected an index at position %d, found %s %q", pos%n, cur.Kind, cur.Label)
		}
		res.Hops++
		if res.Hops > n {
			return Result{}, apperrors.Newf(apperrors.ErrCorruptIndex,
				"lookup of %q did not converge after %d index hops", q.Key, res.Hops)
		}
		skip, err := cur.NextSkip(q.Group, q.Key)
		if apperrors.IsNotFound(err) {
			return done(false, cur)
		}
		if err != nil {
			return Result{}, err
		}
		advance(skip)
	}

	local := seq.At(pos % n)
	skip, err := local.NextSkip(q.Group, q.Key)
	if apperrors.IsNotFound(err) {
		return done(false, local)
	}
	if err != nil {
		return Result{}, err
	}
	advance(skip)

	data := read()
	if data.Kind != block.KindData {
		return Result{}, apperrors.Newf(apperrors.ErrUnexpectedBlock,
			"expected a data block at position %d, found %s %q", pos%n, data.Kind, data.Label)
	}
	return done(true, data)
}

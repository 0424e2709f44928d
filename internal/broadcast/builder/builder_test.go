package builder

import (
	"fmt"
	"sort"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/internal/broadcast/block"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/internal/broadcast/traversal"
	apperrors "github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var letterSpecials = map[byte][]string{
	'a': {"apple"},
	'd': {"deed"},
	'f': {"freak"},
	'm': {"melon"},
	'w': {"wiggle"},
}

// letterWords returns ten sorted words starting with l.
func letterWords(l byte) []string {
	words := append([]string(nil), letterSpecials[l]...)
	for c := byte('a'); len(words) < 10; c++ {
		words = append(words, string([]byte{l, c}))
	}
	sort.Strings(words)
	return words
}

func flatRecords() []*block.Record {
	var recs []*block.Record
	for l := byte('a'); l <= 'z'; l++ {
		for _, w := range letterWords(l) {
			recs = append(recs, &block.Record{UniqueID: w, Group: "words", SearchKey: w})
		}
	}
	return recs
}

func groupRecords(group string, n int) []*block.Record {
	recs := make([]*block.Record, n)
	for i := range recs {
		key := fmt.Sprintf("k%04d", i)
		recs[i] = &block.Record{UniqueID: group + ":" + key, Group: group, SearchKey: key}
	}
	return recs
}

func buildFlat(t *testing.T) *Broadcast {
	t.Helper()
	b, err := New(ModeFlat, DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, b.AssignRecords(flatRecords()))
	require.NoError(t, b.BuildGlobalIndexes())
	bc, err := b.AssembleBroadcast()
	require.NoError(t, err)
	return bc
}

func buildGrouped(t *testing.T, mode Mode, order []string) (Builder, *Broadcast) {
	t.Helper()
	b, err := New(mode, DefaultOptions())
	require.NoError(t, err)
	for _, g := range []string{"ALPHA", "BETA", "GAMMA", "DELTA"} {
		require.NoError(t, b.AssignRecords(groupRecords(g, 180)))
	}
	require.NoError(t, b.DeclareGroupOrder(order))
	require.NoError(t, b.BuildGlobalIndexes())
	bc, err := b.AssembleBroadcast()
	require.NoError(t, err)
	return b, bc
}

func TestFlatBroadcastLayout(t *testing.T) {
	bc := buildFlat(t)
	require.Equal(t, 312, bc.Len())
	assert.Equal(t, 26, bc.Buckets())

	d := bc.At(3 * 12)
	require.Equal(t, block.KindGlobalFlatIndex, d.Kind)
	assert.Equal(t, "GlobalIndex 4", d.Label)
	assert.Equal(t, 11, d.Skip)

	var spans []int
	var blocks []int
	for _, r := range d.Flat.Rows {
		spans = append(spans, r.Buckets)
		blocks = append(blocks, r.Blocks)
	}
	assert.Equal(t, []int{0, 1, 2, 4, 8, 16}, spans)
	assert.Equal(t, []int{0, 11, 23, 47, 95, 191}, blocks)
	assert.Equal(t, "di", d.Flat.Rows[0].Bound)
	assert.Equal(t, d.Flat.Rows[len(d.Flat.Rows)-1].Bound, bc.At(2*12+11).Record.SearchKey)

	for key, want := range map[string]int{
		"wiggle": 191,
		"apple":  191,
		"melon":  95,
		"deed":   0,
		"freak":  23,
	} {
		got, err := d.NextSkip("", key)
		require.NoError(t, err, key)
		assert.Equal(t, want, got, key)
	}
}

func TestFlatSkipsLandOnNextGlobalIndex(t *testing.T) {
	bc := buildFlat(t)
	for i := 0; i < bc.Len(); i++ {
		next := bc.At(i + bc.At(i).Skip + 1)
		assert.True(t, next.Kind.IsGlobalIndex(), "position %d", i)
	}
	assert.Equal(t, "Data Block 1", bc.At(2).Label)
	assert.Equal(t, "LocalIndex 1", bc.At(1).Label)
}

func TestFlatEveryRecordFindable(t *testing.T) {
	bc := buildFlat(t)
	for _, rec := range flatRecords() {
		for start := 0; start < bc.Len(); start += 17 {
			res, err := traversal.Search(bc, traversal.Query{Key: rec.SearchKey, Start: start})
			require.NoError(t, err)
			require.True(t, res.Found, "%s from %d", rec.SearchKey, start)
			assert.Equal(t, rec.UniqueID, res.Record.UniqueID)
		}
	}
}

func TestFlatMissingKeyNotFound(t *testing.T) {
	bc := buildFlat(t)
	for _, key := range []string{"0", "zzz", "dd5", "mango"} {
		for start := 0; start < bc.Len(); start += 31 {
			res, err := traversal.Search(bc, traversal.Query{Key: key, Start: start})
			require.NoError(t, err, key)
			assert.False(t, res.Found, key)
		}
	}
}

func TestClusteredBroadcast(t *testing.T) {
	order := []string{"ALPHA", "BETA", "GAMMA", "DELTA"}
	b, bc := buildGrouped(t, ModeClustered, order)
	require.Equal(t, 864, bc.Len())
	assert.Equal(t, 72, b.Stats().CycleBuckets)
	assert.Len(t, b.(*Clustered).ClusterMap(), 4)

	first := bc.At(0)
	require.Equal(t, block.KindGlobalClusterIndex, first.Kind)
	assert.Equal(t, "ALPHA", first.Cluster.Group)
	assert.Equal(t, []block.GlobalRow{
		{Buckets: 18, Blocks: 215, Bound: "BETA"},
		{Buckets: 36, Blocks: 431, Bound: "GAMMA"},
		{Buckets: 54, Blocks: 647, Bound: "DELTA"},
	}, first.Cluster.ClusterRows)
	assert.Equal(t, []block.GlobalRow{
		{Buckets: 0, Blocks: 0, Bound: "k0009"},
		{Buckets: 1, Blocks: 11, Bound: "k0019"},
		{Buckets: 2, Blocks: 23, Bound: "k0039"},
		{Buckets: 4, Blocks: 47, Bound: "k0079"},
		{Buckets: 8, Blocks: 95, Bound: "k0159"},
		{Buckets: 16, Blocks: 191, Bound: "k0179"},
	}, first.Cluster.ExponentialRows)

	// Second ALPHA bucket: ALPHA itself comes round again after a full cycle
	// less one bucket.
	second := bc.At(12)
	require.Len(t, second.Cluster.ClusterRows, 4)
	assert.Equal(t, block.GlobalRow{Buckets: 71, Blocks: 71*12 - 1, Bound: "ALPHA"}, second.Cluster.ClusterRows[3])

	// Last DELTA bucket has no exponential reach past itself.
	last := bc.At(bc.Len() - 12)
	assert.Equal(t, "DELTA", last.Cluster.Group)
	assert.Len(t, last.Cluster.ExponentialRows, 1)
	assert.Equal(t, "GlobalIndex 72", last.Label)
}

func TestClusteredEveryRecordFindable(t *testing.T) {
	_, bc := buildGrouped(t, ModeClustered, []string{"GAMMA", "ALPHA", "DELTA", "BETA"})
	for _, g := range []string{"ALPHA", "BETA", "GAMMA", "DELTA"} {
		for _, rec := range groupRecords(g, 180) {
			for start := 0; start < bc.Len(); start += 97 {
				res, err := traversal.Search(bc, traversal.Query{Group: g, Key: rec.SearchKey, Start: start})
				require.NoError(t, err)
				require.True(t, res.Found, "%s/%s from %d", g, rec.SearchKey, start)
				assert.Equal(t, rec.UniqueID, res.Record.UniqueID)
			}
		}
	}
}

func TestClusteredMissingKeyOrGroup(t *testing.T) {
	_, bc := buildGrouped(t, ModeClustered, []string{"ALPHA", "BETA", "GAMMA", "DELTA"})
	for _, q := range []traversal.Query{
		{Group: "BETA", Key: "k9999"},
		{Group: "BETA", Key: "k0005x", Start: 400},
		{Group: "OMEGA", Key: "k0001", Start: 100},
	} {
		res, err := traversal.Search(bc, q)
		require.NoError(t, err)
		assert.False(t, res.Found, "%+v", q)
	}
}

func TestSkewedBroadcast(t *testing.T) {
	order := []string{"ALPHA", "BETA", "GAMMA", "BETA", "DELTA", "GAMMA"}
	b, bc := buildGrouped(t, ModeSkewed, order)
	require.Equal(t, 1296, bc.Len())

	sk := b.(*Skewed)
	cm := sk.ClusterMap()
	assert.Len(t, cm, 6)
	for _, name := range []string{"ALPHA", "BETA#1", "BETA#2", "GAMMA#1", "GAMMA#2", "DELTA"} {
		assert.Len(t, cm[name], 18, name)
	}

	// Replicas share records but not buckets with the originals, which keep
	// no global index.
	orig := sk.Originals("BETA")
	require.Len(t, orig, 18)
	assert.NotSame(t, orig[0], cm["BETA#1"][0])
	assert.Same(t, orig[0].Records()[0], cm["BETA#2"][0].Records()[0])
	_, ok := orig[0].GlobalIndex()
	assert.False(t, ok)

	// Labels are renumbered in broadcast order.
	assert.Equal(t, "GlobalIndex 1", bc.At(0).Label)
	assert.Equal(t, "LocalIndex 1", bc.At(1).Label)
	assert.Equal(t, "DataBlock 1", bc.At(2).Label)
	assert.Equal(t, "DataBlock 1080", bc.At(bc.Len()-1).Label)
	assert.Equal(t, "GlobalIndex 108", bc.At(bc.Len()-12).Label)

	// From the first ALPHA bucket only the nearest occurrence of each group
	// is listed.
	assert.Equal(t, []block.GlobalRow{
		{Buckets: 18, Blocks: 215, Bound: "BETA"},
		{Buckets: 36, Blocks: 431, Bound: "GAMMA"},
		{Buckets: 72, Blocks: 863, Bound: "DELTA"},
	}, bc.At(0).Cluster.ClusterRows)

	for i := 0; i < bc.Len(); i++ {
		next := bc.At(i + bc.At(i).Skip + 1)
		require.True(t, next.Kind.IsGlobalIndex(), "position %d", i)
	}
}

func TestSkewedEveryRecordFindable(t *testing.T) {
	_, bc := buildGrouped(t, ModeSkewed, []string{"ALPHA", "BETA", "GAMMA", "BETA", "DELTA", "GAMMA"})
	positions := bc.RecordPositions()
	for _, g := range []string{"ALPHA", "BETA", "GAMMA", "DELTA"} {
		for _, rec := range groupRecords(g, 180) {
			for start := 0; start < bc.Len(); start += 131 {
				res, err := traversal.Search(bc, traversal.Query{Group: g, Key: rec.SearchKey, Start: start})
				require.NoError(t, err)
				require.True(t, res.Found, "%s/%s from %d", g, rec.SearchKey, start)
				assert.Equal(t, rec.UniqueID, res.Record.UniqueID)
				assert.Contains(t, positions[res.Record], res.Position)
			}
		}
	}
}

func TestFingerprintIsDeterministic(t *testing.T) {
	a := buildFlat(t)
	b := buildFlat(t)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	_, c := buildGrouped(t, ModeClustered, []string{"ALPHA", "BETA", "GAMMA", "DELTA"})
	_, d := buildGrouped(t, ModeClustered, []string{"BETA", "ALPHA", "GAMMA", "DELTA"})
	assert.NotEqual(t, c.Fingerprint(), d.Fingerprint())
}

func TestAssignRecordsContract(t *testing.T) {
	f := NewFlat(DefaultOptions())
	require.ErrorIs(t, f.AssignRecords(nil), apperrors.ErrEmptyBatch)
	require.ErrorIs(t, f.AssignRecords(groupRecords("A", 15)), apperrors.ErrMisalignedBatch)
	require.NoError(t, f.AssignRecords(append(groupRecords("A", 5), groupRecords("B", 5)...)))

	c := NewClustered(DefaultOptions())
	mixed := append(groupRecords("A", 5), groupRecords("B", 5)...)
	err := c.AssignRecords(mixed)
	require.ErrorIs(t, err, apperrors.ErrMixedGroup)
	assert.Equal(t, apperrors.ClassInput, apperrors.Classify(err))

	sameFold := append(groupRecords("A", 5), groupRecords("a", 5)...)
	require.NoError(t, c.AssignRecords(sameFold))
}

func TestDeclareGroupOrderContract(t *testing.T) {
	newC := func() *Clustered {
		c := NewClustered(DefaultOptions())
		require.NoError(t, c.AssignRecords(groupRecords("A", 10)))
		require.NoError(t, c.AssignRecords(groupRecords("B", 20)))
		return c
	}
	require.ErrorIs(t, newC().DeclareGroupOrder([]string{"A", "Z"}), apperrors.ErrUnknownGroup)
	require.ErrorIs(t, newC().DeclareGroupOrder([]string{"A"}), apperrors.ErrIncompleteOrder)
	require.ErrorIs(t, newC().DeclareGroupOrder([]string{"A", "B", "A"}), apperrors.ErrIncompleteOrder)
	require.NoError(t, newC().DeclareGroupOrder([]string{"B", "A"}))

	s := NewSkewed(DefaultOptions())
	require.NoError(t, s.AssignRecords(groupRecords("A", 10)))
	require.NoError(t, s.AssignRecords(groupRecords("B", 10)))
	require.ErrorIs(t, s.DeclareGroupOrder([]string{"A", "A"}), apperrors.ErrIncompleteOrder)
	require.NoError(t, s.DeclareGroupOrder([]string{"A", "B", "A"}))

	require.ErrorIs(t, NewFlat(DefaultOptions()).DeclareGroupOrder([]string{"A"}), apperrors.ErrUnsupported)
	require.ErrorIs(t, NewClustered(DefaultOptions()).DeclareGroupOrder([]string{"A"}), apperrors.ErrNoRecords)
}

func TestGroupNamesFoldCase(t *testing.T) {
	for _, mode := range []Mode{ModeClustered, ModeSkewed} {
		b, err := New(mode, DefaultOptions())
		require.NoError(t, err)
		require.NoError(t, b.AssignRecords(groupRecords("X", 20)))
		require.NoError(t, b.AssignRecords(groupRecords("Y", 10)))
		tail := groupRecords("x", 30)[20:]
		require.NoError(t, b.AssignRecords(tail))
		assert.Equal(t, 2, b.Stats().Groups, mode)
		assert.Equal(t, 4, b.Stats().Buckets, mode)

		if mode == ModeClustered {
			require.ErrorIs(t, b.DeclareGroupOrder([]string{"X", "x", "Y"}), apperrors.ErrIncompleteOrder)
		}
		require.NoError(t, b.DeclareGroupOrder([]string{"y", "x"}))
		require.NoError(t, b.BuildGlobalIndexes())
		bc, err := b.AssembleBroadcast()
		require.NoError(t, err)
		require.Equal(t, 48, bc.Len(), mode)

		want := append(groupRecords("X", 20), tail...)
		for _, rec := range want {
			for _, group := range []string{"x", "X"} {
				for start := 0; start < bc.Len(); start++ {
					res, err := traversal.Search(bc, traversal.Query{Group: group, Key: rec.SearchKey, Start: start})
					require.NoError(t, err)
					require.True(t, res.Found, "%s %s/%s from %d", mode, group, rec.SearchKey, start)
					assert.Equal(t, rec.UniqueID, res.Record.UniqueID)
				}
			}
		}
	}
}

func TestSkewedRepeatsAcrossCase(t *testing.T) {
	s := NewSkewed(DefaultOptions())
	require.NoError(t, s.AssignRecords(groupRecords("X", 10)))
	require.NoError(t, s.AssignRecords(groupRecords("Y", 10)))
	require.NoError(t, s.DeclareGroupOrder([]string{"X", "Y", "x"}))
	require.NoError(t, s.BuildGlobalIndexes())
	cm := s.ClusterMap()
	assert.Contains(t, cm, "X#1")
	assert.Contains(t, cm, "X#2")
	assert.Len(t, s.Originals("x"), 1)
}

func TestPhaseOrder(t *testing.T) {
	c := NewClustered(DefaultOptions())
	require.NoError(t, c.AssignRecords(groupRecords("A", 10)))
	require.ErrorIs(t, c.BuildGlobalIndexes(), apperrors.ErrPhaseOrder)
	_, err := c.AssembleBroadcast()
	require.ErrorIs(t, err, apperrors.ErrPhaseOrder)

	require.NoError(t, c.DeclareGroupOrder([]string{"A"}))
	require.ErrorIs(t, c.AssignRecords(groupRecords("A", 10)), apperrors.ErrPhaseOrder)
	require.NoError(t, c.BuildGlobalIndexes())
	require.ErrorIs(t, c.BuildGlobalIndexes(), apperrors.ErrPhaseOrder)

	bc, err := c.AssembleBroadcast()
	require.NoError(t, err)
	assert.Equal(t, 12, bc.Len())

	f := NewFlat(DefaultOptions())
	require.ErrorIs(t, f.BuildGlobalIndexes(), apperrors.ErrNoRecords)
}

func TestOptionsValidate(t *testing.T) {
	_, err := New(ModeFlat, Options{BucketSize: 0, ExponentialFactor: 2})
	require.ErrorIs(t, err, apperrors.ErrInvalidConfig)
	_, err = New(ModeFlat, Options{BucketSize: 4, ExponentialFactor: 1})
	require.ErrorIs(t, err, apperrors.ErrInvalidConfig)

	m, err := ParseMode("Skewed")
	require.NoError(t, err)
	assert.Equal(t, ModeSkewed, m)
	_, err = ParseMode("round-robin")
	require.ErrorIs(t, err, apperrors.ErrInvalidConfig)
}

func TestSpans(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2, 4, 8, 16}, cycleSpans(26, 2))
	assert.Equal(t, []int{0, 1}, cycleSpans(2, 2))
	assert.Equal(t, []int{0, 1, 2, 5, 14}, cycleSpans(30, 3))
	assert.Equal(t, []int{0}, groupSpans(0, 2))
	assert.Equal(t, []int{0, 1}, groupSpans(1, 2))
	assert.Equal(t, []int{0, 1, 2}, groupSpans(3, 2))
	assert.Equal(t, []int{0, 1, 2, 4, 8, 16}, groupSpans(17, 2))
}

func TestRecordsAreDistinct(t *testing.T) {
	_, bc := buildGrouped(t, ModeSkewed, []string{"ALPHA", "BETA", "GAMMA", "BETA", "DELTA", "GAMMA"})
	recs := bc.Records()
	assert.Len(t, recs, 720)
	assert.Equal(t, "ALPHA:k0000", recs[0].UniqueID)
	assert.Equal(t, ExpectedLength(108, 10), bc.Len())
}

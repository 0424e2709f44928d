package builder

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/internal/broadcast/block"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/internal/broadcast/bucket"
	apperrors "github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/errors"
)

// grouped holds the cluster map shared by the clustered and skewed builders.
// Group names compare case-insensitively: groups is keyed by groupKey and
// names keeps the spelling of each group's first batch.
type grouped struct {
	base
	groups  map[string][]*bucket.Bucket
	names   []string
	order   []string
	records int
}

func newGrouped(opts Options) grouped {
	return grouped{
		base:   base{opts: opts},
		groups: make(map[string][]*bucket.Bucket),
	}
}

func groupKey(name string) string {
	return strings.ToLower(name)
}

// bucketsOf returns the buckets submitted under any spelling of name.
func (g *grouped) bucketsOf(name string) []*bucket.Bucket {
	return g.groups[groupKey(name)]
}

// canonical returns the first submitted spelling of name.
func (g *grouped) canonical(name string) (string, bool) {
	key := groupKey(name)
	for _, n := range g.names {
		if groupKey(n) == key {
			return n, true
		}
	}
	return "", false
}

// AssignRecords appends a single-group batch to that group's buckets. A batch
// whose group differs from an earlier one only by case extends that group.
func (g *grouped) AssignRecords(records []*block.Record) error {
	if err := g.expect(phaseCollecting, "AssignRecords"); err != nil {
		return err
	}
	if len(records) == 0 {
		return apperrors.New(apperrors.ErrEmptyBatch, "batch has no records")
	}
	name := records[0].Group
	for _, rec := range records[1:] {
		if !strings.EqualFold(rec.Group, name) {
			return apperrors.Newf(apperrors.ErrMixedGroup, "batch mixes groups %q and %q", name, rec.Group)
		}
	}
	buckets, err := g.partition(records)
	if err != nil {
		return err
	}
	key := groupKey(name)
	if _, ok := g.groups[key]; !ok {
		g.names = append(g.names, name)
	}
	g.groups[key] = append(g.groups[key], buckets...)
	g.records += len(records)
	return nil
}

// declare validates order against the submitted groups. Every submitted group
// must appear; repeats are allowed only when repeats is set.
func (g *grouped) declare(order []string, repeats bool) error {
	if err := g.expect(phaseCollecting, "DeclareGroupOrder"); err != nil {
		return err
	}
	if len(g.groups) == 0 {
		return apperrors.New(apperrors.ErrNoRecords, "no records submitted")
	}
	seen := make(map[string]int, len(order))
	resolved := make([]string, 0, len(order))
	for _, name := range order {
		canon, ok := g.canonical(name)
		if !ok {
			return apperrors.Newf(apperrors.ErrUnknownGroup, "group %q was never submitted", name)
		}
		seen[canon]++
		if seen[canon] > 1 && !repeats {
			return apperrors.Newf(apperrors.ErrIncompleteOrder, "group %q repeats in the order", name)
		}
		resolved = append(resolved, canon)
	}
	for _, name := range g.names {
		if seen[name] == 0 {
			return apperrors.Newf(apperrors.ErrIncompleteOrder, "group %q missing from the order", name)
		}
	}
	g.order = resolved
	g.phase = phaseOrdered
	return nil
}

func (g *grouped) stats(mode Mode, cycle int) Stats {
	n := 0
	for _, b := range g.groups {
		n += len(b)
	}
	return Stats{
		Mode:         mode,
		Records:      g.records,
		Buckets:      n,
		Groups:       len(g.groups),
		CycleBuckets: cycle,
	}
}

// segment is one occurrence of a group in the cycle.
type segment struct {
	// group is the submitted group name, the one readers query with.
	group   string
	buckets []*bucket.Bucket
}

func cycleBuckets(segs []segment) int {
	n := 0
	for _, s := range segs {
		n += len(s.buckets)
	}
	return n
}

// buildClusterIndexes walks the cycle once, giving every bucket a cluster
// index. offsets[j] is the distance in buckets from the current bucket to the
// start of segment j; a value equal to the cycle length marks the segment the
// reader is standing at the start of, which needs no cluster row. When
// nearest is set only the first upcoming occurrence of each group is listed.
func (b *base) buildClusterIndexes(segs []segment, nearest bool) error {
	total := cycleBuckets(segs)
	offsets := make([]int, len(segs))
	offsets[0] = total
	acc := 0
	for j := 1; j < len(segs); j++ {
		acc += len(segs[j-1].buckets)
		offsets[j] = acc
	}

	linear := 0
	for si, seg := range segs {
		for bi, bk := range seg.buckets {
			linear++
			idx := &block.ClusterIndex{
				Group:            seg.group,
				FirstBucketValue: bk.FirstKey(),
				ExponentialRows:  groupRows(seg.buckets, bi, b.opts),
			}
			listed := make(map[string]bool, len(segs))
			for k := 0; k < len(segs); k++ {
				j := (si + 1 + k) % len(segs)
				if offsets[j] == total {
					continue
				}
				name := segs[j].group
				if nearest {
					key := strings.ToLower(name)
					if listed[key] {
						continue
					}
					listed[key] = true
				}
				idx.ClusterRows = append(idx.ClusterRows, block.GlobalRow{
					Buckets: offsets[j],
					Blocks:  blockDistance(offsets[j], b.opts.BucketSize),
					Bound:   name,
				})
			}
			for j := range offsets {
				offsets[j]--
				if offsets[j] == 0 {
					offsets[j] = total
				}
			}

			g := block.Block{
				Kind:    block.KindGlobalClusterIndex,
				Label:   fmt.Sprintf("GlobalIndex %d", linear),
				Cluster: idx,
			}
			if err := bk.AssignGlobalIndex(g); err != nil {
				return err
			}
			if err := bk.UpdateNextIndexOffsets(); err != nil {
				return err
			}
		}
	}
	return nil
}

func assembleSegments(segs []segment, bucketSize int) ([]block.Block, error) {
	blocks := make([]block.Block, 0, cycleBuckets(segs)*(bucketSize+2))
	for _, s := range segs {
		for _, b := range s.buckets {
			out, err := b.Flatten()
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, out...)
		}
	}
	return blocks, nil
}

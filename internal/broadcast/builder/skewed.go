package builder

import (
	"fmt"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/internal/broadcast/block"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/internal/broadcast/bucket"
)

// Skewed lets a group occur several times per cycle. Every occurrence of a
// repeated group G is a replica named G#1, G#2, ... whose buckets are clones
// of the submitted ones, so each occurrence carries its own index linkage.
// Groups occurring once are broadcast from the submitted buckets.
type Skewed struct {
	grouped
	replicas map[string][]*bucket.Bucket
	cycle    []segment
}

func NewSkewed(opts Options) *Skewed {
	return &Skewed{grouped: newGrouped(opts)}
}

// DeclareGroupOrder fixes the cycle order. Groups may repeat but every
// submitted group must appear.
func (s *Skewed) DeclareGroupOrder(order []string) error {
	return s.declare(order, true)
}

// materialize builds the replica map and the cycle from the declared order.
// Clones take fresh bucket numbers from the run's counter.
func (s *Skewed) materialize() {
	occurrences := make(map[string]int, len(s.order))
	for _, name := range s.order {
		occurrences[name]++
	}
	s.replicas = make(map[string][]*bucket.Bucket, len(s.order))
	s.cycle = make([]segment, 0, len(s.order))
	seen := make(map[string]int, len(occurrences))
	for _, name := range s.order {
		if occurrences[name] == 1 {
			s.replicas[name] = s.bucketsOf(name)
			s.cycle = append(s.cycle, segment{group: name, buckets: s.bucketsOf(name)})
			continue
		}
		seen[name]++
		originals := s.bucketsOf(name)
		clones := make([]*bucket.Bucket, len(originals))
		for i, b := range originals {
			s.bucketIndex++
			clones[i] = b.Clone(strconv.Itoa(s.bucketIndex))
		}
		s.replicas[fmt.Sprintf("%s#%d", name, seen[name])] = clones
		s.cycle = append(s.cycle, segment{group: name, buckets: clones})
	}
}

func (s *Skewed) BuildGlobalIndexes() error {
	if err := s.expect(phaseOrdered, "BuildGlobalIndexes"); err != nil {
		return err
	}
	s.materialize()
	if err := s.buildClusterIndexes(s.cycle, true); err != nil {
		return err
	}
	s.phase = phaseBuilt
	return nil
}

// AssembleBroadcast lays the cycle out and renumbers every label by kind in
// broadcast order, since replicas would otherwise repeat data block labels.
func (s *Skewed) AssembleBroadcast() (*Broadcast, error) {
	if err := s.expect(phaseBuilt, "AssembleBroadcast"); err != nil {
		return nil, err
	}
	blocks, err := assembleSegments(s.cycle, s.opts.BucketSize)
	if err != nil {
		return nil, err
	}
	var global, local, data int
	for i := range blocks {
		switch blocks[i].Kind {
		case block.KindGlobalClusterIndex:
			global++
			blocks[i].Label = fmt.Sprintf("GlobalIndex %d", global)
		case block.KindLocalIndex:
			local++
			blocks[i].Label = fmt.Sprintf("LocalIndex %d", local)
		case block.KindData:
			data++
			blocks[i].Label = fmt.Sprintf("DataBlock %d", data)
		}
	}
	return newBroadcast(ModeSkewed, s.opts, cycleBuckets(s.cycle), blocks)
}

// ClusterMap returns the buckets broadcast under each replica name once
// indexes are built, and the submitted groups before that.
func (s *Skewed) ClusterMap() map[string][]*bucket.Bucket {
	if s.replicas == nil {
		out := make(map[string][]*bucket.Bucket, len(s.names))
		for _, name := range s.names {
			out[name] = s.bucketsOf(name)
		}
		return out
	}
	out := make(map[string][]*bucket.Bucket, len(s.replicas))
	for k, v := range s.replicas {
		out[k] = v
	}
	return out
}

// Originals returns the submitted buckets of group, untouched by replication.
func (s *Skewed) Originals(group string) []*bucket.Bucket {
	return s.bucketsOf(group)
}

func (s *Skewed) Stats() Stats {
	cycle := 0
	if s.phase >= phaseOrdered {
		for _, name := range s.order {
			cycle += len(s.bucketsOf(name))
		}
	}
	return s.stats(ModeSkewed, cycle)
}

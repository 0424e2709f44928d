package builder

import (
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/internal/broadcast/bucket"
)

// Clustered broadcasts every group exactly once per cycle, in the declared
// order. Each group's batches must be submitted in key order.
type Clustered struct {
	grouped
}

func NewClustered(opts Options) *Clustered {
	return &Clustered{grouped: newGrouped(opts)}
}

// DeclareGroupOrder fixes the cycle order. It must name every submitted group
// exactly once.
func (c *Clustered) DeclareGroupOrder(order []string) error {
	return c.declare(order, false)
}

func (c *Clustered) segments() []segment {
	segs := make([]segment, len(c.order))
	for i, name := range c.order {
		segs[i] = segment{group: name, buckets: c.bucketsOf(name)}
	}
	return segs
}

func (c *Clustered) BuildGlobalIndexes() error {
	if err := c.expect(phaseOrdered, "BuildGlobalIndexes"); err != nil {
		return err
	}
	if err := c.buildClusterIndexes(c.segments(), false); err != nil {
		return err
	}
	c.phase = phaseBuilt
	return nil
}

func (c *Clustered) AssembleBroadcast() (*Broadcast, error) {
	if err := c.expect(phaseBuilt, "AssembleBroadcast"); err != nil {
		return nil, err
	}
	segs := c.segments()
	blocks, err := assembleSegments(segs, c.opts.BucketSize)
	if err != nil {
		return nil, err
	}
	return newBroadcast(ModeClustered, c.opts, cycleBuckets(segs), blocks)
}

// ClusterMap returns the buckets of each group.
func (c *Clustered) ClusterMap() map[string][]*bucket.Bucket {
	out := make(map[string][]*bucket.Bucket, len(c.names))
	for _, name := range c.names {
		out[name] = c.bucketsOf(name)
	}
	return out
}

func (c *Clustered) Stats() Stats {
	cycle := 0
	if c.phase >= phaseOrdered {
		cycle = cycleBuckets(c.segments())
	}
	return c.stats(ModeClustered, cycle)
}

var (
	_ Builder = (*Flat)(nil)
	_ Builder = (*Clustered)(nil)
	_ Builder = (*Skewed)(nil)
)

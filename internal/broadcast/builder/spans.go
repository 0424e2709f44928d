package builder

import (
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/internal/broadcast/block"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/internal/broadcast/bucket"
)

// cycleSpans returns the bucket distances at which flat index rows start:
// 0, 1, then 2, 2+f, 2+f+f^2, ... while below n. Each span is f times the
// previous one.
func cycleSpans(n, factor int) []int {
	spans := []int{0, 1}
	next, step := 2, factor
	for next < n {
		spans = append(spans, next)
		next += step
		step *= factor
	}
	return spans
}

// groupSpans is cycleSpans limited to the buckets remaining in a group after
// the current one. It never wraps.
func groupSpans(remaining, factor int) []int {
	spans := []int{0}
	if remaining >= 1 {
		spans = append(spans, 1)
	}
	if remaining >= 2 {
		next, step := 2, factor
		for next <= remaining {
			spans = append(spans, next)
			next += step
			step *= factor
		}
	}
	return spans
}

// flatRows builds the exponential index of bucket p in a cyclic run of
// buckets. The final row always reaches back to bucket p-1 so the whole
// cycle is covered wherever the exponential growth stopped.
func flatRows(buckets []*bucket.Bucket, p int, opts Options) []block.GlobalRow {
	n := len(buckets)
	spans := cycleSpans(n, opts.ExponentialFactor)
	rows := make([]block.GlobalRow, 0, len(spans)+1)
	rows = append(rows,
		block.GlobalRow{Buckets: 0, Blocks: 0, Bound: buckets[p].LastKey()},
		block.GlobalRow{Buckets: 1, Blocks: blockDistance(1, opts.BucketSize), Bound: buckets[(p+1)%n].LastKey()},
	)
	for i := 3; i < len(spans); i++ {
		end := (p + spans[i] - 1) % n
		rows = append(rows, block.GlobalRow{
			Buckets: spans[i-1],
			Blocks:  blockDistance(spans[i-1], opts.BucketSize),
			Bound:   buckets[end].LastKey(),
		})
	}
	last := spans[len(spans)-1]
	rows = append(rows, block.GlobalRow{
		Buckets: last,
		Blocks:  blockDistance(last, opts.BucketSize),
		Bound:   buckets[(p+n-1)%n].LastKey(),
	})
	return rows
}

// groupRows builds the exponential index of bucket p within one group's
// contiguous run of buckets.
func groupRows(buckets []*bucket.Bucket, p int, opts Options) []block.GlobalRow {
	spans := groupSpans(len(buckets)-(p+1), opts.ExponentialFactor)
	rows := make([]block.GlobalRow, 0, len(spans))
	rows = append(rows, block.GlobalRow{Buckets: 0, Blocks: 0, Bound: buckets[p].LastKey()})
	if len(spans) >= 2 {
		rows = append(rows, block.GlobalRow{
			Buckets: 1,
			Blocks:  blockDistance(1, opts.BucketSize),
			Bound:   buckets[p+1].LastKey(),
		})
	}
	for i := 3; i < len(spans); i++ {
		rows = append(rows, block.GlobalRow{
			Buckets: spans[i-1],
			Blocks:  blockDistance(spans[i-1], opts.BucketSize),
			Bound:   buckets[p+spans[i]-1].LastKey(),
		})
	}
	if len(spans) >= 3 {
		last := spans[len(spans)-1]
		rows = append(rows, block.GlobalRow{
			Buckets: last,
			Blocks:  blockDistance(last, opts.BucketSize),
			Bound:   buckets[len(buckets)-1].LastKey(),
		})
	}
	return rows
}

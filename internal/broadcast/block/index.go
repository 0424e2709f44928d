package block

import (
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/errors"
)

// LocalRow locates one record inside the current bucket.
type LocalRow struct {
	Skip int
	Key  string
}

// LocalIndex resolves the exact in-bucket skip once the reader is inside
// the right bucket.
type LocalIndex struct {
	Rows []LocalRow
}

// NextSkip returns the skip to the record holding key.
func (l *LocalIndex) NextSkip(key string) (int, error) {
	for _, row := range l.Rows {
		if row.Key == key {
			return row.Skip, nil
		}
	}
	return 0, apperrors.Newf(apperrors.ErrKeyNotFound, "key %q not in bucket", key)
}

// GlobalRow is one entry of an exponential or cluster table. Bound is an
// upper-bound key for exponential rows and a group label for cluster rows.
type GlobalRow struct {
	Buckets int
	Blocks  int
	Bound   string
}

// Contains reports whether key sorts at or before the row's bound.
func (r GlobalRow) Contains(key string) bool {
	return key <= r.Bound
}

// FlatIndex is the global index of a flat broadcast. Its rows cover the
// whole cycle starting at the current bucket.
type FlatIndex struct {
	FirstBucketValue string
	Rows             []GlobalRow
}

// NextSkip returns the block distance of the first row covering key. A key
// sorting before the current bucket has already gone by this cycle, so only
// rows whose span wraps past the end of the key order can hold it. When no
// row covers key, the key lies outside the broadcast's key range and the
// result is ErrKeyNotFound rather than a corrupt-index error.
func (f *FlatIndex) NextSkip(key string) (int, error) {
	if len(f.Rows) == 0 {
		return 0, apperrors.New(apperrors.ErrCorruptIndex, "flat index has no rows")
	}
	if key < f.FirstBucketValue {
		for _, row := range f.Rows {
			if row.Bound < f.FirstBucketValue && row.Contains(key) {
				return row.Blocks, nil
			}
		}
	} else {
		for _, row := range f.Rows {
			if row.Bound < f.FirstBucketValue || row.Contains(key) {
				return row.Blocks, nil
			}
		}
	}
	return 0, apperrors.Newf(apperrors.ErrKeyNotFound, "key %q outside every index row", key)
}

// ClusterIndex is the global index of a clustered or skewed broadcast.
type ClusterIndex struct {
	Group            string
	FirstBucketValue string
	// ClusterRows hold the distance to the next occurrence of each group.
	ClusterRows []GlobalRow
	// ExponentialRows never extend past the end of the current group.
	ExponentialRows []GlobalRow
}

// NextSkip resolves (group, key). Keys of the current group that are still
// ahead use the exponential rows; anything else waits for the group's next
// occurrence through the cluster rows.
func (c *ClusterIndex) NextSkip(group, key string) (int, error) {
	if len(c.ExponentialRows) == 0 {
		return 0, apperrors.Newf(apperrors.ErrCorruptIndex, "cluster index for %q has no exponential rows", c.Group)
	}
	if strings.EqualFold(group, c.Group) && key >= c.FirstBucketValue {
		for _, row := range c.ExponentialRows {
			if row.Contains(key) {
				return row.Blocks, nil
			}
		}
		return 0, apperrors.Newf(apperrors.ErrKeyNotFound, "key %q past the end of group %q", key, group)
	}
	for _, row := range c.ClusterRows {
		if strings.EqualFold(row.Bound, group) {
			return row.Blocks, nil
		}
	}
	return 0, apperrors.Newf(apperrors.ErrKeyNotFound, "no upcoming occurrence of group %q for key %q", group, key)
}

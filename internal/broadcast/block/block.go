// Package block defines the units of a broadcast: data records and the three
// kinds of index block a reader consults to skip ahead in the cycle.
package block

import (
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/errors"
)

// Kind tags which variant a Block holds.
type Kind int

const (
	KindData Kind = iota
	KindLocalIndex
	KindGlobalFlatIndex
	KindGlobalClusterIndex
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindLocalIndex:
		return "local-index"
	case KindGlobalFlatIndex:
		return "global-flat-index"
	case KindGlobalClusterIndex:
		return "global-cluster-index"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// IsGlobalIndex reports whether k is one of the global index kinds.
func (k Kind) IsGlobalIndex() bool {
	return k == KindGlobalFlatIndex || k == KindGlobalClusterIndex
}

// Block is one position of the broadcast. Label and Skip belong to the
// position; exactly one payload pointer, selected by Kind, is set. Payloads
// may be shared between positions (replicated buckets) and are never
// mutated once the broadcast is assembled.
type Block struct {
	Kind  Kind
	Label string
	// Skip is the number of blocks to pass before the next global index.
	Skip int

	Record  *Record
	Local   *LocalIndex
	Flat    *FlatIndex
	Cluster *ClusterIndex
}

// NextSkip asks an index block how many blocks the reader may doze through
// before the next useful read. group is ignored by flat and local indexes.
func (b Block) NextSkip(group, key string) (int, error) {
	switch b.Kind {
	case KindLocalIndex:
		return b.Local.NextSkip(key)
	case KindGlobalFlatIndex:
		return b.Flat.NextSkip(key)
	case KindGlobalClusterIndex:
		return b.Cluster.NextSkip(group, key)
	default:
		return 0, apperrors.Newf(apperrors.ErrUnexpectedBlock, "%s %q is not an index", b.Kind, b.Label)
	}
}

func (b Block) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s [%s] next global index in %d", b.Label, b.Kind, b.Skip)
	switch b.Kind {
	case KindData:
		fmt.Fprintf(&sb, " {id=%s group=%s key=%s}", b.Record.UniqueID, b.Record.Group, b.Record.SearchKey)
	case KindLocalIndex:
		for _, row := range b.Local.Rows {
			fmt.Fprintf(&sb, "\n    [%d | %s]", row.Skip, row.Key)
		}
	case KindGlobalFlatIndex:
		fmt.Fprintf(&sb, " first=%s", b.Flat.FirstBucketValue)
		writeRows(&sb, b.Flat.Rows)
	case KindGlobalClusterIndex:
		fmt.Fprintf(&sb, " group=%s first=%s", b.Cluster.Group, b.Cluster.FirstBucketValue)
		writeRows(&sb, b.Cluster.ClusterRows)
		writeRows(&sb, b.Cluster.ExponentialRows)
	}
	return sb.String()
}

func writeRows(sb *strings.Builder, rows []GlobalRow) {
	for _, row := range rows {
		fmt.Fprintf(sb, "\n    [%d, %d, %s]", row.Buckets, row.Blocks, row.Bound)
	}
}

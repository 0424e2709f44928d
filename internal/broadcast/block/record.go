package block

import (
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/errors"
)

// Record is a caller-supplied data item.
type Record struct {
	// UniqueID identifies the item across the whole broadcast.
	UniqueID string `json:"unique_id"`
	// Group is the cluster label. Unused by flat broadcasts.
	Group string `json:"group"`
	// SearchKey only needs to be unique within Group.
	SearchKey string `json:"search_key"`
	Payload   any    `json:"payload,omitempty"`
}

// KeyField selects which record field orders buckets and index rows.
type KeyField int

const (
	KeyUniqueID KeyField = iota
	KeySearchKey
)

// ParseKeyField accepts "unique_id" or "search_key".
func ParseKeyField(s string) (KeyField, error) {
	switch s {
	case "unique_id", "uniqueID":
		return KeyUniqueID, nil
	case "search_key", "searchKey", "":
		return KeySearchKey, nil
	default:
		return 0, apperrors.Newf(apperrors.ErrInvalidConfig, "unknown key field %q", s)
	}
}

func (f KeyField) String() string {
	if f == KeyUniqueID {
		return "unique_id"
	}
	return "search_key"
}

// Of returns the ordering key of r.
func (f KeyField) Of(r *Record) string {
	if f == KeyUniqueID {
		return r.UniqueID
	}
	return r.SearchKey
}

func (r *Record) String() string {
	return fmt.Sprintf("%s/%s (%s)", r.Group, r.SearchKey, r.UniqueID)
}

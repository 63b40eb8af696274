// Package differ implements the pure, stateless differencing engine that
// reconciles two versioned collections of the same Synchronizable kind under
// a last-writer-wins policy.
//
// The engine never touches the store or the network; it only computes deltas
// the caller must apply. Reconciliation compares raw epoch-millisecond
// timestamps, so two devices with skewed clocks can silently lose a write
// whose real-world-later edit carries an earlier timestamp. This is a known
// consistency gap of timestamp-based last-writer-wins.
package differ

import (
	"fmt"
	"sort"

	"github.com/dmitrijs2005/passkeeper/internal/common"
	"github.com/dmitrijs2005/passkeeper/internal/models"
)

// CollectNewItems returns the records in updated whose primary id is absent
// from current.
func CollectNewItems[T models.Synchronizable](current, updated []T) []T {
	known := make(map[string]struct{}, len(current))
	for _, item := range current {
		known[item.PrimaryID()] = struct{}{}
	}

	var result []T
	for _, item := range updated {
		if _, ok := known[item.PrimaryID()]; !ok {
			result = append(result, item)
		}
	}
	return result
}

// CollectModifiedItems returns the records in updated whose modified
// timestamp is strictly greater than the matching record in current. Records
// with equal timestamps are treated as already synced and never propagated.
//
// Preconditions: both lists must have the same size (violation is a
// validation error) and contain the same set of primary ids (violation is a
// state error). Both indicate a caller bug, not a retryable condition.
func CollectModifiedItems[T models.Synchronizable](current, updated []T) ([]T, error) {
	if len(current) != len(updated) {
		return nil, fmt.Errorf("%w: collection sizes differ (%d != %d)",
			common.ErrValidation, len(current), len(updated))
	}

	currentByID := make(map[string]T, len(current))
	for _, item := range current {
		currentByID[item.PrimaryID()] = item
	}

	var result []T
	for _, item := range updated {
		counterpart, ok := currentByID[item.PrimaryID()]
		if !ok {
			return nil, fmt.Errorf("%w: id %q present only on one side",
				common.ErrInvalidState, item.PrimaryID())
		}
		if item.ModifiedAt() > counterpart.ModifiedAt() {
			result = append(result, item)
		}
	}
	return result, nil
}

// Result holds the reconciliation deltas between a local and a remote
// collection.
type Result[T models.Synchronizable] struct {
	// NewForLocal are remote records absent from the local collection.
	NewForLocal []T

	// NewForRemote are local records absent from the remote collection.
	NewForRemote []T

	// ModifiedForLocal are records where the remote side is strictly newer.
	ModifiedForLocal []T

	// ModifiedForRemote are records where the local side is strictly newer.
	ModifiedForRemote []T
}

// RemoteChangedItems is the union of NewForRemote and ModifiedForRemote: the
// set the caller must push upstream.
func (r *Result[T]) RemoteChangedItems() []T {
	result := make([]T, 0, len(r.NewForRemote)+len(r.ModifiedForRemote))
	result = append(result, r.NewForRemote...)
	result = append(result, r.ModifiedForRemote...)
	return result
}

// HasChanges reports whether any delta set is non-empty.
func (r *Result[T]) HasChanges() bool {
	return len(r.NewForLocal) > 0 || len(r.NewForRemote) > 0 ||
		len(r.ModifiedForLocal) > 0 || len(r.ModifiedForRemote) > 0
}

// Differentiate computes the full three-way-reconcilable delta between the
// local and remote collections: first the records new on each side, then,
// after merging each side with its "new" complement, the records modified on
// the other side.
func Differentiate[T models.Synchronizable](local, remote []T) (*Result[T], error) {
	newForLocal := CollectNewItems(local, remote)
	newForRemote := CollectNewItems(remote, local)

	mergedLocal := mergeSorted(local, newForLocal)
	mergedRemote := mergeSorted(remote, newForRemote)

	modifiedForLocal, err := CollectModifiedItems(mergedLocal, mergedRemote)
	if err != nil {
		return nil, err
	}
	modifiedForRemote, err := CollectModifiedItems(mergedRemote, mergedLocal)
	if err != nil {
		return nil, err
	}

	return &Result[T]{
		NewForLocal:       newForLocal,
		NewForRemote:      newForRemote,
		ModifiedForLocal:  modifiedForLocal,
		ModifiedForRemote: modifiedForRemote,
	}, nil
}

func mergeSorted[T models.Synchronizable](items, complement []T) []T {
	merged := make([]T, 0, len(items)+len(complement))
	merged = append(merged, items...)
	merged = append(merged, complement...)
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].PrimaryID() < merged[j].PrimaryID()
	})
	return merged
}

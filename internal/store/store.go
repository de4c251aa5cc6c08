// Package store persists event records in a partitioned key-value store
// keyed by (PK, SK), with a group-scoped index for reconciliation reads
// and bounded atomic batches for writes.
package store

import (
	"context"
	"fmt"

	"calsync/internal/model"
)

// EventStore is the persistence boundary of the engine.
type EventStore interface {
	// KeysForGroup returns the keys of every record currently stored for
	// the group, via the group-scoped index.
	KeysForGroup(ctx context.Context, groupID string) ([]model.Key, error)

	// Apply writes puts and deletes in bounded atomic chunks. Chunks are
	// independent; a failed chunk does not roll back earlier ones. The
	// returned result counts operations, not chunks.
	Apply(ctx context.Context, puts []model.EventRecord, deletes []model.Key) (ApplyResult, error)

	// Ping verifies the store is reachable. The whole pass aborts when it
	// is not, since no group can make progress without the store.
	Ping(ctx context.Context) error
}

// ApplyResult reports how many individual operations landed.
type ApplyResult struct {
	PutsApplied    int
	DeletesApplied int
	Failed         int
}

// WriteError reports a failed atomic chunk together with the keys it
// carried, so the affected records can be traced.
type WriteError struct {
	Keys []model.Key
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing chunk of %d ops: %s", len(e.Keys), e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

package service

import (
	"context"
	"fmt"

	"github.com/esoto/expense-tracker-sub008/internal/database/repository"
)

// BulkFailure ties resolution errors to the conflict they occurred on.
type BulkFailure struct {
	ConflictID string
	Errors     []string
}

// BulkResult aggregates a bulk resolution. IDs that were missing or not
// pending appear in neither count.
type BulkResult struct {
	Resolved int
	Failed   int
	Failures []BulkFailure
}

// BulkResolve applies one action to every pending conflict in ids,
// sequentially, each in its own transaction. A failure on one conflict
// never blocks the rest; non-existent and already-settled IDs are silently
// excluded. Empty input returns a zero result without touching anything.
func (r *Resolver) BulkResolve(ctx context.Context, ids []string, action Action, resolvedBy string) (BulkResult, error) {
	var res BulkResult
	if len(ids) == 0 {
		return res, nil
	}
	if action == nil {
		return res, fmt.Errorf("nil resolution action")
	}

	for _, id := range ids {
		conflict, err := r.Conflicts.Get(ctx, id)
		if err != nil {
			return res, err
		}
		if conflict == nil || conflict.Status != repository.StatusPending {
			continue
		}
		if err := r.Resolve(ctx, id, action, resolvedBy); err != nil {
			res.Failed++
			res.Failures = append(res.Failures, BulkFailure{
				ConflictID: id,
				Errors:     []string{err.Error()},
			})
			continue
		}
		res.Resolved++
	}
	return res, nil
}

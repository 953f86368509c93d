package service

import (
	"context"
	"log/slog"

	"github.com/esoto/expense-tracker-sub008/internal/database/repository"
)

// AutoResolver settles the obvious duplicates without operator input.
type AutoResolver struct {
	Conflicts *repository.ConflictRepo
	Resolver  *Resolver
	Threshold float64 // stricter than the duplicate detection threshold
	Log       *slog.Logger
}

// ResolveObviousDuplicates resolves every pending duplicate conflict at or
// above the auto-resolve threshold with keep_existing, attributed to the
// automated actor. A conflict that fails mid-resolution is skipped and does
// not count; everything below the threshold stays pending for review.
func (a *AutoResolver) ResolveObviousDuplicates(ctx context.Context) (int, error) {
	conflicts, err := a.Conflicts.ListPending(ctx, repository.ConflictFilters{
		Type:     repository.ConflictDuplicate,
		MinScore: a.Threshold,
	})
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, c := range conflicts {
		if err := a.Resolver.Resolve(ctx, c.ID, KeepExisting{}, AutoActor); err != nil {
			a.logger().Warn("auto-resolve skipped conflict",
				"conflict_id", c.ID, "error", err)
			continue
		}
		resolved++
	}
	return resolved, nil
}

func (a *AutoResolver) logger() *slog.Logger {
	if a.Log != nil {
		return a.Log
	}
	return slog.Default()
}

package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/esoto/expense-tracker-sub008/internal/database"
)

func newTestDB(t *testing.T) (context.Context, *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.RunMigrations(db))
	return ctx, db
}

func insertExpense(t *testing.T, ctx context.Context, repo *ExpenseRepo, id string) {
	t.Helper()
	require.NoError(t, repo.Insert(ctx, Expense{
		ID:              id,
		AccountID:       "acc-1",
		Amount:          decimal.RequireFromString("12.34"),
		TransactionDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		MerchantName:    "Spotify",
		Description:     "family plan",
		Currency:        "USD",
		Status:          ExpenseProcessed,
	}))
}

func TestPendingPairIndexRejectsSecondConflict(t *testing.T) {
	t.Parallel()
	ctx, db := newTestDB(t)
	expenses := NewExpenseRepo(db)
	conflicts := NewConflictRepo(db)

	insertExpense(t, ctx, expenses, "exp-1")
	insertExpense(t, ctx, expenses, "exp-2")
	id2 := "exp-2"

	first := Conflict{
		ID: "conf-1", ExistingExpenseID: "exp-1", NewExpenseID: &id2,
		ConflictType: ConflictDuplicate, SimilarityScore: 95, Status: StatusPending,
	}
	require.NoError(t, conflicts.Insert(ctx, first))

	second := first
	second.ID = "conf-2"
	require.Error(t, conflicts.Insert(ctx, second), "partial unique index blocks a second pending pair")

	// settling the first frees the pair for a new pending conflict
	ok, err := conflicts.MarkResolved(ctx, "conf-1", ActionKeepExisting, nil, "alice", time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, conflicts.Insert(ctx, second))
}

func TestMarkResolvedIsGuardedByStatus(t *testing.T) {
	t.Parallel()
	ctx, db := newTestDB(t)
	expenses := NewExpenseRepo(db)
	conflicts := NewConflictRepo(db)

	insertExpense(t, ctx, expenses, "exp-1")
	require.NoError(t, conflicts.Insert(ctx, Conflict{
		ID: "conf-1", ExistingExpenseID: "exp-1",
		ConflictType: ConflictDuplicate, SimilarityScore: 95, Status: StatusPending,
	}))

	ok, err := conflicts.MarkResolved(ctx, "conf-1", ActionKeepExisting, nil, "alice", time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = conflicts.MarkResolved(ctx, "conf-1", ActionKeepNew, nil, "bob", time.Now())
	require.NoError(t, err)
	require.False(t, ok, "already resolved, second write reports zero rows")

	c, err := conflicts.Get(ctx, "conf-1")
	require.NoError(t, err)
	require.Equal(t, ActionKeepExisting, *c.ResolutionAction)
	require.Equal(t, "alice", *c.ResolvedBy)
}

func TestResolutionDataRoundTrip(t *testing.T) {
	t.Parallel()
	ctx, db := newTestDB(t)
	expenses := NewExpenseRepo(db)
	conflicts := NewConflictRepo(db)

	insertExpense(t, ctx, expenses, "exp-1")
	require.NoError(t, conflicts.Insert(ctx, Conflict{
		ID: "conf-1", ExistingExpenseID: "exp-1",
		ConflictType: ConflictDuplicate, SimilarityScore: 95, Status: StatusPending,
	}))

	data := map[string]any{
		"merge_fields": map[string]any{"description": "new"},
		"note":         "checked by hand",
	}
	ok, err := conflicts.MarkResolved(ctx, "conf-1", ActionMerged, data, "alice", time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	c, err := conflicts.Get(ctx, "conf-1")
	require.NoError(t, err)
	require.Equal(t, data, c.ResolutionData)

	ok, err = conflicts.ClearResolution(ctx, "conf-1")
	require.NoError(t, err)
	require.True(t, ok)

	c, err = conflicts.Get(ctx, "conf-1")
	require.NoError(t, err)
	require.Equal(t, StatusPending, c.Status)
	require.Nil(t, c.ResolutionData)
	require.Nil(t, c.ResolutionAction)
}

func TestListPendingPriorityOrder(t *testing.T) {
	t.Parallel()
	ctx, db := newTestDB(t)
	expenses := NewExpenseRepo(db)
	conflicts := NewConflictRepo(db)

	for _, id := range []string{"exp-1", "exp-2", "exp-3", "exp-4"} {
		insertExpense(t, ctx, expenses, id)
	}
	seed := func(id, existing, ctype string, score float64) {
		require.NoError(t, conflicts.Insert(ctx, Conflict{
			ID: id, ExistingExpenseID: existing,
			ConflictType: ctype, SimilarityScore: score, Status: StatusPending,
		}))
	}
	seed("conf-sim-high", "exp-1", ConflictSimilar, 89)
	seed("conf-dup-low", "exp-2", ConflictDuplicate, 91)
	seed("conf-dup-high", "exp-3", ConflictDuplicate, 99)
	seed("conf-review", "exp-4", ConflictNeedsReview, 99)

	got, err := conflicts.ListPending(ctx, ConflictFilters{})
	require.NoError(t, err)
	ids := make([]string, 0, len(got))
	for _, c := range got {
		ids = append(ids, c.ID)
	}
	require.Equal(t, []string{"conf-dup-high", "conf-dup-low", "conf-sim-high", "conf-review"}, ids)

	got, err = conflicts.ListPending(ctx, ConflictFilters{Type: ConflictDuplicate, MinScore: 95})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "conf-dup-high", got[0].ID)
}

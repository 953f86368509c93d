package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/esoto/expense-tracker-sub008/internal/database"
	"github.com/esoto/expense-tracker-sub008/internal/database/repository"
)

// env bundles a migrated temp database with the engine wired onto it.
type env struct {
	db        *sql.DB
	expenses  *repository.ExpenseRepo
	conflicts *repository.ConflictRepo
	sessions  *repository.SyncSessionRepo
	detector  *Detector
	resolver  *Resolver
}

func newEnv(t *testing.T) (context.Context, *env) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.RunMigrations(db))
	t.Log("migrations applied")

	e := &env{
		db:        db,
		expenses:  repository.NewExpenseRepo(db),
		conflicts: repository.NewConflictRepo(db),
		sessions:  repository.NewSyncSessionRepo(db),
	}
	e.detector = &Detector{
		DB:         db,
		Expenses:   e.expenses,
		Conflicts:  e.conflicts,
		Scorer:     NewScorer(DefaultWeights()),
		Thresholds: DefaultThresholds(),
	}
	e.resolver = &Resolver{
		DB:        db,
		Expenses:  e.expenses,
		Conflicts: e.conflicts,
	}
	return ctx, e
}

// seedExpense inserts an expense and returns it.
func (e *env) seedExpense(t *testing.T, ctx context.Context, id, account, amount, date, merchant, desc, status string) repository.Expense {
	t.Helper()
	day, err := time.Parse(time.DateOnly, date)
	require.NoError(t, err)
	exp := repository.Expense{
		ID:              id,
		AccountID:       account,
		Amount:          decimal.RequireFromString(amount),
		TransactionDate: day,
		MerchantName:    merchant,
		Description:     desc,
		Currency:        "USD",
		Status:          status,
	}
	require.NoError(t, e.expenses.Insert(ctx, exp))
	return exp
}

// seedConflict inserts a pending conflict between two seeded expenses.
func (e *env) seedConflict(t *testing.T, ctx context.Context, id, existingID string, newID *string, conflictType string, score float64) repository.Conflict {
	t.Helper()
	c := repository.Conflict{
		ID:                id,
		ExistingExpenseID: existingID,
		NewExpenseID:      newID,
		ConflictType:      conflictType,
		SimilarityScore:   score,
		Status:            repository.StatusPending,
	}
	require.NoError(t, e.conflicts.Insert(ctx, c))
	return c
}

func (e *env) getExpense(t *testing.T, ctx context.Context, id string) repository.Expense {
	t.Helper()
	exp, err := e.expenses.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, exp)
	return *exp
}

func (e *env) getConflict(t *testing.T, ctx context.Context, id string) repository.Conflict {
	t.Helper()
	c, err := e.conflicts.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, c)
	return *c
}

func strPtr(s string) *string { return &s }

// record builds an incoming record mirroring a seeded expense's content.
func record(account, amount, date, merchant, desc string) IncomingRecord {
	day, _ := time.Parse(time.DateOnly, date)
	return IncomingRecord{
		AccountID:       account,
		Amount:          decimal.RequireFromString(amount),
		TransactionDate: day,
		MerchantName:    merchant,
		Description:     desc,
		Currency:        "USD",
	}
}

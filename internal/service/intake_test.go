package service

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/esoto/expense-tracker-sub008/internal/database/repository"
)

func TestImportCSVCleanRows(t *testing.T) {
	t.Parallel()
	ctx, e := newEnv(t)
	intake := &IntakeService{Expenses: e.expenses, Sessions: e.sessions, Detector: e.detector}

	input := strings.Join([]string{
		"2026-03-10,42.50,Blue Bottle Coffee,morning latte,USD",
		"2026-03-11,9.99,Spotify,family plan,usd",
	}, "\n")

	res, err := intake.ImportCSV(ctx, strings.NewReader(input), "acc-1", time.UTC)
	require.NoError(t, err)
	require.Equal(t, 2, res.Imported)
	require.Empty(t, res.Conflicts)
	require.Empty(t, res.Errors)

	// no conflicts, so both rows land processed
	rows, err := e.expenses.Candidates(ctx, "acc-1", mustDate(t, "2026-03-10"), 7)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		require.Equal(t, repository.ExpenseProcessed, row.Status)
		require.Equal(t, "USD", row.Currency, "currency normalized to uppercase")
	}

	sess, err := e.sessions.Get(ctx, res.SessionID)
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.NotNil(t, sess.CompletedAt)
}

func TestImportCSVDetectsDuplicates(t *testing.T) {
	t.Parallel()
	ctx, e := newEnv(t)
	intake := &IntakeService{Expenses: e.expenses, Sessions: e.sessions, Detector: e.detector}

	existing := e.seedExpense(t, ctx, "exp-existing", "acc-1", "42.50", "2026-03-10",
		"Blue Bottle Coffee", "morning latte", repository.ExpenseProcessed)

	input := "2026-03-10,42.50,Blue Bottle Coffee,morning latte,USD\n"
	res, err := intake.ImportCSV(ctx, strings.NewReader(input), "acc-1", time.UTC)
	require.NoError(t, err)
	require.Equal(t, 1, res.Imported)
	require.Len(t, res.Conflicts, 1)

	c := res.Conflicts[0]
	require.Equal(t, existing.ID, c.ExistingExpenseID)
	require.Equal(t, repository.ConflictDuplicate, c.ConflictType)
	require.NotNil(t, c.SessionID)
	require.Equal(t, res.SessionID, *c.SessionID)

	// conflicted row stays pending until the conflict settles it
	require.NotNil(t, c.NewExpenseID)
	require.Equal(t, repository.ExpensePending, e.getExpense(t, ctx, *c.NewExpenseID).Status)
}

func TestImportCSVCollectsRowErrors(t *testing.T) {
	t.Parallel()
	ctx, e := newEnv(t)
	intake := &IntakeService{Expenses: e.expenses, Sessions: e.sessions, Detector: e.detector}

	input := strings.Join([]string{
		"not-a-date,42.50,Blue Bottle Coffee,morning latte,USD",
		"2026-03-10,forty,Spotify,family plan,USD",
		"2026-03-10,9.99,Spotify,family plan,USD",
		"2026-03-11,short row",
	}, "\n")

	res, err := intake.ImportCSV(ctx, strings.NewReader(input), "acc-1", time.UTC)
	require.NoError(t, err)
	require.Equal(t, 1, res.Imported, "only the well-formed row lands")
	require.Len(t, res.Errors, 3)
}

func TestImportCSVRequiresAccount(t *testing.T) {
	t.Parallel()
	ctx, e := newEnv(t)
	intake := &IntakeService{Expenses: e.expenses, Sessions: e.sessions, Detector: e.detector}

	_, err := intake.ImportCSV(ctx, strings.NewReader(""), "  ", time.UTC)
	require.Error(t, err)
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(time.DateOnly, s)
	require.NoError(t, err)
	return d
}

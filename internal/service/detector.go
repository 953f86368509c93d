package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/esoto/expense-tracker-sub008/internal/database"
	"github.com/esoto/expense-tracker-sub008/internal/database/repository"
)

// Detector finds the best-matching stored expense for an incoming record and
// persists a conflict when the match clears the similar threshold.
type Detector struct {
	DB         *sql.DB
	Expenses   *repository.ExpenseRepo
	Conflicts  *repository.ConflictRepo
	Scorer     Scorer
	Thresholds Thresholds
	Log        *slog.Logger
}

// Detect returns the persisted conflict for in, or nil when no stored
// expense resembles it. Re-detecting a record that already has a pending
// conflict returns the existing conflict without creating another.
func (d *Detector) Detect(ctx context.Context, in IncomingRecord) (*repository.Conflict, error) {
	if err := validateIncoming(in); err != nil {
		return nil, err
	}

	candidates, err := d.Expenses.Candidates(ctx, in.AccountID, in.TransactionDate, d.Thresholds.WindowDays)
	if err != nil {
		return nil, err
	}

	best, bestScore := pickBest(d.Scorer, candidates, in)
	if best == nil {
		return nil, nil
	}
	conflictType := d.Thresholds.Classify(bestScore)
	if conflictType == "" {
		return nil, nil
	}

	conflict := repository.Conflict{
		ID:                uuid.NewString(),
		ExistingExpenseID: best.ID,
		NewExpenseID:      in.ExpenseID,
		SessionID:         in.SessionID,
		ConflictType:      conflictType,
		SimilarityScore:   bestScore,
		Status:            repository.StatusPending,
	}

	// Pair check and insert share one transaction so concurrent detection
	// runs cannot race a second pending conflict past the check.
	err = database.WithTx(d.DB, func(tx *sql.Tx) error {
		repo := d.Conflicts.WithTx(tx)
		existing, err := repo.FindPendingPair(ctx, best.ID, in.ExpenseID)
		if err != nil {
			return err
		}
		if existing != nil {
			conflict = *existing
			return nil
		}
		return repo.Insert(ctx, conflict)
	})
	if err != nil {
		return nil, err
	}

	d.logger().Info("conflict detected",
		"conflict_id", conflict.ID,
		"type", conflict.ConflictType,
		"score", conflict.SimilarityScore,
		"existing_expense", conflict.ExistingExpenseID)
	return &conflict, nil
}

// BatchError ties a detection failure to its position in the input.
type BatchError struct {
	Index int
	Err   error
}

func (e BatchError) Error() string { return fmt.Sprintf("record %d: %v", e.Index, e.Err) }

func (e BatchError) Unwrap() error { return e.Err }

// BatchResult is what DetectBatch reports: the conflicts found, in input
// order, plus per-record failures.
type BatchResult struct {
	Conflicts []repository.Conflict
	Errors    []BatchError
}

// DetectBatch applies Detect to each record independently. A malformed
// record is captured in Errors and never aborts the rest of the batch.
func (d *Detector) DetectBatch(ctx context.Context, records []IncomingRecord) BatchResult {
	var res BatchResult
	for i, rec := range records {
		conflict, err := d.Detect(ctx, rec)
		if err != nil {
			res.Errors = append(res.Errors, BatchError{Index: i, Err: err})
			continue
		}
		if conflict != nil {
			res.Conflicts = append(res.Conflicts, *conflict)
		}
	}
	return res
}

// pickBest scores every candidate and keeps the winner. Ties break on the
// closest transaction date, then the lowest expense ID, so detection is
// deterministic.
func pickBest(scorer Scorer, candidates []repository.Expense, in IncomingRecord) (*repository.Expense, float64) {
	var best *repository.Expense
	var bestScore float64
	var bestGap int
	for i := range candidates {
		c := &candidates[i]
		score := scorer.Score(*c, in)
		gap := daysApart(c.TransactionDate, in.TransactionDate)
		switch {
		case best == nil || score > bestScore:
		case score == bestScore && gap < bestGap:
		case score == bestScore && gap == bestGap && c.ID < best.ID:
		default:
			continue
		}
		best, bestScore, bestGap = c, score, gap
	}
	return best, bestScore
}

func validateIncoming(in IncomingRecord) error {
	var problems []string
	if in.AccountID == "" {
		problems = append(problems, "account_id is required")
	}
	if in.TransactionDate.IsZero() {
		problems = append(problems, "transaction_date is required")
	}
	if in.Amount.Equal(decimal.Zero) {
		problems = append(problems, "amount is required")
	}
	if len(problems) > 0 {
		return errors.New("invalid incoming record: " + problems[0])
	}
	return nil
}

func (d *Detector) logger() *slog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return slog.Default()
}

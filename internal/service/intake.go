package service

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/esoto/expense-tracker-sub008/internal/database"
	"github.com/esoto/expense-tracker-sub008/internal/database/repository"
)

// IntakeService turns externally produced transaction exports into incoming
// records and runs them through detection. It is the caller side of the
// ingestion boundary, not the import pipeline itself.
type IntakeService struct {
	Expenses *repository.ExpenseRepo
	Sessions *repository.SyncSessionRepo
	Detector *Detector
}

// IntakeResult summarizes one import run.
type IntakeResult struct {
	SessionID string
	Imported  int
	Conflicts []repository.Conflict
	Errors    []error
}

// CSV columns: date (YYYY-MM-DD), amount, merchant_name, description,
// currency. Each row becomes a pending expense; rows that raise no conflict
// are promoted to processed.
func (s *IntakeService) ImportCSV(ctx context.Context, r io.Reader, accountID string, tz *time.Location) (IntakeResult, error) {
	if strings.TrimSpace(accountID) == "" {
		return IntakeResult{}, fmt.Errorf("account id is required")
	}
	if tz == nil {
		tz = time.Local
	}

	session := repository.SyncSession{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Source:    "csv",
		StartedAt: database.Now(),
	}
	if err := s.Sessions.Create(ctx, session); err != nil {
		return IntakeResult{}, err
	}
	res := IntakeResult{SessionID: session.ID}

	csvr := csv.NewReader(bufio.NewReader(r))
	csvr.TrimLeadingSpace = true
	csvr.FieldsPerRecord = -1

	var records []IncomingRecord
	line := 0
	for {
		line++
		rec, err := csvr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		if len(rec) < 5 {
			res.Errors = append(res.Errors, fmt.Errorf("line %d: expected 5 columns (date, amount, merchant, description, currency)", line))
			continue
		}
		date, err := parseLocalDate(rec[0], tz)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("line %d date: %w", line, err))
			continue
		}
		amount, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(rec[1]), ",", ""))
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("line %d amount: %w", line, err))
			continue
		}
		currency := strings.ToUpper(strings.TrimSpace(rec[4]))

		expense := repository.Expense{
			ID:              uuid.NewString(),
			AccountID:       accountID,
			Amount:          amount,
			TransactionDate: date,
			MerchantName:    strings.TrimSpace(rec[2]),
			Description:     strings.TrimSpace(rec[3]),
			Currency:        currency,
			Status:          repository.ExpensePending,
		}
		if err := s.Expenses.Insert(ctx, expense); err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("line %d insert: %w", line, err))
			continue
		}
		res.Imported++

		id, sid := expense.ID, session.ID
		records = append(records, IncomingRecord{
			ExpenseID:       &id,
			SessionID:       &sid,
			AccountID:       accountID,
			Amount:          amount,
			TransactionDate: date,
			MerchantName:    expense.MerchantName,
			Description:     expense.Description,
			Currency:        currency,
		})
	}

	batch := s.Detector.DetectBatch(ctx, records)
	res.Conflicts = batch.Conflicts
	for _, be := range batch.Errors {
		res.Errors = append(res.Errors, be)
	}

	// Records that raised no conflict go straight to processed; conflicted
	// ones stay pending until resolution settles them, and records whose
	// detection failed stay pending for a retry.
	conflicted := make(map[string]bool, len(batch.Conflicts))
	for _, c := range batch.Conflicts {
		if c.NewExpenseID != nil {
			conflicted[*c.NewExpenseID] = true
		}
	}
	failed := make(map[int]bool, len(batch.Errors))
	for _, be := range batch.Errors {
		failed[be.Index] = true
	}
	for i, rec := range records {
		if rec.ExpenseID == nil || conflicted[*rec.ExpenseID] || failed[i] {
			continue
		}
		if err := s.Expenses.UpdateStatus(ctx, *rec.ExpenseID, repository.ExpenseProcessed); err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("promote expense %s: %w", *rec.ExpenseID, err))
		}
	}

	if err := s.Sessions.Complete(ctx, session.ID, database.Now()); err != nil {
		res.Errors = append(res.Errors, err)
	}
	return res, nil
}

func parseLocalDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

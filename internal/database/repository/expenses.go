package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx, letting a repo run inside
// or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ExpenseRepo handles expenses.
type ExpenseRepo struct {
	db DBTX
}

func NewExpenseRepo(db *sql.DB) *ExpenseRepo { return &ExpenseRepo{db: db} }

// WithTx returns a copy of the repo bound to tx.
func (r *ExpenseRepo) WithTx(tx *sql.Tx) *ExpenseRepo { return &ExpenseRepo{db: tx} }

func (r *ExpenseRepo) Insert(ctx context.Context, e Expense) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO expenses(
	 id, account_id, amount, transaction_date, merchant_name, description,
	 currency, category_id, status, notes, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
	`,
		e.ID, e.AccountID, e.Amount.String(), e.TransactionDate, e.MerchantName,
		e.Description, e.Currency, e.CategoryID, e.Status, e.Notes)
	return err
}

func (r *ExpenseRepo) Get(ctx context.Context, id string) (*Expense, error) {
	row := r.db.QueryRowContext(ctx, expenseColumns+` WHERE id = ?`, id)
	e, err := scanExpense(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// Candidates returns processed expenses on the account whose transaction
// date falls within windowDays either side of around. This is the detector's
// bounded candidate query; it never scans outside the window.
func (r *ExpenseRepo) Candidates(ctx context.Context, accountID string, around time.Time, windowDays int) ([]Expense, error) {
	start := around.AddDate(0, 0, -windowDays)
	end := around.AddDate(0, 0, windowDays+1)
	rows, err := r.db.QueryContext(ctx, expenseColumns+`
	 WHERE account_id = ? AND status = ? AND transaction_date >= ? AND transaction_date < ?
	 ORDER BY transaction_date, id`,
		accountID, ExpenseProcessed, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *ExpenseRepo) UpdateStatus(ctx context.Context, id, status string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, id)
	return err
}

// AppendNote adds note as a new line on the expense's notes field.
func (r *ExpenseRepo) AppendNote(ctx context.Context, id, note string) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE expenses
	SET notes = CASE WHEN notes IS NULL OR notes = '' THEN ? ELSE notes || char(10) || ? END,
	    updated_at = CURRENT_TIMESTAMP
	WHERE id = ?`, note, note, id)
	return err
}

// ExpenseUpdate carries the mutable content fields of an expense; nil fields
// are left unchanged.
type ExpenseUpdate struct {
	Amount          *decimal.Decimal
	TransactionDate *time.Time
	MerchantName    *string
	Description     *string
	Currency        *string
	CategoryID      *string
	Notes           *string
	Status          *string
}

// Apply validates u and writes the non-nil fields. A validation failure
// returns before any SQL runs, so inside a transaction nothing is touched.
func (r *ExpenseRepo) Apply(ctx context.Context, id string, u ExpenseUpdate) error {
	if err := ValidateUpdate(u); err != nil {
		return err
	}
	var set []string
	var args []any
	add := func(col string, v any) {
		set = append(set, col+" = ?")
		args = append(args, v)
	}
	if u.Amount != nil {
		add("amount", u.Amount.String())
	}
	if u.TransactionDate != nil {
		add("transaction_date", *u.TransactionDate)
	}
	if u.MerchantName != nil {
		add("merchant_name", *u.MerchantName)
	}
	if u.Description != nil {
		add("description", *u.Description)
	}
	if u.Currency != nil {
		add("currency", *u.Currency)
	}
	if u.CategoryID != nil {
		add("category_id", *u.CategoryID)
	}
	if u.Notes != nil {
		add("notes", *u.Notes)
	}
	if u.Status != nil {
		add("status", *u.Status)
	}
	if len(set) == 0 {
		return nil
	}
	args = append(args, id)
	_, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET `+strings.Join(set, ", ")+`, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		args...)
	return err
}

const expenseColumns = `SELECT id, account_id, amount, transaction_date, merchant_name,
 description, currency, category_id, status, notes, created_at, updated_at FROM expenses`

// scanner abstracts Row and Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(row scanner) (Expense, error) {
	var e Expense
	var amount string
	var category, notes sql.NullString
	if err := row.Scan(&e.ID, &e.AccountID, &amount, &e.TransactionDate,
		&e.MerchantName, &e.Description, &e.Currency, &category, &e.Status,
		&notes, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return Expense{}, err
	}
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return Expense{}, err
	}
	e.Amount = amt
	if category.Valid {
		e.CategoryID = &category.String
	}
	if notes.Valid {
		e.Notes = &notes.String
	}
	return e, nil
}

package repository

import (
	"time"

	"github.com/shopspring/decimal"
)

// Expense statuses. The conflict engine only ever moves an expense between
// these three; creation in 'pending' belongs to the intake side.
const (
	ExpensePending   = "pending"
	ExpenseProcessed = "processed"
	ExpenseDuplicate = "duplicate"
)

// Conflict classifications.
const (
	ConflictDuplicate   = "duplicate"
	ConflictSimilar     = "similar"
	ConflictNeedsReview = "needs_review"
)

// Conflict statuses. 'resolved' is reversible back to 'pending' via undo;
// 'ignored' is terminal.
const (
	StatusPending  = "pending"
	StatusResolved = "resolved"
	StatusIgnored  = "ignored"
)

// Resolution actions.
const (
	ActionKeepExisting = "keep_existing"
	ActionKeepNew      = "keep_new"
	ActionKeepBoth     = "keep_both"
	ActionMerged       = "merged"
	ActionCustom       = "custom"
)

// Expense represents an expense row. The engine references expenses by ID;
// it never owns them.
type Expense struct {
	ID              string
	AccountID       string
	Amount          decimal.Decimal
	TransactionDate time.Time
	MerchantName    string
	Description     string
	Currency        string
	CategoryID      *string
	Status          string
	Notes           *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Conflict pairs an existing expense with a (usually present) newly ingested
// one, carrying the detector's score and the resolution state machine.
type Conflict struct {
	ID                string
	ExistingExpenseID string
	NewExpenseID      *string
	SessionID         *string
	ConflictType      string
	SimilarityScore   float64
	Status            string
	ResolutionAction  *string
	ResolutionData    map[string]any
	ResolvedBy        *string
	ResolvedAt        *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SyncSession groups the conflicts produced by one ingestion run.
type SyncSession struct {
	ID          string
	AccountID   string
	Source      string
	StartedAt   time.Time
	CompletedAt *time.Time
}

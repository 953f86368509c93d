package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/esoto/expense-tracker-sub008/internal/database"
	"github.com/esoto/expense-tracker-sub008/internal/database/repository"
	"github.com/esoto/expense-tracker-sub008/internal/metrics"
)

// AutoActor is the identity recorded on resolutions applied without
// operator input.
const AutoActor = "auto-resolver"

// State errors. All are recovered into return values; none of them mutate
// anything.
var (
	ErrConflictNotFound  = errors.New("conflict not found")
	ErrNotPending        = errors.New("conflict is not pending")
	ErrNotResolved       = errors.New("conflict is not resolved")
	ErrMissingNewExpense = errors.New("conflict has no new expense")
	ErrMissingExpense    = errors.New("referenced expense not found")
)

// Action is the resolution action union. One variant per action, each
// carrying only the fields it needs; the unexported method keeps the set
// closed so the dispatch table in apply stays exhaustive.
type Action interface {
	Name() string
	isAction()
}

// KeepExisting marks the new expense as a duplicate of the existing one.
type KeepExisting struct{}

// KeepNew marks the existing expense as a duplicate and promotes the new one.
type KeepNew struct{}

// KeepBoth keeps both expenses live as separate records.
type KeepBoth struct{}

// Merged copies the fields tagged "new" from the new expense onto the
// existing one and marks the new expense as a duplicate.
type Merged struct {
	Fields map[string]string // field name -> "new" or "existing"
}

// Custom applies caller-supplied attribute maps to either expense under
// standard validation. Either map may be nil, which is a no-op for that side.
type Custom struct {
	Existing map[string]any
	New      map[string]any
}

func (KeepExisting) Name() string { return repository.ActionKeepExisting }
func (KeepNew) Name() string      { return repository.ActionKeepNew }
func (KeepBoth) Name() string     { return repository.ActionKeepBoth }
func (Merged) Name() string       { return repository.ActionMerged }
func (Custom) Name() string       { return repository.ActionCustom }

func (KeepExisting) isAction() {}
func (KeepNew) isAction()      {}
func (KeepBoth) isAction()     {}
func (Merged) isAction()       {}
func (Custom) isAction()       {}

// ResolveOptions carries the action-specific payloads accepted at the CLI/
// API boundary.
type ResolveOptions struct {
	MergeFields   map[string]string
	ExistingAttrs map[string]any
	NewAttrs      map[string]any
}

// ParseAction maps an action name plus options onto the typed union. An
// unknown name fails before anything is touched.
func ParseAction(name string, opts ResolveOptions) (Action, error) {
	switch name {
	case repository.ActionKeepExisting:
		return KeepExisting{}, nil
	case repository.ActionKeepNew:
		return KeepNew{}, nil
	case repository.ActionKeepBoth:
		return KeepBoth{}, nil
	case repository.ActionMerged:
		return Merged{Fields: opts.MergeFields}, nil
	case repository.ActionCustom:
		return Custom{Existing: opts.ExistingAttrs, New: opts.NewAttrs}, nil
	default:
		return nil, fmt.Errorf("unknown resolution action %q", name)
	}
}

// Resolver applies resolution actions to conflicts under transactional
// guarantees.
type Resolver struct {
	DB        *sql.DB
	Expenses  *repository.ExpenseRepo
	Conflicts *repository.ConflictRepo
	Metrics   metrics.Recorder
	Log       *slog.Logger
	Now       func() time.Time

	mu   sync.Mutex
	errs []string
}

// Resolve applies action to the pending conflict with the given ID,
// attributing the resolution to resolvedBy. Every expense mutation and the
// conflict's resolved-state transition commit together or not at all.
func (r *Resolver) Resolve(ctx context.Context, conflictID string, action Action, resolvedBy string) error {
	if action == nil {
		return errors.New("nil resolution action")
	}

	conflict, err := r.Conflicts.Get(ctx, conflictID)
	if err != nil {
		return r.fail(err)
	}
	if conflict == nil {
		return ErrConflictNotFound
	}
	if conflict.Status != repository.StatusPending {
		return fmt.Errorf("%w: %s is %s", ErrNotPending, conflictID, conflict.Status)
	}

	err = database.WithTx(r.DB, func(tx *sql.Tx) error {
		expenses := r.Expenses.WithTx(tx)
		conflicts := r.Conflicts.WithTx(tx)

		existing, err := expenses.Get(ctx, conflict.ExistingExpenseID)
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("%w: existing expense %s", ErrMissingExpense, conflict.ExistingExpenseID)
		}
		var newExp *repository.Expense
		if conflict.NewExpenseID != nil {
			if newExp, err = expenses.Get(ctx, *conflict.NewExpenseID); err != nil {
				return err
			}
		}

		data, err := r.apply(ctx, expenses, action, existing, newExp)
		if err != nil {
			return err
		}

		// Status re-checked at write time: a concurrent resolver between
		// the read above and here makes this report zero rows and the whole
		// transaction rolls back.
		ok, err := conflicts.MarkResolved(ctx, conflictID, action.Name(), data, resolvedBy, r.now())
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s resolved concurrently", ErrNotPending, conflictID)
		}
		return nil
	})
	if err != nil {
		return r.fail(err)
	}

	// Analytics are fire-and-forget; a failed counter or log line never
	// fails the resolution.
	r.recorder().ResolutionRecorded(action.Name(), resolvedBy == AutoActor)
	r.logger().Info("conflict resolved",
		"conflict_id", conflictID,
		"action", action.Name(),
		"resolved_by", resolvedBy,
		"score", conflict.SimilarityScore)
	return nil
}

// apply performs the expense-side mutations for action and returns the
// resolution data to persist on the conflict.
func (r *Resolver) apply(ctx context.Context, expenses *repository.ExpenseRepo, action Action, existing, newExp *repository.Expense) (map[string]any, error) {
	switch a := action.(type) {
	case KeepExisting:
		if newExp != nil {
			if err := expenses.UpdateStatus(ctx, newExp.ID, repository.ExpenseDuplicate); err != nil {
				return nil, err
			}
			if err := expenses.AppendNote(ctx, newExp.ID, "Duplicate of expense "+existing.ID); err != nil {
				return nil, err
			}
		}
		return map[string]any{"kept": "existing"}, nil

	case KeepNew:
		if err := expenses.UpdateStatus(ctx, existing.ID, repository.ExpenseDuplicate); err != nil {
			return nil, err
		}
		if newExp != nil {
			if err := expenses.AppendNote(ctx, existing.ID, "Superseded by expense "+newExp.ID); err != nil {
				return nil, err
			}
			if err := expenses.UpdateStatus(ctx, newExp.ID, repository.ExpenseProcessed); err != nil {
				return nil, err
			}
		}
		return map[string]any{"kept": "new"}, nil

	case KeepBoth:
		if err := expenses.UpdateStatus(ctx, existing.ID, repository.ExpenseProcessed); err != nil {
			return nil, err
		}
		if newExp != nil {
			if err := expenses.UpdateStatus(ctx, newExp.ID, repository.ExpenseProcessed); err != nil {
				return nil, err
			}
			if err := expenses.AppendNote(ctx, newExp.ID, "Kept as separate expense"); err != nil {
				return nil, err
			}
		}
		return map[string]any{"kept": "both"}, nil

	case Merged:
		if newExp == nil {
			return nil, ErrMissingNewExpense
		}
		update := mergeUpdate(*newExp, a.Fields)
		if err := expenses.Apply(ctx, existing.ID, update); err != nil {
			return nil, err
		}
		if err := expenses.UpdateStatus(ctx, newExp.ID, repository.ExpenseDuplicate); err != nil {
			return nil, err
		}
		if err := expenses.AppendNote(ctx, newExp.ID, "Merged into expense "+existing.ID); err != nil {
			return nil, err
		}
		return map[string]any{"merge_fields": a.Fields}, nil

	case Custom:
		if a.Existing != nil {
			update, err := attrsToUpdate(a.Existing)
			if err != nil {
				return nil, err
			}
			if err := expenses.Apply(ctx, existing.ID, update); err != nil {
				return nil, err
			}
		}
		if a.New != nil && newExp != nil {
			update, err := attrsToUpdate(a.New)
			if err != nil {
				return nil, err
			}
			if err := expenses.Apply(ctx, newExp.ID, update); err != nil {
				return nil, err
			}
		}
		data := map[string]any{}
		if a.Existing != nil {
			data["existing"] = a.Existing
		}
		if a.New != nil {
			data["new"] = a.New
		}
		return data, nil
	}
	return nil, fmt.Errorf("unknown resolution action %q", action.Name())
}

// Undo reverts a resolved conflict to pending and clears the resolution
// fields. The expense-side mutations applied by the original resolution are
// deliberately left in place; this matches the system's long-standing
// behavior and callers depend on it.
func (r *Resolver) Undo(ctx context.Context, conflictID string) error {
	conflict, err := r.Conflicts.Get(ctx, conflictID)
	if err != nil {
		return err
	}
	if conflict == nil {
		return ErrConflictNotFound
	}
	ok, err := r.Conflicts.ClearResolution(ctx, conflictID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s is %s", ErrNotResolved, conflictID, conflict.Status)
	}
	r.logger().Info("resolution undone", "conflict_id", conflictID)
	return nil
}

// Ignore transitions a pending conflict to ignored without touching either
// expense.
func (r *Resolver) Ignore(ctx context.Context, conflictID string) error {
	conflict, err := r.Conflicts.Get(ctx, conflictID)
	if err != nil {
		return err
	}
	if conflict == nil {
		return ErrConflictNotFound
	}
	ok, err := r.Conflicts.MarkIgnored(ctx, conflictID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s is %s", ErrNotPending, conflictID, conflict.Status)
	}
	return nil
}

// PreviewMerge returns the field map the existing expense would carry after
// a merged resolution with the given field sources. Pure read; returns nil
// when the conflict has no new expense. Unknown field names are ignored.
func (r *Resolver) PreviewMerge(ctx context.Context, conflictID string, fields map[string]string) (map[string]any, error) {
	conflict, err := r.Conflicts.Get(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	if conflict == nil {
		return nil, ErrConflictNotFound
	}
	if conflict.NewExpenseID == nil {
		return nil, nil
	}
	existing, err := r.Expenses.Get(ctx, conflict.ExistingExpenseID)
	if err != nil {
		return nil, err
	}
	newExp, err := r.Expenses.Get(ctx, *conflict.NewExpenseID)
	if err != nil {
		return nil, err
	}
	if existing == nil || newExp == nil {
		return nil, ErrMissingExpense
	}

	preview := expenseFields(*existing)
	overlay := expenseFields(*newExp)
	for field, source := range fields {
		if source != "new" {
			continue
		}
		if v, ok := overlay[field]; ok {
			preview[field] = v
		}
	}
	return preview, nil
}

// Errors returns the failure messages collected by this resolver instance.
func (r *Resolver) Errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.errs...)
}

func (r *Resolver) fail(err error) error {
	r.mu.Lock()
	r.errs = append(r.errs, fmt.Sprintf("Resolution failed: %v", err))
	r.mu.Unlock()
	return err
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return database.Now()
}

func (r *Resolver) recorder() metrics.Recorder {
	if r.Metrics != nil {
		return r.Metrics
	}
	return metrics.Noop{}
}

func (r *Resolver) logger() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.Default()
}

// mergeUpdate builds the update that copies "new"-tagged fields from newExp.
// Fields tagged anything else, and unknown field names, are left alone.
func mergeUpdate(newExp repository.Expense, fields map[string]string) repository.ExpenseUpdate {
	var u repository.ExpenseUpdate
	for field, source := range fields {
		if source != "new" {
			continue
		}
		switch field {
		case "amount":
			amt := newExp.Amount
			u.Amount = &amt
		case "transaction_date":
			d := newExp.TransactionDate
			u.TransactionDate = &d
		case "merchant_name":
			m := newExp.MerchantName
			u.MerchantName = &m
		case "description":
			d := newExp.Description
			u.Description = &d
		case "currency":
			c := newExp.Currency
			u.Currency = &c
		case "category_id":
			u.CategoryID = newExp.CategoryID
		case "notes":
			u.Notes = newExp.Notes
		}
	}
	return u
}

// attrsToUpdate converts a custom attribute map to a typed update. Unknown
// attribute names are a validation error, unlike merge field maps.
func attrsToUpdate(attrs map[string]any) (repository.ExpenseUpdate, error) {
	var u repository.ExpenseUpdate
	for key, value := range attrs {
		switch key {
		case "amount":
			amt, err := toDecimal(value)
			if err != nil {
				return u, fmt.Errorf("%w: amount: %v", repository.ErrValidation, err)
			}
			u.Amount = &amt
		case "transaction_date":
			d, err := toDate(value)
			if err != nil {
				return u, fmt.Errorf("%w: transaction_date: %v", repository.ErrValidation, err)
			}
			u.TransactionDate = &d
		case "merchant_name":
			s, err := toString(value)
			if err != nil {
				return u, fmt.Errorf("%w: merchant_name: %v", repository.ErrValidation, err)
			}
			u.MerchantName = &s
		case "description":
			s, err := toString(value)
			if err != nil {
				return u, fmt.Errorf("%w: description: %v", repository.ErrValidation, err)
			}
			u.Description = &s
		case "currency":
			s, err := toString(value)
			if err != nil {
				return u, fmt.Errorf("%w: currency: %v", repository.ErrValidation, err)
			}
			u.Currency = &s
		case "category_id":
			s, err := toString(value)
			if err != nil {
				return u, fmt.Errorf("%w: category_id: %v", repository.ErrValidation, err)
			}
			u.CategoryID = &s
		case "notes":
			s, err := toString(value)
			if err != nil {
				return u, fmt.Errorf("%w: notes: %v", repository.ErrValidation, err)
			}
			u.Notes = &s
		case "status":
			s, err := toString(value)
			if err != nil {
				return u, fmt.Errorf("%w: status: %v", repository.ErrValidation, err)
			}
			u.Status = &s
		default:
			return u, fmt.Errorf("%w: unknown expense attribute %q", repository.ErrValidation, key)
		}
	}
	return u, nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case float64:
		return decimal.NewFromFloat(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case string:
		return decimal.NewFromString(n)
	default:
		return decimal.Decimal{}, fmt.Errorf("cannot convert %T to amount", v)
	}
}

func toDate(v any) (time.Time, error) {
	switch d := v.(type) {
	case time.Time:
		return d, nil
	case string:
		return time.Parse(time.DateOnly, d)
	default:
		return time.Time{}, fmt.Errorf("cannot convert %T to date", v)
	}
}

func toString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %T", v)
	}
	return s, nil
}

// expenseFields flattens the mergeable fields of an expense into the map
// shape returned by PreviewMerge.
func expenseFields(e repository.Expense) map[string]any {
	fields := map[string]any{
		"amount":           e.Amount,
		"transaction_date": e.TransactionDate,
		"merchant_name":    e.MerchantName,
		"description":      e.Description,
		"currency":         e.Currency,
	}
	if e.CategoryID != nil {
		fields["category_id"] = *e.CategoryID
	}
	if e.Notes != nil {
		fields["notes"] = *e.Notes
	}
	return fields
}

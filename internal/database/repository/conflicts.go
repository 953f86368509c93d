package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"
)

// ConflictRepo handles conflict rows.
type ConflictRepo struct {
	db DBTX
}

func NewConflictRepo(db *sql.DB) *ConflictRepo { return &ConflictRepo{db: db} }

// WithTx returns a copy of the repo bound to tx.
func (r *ConflictRepo) WithTx(tx *sql.Tx) *ConflictRepo { return &ConflictRepo{db: tx} }

func (r *ConflictRepo) Insert(ctx context.Context, c Conflict) error {
	data, err := marshalResolutionData(c.ResolutionData)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
	INSERT INTO conflicts(
	 id, existing_expense_id, new_expense_id, session_id, conflict_type,
	 similarity_score, status, resolution_action, resolution_data,
	 resolved_by, resolved_at, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
	`,
		c.ID, c.ExistingExpenseID, c.NewExpenseID, c.SessionID, c.ConflictType,
		c.SimilarityScore, c.Status, c.ResolutionAction, data, c.ResolvedBy, c.ResolvedAt)
	return err
}

func (r *ConflictRepo) Get(ctx context.Context, id string) (*Conflict, error) {
	row := r.db.QueryRowContext(ctx, conflictColumns+` WHERE id = ?`, id)
	c, err := scanConflict(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// FindPendingPair returns the pending conflict for the given expense pair,
// or nil. Backed by a partial unique index, so the detector never creates a
// second one.
func (r *ConflictRepo) FindPendingPair(ctx context.Context, existingID string, newID *string) (*Conflict, error) {
	query := conflictColumns + ` WHERE existing_expense_id = ? AND status = ?`
	args := []any{existingID, StatusPending}
	if newID == nil {
		query += ` AND new_expense_id IS NULL`
	} else {
		query += ` AND new_expense_id = ?`
		args = append(args, *newID)
	}
	row := r.db.QueryRowContext(ctx, query, args...)
	c, err := scanConflict(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// ConflictFilters narrows ListPending.
type ConflictFilters struct {
	SessionID string
	Type      string
	MinScore  float64
}

// ListPending returns pending conflicts in priority order: duplicates first,
// then by similarity, newest last as a stable tail.
func (r *ConflictRepo) ListPending(ctx context.Context, f ConflictFilters) ([]Conflict, error) {
	where := []string{"status = ?"}
	args := []any{StatusPending}
	if f.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.Type != "" {
		where = append(where, "conflict_type = ?")
		args = append(args, f.Type)
	}
	if f.MinScore > 0 {
		where = append(where, "similarity_score >= ?")
		args = append(args, f.MinScore)
	}
	query := conflictColumns + ` WHERE ` + strings.Join(where, " AND ") + `
	 ORDER BY CASE conflict_type WHEN 'duplicate' THEN 0 WHEN 'similar' THEN 1 ELSE 2 END,
	          similarity_score DESC, created_at, id`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// MarkResolved transitions a pending conflict to resolved, writing all four
// resolution fields together. Returns false when the row was not pending
// anymore, which is the optimistic re-check resolution relies on.
func (r *ConflictRepo) MarkResolved(ctx context.Context, id, action string, data map[string]any, by string, at time.Time) (bool, error) {
	blob, err := marshalResolutionData(data)
	if err != nil {
		return false, err
	}
	res, err := r.db.ExecContext(ctx, `
	UPDATE conflicts
	SET status = ?, resolution_action = ?, resolution_data = ?, resolved_by = ?,
	    resolved_at = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ? AND status = ?`,
		StatusResolved, action, blob, by, at, id, StatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ClearResolution reverts a resolved conflict to pending and clears the
// resolution fields. Returns false when the conflict was not resolved.
func (r *ConflictRepo) ClearResolution(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
	UPDATE conflicts
	SET status = ?, resolution_action = NULL, resolution_data = NULL,
	    resolved_by = NULL, resolved_at = NULL, updated_at = CURRENT_TIMESTAMP
	WHERE id = ? AND status = ?`,
		StatusPending, id, StatusResolved)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkIgnored transitions a pending conflict to ignored.
func (r *ConflictRepo) MarkIgnored(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
	UPDATE conflicts SET status = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ? AND status = ?`,
		StatusIgnored, id, StatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

const conflictColumns = `SELECT id, existing_expense_id, new_expense_id, session_id,
 conflict_type, similarity_score, status, resolution_action, resolution_data,
 resolved_by, resolved_at, created_at, updated_at FROM conflicts`

func scanConflict(row scanner) (Conflict, error) {
	var c Conflict
	var newID, sessionID, action, data, by sql.NullString
	var at sql.NullTime
	if err := row.Scan(&c.ID, &c.ExistingExpenseID, &newID, &sessionID,
		&c.ConflictType, &c.SimilarityScore, &c.Status, &action, &data, &by,
		&at, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Conflict{}, err
	}
	if newID.Valid {
		c.NewExpenseID = &newID.String
	}
	if sessionID.Valid {
		c.SessionID = &sessionID.String
	}
	if action.Valid {
		c.ResolutionAction = &action.String
	}
	if by.Valid {
		c.ResolvedBy = &by.String
	}
	if at.Valid {
		c.ResolvedAt = &at.Time
	}
	if data.Valid && data.String != "" {
		if err := json.Unmarshal([]byte(data.String), &c.ResolutionData); err != nil {
			return Conflict{}, err
		}
	}
	return c, nil
}

func marshalResolutionData(data map[string]any) (*string, error) {
	if data == nil {
		return nil, nil
	}
	blob, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	s := string(blob)
	return &s, nil
}

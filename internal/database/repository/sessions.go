package repository

import (
	"context"
	"database/sql"
	"time"
)

// SyncSessionRepo handles ingestion-run rows.
type SyncSessionRepo struct {
	db DBTX
}

func NewSyncSessionRepo(db *sql.DB) *SyncSessionRepo { return &SyncSessionRepo{db: db} }

func (r *SyncSessionRepo) Create(ctx context.Context, s SyncSession) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO sync_sessions(id, account_id, source, started_at, completed_at)
	VALUES(?, ?, ?, ?, ?)`,
		s.ID, s.AccountID, s.Source, s.StartedAt, s.CompletedAt)
	return err
}

func (r *SyncSessionRepo) Complete(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sync_sessions SET completed_at = ? WHERE id = ?`, at, id)
	return err
}

func (r *SyncSessionRepo) Get(ctx context.Context, id string) (*SyncSession, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, account_id, source, started_at, completed_at FROM sync_sessions WHERE id = ?`, id)
	var s SyncSession
	var completed sql.NullTime
	if err := row.Scan(&s.ID, &s.AccountID, &s.Source, &s.StartedAt, &completed); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if completed.Valid {
		s.CompletedAt = &completed.Time
	}
	return &s, nil
}

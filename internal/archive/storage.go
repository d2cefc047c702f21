package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/yuckyman/url-portal/internal/portal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS portal_job_history (
	job_id        TEXT PRIMARY KEY,
	dispatch_key  TEXT NOT NULL,
	action        TEXT NOT NULL,
	status        TEXT NOT NULL,
	result        JSONB,
	error_message TEXT,
	created_at    TIMESTAMPTZ NOT NULL,
	completed_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_portal_job_history_key_created
	ON portal_job_history (dispatch_key, created_at DESC);
`

// row is the database shape of a finished job
type row struct {
	JobID        string         `db:"job_id"`
	DispatchKey  string         `db:"dispatch_key"`
	Action       string         `db:"action"`
	Status       string         `db:"status"`
	Result       []byte         `db:"result"`
	ErrorMessage sql.NullString `db:"error_message"`
	CreatedAt    time.Time      `db:"created_at"`
	CompletedAt  time.Time      `db:"completed_at"`
}

// Storage writes terminal job records to PostgreSQL for later inspection.
// It is write-only: nothing is read back into the in-memory store.
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the history table if it does not exist
func (s *Storage) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create job history schema: %w", err)
	}
	return nil
}

// JobFinished upserts rec into the history table. It is a worker observer.
func (s *Storage) JobFinished(ctx context.Context, rec domain.JobStatusRecord) error {
	r, err := toRow(rec)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO portal_job_history (
			job_id, dispatch_key, action, status,
			result, error_message, created_at, completed_at
		) VALUES (
			:job_id, :dispatch_key, :action, :status,
			:result, :error_message, :created_at, :completed_at
		)
		ON CONFLICT (job_id) DO UPDATE SET
			status = EXCLUDED.status,
			result = EXCLUDED.result,
			error_message = EXCLUDED.error_message,
			completed_at = EXCLUDED.completed_at
	`

	if _, err := s.db.NamedExecContext(ctx, query, r); err != nil {
		return fmt.Errorf("failed to archive job: %w", err)
	}

	s.logger.Debug("Job archived",
		slog.String("job_id", rec.JobID),
		slog.String("status", rec.Status),
	)
	return nil
}

func toRow(rec domain.JobStatusRecord) (row, error) {
	r := row{
		JobID:       rec.JobID,
		DispatchKey: rec.DispatchKey,
		Action:      rec.Action,
		Status:      rec.Status,
		CreatedAt:   rec.CreatedAt,
		CompletedAt: rec.UpdatedAt,
	}

	if rec.Result != nil {
		b, err := json.Marshal(rec.Result)
		if err != nil {
			return row{}, fmt.Errorf("failed to marshal job result: %w", err)
		}
		r.Result = b
	}
	if rec.Error != "" {
		r.ErrorMessage = sql.NullString{String: rec.Error, Valid: true}
	}

	return r, nil
}

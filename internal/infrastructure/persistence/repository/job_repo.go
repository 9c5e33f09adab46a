package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/quotation-workflow/internal/application/port"
	"github.com/garyjia/quotation-workflow/internal/domain/entity"
	"go.uber.org/zap"
)

// claimLease is how long a running job may go without an update before another
// poller may claim it again
const claimLease = 5 * time.Minute

// JobRepository implements port.JobRepository
type JobRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewJobRepository creates a new scheduled job repository
func NewJobRepository(db *sql.DB, logger *zap.Logger) *JobRepository {
	return &JobRepository{db: db, logger: logger}
}

const jobColumns = `
	id, document_id, kind, trigger_name, dedupe_key, due_at,
	status, attempts, last_error, created_at, updated_at
`

// Schedule implements port.JobRepository
func (r *JobRepository) Schedule(ctx context.Context, job *entity.ScheduledJob) (bool, error) {
	now := time.Now().UTC()
	if job.Status == "" {
		job.Status = entity.JobStatusPending
	}
	job.DueAt = job.DueAt.UTC()

	result, err := getExecutor(ctx, r.db).ExecContext(ctx, `
		INSERT OR IGNORE INTO scheduled_jobs (
			document_id, kind, trigger_name, dedupe_key, due_at,
			status, attempts, last_error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, 0, '', ?, ?)
	`,
		job.DocumentID,
		job.Kind,
		job.Trigger,
		job.DedupeKey,
		job.DueAt,
		job.Status,
		now,
		now,
	)
	if err != nil {
		r.logger.Error("Failed to schedule job",
			zap.Int64("document_id", job.DocumentID),
			zap.String("kind", job.Kind),
			zap.Error(err))
		return false, fmt.Errorf("failed to schedule job: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("failed to get last insert id: %w", err)
	}
	job.ID = id
	job.CreatedAt, job.UpdatedAt = now, now
	return true, nil
}

// ClaimDue implements port.JobRepository. Claiming is a single UPDATE so two
// pollers never receive the same job.
func (r *JobRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*entity.ScheduledJob, error) {
	if limit <= 0 {
		limit = 10
	}
	now = now.UTC()

	conn := getExecutor(ctx, r.db)
	rows, err := conn.QueryContext(ctx, `
		UPDATE scheduled_jobs
		SET status = ?, attempts = attempts + 1, updated_at = ?
		WHERE id IN (
			SELECT id FROM scheduled_jobs
			WHERE (status = ? AND due_at <= ?)
				OR (status = ? AND updated_at <= ?)
			ORDER BY due_at ASC
			LIMIT ?
		)
		RETURNING id
	`,
		entity.JobStatusRunning, now,
		entity.JobStatusPending, now,
		entity.JobStatusRunning, now.Add(-claimLease),
		limit,
	)
	if err != nil {
		r.logger.Error("Failed to claim due jobs", zap.Error(err))
		return nil, fmt.Errorf("failed to claim due jobs: %w", err)
	}

	var ids []interface{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan claimed id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to claim due jobs: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	return r.list(ctx, `SELECT `+jobColumns+` FROM scheduled_jobs WHERE id IN (`+placeholders+`) ORDER BY due_at ASC, id ASC`, ids...)
}

// MarkDone implements port.JobRepository
func (r *JobRepository) MarkDone(ctx context.Context, id int64) error {
	return r.setStatus(ctx, id, entity.JobStatusDone, "")
}

// MarkFailed implements port.JobRepository
func (r *JobRepository) MarkFailed(ctx context.Context, id int64, lastErr string) error {
	return r.setStatus(ctx, id, entity.JobStatusFailed, lastErr)
}

// Reschedule implements port.JobRepository
func (r *JobRepository) Reschedule(ctx context.Context, id int64, dueAt time.Time, lastErr string) error {
	_, err := getExecutor(ctx, r.db).ExecContext(ctx, `
		UPDATE scheduled_jobs SET status = ?, due_at = ?, last_error = ?, updated_at = ? WHERE id = ?
	`, entity.JobStatusPending, dueAt.UTC(), lastErr, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to reschedule job: %w", err)
	}
	return nil
}

func (r *JobRepository) setStatus(ctx context.Context, id int64, status, lastErr string) error {
	_, err := getExecutor(ctx, r.db).ExecContext(ctx, `
		UPDATE scheduled_jobs SET status = ?, last_error = ?, updated_at = ? WHERE id = ?
	`, status, lastErr, time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to update job", zap.Int64("id", id), zap.String("status", status), zap.Error(err))
		return fmt.Errorf("failed to update job: %w", err)
	}
	return nil
}

// ListByDocument implements port.JobRepository
func (r *JobRepository) ListByDocument(ctx context.Context, documentID int64) ([]*entity.ScheduledJob, error) {
	return r.list(ctx, `SELECT `+jobColumns+` FROM scheduled_jobs WHERE document_id = ? ORDER BY id ASC`, documentID)
}

func (r *JobRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.ScheduledJob, error) {
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*entity.ScheduledJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(row rowScanner) (*entity.ScheduledJob, error) {
	var job entity.ScheduledJob
	if err := row.Scan(
		&job.ID,
		&job.DocumentID,
		&job.Kind,
		&job.Trigger,
		&job.DedupeKey,
		&job.DueAt,
		&job.Status,
		&job.Attempts,
		&job.LastError,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &job, nil
}

var _ port.JobRepository = (*JobRepository)(nil)

package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/maheshrc27/clipflow/internal/models"
)

const PublishJobsSchema = `
CREATE TABLE IF NOT EXISTS publish_jobs (
	id            BIGSERIAL PRIMARY KEY,
	publish_id    TEXT NOT NULL UNIQUE,
	title         TEXT NOT NULL DEFAULT '',
	video_path    TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	fail_reason   TEXT NOT NULL DEFAULT '',
	error_kind    TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

var ErrPublishJobNotFound = errors.New("publish job not found")

type PublishJobRepository interface {
	Create(ctx context.Context, job *models.PublishJob) (int64, error)
	GetByPublishID(ctx context.Context, publishID string) (*models.PublishJob, error)
	UpdateStatus(ctx context.Context, publishID, status, failReason, errorKind, errorMessage string) error
	ListByStatus(ctx context.Context, status string, limit int) ([]*models.PublishJob, error)
}

type publishJobRepository struct {
	db *sql.DB
}

func NewPublishJobRepository(db *sql.DB) PublishJobRepository {
	return &publishJobRepository{db: db}
}

// Migrate creates the publish_jobs table when missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, PublishJobsSchema)
	if err != nil {
		slog.Info(err.Error())
	}
	return err
}

func (r *publishJobRepository) Create(ctx context.Context, job *models.PublishJob) (int64, error) {
	query := `
		INSERT INTO publish_jobs (publish_id, title, video_path, status, error_kind, error_message)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (publish_id) DO UPDATE SET status = EXCLUDED.status, updated_at = NOW()
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		job.PublishID,
		job.Title,
		job.VideoPath,
		job.Status,
		job.ErrorKind,
		job.ErrorMessage,
	).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *publishJobRepository) GetByPublishID(ctx context.Context, publishID string) (*models.PublishJob, error) {
	query := `
		SELECT id, publish_id, title, video_path, status, fail_reason, error_kind, error_message, created_at, updated_at
		FROM publish_jobs WHERE publish_id = $1
	`

	var job models.PublishJob
	err := r.db.QueryRowContext(ctx, query, publishID).Scan(
		&job.ID,
		&job.PublishID,
		&job.Title,
		&job.VideoPath,
		&job.Status,
		&job.FailReason,
		&job.ErrorKind,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPublishJobNotFound
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &job, nil
}

func (r *publishJobRepository) UpdateStatus(ctx context.Context, publishID, status, failReason, errorKind, errorMessage string) error {
	query := `
		UPDATE publish_jobs
		SET status = $1, fail_reason = $2, error_kind = $3, error_message = $4, updated_at = NOW()
		WHERE publish_id = $5
	`

	res, err := r.db.ExecContext(ctx, query, status, failReason, errorKind, errorMessage, publishID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrPublishJobNotFound
	}
	return nil
}

func (r *publishJobRepository) ListByStatus(ctx context.Context, status string, limit int) ([]*models.PublishJob, error) {
	query := `
		SELECT id, publish_id, title, video_path, status, fail_reason, error_kind, error_message, created_at, updated_at
		FROM publish_jobs WHERE status = $1
		ORDER BY updated_at ASC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, status, limit)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.PublishJob
	for rows.Next() {
		var job models.PublishJob
		err := rows.Scan(
			&job.ID,
			&job.PublishID,
			&job.Title,
			&job.VideoPath,
			&job.Status,
			&job.FailReason,
			&job.ErrorKind,
			&job.ErrorMessage,
			&job.CreatedAt,
			&job.UpdatedAt,
		)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

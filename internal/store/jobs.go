// Package store implements Postgres persistence for import jobs and
// customers on top of pgx, plus in-memory variants used by tests.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GalM111/csv-service/internal/importer"
)

// JobStore persists import jobs in the import_jobs table. The retained error
// records live in a jsonb column so a job row is always self-contained.
type JobStore struct {
	pool *pgxpool.Pool
}

// NewJobStore creates a Postgres-backed job store.
func NewJobStore(pool *pgxpool.Pool) *JobStore {
	return &JobStore{pool: pool}
}

// Create inserts a new job row.
func (s *JobStore) Create(ctx context.Context, job *importer.Job) error {
	errorsJSON, err := marshalErrors(job.Errors)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO import_jobs (
			id, filename, status, total_rows, processed_rows,
			success_count, failed_count, errors, last_error,
			created_at, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		job.ID, job.Filename, string(job.Status),
		job.TotalRows, job.ProcessedRows, job.SuccessCount, job.FailedCount,
		errorsJSON, job.LastError,
		job.CreatedAt, nullableTime(job.StartedAt), nullableTime(job.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Save overwrites the mutable fields of an existing job row.
func (s *JobStore) Save(ctx context.Context, job *importer.Job) error {
	errorsJSON, err := marshalErrors(job.Errors)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE import_jobs SET
			status = $2, total_rows = $3, processed_rows = $4,
			success_count = $5, failed_count = $6, errors = $7,
			last_error = $8, started_at = $9, completed_at = $10
		WHERE id = $1`,
		job.ID, string(job.Status),
		job.TotalRows, job.ProcessedRows, job.SuccessCount, job.FailedCount,
		errorsJSON, job.LastError,
		nullableTime(job.StartedAt), nullableTime(job.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return importer.ErrJobNotFound
	}
	return nil
}

// FindByID loads one job by ID.
func (s *JobStore) FindByID(ctx context.Context, id string) (*importer.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, filename, status, total_rows, processed_rows,
			success_count, failed_count, errors, last_error,
			created_at, started_at, completed_at
		FROM import_jobs WHERE id = $1`, id)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, importer.ErrJobNotFound
		}
		return nil, fmt.Errorf("find job: %w", err)
	}
	return job, nil
}

// FindAll returns every job, newest first.
func (s *JobStore) FindAll(ctx context.Context) ([]*importer.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, filename, status, total_rows, processed_rows,
			success_count, failed_count, errors, last_error,
			created_at, started_at, completed_at
		FROM import_jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*importer.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (*importer.Job, error) {
	var (
		job         importer.Job
		status      string
		errorsJSON  []byte
		startedAt   pgtype.Timestamptz
		completedAt pgtype.Timestamptz
	)

	err := row.Scan(
		&job.ID, &job.Filename, &status,
		&job.TotalRows, &job.ProcessedRows, &job.SuccessCount, &job.FailedCount,
		&errorsJSON, &job.LastError,
		&job.CreatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Status = importer.JobStatus(status)
	if err := json.Unmarshal(errorsJSON, &job.Errors); err != nil {
		return nil, fmt.Errorf("decode error records: %w", err)
	}
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return &job, nil
}

func marshalErrors(records []importer.RowError) ([]byte, error) {
	if records == nil {
		records = []importer.RowError{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode error records: %w", err)
	}
	return data, nil
}

func nullableTime(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

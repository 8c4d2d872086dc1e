package importer

// importer.go is the central algorithm: one run fully processes a submitted
// file into persisted customers plus a final job state.
//
// The file is streamed twice: a counting pass to learn totalRows up front,
// then the processing pass. Rows are handled strictly sequentially; no two
// rows of the same job are ever in flight at once, which makes counters
// monotonic and row numbering deterministic. The queue guarantees only one
// run mutates a given job at a time.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Row-level persistence failure messages.
const (
	msgDuplicateEmail = "email must be unique"
	msgInsertFailed   = "failed to insert customer"
)

// DefaultProgressInterval is the row batch between progress flushes.
const DefaultProgressInterval = 50

// DefaultMaxRetainedErrors caps the error records kept on a job document.
// FailedCount is never capped; rows beyond the cap still count.
const DefaultMaxRetainedErrors = 50

// Config tunes a single Importer.
type Config struct {
	// ProgressInterval is how many rows to process between durable flushes
	// and progress events (default 50).
	ProgressInterval int

	// MaxRetainedErrors bounds the error list stored per job (default 50).
	MaxRetainedErrors int
}

// Importer executes import tasks against the stores and publishes progress
// through the broadcaster. One Importer serves all jobs; the queue ensures
// runs never overlap.
type Importer struct {
	jobs      JobStore
	customers CustomerStore
	broadcast *Broadcaster

	progressInterval  int
	maxRetainedErrors int
}

// NewImporter wires an importer. Zero config fields fall back to defaults.
func NewImporter(jobs JobStore, customers CustomerStore, broadcast *Broadcaster, cfg Config) *Importer {
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = DefaultProgressInterval
	}
	if cfg.MaxRetainedErrors <= 0 {
		cfg.MaxRetainedErrors = DefaultMaxRetainedErrors
	}
	return &Importer{
		jobs:              jobs,
		customers:         customers,
		broadcast:         broadcast,
		progressInterval:  cfg.ProgressInterval,
		maxRetainedErrors: cfg.MaxRetainedErrors,
	}
}

// Run processes one queued task to completion. It owns the job record for
// the duration of the run: counters are reset, the file is streamed, and the
// job always ends in a terminal state. The temp file is removed exactly
// once regardless of outcome; removal failure is logged and swallowed.
func (im *Importer) Run(ctx context.Context, task Task) {
	logger := slog.With("job_id", task.JobID, "file", task.Filename)

	defer func() {
		if err := os.Remove(task.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("failed to remove temp file", "path", task.Path, "error", err)
		}
	}()

	job, err := im.jobs.FindByID(ctx, task.JobID)
	if err != nil {
		// Nothing to terminalize without the job record.
		logger.Error("job lookup failed", "error", err)
		return
	}

	logger.Info("import started")

	now := time.Now().UTC()
	job.Status = StatusProcessing
	job.StartedAt = &now
	job.TotalRows = 0
	job.ProcessedRows = 0
	job.SuccessCount = 0
	job.FailedCount = 0
	job.Errors = nil
	job.LastError = ""
	if err := im.jobs.Save(ctx, job); err != nil {
		im.fail(ctx, logger, job, fmt.Errorf("save job: %w", err))
		return
	}
	im.broadcast.Publish(job.ID, EventProgress, job.Snapshot())

	// totalRows must be durable before processing starts so observers can
	// render meaningful progress from the first event on.
	total, err := countDataRows(task.Path)
	if err != nil {
		im.fail(ctx, logger, job, err)
		return
	}
	job.TotalRows = total
	if err := im.jobs.Save(ctx, job); err != nil {
		im.fail(ctx, logger, job, fmt.Errorf("save total rows: %w", err))
		return
	}

	if err := im.processRows(ctx, job, task.Path); err != nil {
		im.fail(ctx, logger, job, err)
		return
	}

	now = time.Now().UTC()
	job.Status = StatusCompleted
	job.CompletedAt = &now
	if err := im.jobs.Save(ctx, job); err != nil {
		logger.Error("final save failed", "error", err)
	}
	im.broadcast.Publish(job.ID, EventProgress, job.Snapshot())
	im.broadcast.PublishAndClose(job.ID, EventDone, DoneSignal{JobID: job.ID, Status: job.Status})

	logger.Info("import completed",
		"total_rows", job.TotalRows,
		"succeeded", job.SuccessCount,
		"failed", job.FailedCount,
	)
}

// processRows streams the file a second time and handles every data row in
// file order. Returns a non-nil error only for fatal failures; row-level
// problems are absorbed into the job's counters and error list.
func (im *Importer) processRows(ctx context.Context, job *Job, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	r := newRowReader(f)

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		// Completely empty file: zero data rows, nothing to do.
		return nil
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	cols := headerIndex(header)

	rowNum := 0
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read row %d: %w", rowNum+1, err)
		}
		rowNum++

		row, violations := ValidateRow(rowMap(cols, record))
		if len(violations) > 0 {
			im.recordFailure(job, rowNum, strings.Join(violations, "; "), row.Payload())
		} else if err := im.insertCustomer(ctx, job, row); err != nil {
			msg := msgInsertFailed
			if errors.Is(err, ErrDuplicateEmail) {
				msg = msgDuplicateEmail
			}
			im.recordFailure(job, rowNum, msg, row.Payload())
		} else {
			job.SuccessCount++
			job.ProcessedRows++
		}

		if rowNum%im.progressInterval == 0 {
			if err := im.jobs.Save(ctx, job); err != nil {
				return fmt.Errorf("save progress: %w", err)
			}
			im.broadcast.Publish(job.ID, EventProgress, job.Snapshot())
		}
	}

	return nil
}

func (im *Importer) insertCustomer(ctx context.Context, job *Job, row NormalizedRow) error {
	return im.customers.Create(ctx, &Customer{
		ID:        uuid.New().String(),
		Name:      row.Name,
		Email:     row.Email,
		Phone:     row.Phone,
		Company:   row.Company,
		JobID:     job.ID,
		CreatedAt: time.Now().UTC(),
	})
}

// recordFailure accounts one unimportable row. Rows past the retention cap
// still count toward FailedCount but are not kept individually.
func (im *Importer) recordFailure(job *Job, row int, msg string, payload RowPayload) {
	job.FailedCount++
	job.ProcessedRows++
	job.LastError = msg
	if len(job.Errors) < im.maxRetainedErrors {
		job.Errors = append(job.Errors, RowError{Row: row, Message: msg, Payload: payload})
	}
}

// fail terminalizes the job after a fatal (non-row-level) error: status
// failed, a row-0 error record describing the cause, one last flush, and the
// terminal event. Fatal causes never propagate to the submitter. The
// retention cap applies to row-level records only; the row-0 record is always
// appended so the error report names the fatal cause.
func (im *Importer) fail(ctx context.Context, logger *slog.Logger, job *Job, cause error) {
	logger.Error("import failed", "error", cause)

	now := time.Now().UTC()
	job.Status = StatusFailed
	job.CompletedAt = &now
	job.LastError = cause.Error()
	job.Errors = append(job.Errors, RowError{Row: 0, Message: cause.Error()})

	if err := im.jobs.Save(ctx, job); err != nil {
		logger.Error("failed to save failed job", "error", err)
	}
	im.broadcast.Publish(job.ID, EventProgress, job.Snapshot())
	im.broadcast.PublishAndClose(job.ID, EventDone, DoneSignal{JobID: job.ID, Status: StatusFailed})
}

// countDataRows streams the file once and returns the number of data rows,
// header excluded. The CSV parser does the reading so quoted fields
// containing newlines are counted correctly; a naive line count is not.
func countDataRows(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	r := newRowReader(f)
	n := -1 // first record is the header
	for {
		if _, err := r.Read(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, fmt.Errorf("scan rows: %w", err)
		}
		n++
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}

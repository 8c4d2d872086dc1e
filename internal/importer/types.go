// Package importer provides the job processing pipeline for bulk customer
// imports. It streams a submitted CSV file row-by-row, validates and persists
// each record, tracks running counters, and republishes progress to any
// number of live observers. The package has no HTTP dependencies and can be
// driven by any frontend.
package importer

import "time"

// JobStatus is the lifecycle state of an import job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further status transitions can occur.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// RowPayload is the normalized field map captured alongside an error record.
// Values are the trimmed/normalized strings as they would have been persisted.
type RowPayload map[string]string

// RowError describes one row that could not be imported. Row numbers are
// 1-based over data rows (header excluded); row 0 marks a fatal, non-row
// failure. Payload may be nil for fatal errors.
type RowError struct {
	Row     int        `json:"row"`
	Message string     `json:"message"`
	Payload RowPayload `json:"payload,omitempty"`
}

// Job is one tracked unit of work: the import of a single submitted file.
// A Job is mutated only by the importer run that owns it and becomes
// immutable once Status reaches a terminal state.
//
// Invariant at every durable save: ProcessedRows == SuccessCount + FailedCount.
type Job struct {
	ID            string
	Filename      string
	Status        JobStatus
	TotalRows     int
	ProcessedRows int
	SuccessCount  int
	FailedCount   int
	Errors        []RowError
	LastError     string
	CreatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
}

// Customer is one successfully validated and inserted row. Email is stored
// lowercase and unique system-wide. Phone is empty when the row carried no
// phone; the store persists that as NULL, never as an empty string.
type Customer struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	Company   string
	JobID     string
	CreatedAt time.Time
}

// Task is the ephemeral unit queued between submission and processing.
// Tasks exist only in memory and are lost on process restart.
type Task struct {
	JobID    string
	Path     string
	Filename string
}

// EventKind distinguishes progress updates from the terminal event.
type EventKind string

const (
	EventProgress EventKind = "progress"
	EventDone     EventKind = "done"
)

// Event is one message delivered to an observer.
type Event struct {
	Kind    EventKind `json:"kind"`
	Payload any       `json:"payload"`
}

// ProgressSnapshot is the observer-facing view of a job's current state.
// ErrorCount is the retained error record count, not FailedCount.
type ProgressSnapshot struct {
	JobID         string     `json:"jobId"`
	Filename      string     `json:"filename"`
	Status        JobStatus  `json:"status"`
	TotalRows     int        `json:"totalRows"`
	ProcessedRows int        `json:"processedRows"`
	SuccessCount  int        `json:"successCount"`
	FailedCount   int        `json:"failedCount"`
	ErrorCount    int        `json:"errorCount"`
	LastError     string     `json:"lastError,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

// Snapshot returns the progress view of the job.
func (j *Job) Snapshot() ProgressSnapshot {
	return ProgressSnapshot{
		JobID:         j.ID,
		Filename:      j.Filename,
		Status:        j.Status,
		TotalRows:     j.TotalRows,
		ProcessedRows: j.ProcessedRows,
		SuccessCount:  j.SuccessCount,
		FailedCount:   j.FailedCount,
		ErrorCount:    len(j.Errors),
		LastError:     j.LastError,
		CreatedAt:     j.CreatedAt,
		StartedAt:     j.StartedAt,
		CompletedAt:   j.CompletedAt,
	}
}

// DoneSignal is the payload of the terminal event for a job.
type DoneSignal struct {
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status"`
}

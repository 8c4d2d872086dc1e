package importer

// service.go is the facade the web layer talks to. It owns the queue, the
// importer, and the broadcaster; nothing in this package is reachable through
// package-level state, so every consumer gets the service instance passed in
// explicitly.

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultJobTimeout bounds a single import run.
const DefaultJobTimeout = 10 * time.Minute

// ServiceConfig tunes the pipeline.
type ServiceConfig struct {
	ProgressInterval  int
	MaxRetainedErrors int

	// JobTimeout is the maximum duration of one import run (default 10m).
	// Runs are detached from the submitter's request context; this timeout
	// is their only cancellation.
	JobTimeout time.Duration
}

// Service coordinates submission, queueing, processing, and observation of
// import jobs.
type Service struct {
	jobs      JobStore
	broadcast *Broadcaster
	queue     *Queue

	jobTimeout time.Duration
}

// NewService wires the pipeline: broadcaster, importer, and queue.
func NewService(jobs JobStore, customers CustomerStore, cfg ServiceConfig) *Service {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}

	s := &Service{
		jobs:       jobs,
		broadcast:  NewBroadcaster(),
		jobTimeout: cfg.JobTimeout,
	}

	im := NewImporter(jobs, customers, s.broadcast, Config{
		ProgressInterval:  cfg.ProgressInterval,
		MaxRetainedErrors: cfg.MaxRetainedErrors,
	})

	// Each run gets its own context so a disconnecting submitter cannot
	// cancel processing mid-file.
	s.queue = NewQueue(func(_ context.Context, task Task) {
		runCtx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
		defer cancel()
		im.Run(runCtx, task)
	})

	return s
}

// Start launches the queue worker. The worker stops once ctx is cancelled
// and the in-flight run (if any) has finished.
func (s *Service) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Drained is closed when the queue worker has exited. Used for graceful
// shutdown.
func (s *Service) Drained() <-chan struct{} {
	return s.queue.Done()
}

// QueueLen reports the number of tasks waiting behind the current run.
func (s *Service) QueueLen() int {
	return s.queue.Len()
}

// Submit registers a pending job for an already-received file and schedules
// its processing. The job ID is returned before any processing starts;
// everything downstream is visible only through the job's status and events.
func (s *Service) Submit(ctx context.Context, filename, path string) (string, error) {
	job := &Job{
		ID:        uuid.New().String(),
		Filename:  filename,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	s.queue.Enqueue(Task{JobID: job.ID, Path: path, Filename: filename})
	return job.ID, nil
}

// Job returns the stored job by ID.
func (s *Service) Job(ctx context.Context, id string) (*Job, error) {
	return s.jobs.FindByID(ctx, id)
}

// Jobs returns all jobs, newest first.
func (s *Service) Jobs(ctx context.Context) ([]*Job, error) {
	return s.jobs.FindAll(ctx)
}

// Subscribe attaches an observer to a job's event stream. The observer
// immediately receives the current progress snapshot. If the job is already
// terminal, the observer is never registered: it yields a single done event
// and is closed.
func (s *Service) Subscribe(ctx context.Context, jobID string) (*Observer, error) {
	// Attach before the status check so a job terminalizing in between
	// still delivers its done event to this observer.
	o := s.broadcast.Attach(jobID)

	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		s.broadcast.Detach(jobID, o)
		return nil, err
	}

	if job.Status.Terminal() {
		s.broadcast.Detach(jobID, o)
		return newTerminalObserver(Event{
			Kind:    EventDone,
			Payload: DoneSignal{JobID: job.ID, Status: job.Status},
		}), nil
	}

	// The job may have terminalized since FindByID returned; the broadcaster
	// only delivers the snapshot while the observer is still attached, so a
	// concurrent PublishAndClose cannot race this send into a closed channel.
	s.broadcast.send(jobID, o, Event{Kind: EventProgress, Payload: job.Snapshot()})
	return o, nil
}

// Unsubscribe detaches an observer after its connection ends.
func (s *Service) Unsubscribe(jobID string, o *Observer) {
	s.broadcast.Detach(jobID, o)
}

// ErrorReport loads the job and renders its error report, returning the CSV
// body and the suggested download filename.
func (s *Service) ErrorReport(ctx context.Context, jobID string) ([]byte, string, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, "", err
	}

	data, err := BuildErrorReport(job)
	if err != nil {
		return nil, "", err
	}
	return data, ReportFilename(job.Filename), nil
}

package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/GalM111/csv-service/internal/importer"
)

// MemoryJobStore is an in-memory JobStore for tests and local development.
// Jobs are deep-copied on the way in and out so callers never share state
// with the store.
type MemoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]*importer.Job
}

// NewMemoryJobStore creates an empty in-memory job store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]*importer.Job)}
}

// Create stores a copy of the job.
func (s *MemoryJobStore) Create(_ context.Context, job *importer.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = copyJob(job)
	return nil
}

// Save overwrites an existing job.
func (s *MemoryJobStore) Save(_ context.Context, job *importer.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return importer.ErrJobNotFound
	}
	s.jobs[job.ID] = copyJob(job)
	return nil
}

// FindByID returns a copy of the stored job.
func (s *MemoryJobStore) FindByID(_ context.Context, id string) (*importer.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, importer.ErrJobNotFound
	}
	return copyJob(job), nil
}

// FindAll returns copies of all jobs, newest first.
func (s *MemoryJobStore) FindAll(_ context.Context) ([]*importer.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]*importer.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, copyJob(job))
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

func copyJob(job *importer.Job) *importer.Job {
	dup := *job
	if job.StartedAt != nil {
		t := *job.StartedAt
		dup.StartedAt = &t
	}
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		dup.CompletedAt = &t
	}
	dup.Errors = make([]importer.RowError, len(job.Errors))
	copy(dup.Errors, job.Errors)
	return &dup
}

// MemoryCustomerStore is an in-memory CustomerStore enforcing the same
// unique-email rule as the Postgres schema.
type MemoryCustomerStore struct {
	mu        sync.Mutex
	customers []*importer.Customer
	emails    map[string]bool
}

// NewMemoryCustomerStore creates an empty in-memory customer store.
func NewMemoryCustomerStore() *MemoryCustomerStore {
	return &MemoryCustomerStore{emails: make(map[string]bool)}
}

// Create stores the customer, rejecting duplicate emails.
func (s *MemoryCustomerStore) Create(_ context.Context, c *importer.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(c.Email)
	if s.emails[key] {
		return importer.ErrDuplicateEmail
	}
	s.emails[key] = true

	dup := *c
	s.customers = append(s.customers, &dup)
	return nil
}

// Customers returns a snapshot of everything stored so far.
func (s *MemoryCustomerStore) Customers() []*importer.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*importer.Customer, len(s.customers))
	for i, c := range s.customers {
		dup := *c
		out[i] = &dup
	}
	return out
}

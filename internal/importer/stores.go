package importer

import (
	"context"
	"errors"
)

// ErrJobNotFound is returned by job lookups for unknown job IDs.
var ErrJobNotFound = errors.New("job not found")

// ErrDuplicateEmail is returned by CustomerStore.Create when the email
// uniqueness constraint is violated. The importer reports it as a row-level
// failure, not a process failure.
var ErrDuplicateEmail = errors.New("duplicate email")

// JobStore is the durable store for job metadata and state.
type JobStore interface {
	Create(ctx context.Context, job *Job) error
	FindByID(ctx context.Context, id string) (*Job, error)
	Save(ctx context.Context, job *Job) error
	// FindAll returns all jobs sorted by creation time descending.
	FindAll(ctx context.Context) ([]*Job, error)
}

// CustomerStore is the durable store for validated customer records.
// Create must return ErrDuplicateEmail (possibly wrapped) when the email
// already exists, distinguishable from any other persistence failure.
type CustomerStore interface {
	Create(ctx context.Context, customer *Customer) error
}

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GalM111/csv-service/internal/importer"
)

// uniqueViolation is the SQLSTATE for unique constraint violations.
const uniqueViolation = "23505"

// CustomerStore persists customers in the customers table.
type CustomerStore struct {
	pool *pgxpool.Pool
}

// NewCustomerStore creates a Postgres-backed customer store.
func NewCustomerStore(pool *pgxpool.Pool) *CustomerStore {
	return &CustomerStore{pool: pool}
}

// Create inserts one customer. A conflict on the unique email index is
// reported as importer.ErrDuplicateEmail so the caller can distinguish it
// from infrastructure failures. An empty phone is stored as NULL.
func (s *CustomerStore) Create(ctx context.Context, c *importer.Customer) error {
	phone := pgtype.Text{String: c.Phone, Valid: c.Phone != ""}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO customers (id, name, email, phone, company, import_job_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.Name, c.Email, phone, c.Company, c.JobID, c.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return importer.ErrDuplicateEmail
		}
		return fmt.Errorf("insert customer: %w", err)
	}
	return nil
}

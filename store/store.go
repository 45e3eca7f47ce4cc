// Package store reads and writes the partysvc schema.
//
// Every function takes a DBTX so the same query can run directly against the pool or inside a
// transaction opened by the caller.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("not found")
	// ErrInconsistent is returned when rows that must agree with each other don't
	ErrInconsistent = errors.New("inconsistent data")
)

const uniqueViolation = "23505"

//go:embed schema.sql
var schema string

// DBTX is satisfied by both *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Migrate creates the schema if it doesn't exist yet
func Migrate(ctx context.Context, db DBTX) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}

// IsUniqueViolation reports whether err was caused by a unique constraint, e.g. two
// registrations for the same email racing past the existence check
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

package repository

import (
	"context"
	"database/sql"
	"errors"
)

var (
	// ErrNotFound is returned when a row addressed by id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyInitiated is returned when payment initiation loses the
	// conditional update: the transaction already left draft.
	ErrAlreadyInitiated = errors.New("payment already initiated")
	// ErrInvalidTransition is returned for status changes the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrAlreadyMatched is returned when another entry already references the transaction.
	ErrAlreadyMatched = errors.New("transaction already matched to another entry")
	// ErrDuplicateReference is returned when an external reference is already in the ledger.
	ErrDuplicateReference = errors.New("external reference already exists")
	// ErrDuplicateName is returned when a budget name is already taken.
	ErrDuplicateName = errors.New("name already exists")
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// scanner handles nullable fields for both Row and Rows.
type scanner interface {
	Scan(dest ...any) error
}

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nullableString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

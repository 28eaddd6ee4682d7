package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique field (name, email, username) is already taken.
	ErrDuplicate = errors.New("duplicate value")
	// ErrNumberConflict is returned when another writer claimed the candidate ticket number first.
	ErrNumberConflict = errors.New("ticket number already assigned")
	// ErrReferenced is returned when a delete is blocked by rows that still reference the target.
	ErrReferenced = errors.New("record is still referenced")
	// ErrInvalidReference is returned when a write points at a row that does not exist.
	ErrInvalidReference = errors.New("referenced record does not exist")
	// ErrStaleWrite is returned when the stored status no longer matches the one the write was based on.
	ErrStaleWrite = errors.New("ticket status changed concurrently")
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgInvalidText         = "22P02"

	ticketNumberConstraint = "tickets_number_key"
)

// translate maps pgx/postgres errors onto the repository sentinels.
// fkErr selects the sentinel used for foreign key violations, which differ between writes and deletes.
func translate(err error, fkErr error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			if pgErr.ConstraintName == ticketNumberConstraint {
				return ErrNumberConflict
			}
			return ErrDuplicate
		case pgForeignKeyViolation:
			return fkErr
		case pgInvalidText:
			// Malformed UUIDs cannot name any row.
			return ErrNotFound
		}
	}
	return err
}

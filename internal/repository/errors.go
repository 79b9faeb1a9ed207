package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when no enrollment matches the lookup.
	ErrNotFound = errors.New("repository: enrollment not found")
	// ErrDuplicate is returned when a write would leave two open (pending or
	// approved) enrollments for one cpf and owner.
	ErrDuplicate = errors.New("repository: open enrollment already exists")
	// ErrStaleStatus is returned by UpdateStatus when the record already left
	// the processable statuses.
	ErrStaleStatus = errors.New("repository: enrollment status changed concurrently")
)

const pqUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

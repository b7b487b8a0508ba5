// Package storage holds the errors every persistence backend reports.
package storage

import "errors"

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a uniqueness-constrained record already exists.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrReferenced indicates a delete was refused because other records still point at the row.
	ErrReferenced = errors.New("record is still referenced")
)

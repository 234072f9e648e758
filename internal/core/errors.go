package core

import "errors"

var (
	// ErrMalformedBatch is returned when a batch lacks a header row or one of
	// the required columns. Nothing is written.
	ErrMalformedBatch = errors.New("malformed batch")

	// ErrEmptyFile is returned for uploads with no bytes at all.
	ErrEmptyFile = errors.New("empty file")

	// ErrFileTooLarge is returned when an upload exceeds the configured limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrNotFound is returned by stores when a lookup matches nothing.
	ErrNotFound = errors.New("record not found")

	// ErrUsernameTaken is returned when provisioning an identity whose
	// username already exists.
	ErrUsernameTaken = errors.New("username already exists")

	// ErrIDSpaceExhausted is returned when no identity id above the current
	// maximum is left to allocate.
	ErrIDSpaceExhausted = errors.New("identity id space exhausted")

	// errDryRun rolls back a transaction after a successful dry run.
	errDryRun = errors.New("dry run")
)

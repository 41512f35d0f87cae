package store

import "errors"

var (
	ErrConflict            = errors.New("conflict")
	ErrNotFound            = errors.New("not found")
	ErrStale               = errors.New("stale business version")
	ErrIdempotencyConflict = errors.New("idempotency key conflict")
)

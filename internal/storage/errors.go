// ==================================
// File: internal/storage/errors.go
// ==================================
package storage

import "errors"

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateKey is returned when inserting a row whose key already exists.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrRankNotPromoted is returned when a rank change would not raise the rank.
	ErrRankNotPromoted = errors.New("rank not promoted")
)

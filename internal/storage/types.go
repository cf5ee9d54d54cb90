package storage

import "errors"

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// Default and maximum limits for list queries.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// NormalizeLimit clamps a caller-supplied limit into [1, MaxListLimit],
// substituting DefaultListLimit for non-positive values.
func NormalizeLimit(limit int) int {
	if limit < 1 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

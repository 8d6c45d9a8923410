package vectorindex

import "errors"

var (
	// ErrIndexBuild means no record could be embedded.
	ErrIndexBuild = errors.New("index build failed")

	// ErrIndexAbsent means the persisted artifacts are missing, unreadable or
	// inconsistent with each other. Callers rebuild on it.
	ErrIndexAbsent = errors.New("index absent")

	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

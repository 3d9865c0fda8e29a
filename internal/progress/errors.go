package progress

import "errors"

var (
	// ErrInvalidArgument is returned when a mutation is rejected before any
	// state change, e.g. a non-positive XP amount or an unknown lesson id.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrPersistence marks a failed local or remote write. The in-memory effect
	// of the mutation stands; the next mutation rewrites the whole snapshot.
	ErrPersistence = errors.New("persistence failure")

	// ErrSync marks a failed remote push or pull.
	ErrSync = errors.New("sync failure")

	// ErrCorruptSnapshot is returned when a stored payload cannot be decoded.
	ErrCorruptSnapshot = errors.New("corrupt snapshot payload")
)

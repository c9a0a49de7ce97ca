package stream

import "errors"

var (
	// ErrCapacityExceeded is returned by StartStream when the concurrency
	// ceiling is reached. Callers retry later; the supervisor never does.
	ErrCapacityExceeded = errors.New("max concurrent streams reached")

	// ErrUnknownStream is returned for operations on a stream that is not
	// registered.
	ErrUnknownStream = errors.New("unknown stream")

	// ErrSessionStopped is returned when a control request reaches a
	// session that has already shut down.
	ErrSessionStopped = errors.New("session stopped")

	// ErrStreamExists is returned when starting a stream whose ID is
	// already registered.
	ErrStreamExists = errors.New("stream already exists")
)

package tui

import "errors"

var (
	// ErrAborted signals the user aborted input (e.g., Ctrl+C).
	ErrAborted = errors.New("tui: aborted")
	// ErrCancelled is returned when the user declines to submit.
	ErrCancelled = errors.New("tui: cancelled")
	// ErrTooManyAttempts is returned when the form still fails validation
	// after the configured number of rounds.
	ErrTooManyAttempts = errors.New("tui: too many attempts")
)

package models

import "errors"

var (
	// ErrEmptyResponse is returned when a provider yields no bars.
	ErrEmptyResponse = errors.New("provider returned no bars")
	// ErrCorruptBars marks a bar series that failed validation.
	ErrCorruptBars = errors.New("corrupt bars")
	// ErrInsufficientHistory means the window is shorter than the warmup requirement.
	ErrInsufficientHistory = errors.New("insufficient history")
	// ErrInvariantViolation aborts a backtest.
	ErrInvariantViolation = errors.New("simulator invariant violated")
	// ErrNotFound is returned for unknown groups, symbols or artifacts.
	ErrNotFound = errors.New("not found")
)

package schedule

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyTitle is returned when an event is created without a title
	ErrEmptyTitle = errors.New("title is empty")
	// ErrInvertedRange is returned when a range starts after it ends
	ErrInvertedRange = errors.New("start is after end")
	// ErrInvalidColor is returned when a color is neither a hex value nor a named token
	ErrInvalidColor = errors.New("color must be #rgb, #rrggbb or a lowercase color name")
	// ErrColorTaken is returned when another user already holds the requested color
	ErrColorTaken = errors.New("color is already taken by another user")
	// ErrNoUserKey is returned when a session carries no email to derive a user key from
	ErrNoUserKey = errors.New("session has no user key")
	// ErrDirectoryNotLoaded is returned when the onboarding gate is completed before it resolved
	ErrDirectoryNotLoaded = errors.New("color directory not loaded yet")
)

// ValidationError reports input rejected before any store write was attempted.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// StoreError wraps a backend failure on any remote call.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

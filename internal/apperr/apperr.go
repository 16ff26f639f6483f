// Package apperr classifies failures so that callers can tell configuration
// mistakes from unreadable inputs and unwritable outputs.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the failure class
type Kind int

const (
	// Unknown is reported for errors that carry no classification
	Unknown Kind = iota

	// Config covers unrecognized atlas names and unsupported parameter values.
	// These are detected before any file is opened.
	Config

	// Input covers unreadable or malformed images and atlas assets
	Input

	// Output covers destinations that cannot be created or written
	Output
)

func (k Kind) String() string {
	switch k {
	case Config:
		return "configuration"
	case Input:
		return "input"
	case Output:
		return "output"
	default:
		return "unknown"
	}
}

// Error is a classified failure raised by operation Op
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a classified error from a format string
func New(kind Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies err. A nil err stays nil, and an already classified error
// keeps its original kind.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the classification of err, or Unknown
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Unknown
}

// IsKind reports whether err is classified as kind
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

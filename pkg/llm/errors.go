package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorClass partitions provider failures for retry and termination
// decisions. Exactly one class per failure.
type ErrorClass string

const (
	// ClassTransient covers conditions worth retrying: network failures,
	// timeouts, rate limits, and server-side errors.
	ClassTransient ErrorClass = "transient"

	// ClassFatal covers conditions retrying cannot fix: bad credentials,
	// malformed requests, unknown models.
	ClassFatal ErrorClass = "fatal"

	// ClassMalformed means the model responded but its output could not be
	// mapped to a tool call or message. Retried like transient failures,
	// since a fresh sample usually parses.
	ClassMalformed ErrorClass = "malformed"
)

// Error is a classified provider failure.
type Error struct {
	Class  ErrorClass
	Status int // HTTP status when applicable, else 0
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s provider error (status %d): %v", e.Class, e.Status, e.Err)
	}
	return fmt.Sprintf("%s provider error: %v", e.Class, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable failure.
func Transient(err error) *Error {
	return &Error{Class: ClassTransient, Err: err}
}

// Fatal wraps err as a non-retryable failure.
func Fatal(err error) *Error {
	return &Error{Class: ClassFatal, Err: err}
}

// Malformed wraps err as a malformed-output failure.
func Malformed(err error) *Error {
	return &Error{Class: ClassMalformed, Err: err}
}

// FromStatus classifies an HTTP error response. Rate limits, request
// timeouts, and server errors are transient; everything else is fatal.
func FromStatus(status int, err error) *Error {
	class := ClassFatal
	switch {
	case status == http.StatusTooManyRequests,
		status == http.StatusRequestTimeout,
		status >= 500:
		class = ClassTransient
	}
	return &Error{Class: class, Status: status, Err: err}
}

// Classify returns the error's class. Unclassified errors are treated as
// transient, matching how network-level failures surface from http.Client.
func Classify(err error) ErrorClass {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Class
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassFatal
	}
	return ClassTransient
}

// Retryable reports whether a fresh attempt could succeed.
func Retryable(err error) bool {
	class := Classify(err)
	return class == ClassTransient || class == ClassMalformed
}

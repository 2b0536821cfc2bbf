// Package apierr defines the daemon's tagged-sum error taxonomy and its
// translation to the HTTP error response shape.
package apierr

import (
	"fmt"
	"net/http"
)

// Kind is one of the daemon's well-known error categories. Every error that
// crosses a component boundary is either a *Error with one of these kinds,
// or gets wrapped as InternalError at the nearest boundary that can't
// interpret it further.
type Kind string

const (
	ValidationError      Kind = "ValidationError"
	InvalidTensor        Kind = "InvalidTensor"
	MissingFunction      Kind = "MissingFunction"
	NoSuchJob            Kind = "NoSuchJob"
	PackageAlreadyExists Kind = "PackageAlreadyExists"
	PackageInstallError  Kind = "PackageInstallError"
	PackageStorageError  Kind = "PackageStorageError"
	PackageError         Kind = "PackageError"
	RepositoryError      Kind = "RepositoryError"
	DownloadCollision    Kind = "DownloadCollision"
	HashMismatch         Kind = "HashMismatch"
	RemoteFailed         Kind = "RemoteFailed"
	ConnectionError      Kind = "ConnectionError"
	DatabaseError        Kind = "DatabaseError"
	MissingEntry         Kind = "MissingEntry"
	ModelRunError        Kind = "ModelRunError"
	JobInterrupted       Kind = "JobInterrupted"
	InternalError        Kind = "InternalError"
	Overloaded           Kind = "Overloaded"
)

// defaultStatus mirrors hivemind's exception-class -> HTTP status mapping.
var defaultStatus = map[Kind]int{
	ValidationError:      http.StatusBadRequest,
	InvalidTensor:        http.StatusBadRequest,
	MissingFunction:      http.StatusNotFound,
	NoSuchJob:            http.StatusNotFound,
	MissingEntry:         http.StatusNotFound,
	PackageAlreadyExists: http.StatusConflict,
	DownloadCollision:    http.StatusConflict,
	Overloaded:           http.StatusServiceUnavailable,
}

// Error is the daemon's single error type: a Kind, a human message, and
// optional structured data for the response body's "data" field.
type Error struct {
	Kind    Kind
	Message string
	Data    map[string]any
	Err     error
}

func New(kind Kind, message string, data map[string]any) *Error {
	return &Error{Kind: kind, Message: message, Data: data}
}

// Wrap attaches kind to err, unless err is already an *Error (in which case
// its own kind is preserved).
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	if ae, ok := err.(*Error); ok {
		return ae
	}
	return &Error{Kind: kind, Message: err.Error(), Err: err}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Status returns the HTTP status code this error should be reported with.
func (e *Error) Status() int {
	if e == nil {
		return http.StatusInternalServerError
	}
	if s, ok := defaultStatus[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// ToResponse renders the spec's {error, msg, status_code, data?} shape.
func (e *Error) ToResponse() map[string]any {
	status := e.Status()
	resp := map[string]any{
		"error":       string(e.Kind),
		"msg":         e.Message,
		"status_code": status,
	}
	if len(e.Data) > 0 {
		resp["data"] = e.Data
	}
	return resp
}

// As extracts an *Error from err, wrapping it as InternalError if it isn't
// already one of ours.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	if ae, ok := err.(*Error); ok {
		return ae
	}
	return &Error{Kind: InternalError, Message: err.Error(), Err: err}
}

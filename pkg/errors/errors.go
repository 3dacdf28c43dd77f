// Package errors defines the error taxonomy shared by the indexing pipeline,
// the pod store, and the federation client.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("already exists")
	ErrInvalidInput   = errors.New("invalid input")
	ErrFetch          = errors.New("fetch failed")
	ErrParse          = errors.New("parse failed")
	ErrVectorize      = errors.New("vectorize failed")
	ErrStore          = errors.New("store failed")
	ErrConsistency    = errors.New("pod store consistency violation")
	ErrFederation     = errors.New("federation failed")
	ErrSelfFederation = errors.New("instance is federating with itself")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// FetchReason classifies why a fetch was rejected.
type FetchReason string

const (
	ReasonNetwork         FetchReason = "network"
	ReasonStatus          FetchReason = "bad_status"
	ReasonRobots          FetchReason = "robots_disallowed"
	ReasonUnsupportedType FetchReason = "unsupported_content_type"
	ReasonInvalidURL      FetchReason = "invalid_url"
)

// FetchError reports a document rejected before parsing.
type FetchError struct {
	URL    string
	Reason FetchReason
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Reason)
}

func (e *FetchError) Unwrap() error        { return e.Err }
func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// ParseError reports an extraction or language detection failure.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string        { return fmt.Sprintf("parse %s: %v", e.URL, e.Err) }
func (e *ParseError) Unwrap() error        { return e.Err }
func (e *ParseError) Is(target error) bool { return target == ErrParse }

// VectorizeError reports a degenerate document vector.
type VectorizeError struct {
	URL    string
	Reason string
}

func (e *VectorizeError) Error() string        { return fmt.Sprintf("vectorize %s: %s", e.URL, e.Reason) }
func (e *VectorizeError) Is(target error) bool { return target == ErrVectorize }

// StoreError reports a pod store write that was rolled back.
type StoreError struct {
	Pod string
	Op  string
	Err error
}

func (e *StoreError) Error() string        { return fmt.Sprintf("store %s %s: %v", e.Op, e.Pod, e.Err) }
func (e *StoreError) Unwrap() error        { return e.Err }
func (e *StoreError) Is(target error) bool { return target == ErrStore }

// FederationError reports a failed call to a peer instance.
type FederationError struct {
	Peer string
	Op   string
	Err  error
}

func (e *FederationError) Error() string {
	return fmt.Sprintf("federation %s %s: %v", e.Op, e.Peer, e.Err)
}
func (e *FederationError) Unwrap() error        { return e.Err }
func (e *FederationError) Is(target error) bool { return target == ErrFederation }

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrFetch), errors.Is(err, ErrParse), errors.Is(err, ErrVectorize):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrFederation):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

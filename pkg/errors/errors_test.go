package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name     string
		err      error
		sentinel error
		status   int
	}{
		{"fetch", &FetchError{URL: "http://x", Reason: ReasonRobots}, ErrFetch, http.StatusUnprocessableEntity},
		{"parse", &ParseError{URL: "http://x", Err: cause}, ErrParse, http.StatusUnprocessableEntity},
		{"vectorize", &VectorizeError{URL: "http://x", Reason: "zero vector"}, ErrVectorize, http.StatusUnprocessableEntity},
		{"store", &StoreError{Pod: "p", Op: "insert", Err: cause}, ErrStore, http.StatusInternalServerError},
		{"federation", &FederationError{Peer: "http://peer", Op: "signature", Err: cause}, ErrFederation, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			if !errors.Is(wrapped, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", wrapped, tt.sentinel)
			}
			if got := HTTPStatusCode(wrapped); got != tt.status {
				t.Errorf("status = %d, want %d", got, tt.status)
			}
		})
	}
}

func TestStoreErrorUnwrapsCause(t *testing.T) {
	err := &StoreError{Pod: "p", Op: "remove", Err: ErrConsistency}
	if !errors.Is(err, ErrConsistency) {
		t.Error("expected consistency cause to be visible")
	}
}

func TestAppErrorStatus(t *testing.T) {
	err := Newf(ErrNotFound, http.StatusNotFound, "url %s", "http://x")
	if HTTPStatusCode(err) != http.StatusNotFound {
		t.Errorf("got %d", HTTPStatusCode(err))
	}
	if HTTPStatusCode(ErrConflict) != http.StatusConflict {
		t.Error("conflict should map to 409")
	}
}

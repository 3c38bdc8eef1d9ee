package models

import (
	"errors"
	"net/http"
)

// ErrorKind classifies failures that reach API clients
type ErrorKind string

const (
	ErrKindInvalidRequest        ErrorKind = "invalid_request"
	ErrKindSeatConflict          ErrorKind = "seat_conflict"
	ErrKindNotFound              ErrorKind = "not_found"
	ErrKindUnauthorized          ErrorKind = "unauthorized"
	ErrKindForbidden             ErrorKind = "forbidden"
	ErrKindExternalVerification  ErrorKind = "external_verification_failure"
	ErrKindUpstreamUnavailable   ErrorKind = "upstream_unavailable"
	ErrKindInternalInconsistency ErrorKind = "internal_inconsistency"
)

// DomainError is the typed error returned by services for client-visible failures
type DomainError struct {
	Kind   ErrorKind
	Detail string
	Seats  []int64 // conflicting seats, only for ErrKindSeatConflict
	Err    error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return e.Detail + ": " + e.Err.Error()
	}
	return e.Detail
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the response status for the error kind
func (e *DomainError) HTTPStatus() int {
	switch e.Kind {
	case ErrKindInvalidRequest, ErrKindExternalVerification:
		return http.StatusBadRequest
	case ErrKindSeatConflict:
		return http.StatusConflict
	case ErrKindNotFound:
		return http.StatusNotFound
	case ErrKindUnauthorized:
		return http.StatusUnauthorized
	case ErrKindForbidden:
		return http.StatusForbidden
	case ErrKindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func NewInvalidRequest(detail string) *DomainError {
	return &DomainError{Kind: ErrKindInvalidRequest, Detail: detail}
}

// NewSeatConflict reports the requested seats that are already taken
func NewSeatConflict(seats []int64) *DomainError {
	return &DomainError{Kind: ErrKindSeatConflict, Detail: "Seats already booked", Seats: seats}
}

func NewNotFound(detail string) *DomainError {
	return &DomainError{Kind: ErrKindNotFound, Detail: detail}
}

func NewUnauthorized(detail string) *DomainError {
	return &DomainError{Kind: ErrKindUnauthorized, Detail: detail}
}

func NewForbidden(detail string) *DomainError {
	return &DomainError{Kind: ErrKindForbidden, Detail: detail}
}

func NewExternalVerificationFailure(detail string, err error) *DomainError {
	return &DomainError{Kind: ErrKindExternalVerification, Detail: detail, Err: err}
}

// NewUpstreamUnavailable reports a payment provider that could not be reached
func NewUpstreamUnavailable(detail string, err error) *DomainError {
	return &DomainError{Kind: ErrKindUpstreamUnavailable, Detail: detail, Err: err}
}

func NewInternalInconsistency(detail string) *DomainError {
	return &DomainError{Kind: ErrKindInternalInconsistency, Detail: detail}
}

// IsKind reports whether err wraps a DomainError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}

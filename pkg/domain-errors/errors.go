// Package domainerrors provides coded errors for the assent domain.
//
// Stores and infrastructure return sentinel errors (pkg/platform/sentinel);
// services translate them into coded domain errors so transports can map them
// to HTTP statuses without inspecting error strings.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of domain failure.
type Code string

const (
	// Generic codes.
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_failed"
	CodeInvariantViolation Code = "invariant_violation"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeUnauthorized       Code = "unauthorized"
	CodeUnavailable        Code = "unavailable"
	CodeNotReady           Code = "not_ready"
	CodeInternal           Code = "internal_error"

	// Runtime-config contract codes. A config failing any of these is rejected
	// whole; the loader stays in its blocking posture for the page load.
	CodeConfigUnreachable Code = "config_unreachable"
	CodeSiteNotFound      Code = "site_not_found"
	CodeInvalidNotice     Code = "invalid_notice"
	CodeNoPurposes        Code = "no_purposes"
	CodeInvalidPurpose    Code = "invalid_purpose"

	// CodeStorageUnavailable marks persistence denied by the host environment.
	// The loader degrades to in-memory state rather than failing the page.
	CodeStorageUnavailable Code = "storage_unavailable"
)

// DomainError carries a code alongside a human-readable message and an
// optional wrapped cause.
type DomainError struct {
	Code    Code
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches another DomainError by code and message, so tests can assert
// coded errors with errors.Is without holding the original instance.
func (e *DomainError) Is(target error) bool {
	other, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == other.Code && e.Message == other.Message
}

// New creates a coded domain error.
func New(code Code, message string) error {
	return &DomainError{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error, preserving the
// cause for errors.Is/errors.As.
func Wrap(err error, code Code, message string) error {
	return &DomainError{Code: code, Message: message, Err: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *DomainError
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.Err
		if err == nil {
			return false
		}
	}
	return false
}

// CodeOf returns the code of the outermost DomainError in the chain, or
// CodeInternal when the error is not a domain error.
func CodeOf(err error) Code {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a domain code to an HTTP status for transport layers.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeValidation, CodeInvalidNotice, CodeNoPurposes, CodeInvalidPurpose:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound, CodeSiteNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeInvariantViolation:
		return http.StatusConflict
	case CodeUnavailable, CodeConfigUnreachable, CodeStorageUnavailable:
		return http.StatusServiceUnavailable
	case CodeNotReady:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

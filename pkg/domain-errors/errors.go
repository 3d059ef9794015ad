// Package domainerrors carries coded errors across service boundaries.
//
// Services return these so the transport layer can translate them without
// inspecting message strings. Stores and clients return sentinel errors
// (see pkg/platform/sentinel) which services wrap with a code.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a failure for callers. It is stable and safe to expose.
type Code string

const (
	// Transport and issuance
	CodeNetwork   Code = "network_error"
	CodeCancelled Code = "cancelled"

	// Session security outcomes
	CodeChecksumMismatch  Code = "checksum_mismatch"
	CodeDeviceCompromised Code = "device_compromised"
	CodeSessionExpired    Code = "session_expired"
	CodeSessionRevoked    Code = "session_revoked"
	CodeSessionLocked     Code = "session_locked"
	CodePageOutOfRange    Code = "page_out_of_range"

	// Generic
	CodeBadRequest   Code = "bad_request"
	CodeInvalidInput Code = "invalid_input"
	CodeInvalidState Code = "invalid_state"
	CodeNotFound     Code = "not_found"
	CodeInternal     Code = "internal_error"
)

// Error is a coded error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a coded error without a cause.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to err. A nil err yields nil.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether any coded error in err's chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// Is is shorthand for HasCode.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost code in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

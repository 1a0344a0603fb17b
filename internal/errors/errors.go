// Package errors provides structured error types for vaultd.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes for vaultd.
const (
	// Lookup errors
	CodeTaskNotFound   Code = "TASK_NOT_FOUND"
	CodeEffortNotFound Code = "EFFORT_NOT_FOUND"
	CodeFileNotTracked Code = "FILE_NOT_TRACKED"

	// ID errors
	CodeIDCollision Code = "ID_COLLISION"
	CodeIDExhausted Code = "ID_EXHAUSTED"

	// Document errors
	CodeParseFailed Code = "PARSE_FAILED"

	// Input errors
	CodeValidationFailed  Code = "VALIDATION_FAILED"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodePathOutsideVault  Code = "PATH_OUTSIDE_VAULT"

	// Filesystem errors
	CodeIOFailed    Code = "IO_FAILED"
	CodeVaultLocked Code = "VAULT_LOCKED"
)

// VaultError is the structured error type for vaultd. Every operation on the
// tool surface returns either a success payload or one of these.
type VaultError struct {
	Code  Code   `json:"code"`
	What  string `json:"what"`
	Why   string `json:"why,omitempty"`
	Fix   string `json:"fix,omitempty"`
	Cause error  `json:"-"`
}

// Error implements the error interface.
func (e *VaultError) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *VaultError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a human-readable message for CLI and tool output.
func (e *VaultError) UserMessage() string {
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString("\n  Why: ")
		b.WriteString(e.Why)
	}
	if e.Fix != "" {
		b.WriteString("\n  Fix: ")
		b.WriteString(e.Fix)
	}
	return b.String()
}

// JSON returns the error serialized as a JSON object.
func (e *VaultError) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"code":%q,"what":%q}`, e.Code, e.What)
	}
	return string(data)
}

// New creates a new VaultError.
func New(code Code, what string) *VaultError {
	return &VaultError{Code: code, What: what}
}

// Newf creates a new VaultError with a formatted What message.
func Newf(code Code, format string, args ...any) *VaultError {
	return &VaultError{Code: code, What: fmt.Sprintf(format, args...)}
}

// Wrap creates a new VaultError wrapping a cause.
func Wrap(code Code, what string, cause error) *VaultError {
	return &VaultError{Code: code, What: what, Cause: cause}
}

// WithWhy adds an explanation and returns the error.
func (e *VaultError) WithWhy(why string) *VaultError {
	e.Why = why
	return e
}

// WithFix adds a suggested fix and returns the error.
func (e *VaultError) WithFix(fix string) *VaultError {
	e.Fix = fix
	return e
}

// CodeOf extracts the error code from err, or "" if err is not a VaultError.
func CodeOf(err error) Code {
	var ve *VaultError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}

// IsNotFound reports whether err carries a not-found code.
func IsNotFound(err error) bool {
	c := CodeOf(err)
	return c == CodeTaskNotFound || c == CodeEffortNotFound || c == CodeFileNotTracked
}

// NotFound creates a TASK_NOT_FOUND error for the given task id.
func NotFound(taskID string) *VaultError {
	return Newf(CodeTaskNotFound, "task %q not found", taskID)
}

// EffortNotFound creates an EFFORT_NOT_FOUND error for the given effort name.
func EffortNotFound(name string) *VaultError {
	return Newf(CodeEffortNotFound, "effort %q not found", name).
		WithFix("run effort_scan to refresh the effort list")
}

package model

import (
	"errors"
	"fmt"
)

// ErrInvalidProject indicates that a directory is not a mergin project:
// either the directory does not exist or its .mergin/mergin.json metadata
// is missing or unreadable. Callers test for it with errors.Is.
var ErrInvalidProject = errors.New("invalid project directory")

// ExitCode defines standard CLI exit codes. These codes allow scripts and
// CI systems to programmatically determine the outcome of a command.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitInvalidProject indicates the working directory is not a
	// mergin project (no .mergin/mergin.json metadata).
	ExitInvalidProject ExitCode = 2

	// ExitServerError indicates the server rejected a request or could
	// not be reached.
	ExitServerError ExitCode = 3

	// ExitAuthError indicates missing or rejected credentials.
	ExitAuthError ExitCode = 4

	// ExitIncompatibleServer indicates the server version is older than
	// the minimum this client supports.
	ExitIncompatibleServer ExitCode = 5

	// ExitCancelled indicates the user interrupted a transfer and the
	// job was rolled back.
	ExitCancelled ExitCode = 6
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}

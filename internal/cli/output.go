package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/evolve/internal/catalog"
	"github.com/roach88/evolve/internal/engine"
	"github.com/roach88/evolve/internal/game"
	"github.com/roach88/evolve/internal/remote"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Rejected action (blocked by a conflict, not enough energy, wrong password, etc.)
	ExitCommandError = 2 // Command error (bad arguments, unreadable config, storage not available, etc.)
)

// Error codes reported in the error envelope.
const (
	ErrCodeGeneric   = "E001" // Unclassified failure
	ErrCodeConfig    = "E002" // Config file missing or invalid
	ErrCodeStorage   = "E003" // Local or remote store could not be opened or written
	ErrCodeCatalog   = "E004" // Catalog directory failed to load
	ErrCodeInvalid   = "E005" // Bad argument or unknown id
	ErrCodeBlocked   = "E006" // Save conflict blocks the action
	ErrCodeAuth      = "E007" // Sign-in, sign-up or session failure
	ErrCodeNoRemote  = "E008" // Remote features are not configured
	ErrCodeRejected  = "E009" // The game rules refused the action
	ErrCodeCancelled = "E010" // Interrupted before the action completed
	ErrCodeScenario  = "E011" // One or more scenarios failed
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E002", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// Fail reports err through the formatter and returns the ExitError the
// command should return.
func (f *OutputFormatter) Fail(message string, err error) error {
	code, exit := classify(err)
	return f.failWith(code, exit, message, err)
}

func (f *OutputFormatter) failWith(code string, exit int, message string, err error) error {
	var details any
	var blocked *engine.BlockedError
	if errors.As(err, &blocked) {
		details = map[string]string{"reason": blocked.Reason}
	}
	_ = f.Error(code, fmt.Sprintf("%s: %v", message, err), details)
	return WrapExitError(exit, fmt.Sprintf("%s: %s", code, message), err)
}

// Rejected reports a reducer outcome that did not change the state.
func (f *OutputFormatter) Rejected(action string, outcome game.Outcome) error {
	message := fmt.Sprintf("%s rejected: %s", action, outcome.Status)
	_ = f.Error(ErrCodeRejected, message, outcome)
	return NewExitError(ExitFailure, fmt.Sprintf("%s: %s", ErrCodeRejected, message))
}

// classify maps an error to its envelope code and exit code.
func classify(err error) (string, int) {
	var loadErr *catalog.LoadError
	switch {
	case engine.IsBlocked(err):
		return ErrCodeBlocked, ExitFailure
	case errors.Is(err, remote.ErrInvalidCredentials),
		errors.Is(err, remote.ErrEmailTaken),
		errors.Is(err, remote.ErrNotSignedIn):
		return ErrCodeAuth, ExitFailure
	case errors.Is(err, engine.ErrNoRemote):
		return ErrCodeNoRemote, ExitCommandError
	case errors.Is(err, engine.ErrNoConflict):
		return ErrCodeRejected, ExitFailure
	case game.IsIntegrityError(err):
		return ErrCodeInvalid, ExitCommandError
	case errors.As(err, &loadErr):
		return ErrCodeCatalog, ExitCommandError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrCodeCancelled, ExitFailure
	}
	return ErrCodeGeneric, ExitFailure
}

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/tinkergo/internal/fault"
	"github.com/roach88/tinkergo/internal/ir"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Execution or scenario failure
	ExitCommandError = 2 // Command error (bad flags, missing files, invalid job)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)

	// reported is set when the command already wrote its own output.
	reported bool
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

// GetExitCode extracts the exit code from an error. Errors without an
// explicit code map by fault class: configuration errors are command
// errors, everything else is a failure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if fault.IsConfiguration(err) {
		return ExitCommandError
	}
	return ExitFailure
}

// classify picks the exit code for an error raised while executing a
// traversal or program.
func classify(message string, err error) *ExitError {
	if fault.IsConfiguration(err) {
		return WrapExitError(ExitCommandError, message, err)
	}
	return WrapExitError(ExitFailure, message, err)
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; defaults to Writer
}

// Response is the JSON envelope of every command.
type Response struct {
	Status string         `json:"status"`          // "ok" or "error"
	Data   any            `json:"data,omitempty"`  // success payload
	Error  *ResponseError `json:"error,omitempty"` // error details
}

// ResponseError is the error structure of a Response.
type ResponseError struct {
	Code    string            `json:"code"`              // fault code such as "E105", or "exit"
	Message string            `json:"message"`           // human-readable message
	Details map[string]string `json:"details,omitempty"` // fault details
}

// Success writes data as a JSON envelope, or calls text for text output.
func (f *OutputFormatter) Success(data any, text func(w io.Writer)) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(Response{Status: "ok", Data: data})
	}
	text(f.Writer)
	return nil
}

// Failure writes data in an error envelope, or calls text for text
// output. The returned error carries the exit code and is not reported
// again by Execute.
func (f *OutputFormatter) Failure(message string, data any, text func(w io.Writer)) error {
	if f.Format == "json" {
		err := json.NewEncoder(f.Writer).Encode(Response{
			Status: "error",
			Data:   data,
			Error:  &ResponseError{Code: "exit", Message: message},
		})
		if err != nil {
			return err
		}
	} else {
		text(f.Writer)
	}
	return &ExitError{Code: ExitFailure, Message: message, reported: true}
}

// Error writes err in the configured format.
func (f *OutputFormatter) Error(err error) error {
	re := &ResponseError{Code: "exit", Message: err.Error()}
	if fe, ok := fault.As(err); ok {
		re.Code = string(fe.Code)
		re.Details = fe.Details
	}
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(Response{Status: "error", Error: re})
	}
	if re.Code == "exit" {
		_, werr := fmt.Fprintf(f.Writer, "Error: %s\n", re.Message)
		return werr
	}
	_, werr := fmt.Fprintf(f.Writer, "Error [%s]: %s\n", re.Code, re.Message)
	return werr
}

// errWriter returns the writer for diagnostic output.
func (f *OutputFormatter) errWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// canonical renders v as canonical JSON for text output.
func canonical(v ir.IRValue) string {
	return ir.Key(v)
}

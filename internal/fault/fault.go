// Package fault defines the coded errors raised by traversal construction,
// strategy application and execution.
//
// Every error carries a Class and a Code. Configuration errors are raised
// before execution (registration, strategy application, lock). Execution
// errors surface from Next or from a superstep and are never retried.
// Resource errors abort a whole run.
package fault

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Class groups error codes by the phase that raises them.
type Class string

const (
	Configuration Class = "configuration"
	Execution     Class = "execution"
	Resource      Class = "resource"
)

// Code identifies a specific error condition.
type Code string

const (
	// CodeLocked indicates a structural mutation or strategy application on a
	// locked traversal.
	CodeLocked Code = "E101"

	// CodeStrategyCycle indicates the registered strategies' ordering
	// constraints contain a cycle.
	CodeStrategyCycle Code = "E102"

	// CodeRequirements indicates a step requires traverser data the
	// configured generator cannot provide.
	CodeRequirements Code = "E103"

	// CodeVerification indicates a verification strategy rejected the
	// traversal.
	CodeVerification Code = "E104"

	// CodeInvalidConfig indicates an invalid job or engine configuration.
	CodeInvalidConfig Code = "E105"

	CodeMutation     Code = "E201"
	CodeMessenger    Code = "E202"
	CodeNonLocal     Code = "E203"
	CodeEmptyKey     Code = "E204"
	CodeCeiling      Code = "E205"
	CodeInvalidValue Code = "E206"

	CodeUnreachable   Code = "E301"
	CodeWorkerFailure Code = "E302"
)

var classOf = map[Code]Class{
	CodeLocked:        Configuration,
	CodeStrategyCycle: Configuration,
	CodeRequirements:  Configuration,
	CodeVerification:  Configuration,
	CodeInvalidConfig: Configuration,
	CodeMutation:      Execution,
	CodeMessenger:     Execution,
	CodeNonLocal:      Execution,
	CodeEmptyKey:      Execution,
	CodeCeiling:       Execution,
	CodeInvalidValue:  Execution,
	CodeUnreachable:   Resource,
	CodeWorkerFailure: Resource,
}

// Error is a coded engine error.
type Error struct {
	// Class is derived from Code by New and Wrap.
	Class Class

	Code Code

	// Message is a human-readable description.
	Message string

	// StepID identifies the step that raised the error, when there is one.
	StepID string

	// Details contains additional context, rendered in key order.
	Details map[string]string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	if e.StepID != "" {
		fmt.Fprintf(&b, " (step=%s)", e.StepID)
	}
	for _, k := range slices.Sorted(maps.Keys(e.Details)) {
		fmt.Fprintf(&b, " %s=%s", k, e.Details[k])
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// With returns a copy of e with an additional detail.
func (e *Error) With(key, value string) *Error {
	c := *e
	c.Details = maps.Clone(e.Details)
	if c.Details == nil {
		c.Details = make(map[string]string, 1)
	}
	c.Details[key] = value
	return &c
}

// AtStep returns a copy of e attributed to stepID.
func (e *Error) AtStep(stepID string) *Error {
	c := *e
	c.StepID = stepID
	return &c
}

// New creates an error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Class: classOf[code], Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error with a cause. It returns nil when err is nil.
func Wrap(code Code, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Class: classOf[code], Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// As returns the outermost *Error in err's chain.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// CodeOf returns the code of the outermost *Error in err's chain, or the
// empty code.
func CodeOf(err error) Code {
	if fe, ok := As(err); ok {
		return fe.Code
	}
	return ""
}

// Is reports whether err carries code.
func Is(err error, code Code) bool {
	var fe *Error
	for err != nil {
		if !errors.As(err, &fe) {
			return false
		}
		if fe.Code == code {
			return true
		}
		err = fe.Err
	}
	return false
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool { return classIs(err, Configuration) }

// IsExecution reports whether err is an execution error.
func IsExecution(err error) bool { return classIs(err, Execution) }

// IsResource reports whether err is a resource error.
func IsResource(err error) bool { return classIs(err, Resource) }

func classIs(err error, c Class) bool {
	fe, ok := As(err)
	return ok && fe.Class == c
}

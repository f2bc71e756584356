// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrDataNotFound        = errors.New("data not found")
	ErrUnknownTool         = errors.New("unknown tool")
	ErrInvalidArguments    = errors.New("invalid tool arguments")
	ErrConfigInvalid       = errors.New("invalid configuration")
	ErrIterationsExhausted = errors.New("maximum iterations reached")
	ErrInputValidation     = errors.New("input validation failed")
)

// DataError represents a market data error. Both empty results and failed
// fetches are reported with this type so callers only surface the message.
type DataError struct {
	DataType string
	Symbol   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil && !errors.Is(e.Err, ErrDataNotFound) {
		return fmt.Sprintf("%s data for %s: %s: %v", e.DataType, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("%s data for %s: %s", e.DataType, e.Symbol, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Symbol:   symbol,
		Message:  message,
		Err:      err,
	}
}

// NewNotFoundError reports that no data exists for symbol.
func NewNotFoundError(dataType, symbol string) *DataError {
	return &DataError{
		DataType: dataType,
		Symbol:   symbol,
		Message:  fmt.Sprintf("no data found for %s", symbol),
		Err:      ErrDataNotFound,
	}
}

// IsNotFound reports whether err means the requested data does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDataNotFound)
}

// DispatchError is returned when a tool cannot be dispatched at all, as
// opposed to a tool that ran and failed.
type DispatchError struct {
	Tool string
	Err  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch error [%s]: %v", e.Tool, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// NewDispatchError creates a new DispatchError.
func NewDispatchError(tool string, err error) *DispatchError {
	return &DispatchError{
		Tool: tool,
		Err:  err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// AgentError represents an error from an AI agent.
type AgentError struct {
	AgentName string
	Operation string
	Err       error
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("agent error [%s] %s: %v", e.AgentName, e.Operation, e.Err)
}

func (e *AgentError) Unwrap() error {
	return e.Err
}

// NewAgentError creates a new AgentError.
func NewAgentError(agentName, operation string, err error) *AgentError {
	return &AgentError{
		AgentName: agentName,
		Operation: operation,
		Err:       err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// New returns an error with the given text.
func New(text string) error {
	return errors.New(text)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Package errs defines the error taxonomy shared by the forecasting pipeline.
//
// Failures of a single indicator, strategy or backtest period are absorbed by
// the orchestrators and logged. Only a stage that produced nothing usable
// surfaces a ComputationError to the caller.
package errs

import (
	"fmt"
	"strings"
)

// ValidationError reports malformed input to an orchestrator
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// Validation creates a ValidationError
func Validation(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InsufficientDataError reports that a formula lacks the history it needs
type InsufficientDataError struct {
	Indicator string
	Have      int
	Need      int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: insufficient data: got %d points, need %d", e.Indicator, e.Have, e.Need)
}

// StrategyInputError reports that a strategy could not find its indicators
type StrategyInputError struct {
	Strategy string
	Needed   []string
}

func (e *StrategyInputError) Error() string {
	return fmt.Sprintf("%s: missing required indicators (need one of: %s)", e.Strategy, strings.Join(e.Needed, ", "))
}

// ComputationError reports that a whole pipeline stage produced no results
type ComputationError struct {
	Stage    string
	Message  string
	Failures []error
}

func (e *ComputationError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s (%d failures, first: %v)", e.Stage, e.Message, len(e.Failures), e.Failures[0])
}

// Unwrap exposes the collected failures to errors.Is / errors.As
func (e *ComputationError) Unwrap() []error {
	return e.Failures
}

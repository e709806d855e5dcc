package payroll

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrRunNotFound       = errors.New("payroll run not found")
	ErrPaycheckNotFound  = errors.New("paycheck not found")
	ErrInvalidTransition = errors.New("invalid payroll run transition")
	ErrRunAborted        = errors.New("payroll run aborted")
	ErrNegativeNetPay    = errors.New("net pay is negative")
	ErrArithmetic        = errors.New("paycheck arithmetic does not balance")
	ErrYTDConflict       = errors.New("year-to-date record changed since calculation")
	ErrNotInReview       = errors.New("paycheck is not awaiting review")
	ErrIncompleteRun     = errors.New("payroll run is missing paychecks")

	// ErrValidation and ErrCalculation are the kinds carried by the typed
	// errors below.
	ErrValidation  = errors.New("validation failed")
	ErrCalculation = errors.New("calculation failed")
)

// FieldIssue is one problem with an input field.
type FieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError rejects malformed or missing input before any calculation.
type ValidationError struct {
	EmployeeID string
	Issues     []FieldIssue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.Field+": "+issue.Message)
	}
	if e.EmployeeID == "" {
		return fmt.Sprintf("validation failed: %s", strings.Join(parts, "; "))
	}
	return fmt.Sprintf("validation failed for employee %s: %s", e.EmployeeID, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) add(field, message string) {
	e.Issues = append(e.Issues, FieldIssue{Field: field, Message: message})
}

func (e *ValidationError) orNil() error {
	if len(e.Issues) == 0 {
		return nil
	}
	return e
}

// CalculationError is fatal for one employee only: unknown jurisdiction,
// unsupported filing status, missing tax table or wage base.
type CalculationError struct {
	EmployeeID string
	Stage      string
	Err        error
}

func (e *CalculationError) Error() string {
	return fmt.Sprintf("calculation failed for employee %s at %s: %v", e.EmployeeID, e.Stage, e.Err)
}

func (e *CalculationError) Unwrap() error {
	return e.Err
}

func (e *CalculationError) Is(target error) bool {
	return target == ErrCalculation
}

package iris

import "fmt"

// ErrorKind classifies the outcome of a public API call, per the error
// handling design: a {flag, message} result rather than bare errors at
// boundaries callers are expected to branch on (encoder progress, file
// validation, slide open).
type ErrorKind uint8

const (
	Success ErrorKind = iota
	Failure
	ValidationFailure
	Uninitialized
	Warning
	WarningValidation
)

func (k ErrorKind) String() string {
	switch k {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case ValidationFailure:
		return "validation_failure"
	case Uninitialized:
		return "uninitialized"
	case Warning:
		return "warning"
	case WarningValidation:
		return "warning_validation"
	default:
		return "unknown"
	}
}

// Result is the typed outcome returned from validation and other
// boundary-facing operations, mirroring the {flag, message} contract
// spelled out for error propagation.
type Result struct {
	Flag    ErrorKind
	Message string
}

func (r Result) Error() string {
	if r.Message == "" {
		return r.Flag.String()
	}
	return r.Flag.String() + ": " + r.Message
}

// OK reports whether the result represents a fatal-free outcome (Success,
// Warning, or WarningValidation).
func (r Result) OK() bool {
	switch r.Flag {
	case Success, Warning, WarningValidation:
		return true
	default:
		return false
	}
}

func ResultOK() Result { return Result{Flag: Success} }

func ResultFailure(format string, args ...any) Result {
	return Result{Flag: Failure, Message: fmt.Sprintf(format, args...)}
}

func ResultValidationFailure(format string, args ...any) Result {
	return Result{Flag: ValidationFailure, Message: fmt.Sprintf(format, args...)}
}

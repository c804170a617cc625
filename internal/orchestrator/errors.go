package orchestrator

import (
	"errors"
	"fmt"
)

// Code classifies orchestrator failures so the transport layer can map
// them to responses without parsing error text.
type Code string

const (
	// CodeRetrievalUnavailable marks a failed similarity lookup. It is
	// recovered internally and never surfaced to callers.
	CodeRetrievalUnavailable Code = "RETRIEVAL_UNAVAILABLE"
	// CodeGenerationFailed marks a completion provider failure.
	CodeGenerationFailed Code = "GENERATION_FAILED"
	// CodePersistenceFailed marks a store failure. Callers must assume
	// nothing was saved.
	CodePersistenceFailed Code = "PERSISTENCE_FAILED"
	// CodeInvalidStage marks a stage number outside the program.
	CodeInvalidStage Code = "INVALID_STAGE"
	// CodeInvalidInput marks a malformed request.
	CodeInvalidInput Code = "INVALID_INPUT"
	// CodeNotFound marks a reference to a conversation that does not exist.
	CodeNotFound Code = "NOT_FOUND"
)

// Error is the typed failure returned by the orchestrator.
type Error struct {
	Code   Code
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code Code, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// CodeOf extracts the failure code from an error, or empty if the error
// did not come from the orchestrator.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

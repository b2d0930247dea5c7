package llm

import (
	"errors"
	"fmt"
)

// Reason classifies why an LLM call failed. All gateway failures surface as a
// single [*Error] kind; Reason is the sub-kind used for logging and metrics.
type Reason string

const (
	// ReasonTransport covers network and timeout failures before a response
	// was received.
	ReasonTransport Reason = "transport"

	// ReasonHTTP covers non-2xx HTTP responses (including an exhausted 429
	// retry budget).
	ReasonHTTP Reason = "http"

	// ReasonEnvelope means the HTTP exchange succeeded but the remote status
	// envelope carried a non-success code.
	ReasonEnvelope Reason = "envelope"

	// ReasonParse means the structured-output content was not valid JSON.
	ReasonParse Reason = "parse"

	// ReasonSchema means the structured-output content was valid JSON but did
	// not conform to the requested schema.
	ReasonSchema Reason = "schema"
)

// Error is the single error kind raised by LLM providers. Inspect Reason to
// distinguish sub-kinds; use [errors.As] to extract it from wrapped chains.
type Error struct {
	// Reason is the failure sub-kind.
	Reason Reason

	// Msg is a human-readable description of the failure.
	Msg string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llm: %s: %s: %v", e.Reason, e.Msg, e.Err)
	}
	return fmt.Sprintf("llm: %s: %s", e.Reason, e.Msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// NewError builds an [*Error] with the given reason, message, and cause.
func NewError(reason Reason, msg string, err error) *Error {
	return &Error{Reason: reason, Msg: msg, Err: err}
}

// ReasonOf extracts the failure [Reason] from err. Returns the empty string
// when err does not wrap an [*Error].
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

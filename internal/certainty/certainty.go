// Package certainty defines the evidence model every derived fact flows
// through before it may influence a score or decision. A raw provider value
// never reaches scoring logic directly: it is classified exactly once, with
// its source or the reason it could not be determined attached.
package certainty

import (
	"fmt"
	"time"
)

// Certainty classifies how a data point was established.
type Certainty string

const (
	// Proven facts are directly observed from an authoritative source:
	// chain state, explorer response, raw RPC result.
	Proven Certainty = "PROVEN"

	// Inferred facts are derived via heuristic or model from proven data
	// and carry explicit uncertainty.
	Inferred Certainty = "INFERRED"

	// Unknown facts could not be determined and always carry a reason.
	Unknown Certainty = "UNKNOWN"
)

// Data wraps a derived value with its certainty classification.
// Constructed once by an analyzer step and immutable thereafter.
type Data[T any] struct {
	Value     *T        `json:"value"`
	Certainty Certainty `json:"certainty"`
	Source    string    `json:"source,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// Classify validates and constructs a certainty-tagged data point.
// PROVEN requires a non-empty source; UNKNOWN with a non-nil value requires
// a reason explaining why the value could not be trusted.
func Classify[T any](value *T, c Certainty, source, reason string) (Data[T], error) {
	switch c {
	case Proven:
		if source == "" {
			return Data[T]{}, fmt.Errorf("certainty: PROVEN datum requires a source")
		}
	case Inferred:
		// Inferred values carry their derivation in reason; no hard requirement.
	case Unknown:
		if value != nil && reason == "" {
			return Data[T]{}, fmt.Errorf("certainty: UNKNOWN datum with a value requires a reason")
		}
		if reason == "" {
			return Data[T]{}, fmt.Errorf("certainty: UNKNOWN datum requires a reason")
		}
	default:
		return Data[T]{}, fmt.Errorf("certainty: unrecognized certainty %q", c)
	}
	return Data[T]{Value: value, Certainty: c, Source: source, Reason: reason}, nil
}

// MustClassify is Classify for analyzer steps whose inputs are statically
// valid. Panics on invariant violation, which indicates a programming error.
func MustClassify[T any](value *T, c Certainty, source, reason string) Data[T] {
	d, err := Classify(value, c, source, reason)
	if err != nil {
		panic(err)
	}
	return d
}

// ProvenData builds a PROVEN datum from a concrete value and its source.
func ProvenData[T any](value T, source string) Data[T] {
	return MustClassify(&value, Proven, source, "")
}

// InferredData builds an INFERRED datum, noting how it was derived.
func InferredData[T any](value T, source, reason string) Data[T] {
	return MustClassify(&value, Inferred, source, reason)
}

// UnknownData builds an UNKNOWN datum with a mandatory reason and no value.
func UnknownData[T any](reason string) Data[T] {
	return MustClassify[T](nil, Unknown, "", reason)
}

// IsUnknown reports whether the datum could not be established.
func (d Data[T]) IsUnknown() bool { return d.Certainty == Unknown }

// ValueOr returns the wrapped value, or fallback when no value is present.
func (d Data[T]) ValueOr(fallback T) T {
	if d.Value == nil {
		return fallback
	}
	return *d.Value
}

// Evidence records where a piece of data came from. Append-only across a
// request; purely observational and never consulted by control flow.
type Evidence struct {
	Provider  string    `json:"provider"`
	Timestamp time.Time `json:"timestamp"`
	Ref       string    `json:"ref,omitempty"`
	Note      string    `json:"note,omitempty"`
}

// ErrorCode is the closed taxonomy for partial-failure reporting.
type ErrorCode string

const (
	CodeUpstreamTimeout   ErrorCode = "UPSTREAM_TIMEOUT"
	CodeUpstreamError     ErrorCode = "UPSTREAM_ERROR"
	CodeRateLimited       ErrorCode = "RATE_LIMITED"
	CodeUnsupportedSource ErrorCode = "UNSUPPORTED_SOURCE"
	CodeUnsupportedChain  ErrorCode = "UNSUPPORTED_CHAIN"
	CodeInvalidAddress    ErrorCode = "INVALID_ADDRESS"
	CodeMissingAPIKey     ErrorCode = "MISSING_API_KEY"
	CodeParseError        ErrorCode = "PARSE_ERROR"
	CodeInternalError     ErrorCode = "INTERNAL_ERROR"
)

// StructuredError describes the partial failure of one analyzer or provider
// call. It is appended to a request's error list while processing of other
// instances and sources continues.
type StructuredError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Source    string    `json:"source,omitempty"`
	Retryable bool      `json:"retryable"`
	Timestamp time.Time `json:"timestamp"`
}

// NewError builds a StructuredError stamped with the current time.
// Retryable is reserved for transient conditions: timeouts and generic
// upstream failures. Unsupported sources, bad addresses, missing keys and
// parse failures are permanent.
func NewError(code ErrorCode, source, message string) StructuredError {
	return StructuredError{
		Code:      code,
		Message:   message,
		Source:    source,
		Retryable: code == CodeUpstreamTimeout || code == CodeUpstreamError || code == CodeRateLimited,
		Timestamp: time.Now().UTC(),
	}
}

// Error satisfies the error interface so structured errors can travel
// through ordinary error returns at analyzer boundaries.
func (e StructuredError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Code, e.Source, e.Message)
}

// Package tingerr provides the structured error taxonomy shared by every
// ting package: a closed set of error kinds, a severity, and a retryable
// flag that callers switch on instead of string-matching error messages.
package tingerr

import (
	"errors"
	"fmt"
)

// Kind classifies a TingError into one of the outcomes the measurement
// driver and CLI need to branch on.
type Kind string

const (
	// KindConfig marks a malformed or incomplete tingrc/flag configuration.
	KindConfig Kind = "config"
	// KindControllerUnavailable marks a failure to reach or speak to the
	// Tor control port at all (connection refused, protocol mismatch).
	KindControllerUnavailable Kind = "controller_unavailable"
	// KindAuthFailed marks a rejected AUTHENTICATE to the control port.
	KindAuthFailed Kind = "auth_failed"
	// KindCircuitBuildFailed marks a circuit that never reached BUILT
	// within the configured attempt budget.
	KindCircuitBuildFailed Kind = "circuit_build_failed"
	// KindAttachFailed marks a stream that Tor never routed onto the
	// circuit it was attached to.
	KindAttachFailed Kind = "attach_failed"
	// KindProbeFailed marks a single round-trip sample that timed out or
	// returned a malformed echo.
	KindProbeFailed Kind = "probe_failed"
	// KindDecodeError marks a frame that failed wire decoding.
	KindDecodeError Kind = "decode_error"
	// KindConnectionAlreadyExists marks an attempt to reuse a circuit slot
	// that is already occupied by a live connection.
	KindConnectionAlreadyExists Kind = "connection_already_exists"
	// KindShutdownError marks a failure encountered while tearing down
	// resources during a graceful or signal-driven shutdown.
	KindShutdownError Kind = "shutdown_error"
)

// Severity indicates how much of the running program an error affects.
type Severity string

const (
	// SeveritySample discards one round-trip sample; the pair continues.
	SeveritySample Severity = "sample"
	// SeverityPair aborts the current relay pair; the job queue continues.
	SeverityPair Severity = "pair"
	// SeverityFatal stops the whole measurement session.
	SeverityFatal Severity = "fatal"
)

// TingError is the concrete error type every ting package returns for
// failures it wants callers to classify. It wraps an underlying error
// (when there is one) so errors.Is/errors.As keep working across layers.
type TingError struct {
	Kind       Kind
	Severity   Severity
	Message    string
	Underlying error
	Retryable  bool
	Context    map[string]any
}

// Error implements the error interface.
func (e *TingError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped error to errors.Is/errors.As.
func (e *TingError) Unwrap() error {
	return e.Underlying
}

// Is reports whether target is a TingError of the same Kind, so callers
// can write errors.Is(err, &TingError{Kind: KindProbeFailed}).
func (e *TingError) Is(target error) bool {
	t, ok := target.(*TingError)
	if !ok {
		return false
	}
	if t.Kind == "" {
		return true
	}
	return e.Kind == t.Kind
}

// WithContext attaches a key/value pair to the error for logging, and
// returns the same error for chaining.
func (e *TingError) WithContext(key string, value any) *TingError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

func defaultSeverity(k Kind) Severity {
	switch k {
	case KindProbeFailed:
		return SeveritySample
	case KindCircuitBuildFailed, KindAttachFailed, KindDecodeError, KindConnectionAlreadyExists:
		return SeverityPair
	case KindConfig, KindControllerUnavailable, KindAuthFailed:
		return SeverityFatal
	case KindShutdownError:
		return SeverityFatal
	default:
		return SeverityPair
	}
}

// New creates a non-retryable TingError of the given kind.
func New(kind Kind, message string) *TingError {
	return &TingError{Kind: kind, Severity: defaultSeverity(kind), Message: message}
}

// Wrap creates a non-retryable TingError of the given kind around an
// underlying error.
func Wrap(kind Kind, message string, underlying error) *TingError {
	return &TingError{Kind: kind, Severity: defaultSeverity(kind), Message: message, Underlying: underlying}
}

// NewRetryable creates a retryable TingError of the given kind.
func NewRetryable(kind Kind, message string) *TingError {
	return &TingError{Kind: kind, Severity: defaultSeverity(kind), Message: message, Retryable: true}
}

// WrapRetryable creates a retryable TingError of the given kind around an
// underlying error.
func WrapRetryable(kind Kind, message string, underlying error) *TingError {
	return &TingError{Kind: kind, Severity: defaultSeverity(kind), Message: message, Underlying: underlying, Retryable: true}
}

// ConfigError reports a malformed or incomplete configuration.
func ConfigError(message string, underlying error) *TingError {
	return Wrap(KindConfig, message, underlying)
}

// ControllerUnavailableError reports that the Tor control port could not
// be reached. Retryable because the controller may still be starting up.
func ControllerUnavailableError(message string, underlying error) *TingError {
	return WrapRetryable(KindControllerUnavailable, message, underlying)
}

// AuthFailedError reports a rejected control-port authentication.
func AuthFailedError(message string, underlying error) *TingError {
	return Wrap(KindAuthFailed, message, underlying)
}

// CircuitBuildFailedError reports a circuit that never reached BUILT.
// Retryable so the caller's build-attempt loop can decide to try again.
func CircuitBuildFailedError(message string, underlying error) *TingError {
	return WrapRetryable(KindCircuitBuildFailed, message, underlying)
}

// AttachFailedError reports a stream Tor never attached to its circuit.
func AttachFailedError(message string, underlying error) *TingError {
	return WrapRetryable(KindAttachFailed, message, underlying)
}

// ProbeFailedError reports a single failed round-trip sample.
func ProbeFailedError(message string, underlying error) *TingError {
	return WrapRetryable(KindProbeFailed, message, underlying)
}

// DecodeErrorError reports a frame that failed to decode off the wire.
func DecodeErrorError(message string, underlying error) *TingError {
	return Wrap(KindDecodeError, message, underlying)
}

// ConnectionAlreadyExistsError reports an attempt to reuse an occupied
// circuit slot.
func ConnectionAlreadyExistsError(message string) *TingError {
	return New(KindConnectionAlreadyExists, message)
}

// ShutdownErrorError reports a failure encountered during teardown.
func ShutdownErrorError(message string, underlying error) *TingError {
	return Wrap(KindShutdownError, message, underlying)
}

// IsRetryable reports whether err (or any error it wraps) is marked
// retryable.
func IsRetryable(err error) bool {
	var te *TingError
	if errors.As(err, &te) {
		return te.Retryable
	}
	return false
}

// GetKind extracts the Kind from err, or "" if err is not a TingError.
func GetKind(err error) Kind {
	var te *TingError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

// GetSeverity extracts the Severity from err, or "" if err is not a
// TingError.
func GetSeverity(err error) Severity {
	var te *TingError
	if errors.As(err, &te) {
		return te.Severity
	}
	return ""
}

// IsKind reports whether err is a TingError of the given kind.
func IsKind(err error, kind Kind) bool {
	return GetKind(err) == kind
}

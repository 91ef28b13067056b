package voicelane

import (
	"errors"
	"fmt"
)

// Common error variables
var (
	// ErrInvalidConfig is returned when required configuration is missing or
	// malformed. Configuration errors are fatal and never retried.
	ErrInvalidConfig = errors.New("voicelane: invalid configuration")

	// ErrMicrophoneDenied is returned when no local audio input can be
	// acquired, either because the user declined access or no device exists.
	// This failure is surfaced to the operator and not retried automatically.
	ErrMicrophoneDenied = errors.New("voicelane: microphone unavailable or access denied")

	// ErrSessionActive is returned by Start when a session is already running.
	// The orchestrator is single-active-session by design.
	ErrSessionActive = errors.New("voicelane: a session is already active")

	// ErrSessionClosed is returned when sending on a channel that has been
	// torn down.
	ErrSessionClosed = errors.New("voicelane: session is closed")
)

// ConfigurationError reports a missing or invalid configuration input.
// It is fatal: the caller must fix the configuration before retrying.
type ConfigurationError struct {
	Field   string // The configuration field that is invalid
	Value   string // The invalid value (if safe to log)
	Message string // Detailed error message
}

func (e *ConfigurationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("voicelane: invalid config field %q (value: %q): %s", e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("voicelane: invalid config field %q: %s", e.Field, e.Message)
}

// Is implements error matching for ConfigurationError.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// CredentialError reports a failed exchange with the credential issuance
// endpoint. It is fatal to the current session attempt; the operator may
// retry manually.
type CredentialError struct {
	Status  int    // HTTP status from the remote endpoint, 0 for transport failures
	Message string // Remote error message or local description
	Cause   error  // The underlying error, if any
}

func (e *CredentialError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("voicelane: credential request failed (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("voicelane: credential request failed: %s", e.Message)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *CredentialError) Unwrap() error {
	return e.Cause
}

// TransportError reports a failure while negotiating or operating the audio
// transport. It is fatal to the current session attempt.
type TransportError struct {
	Stage  string // The negotiation stage that failed (e.g. "offer", "exchange")
	Status int    // HTTP status from the negotiation endpoint, if applicable
	Body   string // Up to 200 characters of the remote error body
	Cause  error  // The underlying error, if any
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("voicelane: transport %s failed (status %d): %s", e.Stage, e.Status, e.Body)
	}
	return fmt.Sprintf("voicelane: transport %s failed: %v", e.Stage, e.Cause)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// ToolResolutionError reports a tool call for which no webhook is bound.
// It is recoverable: the session continues and the model is informed.
type ToolResolutionError struct {
	Tool string // The tool name the model invoked
}

func (e *ToolResolutionError) Error() string {
	return fmt.Sprintf("voicelane: no webhook configured for tool %q", e.Tool)
}

// WebhookDispatchError reports a failed webhook invocation. It is
// recoverable: the failure is relayed to the model and the session continues.
type WebhookDispatchError struct {
	URL    string // The webhook URL that was invoked
	Status int    // HTTP status, 0 for network failures
	Reason string // Description of the failure
}

func (e *WebhookDispatchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("voicelane: webhook dispatch to %s failed: HTTP %d", e.URL, e.Status)
	}
	return fmt.Sprintf("voicelane: webhook dispatch to %s failed: %s", e.URL, e.Reason)
}

// Helper functions for creating specific errors

// NewConfigurationError creates a new configuration error.
func NewConfigurationError(field, value, message string) *ConfigurationError {
	return &ConfigurationError{Field: field, Value: value, Message: message}
}

// NewCredentialError creates a new credential exchange error.
func NewCredentialError(status int, message string, cause error) *CredentialError {
	return &CredentialError{Status: status, Message: message, Cause: cause}
}

// NewTransportError creates a new transport negotiation error.
func NewTransportError(stage string, status int, body string, cause error) *TransportError {
	return &TransportError{Stage: stage, Status: status, Body: truncate(body, maxTransportErrorBody), Cause: cause}
}

// maxTransportErrorBody bounds how much of a remote error body a
// TransportError carries.
const maxTransportErrorBody = 200

// Package failure defines the closed set of tagged voice-input failures.
package failure

import (
	"errors"
	"fmt"
)

// Kind tags one failure class. The zero value means "not a tagged failure".
type Kind string

const (
	DeviceUnsupported Kind = "device_unsupported"
	LegacyAPIOnly     Kind = "legacy_api_only"
	InsecureContext   Kind = "insecure_context"
	PermissionDenied  Kind = "permission_denied"
	DeviceNotFound    Kind = "device_not_found"
	DeviceBusy        Kind = "device_busy"
	DeviceError       Kind = "device_error"
	SessionActive     Kind = "session_active"
	CodecUnsupported  Kind = "codec_unsupported"
	AssemblyFailed    Kind = "assembly_failed"
	NetworkFailure    Kind = "network_failure"
	ServerError       Kind = "server_error"
	MalformedResponse Kind = "malformed_response"
)

// Error is a tagged failure value carrying an optional cause.
type Error struct {
	Kind Kind
	// Detail is an optional server- or device-supplied explanation.
	Detail string
	Err    error
}

// New builds a tagged failure wrapping cause.
func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Err: cause}
}

// Newf builds a tagged failure with a formatted cause.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Detail != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: k}) works.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

// Message returns the user-facing, retryable message for this failure.
func (e *Error) Message() string {
	if e.Kind == ServerError && e.Detail != "" {
		return e.Detail
	}
	return Message(e.Kind)
}

// KindOf extracts the failure kind from err, or "" when err is untagged.
func KindOf(err error) Kind {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return ""
}

// Retryable reports whether the user may immediately try again. Every tagged
// failure is non-fatal to the host process.
func Retryable(err error) bool {
	return KindOf(err) != ""
}

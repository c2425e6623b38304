package scan

import "errors"

// FallbackMessage is surfaced when a failure carries no usable detail.
const FallbackMessage = "Scan failed. Please check if the scanning service is running."

// Kind classifies why a submit attempt failed.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindTransport
	KindServer
	KindMalformedResponse
	KindBusy
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransport:
		return "transport"
	case KindServer:
		return "server"
	case KindMalformedResponse:
		return "malformed_response"
	case KindBusy:
		return "busy"
	}
	return "unknown"
}

// Error is returned for every failed submit. Message is the text shown to
// the operator; Err, when set, is the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String() + " error"
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrValidation        = &Error{Kind: KindValidation, Message: "Please enter a URL"}
	ErrTransport         = &Error{Kind: KindTransport}
	ErrServer            = &Error{Kind: KindServer}
	ErrMalformedResponse = &Error{Kind: KindMalformedResponse, Message: "Invalid response structure from server"}
	ErrBusy              = &Error{Kind: KindBusy, Message: "A scan is already in progress"}
)

// KindOf returns the kind of err, or 0 if err is not a scan error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

// Message returns the operator-facing text for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) {
		if se.Message != "" {
			return se.Message
		}
		if se.Err != nil && se.Err.Error() != "" {
			return se.Err.Error()
		}
		return FallbackMessage
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return FallbackMessage
}

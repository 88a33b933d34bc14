package imagepkg

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dustin/go-humanize"
)

// Kind classifies why a load failed.
type Kind int

const (
	KindNone Kind = iota
	KindInvalidURL
	KindDisallowedType
	KindTimeout
	KindNetwork
	KindHTTPStatus
	KindNotAnImage
	KindTooLarge
	KindDecode
	KindUnexpected
)

var kindNames = map[Kind]string{
	KindNone:           "none",
	KindInvalidURL:     "invalid_url",
	KindDisallowedType: "disallowed_type",
	KindTimeout:        "timeout",
	KindNetwork:        "network_error",
	KindHTTPStatus:     "http_error",
	KindNotAnImage:     "not_an_image",
	KindTooLarge:       "too_large",
	KindDecode:         "decode_error",
	KindUnexpected:     "unexpected",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the single error type produced by every pipeline stage.
type Error struct {
	Kind   Kind
	Status int   // HTTP status for KindHTTPStatus
	Limit  int64 // size budget for KindTooLarge
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindHTTPStatus:
		return fmt.Sprintf("%s: status %d", e.Kind, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so callers can write errors.Is(err, &Error{Kind: KindTimeout}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Message returns the short status line shown to the user.
func (e *Error) Message() string {
	switch e.Kind {
	case KindInvalidURL:
		return "Invalid URL format."
	case KindDisallowedType:
		return "URL must point to an image file (.jpg, .png, .gif, etc.)"
	case KindTimeout:
		return "Request timed out. Please try again."
	case KindNetwork:
		if e.Err != nil {
			return "Network Error: " + e.Err.Error()
		}
		return "Network Error."
	case KindHTTPStatus:
		return fmt.Sprintf("Network Error: HTTP %d %s", e.Status, http.StatusText(e.Status))
	case KindNotAnImage:
		return "URL does not point to an image."
	case KindTooLarge:
		if e.Limit > 0 {
			return "Image too large. Maximum size: " + humanize.IBytes(uint64(e.Limit))
		}
		return "Image too large."
	case KindDecode:
		return "Failed to load image. Unsupported format or corrupt data."
	default:
		if e.Err != nil {
			return "An unexpected error occurred: " + e.Err.Error()
		}
		return "An unexpected error occurred."
	}
}

// KindOf reports the Kind carried by err, KindUnexpected for foreign
// errors and KindNone for nil.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func asError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindUnexpected, Err: err}
}

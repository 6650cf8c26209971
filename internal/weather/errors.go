package weather

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when geocoding yields no match.
	ErrNotFound = errors.New("city not found")

	// ErrConfig is returned before any network call when the API key is missing.
	ErrConfig = errors.New("weather API key is not configured: set OPENWEATHER_API_KEY")

	// ErrUpstream matches every *UpstreamError via errors.Is.
	ErrUpstream = errors.New("upstream error")
)

// UpstreamError is a transport, HTTP or payload failure. Message carries the
// upstream-provided text when there was one.
type UpstreamError struct {
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	return e.Message
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// NewUpstreamError wraps cause, preferring the upstream message over fallback.
func NewUpstreamError(upstreamMsg, fallback string, cause error) *UpstreamError {
	msg := upstreamMsg
	if msg == "" {
		msg = fallback
	}
	return &UpstreamError{Message: msg, Err: cause}
}

// Message returns the user-facing text for a gateway error.
func Message(err error) string {
	var up *UpstreamError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &up):
		return up.Message
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConfig):
		return unwrapSentinel(err).Error()
	default:
		return fmt.Sprint(err)
	}
}

func unwrapSentinel(err error) error {
	for _, s := range []error{ErrNotFound, ErrConfig} {
		if errors.Is(err, s) {
			return s
		}
	}
	return err
}

var (
	// ErrEmptyName is returned when a city is added with a blank name.
	ErrEmptyName = errors.New("please enter a city name")

	// ErrUnknownCity is returned for operations on a city that is not tracked.
	ErrUnknownCity = errors.New("city is not tracked")
)

package provider

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	ErrUnknownEndpoint = errors.New("provider: unknown endpoint")

	ErrClient      = errors.New("provider: client error")
	ErrServer      = errors.New("provider: server error")
	ErrTimeout     = errors.New("provider: timeout")
	ErrRateLimited = errors.New("provider: rate limited")
)

// Error is a non-success outcome surfaced to the caller, either immediately
// (client error, rate limited) or after the retry ceiling.
type Error struct {
	Kind     Kind
	Endpoint string
	Path     string
	Status   int
	Body     string // abbreviated
	Attempts int
	Err      error // transport error, if any
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s%s", e.Kind, e.Endpoint, e.Path)
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	} else if e.Body != "" {
		b.WriteString(": ")
		b.WriteString(e.Body)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrClient:
		return e.Kind == KindClientError
	case ErrServer:
		return e.Kind == KindServerError
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrRateLimited:
		return e.Kind == KindRateLimited
	}
	return false
}

// IsRetryable reports whether err is a transient provider failure.
// Callers above the client use it to decide between retrying a cycle and giving up.
func IsRetryable(err error) bool {
	var pe *Error
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Kind.Retryable()
}

func abbreviate(body []byte, n int) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}

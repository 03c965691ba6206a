package annotate

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/inodb/cardiovar/internal/rest"
)

// Kind classifies why a source produced no data.
type Kind int

const (
	// NetworkFailure covers connection errors, timeouts and non-404 HTTP errors.
	NetworkFailure Kind = iota
	// MalformedResponse means the body was not the expected shape.
	MalformedResponse
	// ShapeMismatch means the body parsed but its dimensions were wrong.
	ShapeMismatch
	// NotFound means a well-formed response carried no record.
	NotFound
)

func (k Kind) String() string {
	switch k {
	case NetworkFailure:
		return "network_failure"
	case MalformedResponse:
		return "malformed_response"
	case ShapeMismatch:
		return "shape_mismatch"
	case NotFound:
		return "not_found"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the failure of a single adapter call.
type Error struct {
	Source Source // empty until the fetcher attributes the failure
	Kind   Kind
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.Source != "" {
		msg = string(e.Source) + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a bare kind sentinel such as ErrNotFound.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Err == nil && t.Source == "" && t.Kind == e.Kind
}

// Errorf builds an Error of the given kind.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// ErrNotFound is returned when a source has no record for the query.
var ErrNotFound = &Error{Kind: NotFound}

// Classify maps an error to its Kind. Errors that are already *Error keep
// their kind; transport errors are classified by cause.
func Classify(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	var se *rest.StatusError
	if errors.As(err, &se) {
		if se.StatusCode == http.StatusNotFound {
			return NotFound
		}
		return NetworkFailure
	}
	if errors.Is(err, rest.ErrDecode) {
		return MalformedResponse
	}
	// Timeouts, cancellation and connection errors.
	return NetworkFailure
}

// Wrap classifies a transport error and returns it as an *Error.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: Classify(err), Err: err}
}

// attribute returns err as an *Error carrying the source name.
func attribute(s Source, err error) error {
	if err == nil {
		return nil
	}
	if ae, ok := err.(*Error); ok {
		c := *ae
		c.Source = s
		return &c
	}
	return &Error{Source: s, Kind: Classify(err), Err: err}
}

package codec

import (
	"errors"
	"fmt"
	"strings"
)

// NoCodecError reports that no codec could be derived for a declared type.
// It carries the nested field path that defeated derivation, innermost
// element first. This error is raised at schema-registration time and the
// service must not start when it occurs.
type NoCodecError struct {
	// Direction is "deserializer" or "serializer".
	Direction string

	// Trace is the nested path to the offending type, innermost first.
	// Callers prepend their own context via AddTrace while unwinding.
	Trace []string
}

// AddTrace records enclosing context (outermost first in the argument list)
// and returns the error for chaining.
func (e *NoCodecError) AddTrace(parents ...string) *NoCodecError {
	for i := len(parents) - 1; i >= 0; i-- {
		e.Trace = append(e.Trace, parents[i])
	}
	return e
}

// Error renders the trace outermost-first.
func (e *NoCodecError) Error() string {
	path := make([]string, len(e.Trace))
	for i, p := range e.Trace {
		path[len(e.Trace)-1-i] = p
	}
	return fmt.Sprintf("cannot derive %s for: %s", e.Direction, strings.Join(path, "."))
}

func noCodec(direction, leaf string) *NoCodecError {
	return &NoCodecError{Direction: direction, Trace: []string{leaf}}
}

// ValueError reports a request-time shape mismatch: the supplied value does
// not match its otherwise derivable type. It is recoverable and maps to a
// bad-request response at the API boundary.
type ValueError struct {
	Msg string
}

func (e *ValueError) Error() string { return e.Msg }

func valueErrorf(format string, args ...any) *ValueError {
	return &ValueError{Msg: fmt.Sprintf(format, args...)}
}

// IsValueError reports whether err is (or wraps) a request-time ValueError.
func IsValueError(err error) bool {
	var ve *ValueError
	return errors.As(err, &ve)
}

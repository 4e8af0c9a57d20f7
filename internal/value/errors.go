// Package value defines the tagged-union Value type, Row, and the
// closed error-kind taxonomy shared across every MoteDB component.
package value

import "fmt"

// Kind is the closed set of error categories a MoteDB operation can fail
// with. Callers that need to distinguish failure modes switch on Kind
// rather than matching error strings.
type Kind int

const (
	KindUnknown Kind = iota
	KindIO
	KindSerialization
	KindCorruption
	KindFileNotFound
	KindInvalidData
	KindResourceExhausted
	KindLock
	KindIndex
	KindQuery
	KindParseError
	KindTypeError
	KindColumnNotFound
	KindTableNotFound
	KindUnknownFunction
	KindDivisionByZero
	KindNotImplemented
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "Io"
	case KindSerialization:
		return "Serialization"
	case KindCorruption:
		return "Corruption"
	case KindFileNotFound:
		return "FileNotFound"
	case KindInvalidData:
		return "InvalidData"
	case KindResourceExhausted:
		return "ResourceExhausted"
	case KindLock:
		return "Lock"
	case KindIndex:
		return "Index"
	case KindQuery:
		return "Query"
	case KindParseError:
		return "ParseError"
	case KindTypeError:
		return "TypeError"
	case KindColumnNotFound:
		return "ColumnNotFound"
	case KindTableNotFound:
		return "TableNotFound"
	case KindUnknownFunction:
		return "UnknownFunction"
	case KindDivisionByZero:
		return "DivisionByZero"
	case KindNotImplemented:
		return "NotImplemented"
	default:
		return "Unknown"
	}
}

// Error is the error type returned by every fallible MoteDB operation.
// Op names the failing operation (e.g. "memtable.put", "manifest.commit")
// for log correlation; Err carries the wrapped cause, if any.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a *Error with the same Kind, so callers
// can write errors.Is(err, value.New(value.KindCorruption, "", "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an *Error with the given kind, operation, and message.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap constructs an *Error wrapping an underlying cause.
func Wrap(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// Sentinel errors for errors.Is matching against a specific kind without
// needing an Op/Msg.
var (
	ErrCorruption        = &Error{Kind: KindCorruption}
	ErrFileNotFound      = &Error{Kind: KindFileNotFound}
	ErrInvalidData       = &Error{Kind: KindInvalidData}
	ErrResourceExhausted = &Error{Kind: KindResourceExhausted}
	ErrLock              = &Error{Kind: KindLock}
)

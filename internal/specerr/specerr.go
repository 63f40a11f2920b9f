// Package specerr defines the three error kinds raised while compiling a
// connection request: wrong argument types, disallowed keys or key
// combinations, and rule/shape violations.
//
// Every error produced by the compiler is a *Error. Callers branch on the
// kind with errors.Is against the package sentinels:
//
//	if errors.Is(err, specerr.ErrDomain) { ... }
package specerr

import (
	"errors"
	"fmt"
)

// Kind classifies a compile failure.
type Kind int

const (
	// TypeKind is a wrong argument type: a bad population handle, an
	// unconvertible identifier list, a bad spec container or missing
	// spatial metadata.
	TypeKind Kind = iota + 1
	// ValueKind is a semantically disallowed key or key combination.
	ValueKind
	// DomainKind is a rule/shape mismatch or a rule the requested path
	// cannot serve.
	DomainKind
)

// String returns the lower-case name used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case TypeKind:
		return "type"
	case ValueKind:
		return "value"
	case DomainKind:
		return "domain"
	default:
		return "unknown"
	}
}

var (
	// ErrType matches every TypeKind error.
	ErrType = errors.New("type error")
	// ErrValue matches every ValueKind error.
	ErrValue = errors.New("value error")
	// ErrDomain matches every DomainKind error.
	ErrDomain = errors.New("domain error")
)

// Error carries enough context to fix the request without reading source:
// the operation that failed, the offending key (if any) and a message.
type Error struct {
	Kind Kind
	Op   string // e.g. "conn_spec", "syn_spec", "spatial", "connect"
	Key  string
	Msg  string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := e.Kind.String() + " error"
	if e.Op != "" {
		prefix = e.Op + ": " + prefix
	}
	msg := prefix + ": " + e.Msg
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrType:
		return e.Kind == TypeKind
	case ErrValue:
		return e.Kind == ValueKind
	case ErrDomain:
		return e.Kind == DomainKind
	}
	return false
}

// Typef builds a TypeKind error.
func Typef(op, key, format string, args ...any) *Error {
	return &Error{Kind: TypeKind, Op: op, Key: key, Msg: fmt.Sprintf(format, args...)}
}

// Valuef builds a ValueKind error.
func Valuef(op, key, format string, args ...any) *Error {
	return &Error{Kind: ValueKind, Op: op, Key: key, Msg: fmt.Sprintf(format, args...)}
}

// Domainf builds a DomainKind error.
func Domainf(op, key, format string, args ...any) *Error {
	return &Error{Kind: DomainKind, Op: op, Key: key, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or 0 when
// err was not produced by this package.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

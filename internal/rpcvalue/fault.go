// Package rpcvalue implements the XML-RPC value type system: the tagged
// value variant, its shared-ownership bookkeeping, the fault carrier every
// fallible operation reports through, the append-only byte buffer the
// codec writes into, and the format-string builder/accessor pair used to
// construct and inspect values.
package rpcvalue

import "fmt"

// Code is the error taxonomy fallible operations report. It is a kind, not
// a Go error type: operations set a Fault by reference rather than
// returning one, because that mirrors the wire fault struct XML-RPC itself
// carries.
type Code int32

const (
	// CodeNone means no fault has been recorded.
	CodeNone Code = 0
	// CodeTypeError means the wrong variant was used, or a variant is
	// disallowed by the active dialect.
	CodeTypeError Code = 1
	// CodeIndexError means an array index was out of range.
	CodeIndexError Code = 2
	// CodeNoSuchMember means a struct member name was not found.
	CodeNoSuchMember Code = 3
	// CodeParseError means the codec could not decode XML.
	CodeParseError Code = 4
	// CodeLimitExceeded means a size or depth limit was hit.
	CodeLimitExceeded Code = 5
	// CodeInternalError means allocation or another local failure occurred.
	CodeInternalError Code = 6
	// CodeNetworkError means a socket wait/read/write failed, or the peer
	// identity could not be resolved.
	CodeNetworkError Code = 7
	// CodeTimeout means a deadline was reached without progress.
	CodeTimeout Code = 8
)

func (c Code) String() string {
	switch c {
	case CodeNone:
		return "none"
	case CodeTypeError:
		return "TYPE_ERROR"
	case CodeIndexError:
		return "INDEX_ERROR"
	case CodeNoSuchMember:
		return "NO_SUCH_MEMBER"
	case CodeParseError:
		return "PARSE_ERROR"
	case CodeLimitExceeded:
		return "LIMIT_EXCEEDED"
	case CodeInternalError:
		return "INTERNAL_ERROR"
	case CodeNetworkError:
		return "NETWORK_ERROR"
	case CodeTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN_ERROR"
	}
}

// Fault is the carrier every fallible codec/value operation is passed by
// reference. Setting a fault is sticky: once Fail is true, Set is a no-op,
// so the first fault recorded is the one callers observe.
type Fault struct {
	Fail    bool
	Code    Code
	Message string
}

// NewFault returns a clean (no-fault) environment.
func NewFault() *Fault {
	return &Fault{}
}

// Set records a fault if none is already recorded. Later calls after the
// first are ignored: first fault wins.
func (f *Fault) Set(code Code, format string, args ...any) {
	if f.Fail {
		return
	}
	f.Fail = true
	f.Code = code
	f.Message = fmt.Sprintf(format, args...)
}

// Clear resets the fault to its initial state.
func (f *Fault) Clear() {
	f.Fail = false
	f.Code = CodeNone
	f.Message = ""
}

// Error implements the error interface so a Fault can be handed to Go code
// that expects one, at the boundary between the wire world and idiomatic
// Go (internal/registry, internal/xmlrpcclient).
func (f *Fault) Error() string {
	if !f.Fail {
		return ""
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

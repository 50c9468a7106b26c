package gendas

import (
	"fmt"
	"strings"
)

// Kind tags a gendas Error with one of the taxonomy entries from spec.md §7.
// It is not a replacement for Go's usual error wrapping (E keeps the cause in
// Error.Err, and source/blob.go adds github.com/pkg/errors stack traces); it
// exists so callers can ask "was this a ConfigError?" without
// string-matching a message.
type Kind int

const (
	// Other is the zero Kind: an error with no particular taxonomy entry.
	Other Kind = iota
	// ConfigError: missing file, unknown source type, malformed section.
	ConfigError
	// SchemaError: unknown column name, missing required coordinate column.
	SchemaError
	// IndexMissing: groupby on a column without a group index.
	IndexMissing
	// QueryFailure: source-level failure on a single range query.
	QueryFailure
	// UnsizedView: len/count requested on a merge view without iterating.
	UnsizedView
	// WorkerFailure: an exception inside a worker.
	WorkerFailure
	// CancellationCleanup: caller abandoned a streaming generator.
	CancellationCleanup
)

func (k Kind) String() string {
	switch k {
	case ConfigError:
		return "ConfigError"
	case SchemaError:
		return "SchemaError"
	case IndexMissing:
		return "IndexMissing"
	case QueryFailure:
		return "QueryFailure"
	case UnsizedView:
		return "UnsizedView"
	case WorkerFailure:
		return "WorkerFailure"
	case CancellationCleanup:
		return "CancellationCleanup"
	default:
		return "Error"
	}
}

// Error is a Kind-tagged error, modeled on the errors.E(err, "context", ...)
// call shape used throughout grailbio/bio (encoding/fasta/index.go,
// encoding/fastq/downsample.go, encoding/pam/pamutil/index.go).
type Error struct {
	Kind Kind
	Args []interface{}
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Kind != Other {
		b.WriteString(e.Kind.String())
		b.WriteString(": ")
	}
	parts := make([]string, 0, len(e.Args))
	for _, a := range e.Args {
		parts = append(parts, fmt.Sprint(a))
	}
	b.WriteString(strings.Join(parts, " "))
	if e.Err != nil {
		if len(parts) > 0 {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap lets errors.Is/errors.As see through to the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// E builds a gendas.Error. Arguments are interpreted the same way as
// grailbio/bio's errors.E: a leading error is the wrapped cause, a leading
// Kind tags the taxonomy entry, everything else is joined into the message.
func E(args ...interface{}) error {
	e := &Error{}
	for _, arg := range args {
		switch v := arg.(type) {
		case Kind:
			e.Kind = v
		case error:
			e.Err = v
		default:
			e.Args = append(e.Args, arg)
		}
	}
	return e
}

// NotSupported builds the error a Source returns from an operation its
// backing format has no sensible implementation for (e.g. Query/Intersect
// on source.MemoryRows), the Go analogue of the original's
// NotImplementedError on PandasSource.query/intersect.
func NotSupported(op string) error {
	return E(Other, fmt.Sprintf("operation not supported: %s", op))
}

// Is reports whether err is (or wraps) a gendas.Error of the given Kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		if ge, ok := err.(*Error); ok {
			if ge.Kind == kind {
				return true
			}
			err = ge.Err
			continue
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

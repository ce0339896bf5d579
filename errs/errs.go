// Package errs defines the error taxonomy shared by every vecforge package.
//
// Each failure class has a sentinel that callers match with errors.Is. The
// constructors wrap that sentinel in a coded, contextual error (samber/oops)
// carrying the operation name and the offending parameter, path or byte
// offset, so configuration mistakes, data corruption and environment
// failures can be told apart without parsing messages.
package errs

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier of an error class.
type Code string

const (
	CodeConfigInvalid          Code = "config.invalid"
	CodeResourceExhausted      Code = "resource.exhausted"
	CodeStateInvalid           Code = "state.invalid"
	CodeTransferUnsupported    Code = "transfer.unsupported"
	CodeIOFailure              Code = "io.failure"
	CodeFormatCorrupt          Code = "format.corrupt"
	CodeQueryDimensionMismatch Code = "query.dimension_mismatch"
	CodeQueryEmptyIndex        Code = "query.empty_index"
	CodeJobNotFound            Code = "job.not_found"
)

var (
	// ErrConfiguration reports invalid parameters detected before any work starts.
	ErrConfiguration = errors.New("configuration error")
	// ErrResourceExhausted reports that device or host memory could not be reserved.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrInvalidState reports an operation invoked in the wrong lifecycle order.
	ErrInvalidState = errors.New("invalid state")
	// ErrUnsupportedConversion reports an accelerator graph with no portable equivalent.
	ErrUnsupportedConversion = errors.New("unsupported conversion")
	// ErrIO reports a filesystem or object storage failure.
	ErrIO = errors.New("i/o error")
	// ErrCorruptFormat reports malformed or unrecognized persisted bytes.
	ErrCorruptFormat = errors.New("corrupt format")
	// ErrDimensionMismatch reports a vector whose length differs from the index dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrEmptyIndex is returned when searching an index that holds no vectors.
	ErrEmptyIndex = errors.New("index is empty")
	// ErrNotFound reports a missing job or blob.
	ErrNotFound = errors.New("not found")
)

// Attr is a structured key/value attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error attribute.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func Op(name string) Attr      { return Field("op", name) }
func Param(name string) Attr   { return Field("param", name) }
func Path(path string) Attr    { return Field("path", path) }
func Section(name string) Attr { return Field("section", name) }

// DimensionMismatchError carries the expected and actual vector lengths.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *DimensionMismatchError) Is(target error) bool { return target == ErrDimensionMismatch }

// CorruptFormatError locates the first byte that could not be decoded.
type CorruptFormatError struct {
	Section string
	Offset  int64
	Err     error
}

func (e *CorruptFormatError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("corrupt format in %s at offset %d", e.Section, e.Offset)
	}
	return fmt.Sprintf("corrupt format in %s at offset %d: %v", e.Section, e.Offset, e.Err)
}

func (e *CorruptFormatError) Is(target error) bool { return target == ErrCorruptFormat }

func (e *CorruptFormatError) Unwrap() error { return e.Err }

// Configuration reports an invalid parameter of op.
func Configuration(op, param, format string, args ...any) error {
	return build(CodeConfigInvalid, ErrConfiguration, []Attr{Op(op), Param(param)}, format, args...)
}

// ResourceExhausted reports that requested bytes of resource could not be reserved.
func ResourceExhausted(op, resource string, requested, available int64, cause error) error {
	attrs := []Attr{Op(op), Field("resource", resource), Field("requested", requested), Field("available", available)}
	sentinel := ErrResourceExhausted
	if cause != nil {
		sentinel = fmt.Errorf("%w: %w", ErrResourceExhausted, cause)
	}
	return build(CodeResourceExhausted, sentinel, attrs, "%s: cannot reserve %d bytes (%d available)", resource, requested, available)
}

// InvalidState reports an operation invoked out of lifecycle order.
func InvalidState(op, format string, args ...any) error {
	return build(CodeStateInvalid, ErrInvalidState, []Attr{Op(op)}, format, args...)
}

// UnsupportedConversion reports a graph variant that cannot leave its device.
func UnsupportedConversion(op, format string, args ...any) error {
	return build(CodeTransferUnsupported, ErrUnsupportedConversion, []Attr{Op(op)}, format, args...)
}

// IO wraps a filesystem or storage failure on path.
func IO(op, path string, cause error) error {
	if cause == nil {
		return nil
	}
	return build(CodeIOFailure, fmt.Errorf("%w: %w", ErrIO, cause), []Attr{Op(op), Path(path)}, "%s %s", op, path)
}

// CorruptFormat reports undecodable bytes in section at offset.
func CorruptFormat(section string, offset int64, cause error) error {
	cf := &CorruptFormatError{Section: section, Offset: offset, Err: cause}
	return build(CodeFormatCorrupt, cf, []Attr{Section(section), Field("offset", offset)}, "load")
}

// DimensionMismatch reports a vector of length actual where expected was required.
func DimensionMismatch(op string, expected, actual int) error {
	dm := &DimensionMismatchError{Expected: expected, Actual: actual}
	return build(CodeQueryDimensionMismatch, dm, []Attr{Op(op), Field("expected", expected), Field("actual", actual)}, "%s", op)
}

// EmptyIndex reports a search against an index without vectors.
func EmptyIndex(op string) error {
	return build(CodeQueryEmptyIndex, ErrEmptyIndex, []Attr{Op(op)}, "%s", op)
}

// NotFound reports a missing entity of the given kind.
func NotFound(op, kind, id string) error {
	return build(CodeJobNotFound, ErrNotFound, []Attr{Op(op), Field("kind", kind), Field("id", id)}, "%s %q", kind, id)
}

// With attaches additional attributes to err, keeping its code.
func With(err error, attrs ...Attr) error {
	if err == nil {
		return nil
	}
	return oops.Code(string(CodeOf(err))).With(flatten(attrs)...).Wrap(err)
}

func build(code Code, cause error, attrs []Attr, format string, args ...any) error {
	return oops.Code(string(code)).With(flatten(attrs)...).Wrapf(cause, format, args...)
}

func flatten(attrs []Attr) []any {
	kv := make([]any, 0, len(attrs)*2)
	for _, a := range attrs {
		kv = append(kv, a.Key, a.Value)
	}
	return kv
}

// CodeOf returns the code of the outermost coded error in err's chain.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	if oopsErr.Code() == nil {
		return ""
	}
	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

// FieldsOf returns the structured attributes attached to err.
func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}
	return oopsErr.Context()
}

// HasCode reports whether err carries code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// HTTPStatus maps an error to the status code the build service reports.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrDimensionMismatch):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrEmptyIndex):
		return http.StatusConflict
	case errors.Is(err, ErrResourceExhausted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

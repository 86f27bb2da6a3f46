package face

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every public engine operation returns nil or an error that
// matches exactly one of these with errors.Is.
var (
	ErrDecode            = errors.New("image could not be decoded")
	ErrMultipleFaces     = errors.New("multiple faces detected")
	ErrEncodingFailed    = errors.New("face encoding failed")
	ErrModel             = errors.New("face model error")
	ErrStorage           = errors.New("gallery storage error")
	ErrNotFound          = errors.New("identity not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrCorruptRecord     = errors.New("corrupt gallery record")
)

// Kind is the stable, wire-level name of an error class.
type Kind string

const (
	KindNone              Kind = ""
	KindDecode            Kind = "decode_error"
	KindMultipleFaces     Kind = "multiple_faces"
	KindEncodingFailed    Kind = "encoding_failed"
	KindModel             Kind = "model_error"
	KindStorage           Kind = "storage_error"
	KindNotFound          Kind = "not_found"
	KindInvalidInput      Kind = "invalid_input"
	KindDimensionMismatch Kind = "dimension_mismatch"
	KindInternal          Kind = "internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrDecode, KindDecode},
	{ErrMultipleFaces, KindMultipleFaces},
	{ErrEncodingFailed, KindEncodingFailed},
	{ErrModel, KindModel},
	// Corrupt records surface through storage.
	{ErrCorruptRecord, KindStorage},
	{ErrStorage, KindStorage},
	{ErrNotFound, KindNotFound},
	{ErrDimensionMismatch, KindDimensionMismatch},
	{ErrInvalidInput, KindInvalidInput},
}

// KindOf maps err to its Kind. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// Error wraps errors with operation context.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("faceid.%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with operation context.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

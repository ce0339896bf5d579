package vecforge

import "github.com/hupe1980/vecforge/errs"

// Sentinels matched with errors.Is. See package errs for the coded forms.
var (
	ErrConfiguration         = errs.ErrConfiguration
	ErrResourceExhausted     = errs.ErrResourceExhausted
	ErrInvalidState          = errs.ErrInvalidState
	ErrUnsupportedConversion = errs.ErrUnsupportedConversion
	ErrIO                    = errs.ErrIO
	ErrCorruptFormat         = errs.ErrCorruptFormat
	ErrDimensionMismatch     = errs.ErrDimensionMismatch
	ErrEmptyIndex            = errs.ErrEmptyIndex
	ErrNotFound              = errs.ErrNotFound
)

type (
	// CorruptFormatError locates undecodable bytes in a serialized index.
	CorruptFormatError = errs.CorruptFormatError
	// DimensionMismatchError reports a query of the wrong length.
	DimensionMismatchError = errs.DimensionMismatchError
)

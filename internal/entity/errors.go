package entity

import "errors"

var (
	// Batch errors
	ErrNoInput       = errors.New("no file provided")
	ErrCountExceeded = errors.New("too many files in batch")

	// File errors
	ErrTooLarge        = errors.New("file exceeds size limit")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrEncode          = errors.New("encoding failed")
	ErrAborted         = errors.New("file was not processed")

	// Request errors
	ErrInvalidQuality = errors.New("invalid quality")
	ErrInvalidMode    = errors.New("invalid compression type")
	ErrInvalidFormat  = errors.New("invalid output format")

	// General errors
	ErrInternal = errors.New("internal error")
)

type FailureKind string

const (
	FailureTooLarge        FailureKind = "too_large"
	FailureUnsupportedType FailureKind = "unsupported_type"
	FailureEncode          FailureKind = "encode_error"
	FailureInternal        FailureKind = "internal_error"
	FailureAborted         FailureKind = "aborted"
)

// FailureKindOf classifies a per-file error. Unknown errors are internal.
func FailureKindOf(err error) FailureKind {
	switch {
	case errors.Is(err, ErrTooLarge):
		return FailureTooLarge
	case errors.Is(err, ErrUnsupportedType):
		return FailureUnsupportedType
	case errors.Is(err, ErrEncode):
		return FailureEncode
	case errors.Is(err, ErrAborted):
		return FailureAborted
	default:
		return FailureInternal
	}
}

// Err returns the sentinel error matching the kind.
func (k FailureKind) Err() error {
	switch k {
	case FailureTooLarge:
		return ErrTooLarge
	case FailureUnsupportedType:
		return ErrUnsupportedType
	case FailureEncode:
		return ErrEncode
	case FailureAborted:
		return ErrAborted
	default:
		return ErrInternal
	}
}

// IsValidation reports whether the error is the caller's fault.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrNoInput, ErrCountExceeded, ErrTooLarge, ErrUnsupportedType,
		ErrInvalidQuality, ErrInvalidMode, ErrInvalidFormat,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

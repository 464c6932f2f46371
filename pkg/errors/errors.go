// Package errors wraps github.com/go-errors/errors so that every error created
// inside the module carries a stack trace, while remaining compatible with the
// standard library's errors.Is / errors.As matching.
package errors

import (
	stderrors "errors"
	"fmt"

	goerrors "github.com/go-errors/errors"
)

// Error kinds surfaced by the core. Callers match them with Is.
var (
	// ErrInvalidProof marks proof-integrity failures: a malformed branch/leaf
	// record or a hash mismatch while replaying a proof.
	ErrInvalidProof = stderrors.New("invalid proof")
	// ErrSigning marks key, randomness or verification failures.
	ErrSigning = stderrors.New("signing error")
	// ErrEncoding marks content that is not valid UTF-8 or base64url.
	ErrEncoding = stderrors.New("encoding error")
	// ErrInvariant marks internal shape violations (malformed nodes, nil items).
	ErrInvariant = stderrors.New("internal invariant violated")
	// ErrUnsupportedFormat marks a transaction format other than 1 or 2.
	ErrUnsupportedFormat = stderrors.New("unsupported transaction format")
	// ErrDataTooLarge marks inputs whose offsets do not fit in a u32 note.
	ErrDataTooLarge = stderrors.New("data too large")
	// ErrInvalidTransaction marks a transaction that fails structural validation.
	ErrInvalidTransaction = stderrors.New("invalid transaction")
)

// New returns an error with the supplied message and the caller's stack.
func New(text string) error {
	return goerrors.Wrap(stderrors.New(text), 1)
}

// Errorf formats according to a format specifier (including %w) and records
// the caller's stack.
func Errorf(format string, args ...any) error {
	return goerrors.Wrap(fmt.Errorf(format, args...), 1)
}

// Wrap annotates err with msg. It returns nil when err is nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return goerrors.Wrap(fmt.Errorf("%s: %w", msg, err), 1)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return stderrors.As(err, target) }

// Unwrap returns the result of calling the Unwrap method on err.
func Unwrap(err error) error { return stderrors.Unwrap(err) }

// Join returns an error that wraps the given errors.
func Join(errs ...error) error { return stderrors.Join(errs...) }

// ErrorStack returns the error message followed by the recorded stack trace,
// or just the message when err carries no stack.
func ErrorStack(err error) string {
	if err == nil {
		return ""
	}
	var e *goerrors.Error
	if stderrors.As(err, &e) {
		return e.ErrorStack()
	}
	return err.Error()
}

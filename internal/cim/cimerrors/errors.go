// Package cimerrors defines the error kinds raised while parsing a CIM
// repository. FormatError is fatal to the current decode call; the rest
// are non-fatal and simply cause the caller to skip or return no result.
package cimerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// FormatError indicates a structural violation while decoding a page,
// header or footer: a signature mismatch, a short read, or a field that
// does not fit its declared layout. It is fatal for the current decode
// call; callers performing a traversal may choose to warn and skip.
type FormatError struct {
	// Offset is the file offset at which decoding was attempted.
	Offset int64
	// Step names the sub-step that failed, e.g. "page header", "key blob".
	Step string
	cause error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("format error at offset 0x%08x in %s: %v", e.Offset, e.Step, e.cause)
}

func (e *FormatError) Unwrap() error { return e.cause }

// NewFormatError wraps cause with offset/step context and a stack trace.
func NewFormatError(offset int64, step string, cause error) *FormatError {
	return &FormatError{Offset: offset, Step: step, cause: errors.WithStack(cause)}
}

// MissingPage indicates a logical page resolved to an unallocated or
// out-of-range physical page. Non-fatal: traversal skips it, record
// retrieval returns no record.
type MissingPage struct {
	LogicalPage uint32
}

func (e *MissingPage) Error() string {
	return fmt.Sprintf("logical page %d is unallocated or out of range", e.LogicalPage)
}

// RecordNotFound indicates no descriptor on the located page matches the
// requested identifier/size. Non-fatal: retrieval returns no record.
type RecordNotFound struct {
	Identifier uint32
	Size       uint32
}

func (e *RecordNotFound) Error() string {
	return fmt.Sprintf("no object descriptor for identifier %d size %d", e.Identifier, e.Size)
}

// LocatorError indicates a key's final segment is not of the form
// NAME.PAGE.ID.SIZE with decimal integers. Non-fatal: retrieval returns
// no record.
type LocatorError struct {
	Key    string
	Reason string
}

func (e *LocatorError) Error() string {
	return fmt.Sprintf("invalid locator in key %q: %s", e.Key, e.Reason)
}

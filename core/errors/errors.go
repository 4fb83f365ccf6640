// Package errors provides standardized error types and helpers for the
// RetroLink codebase. The taxonomy mirrors the failure modes of binary
// container translation: truncated input, malformed containers,
// recognized-but-unhandled constructs, and broken cross-references.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the translation engine's failure taxonomy
var (
	// ErrTruncatedInput indicates a buffer shorter than a field or structure requires
	ErrTruncatedInput = errors.New("truncated input")
	// ErrMalformedContainer indicates bad magic, inconsistent self-described sizes,
	// or an index that does not match container contents
	ErrMalformedContainer = errors.New("malformed container")
	// ErrUnsupportedVariant indicates a recognized but unhandled architecture,
	// relocation kind, or section type
	ErrUnsupportedVariant = errors.New("unsupported variant")
	// ErrReferentialIntegrity indicates a relocation or symbol pointing outside
	// the module's own tables
	ErrReferentialIntegrity = errors.New("referential integrity violation")
	// ErrOutOfBounds indicates a seek past the end of a buffer
	ErrOutOfBounds = errors.New("out of bounds")
)

// TruncatedError reports a read that would cross the end of the input buffer.
type TruncatedError struct {
	Structure string // What was being read (e.g., "section header", "xref pair")
	Offset    int    // Buffer offset where the read started
	Need      int    // Bytes required
	Have      int    // Bytes remaining
}

func (e *TruncatedError) Error() string {
	if e.Structure != "" {
		return fmt.Sprintf("truncated input reading %s at offset %d: need %d bytes, have %d",
			e.Structure, e.Offset, e.Need, e.Have)
	}
	return fmt.Sprintf("truncated input at offset %d: need %d bytes, have %d", e.Offset, e.Need, e.Have)
}

func (e *TruncatedError) Unwrap() error {
	return ErrTruncatedInput
}

// MalformedError reports a structurally invalid container with context.
type MalformedError struct {
	Container string // Container kind (e.g., "ELF object", "MWOB library")
	Location  string // Where in the container (e.g., "header", "member 2")
	Message   string // What is wrong
	Err       error  // Underlying error, if any
}

func (e *MalformedError) Error() string {
	if e.Location != "" {
		return fmt.Sprintf("malformed %s at %s: %s", e.Container, e.Location, e.Message)
	}
	return fmt.Sprintf("malformed %s: %s", e.Container, e.Message)
}

func (e *MalformedError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrMalformedContainer
}

// UnsupportedError reports a recognized construct the engine refuses to
// approximate. The engine fails closed on these rather than guessing.
type UnsupportedError struct {
	Construct string // What was encountered (e.g., "relocation kind", "machine")
	Value     string // The offending value, already formatted
	Err       error  // Underlying error, if any
}

func (e *UnsupportedError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("unsupported %s: %s", e.Construct, e.Value)
	}
	return fmt.Sprintf("unsupported %s", e.Construct)
}

func (e *UnsupportedError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrUnsupportedVariant
}

// ReferenceError reports a cross-reference pointing outside the module's
// own tables (symbol index, section index, patch range).
type ReferenceError struct {
	Kind    string // Referencing entity (e.g., "relocation", "symbol")
	Index   int    // Position of the referencing entity in its table
	Message string // What reference is broken
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s %d: %s", e.Kind, e.Index, e.Message)
}

func (e *ReferenceError) Unwrap() error {
	return ErrReferentialIntegrity
}

// Helper functions for creating common errors

// NewTruncated creates a TruncatedError.
func NewTruncated(structure string, offset, need, have int) *TruncatedError {
	return &TruncatedError{
		Structure: structure,
		Offset:    offset,
		Need:      need,
		Have:      have,
	}
}

// NewMalformed creates a MalformedError.
func NewMalformed(container, location, message string) *MalformedError {
	return &MalformedError{
		Container: container,
		Location:  location,
		Message:   message,
	}
}

// NewUnsupported creates an UnsupportedError.
func NewUnsupported(construct, value string) *UnsupportedError {
	return &UnsupportedError{
		Construct: construct,
		Value:     value,
	}
}

// NewReference creates a ReferenceError.
func NewReference(kind string, index int, message string) *ReferenceError {
	return &ReferenceError{
		Kind:    kind,
		Index:   index,
		Message: message,
	}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

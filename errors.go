package astrodb

import (
	"errors"
	"fmt"

	"github.com/hupe1980/astrodb/blobstore"
	"github.com/hupe1980/astrodb/record"
	"github.com/hupe1980/astrodb/schema"
)

var (
	// ErrClosed is returned when an operation is attempted on a closed
	// Library, Database or Table.
	ErrClosed = errors.New("astrodb: closed")

	// ErrNotFound unifies lookup failures: missing catalog files,
	// missing manifest entries, out-of-range record references.
	ErrNotFound = errors.New("astrodb: not found")

	// ErrSchema unifies schema layout violations: out-of-bounds or
	// overlapping destinations, duplicate symbols, malformed groups.
	ErrSchema = errors.New("astrodb: invalid schema")

	// ErrConversion unifies per-field conversion failures. Import runs
	// absorb these into the run summary; callers see them only from
	// custom converters and from search literal parsing.
	ErrConversion = errors.New("astrodb: conversion failed")
)

// ErrOpenFailure indicates a library, database or table could not be
// opened: an unusable path, a missing catalog file, a corrupt record
// file or a schema sidecar that no longer matches the manifest.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrOpenFailure struct {
	Path  string
	cause error
}

func (e *ErrOpenFailure) Error() string {
	return fmt.Sprintf("open failure: %s", e.Path)
}

func (e *ErrOpenFailure) Unwrap() error { return e.cause }

// ErrCapacityExceeded indicates a Database already holds its configured
// maximum of open tables.
type ErrCapacityExceeded struct {
	Capacity int
	cause    error
}

func (e *ErrCapacityExceeded) Error() string {
	return fmt.Sprintf("capacity exceeded: %d tables open", e.Capacity)
}

func (e *ErrCapacityExceeded) Unwrap() error { return e.cause }

// ErrConstraint indicates invalid spatial or magnitude bounds, or an
// invalid configuration parameter.
type ErrConstraint struct {
	Reason string
	cause  error
}

func (e *ErrConstraint) Error() string {
	return fmt.Sprintf("invalid constraint: %s", e.Reason)
}

func (e *ErrConstraint) Unwrap() error { return e.cause }

// ErrUnknownField indicates a field symbol absent from the bound
// schema was referenced.
type ErrUnknownField struct {
	Symbol string
	cause  error
}

func (e *ErrUnknownField) Error() string {
	return fmt.Sprintf("unknown field: %q", e.Symbol)
}

func (e *ErrUnknownField) Unwrap() error { return e.cause }

// ErrIncompleteExpression indicates a search was executed or folded
// with an unusable expression stack depth. Execution needs exactly one
// node; folding needs at least one.
type ErrIncompleteExpression struct {
	Depth int
	cause error
}

func (e *ErrIncompleteExpression) Error() string {
	return fmt.Sprintf("incomplete expression: stack depth %d", e.Depth)
}

func (e *ErrIncompleteExpression) Unwrap() error { return e.cause }

// ErrImportFailure indicates a fatal import error, or an import-path
// operation attempted in the wrong table state. The table transitions
// to StateFailed and refuses queries until reopened.
type ErrImportFailure struct {
	State ImportState
	cause error
}

func (e *ErrImportFailure) Error() string {
	return fmt.Sprintf("import failure: table state %s", e.State)
}

func (e *ErrImportFailure) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Not found unification.
	if errors.Is(err, blobstore.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	// Schema layout and conversion normalization.
	if errors.Is(err, schema.ErrLayout) || errors.Is(err, record.ErrRecordSize) {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}
	if errors.Is(err, schema.ErrConvert) {
		return fmt.Errorf("%w: %w", ErrConversion, err)
	}

	return err
}

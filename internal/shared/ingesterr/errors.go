// Package ingesterr defines the error taxonomy shared by the ingestion pipeline.
//
// Each concrete error unwraps to a sentinel so callers can classify failures
// with errors.Is, and to its cause so the original error stays inspectable.
package ingesterr

import (
	"errors"
	"fmt"
)

var (
	// ErrNoMatch indicates that a symbol lookup returned no candidates.
	ErrNoMatch = errors.New("no matching symbols")

	// ErrUnparsableRecord indicates that a provider record could not be parsed and was dropped.
	ErrUnparsableRecord = errors.New("unparsable provider record")

	// ErrProviderFetch indicates that a call to the market data provider failed.
	ErrProviderFetch = errors.New("provider fetch failed")

	// ErrPersistence indicates that a database write or read failed.
	ErrPersistence = errors.New("persistence failed")
)

// NoMatchError is returned by the metadata refresher when a query resolves to nothing.
type NoMatchError struct {
	Query string
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("no symbols found for query %q", e.Query)
}

func (e *NoMatchError) Unwrap() error { return ErrNoMatch }

// UnparsableRecordError describes a single provider field that could not be parsed.
type UnparsableRecordError struct {
	Field string
	Value any
	Err   error
}

func (e *UnparsableRecordError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unparsable %s %v: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("unparsable %s %v", e.Field, e.Value)
}

func (e *UnparsableRecordError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUnparsableRecord}
	}
	return []error{ErrUnparsableRecord, e.Err}
}

// ProviderFetchError wraps a failed call to the market data provider for one symbol or query.
type ProviderFetchError struct {
	Op     string // e.g. "lookup", "quote", "historical"
	Symbol string
	Err    error
}

func (e *ProviderFetchError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Symbol, e.Err)
}

func (e *ProviderFetchError) Unwrap() []error { return []error{ErrProviderFetch, e.Err} }

// PersistenceError wraps a failed store operation for one symbol.
type PersistenceError struct {
	Op     string // e.g. "append tick", "bulk append", "upsert metadata"
	Symbol string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Symbol, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

// Fetch wraps err as a ProviderFetchError. A nil err yields nil.
func Fetch(op, symbol string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderFetchError{Op: op, Symbol: symbol, Err: err}
}

// Persist wraps err as a PersistenceError. A nil err yields nil.
func Persist(op, symbol string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Symbol: symbol, Err: err}
}

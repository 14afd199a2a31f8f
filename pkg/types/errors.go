// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
)

// Error taxonomy. Only ErrUnresolvableQuery, ErrAllSourcesUnavailable, and
// ErrRequestCancelled reach callers of the engine; the others are absorbed
// and recorded.
var (
	ErrMalformedQuery        = errors.New("malformed query")
	ErrUnresolvableQuery     = errors.New("unresolvable query: no target entities")
	ErrSourceTimeout         = errors.New("source timeout")
	ErrSourceUnavailable     = errors.New("source unavailable")
	ErrAllSourcesUnavailable = errors.New("all sources unavailable")
	ErrStorageUnavailable    = errors.New("context storage unavailable")
	ErrRequestCancelled      = errors.New("request cancelled")
)

// SourceError is a failure of one sub-query against one source.
type SourceError struct {
	Kind   SourceKind
	Entity string
	Err    error
}

func (e *SourceError) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Kind, e.Entity, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// IsSourceFailure reports whether err is a per-source failure the retriever
// absorbs rather than propagates.
func IsSourceFailure(err error) bool {
	return errors.Is(err, ErrSourceTimeout) ||
		errors.Is(err, ErrSourceUnavailable) ||
		errors.Is(err, ErrMalformedQuery)
}

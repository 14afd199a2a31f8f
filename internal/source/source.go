// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package source adapts each backing data source to one uniform fetch
// contract. Adapters return candidates from a single source and never rank
// across sources.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Adapter is the capability set of a backing source.
//
// Fetch returns the candidates of one sub-query. Failures wrap
// types.ErrSourceUnavailable, types.ErrSourceTimeout, or
// types.ErrMalformedQuery inside a *types.SourceError.
type Adapter interface {
	Kind() types.SourceKind
	Supports(k types.SourceKind) bool
	Fetch(ctx context.Context, sq types.SubQuery) ([]types.Candidate, error)
}

// Set dispatches sub-queries to the first adapter that supports their kind.
type Set struct {
	adapters []Adapter
}

// NewSet returns a Set over adapters. Nil adapters are ignored.
func NewSet(adapters ...Adapter) *Set {
	s := &Set{}
	for _, a := range adapters {
		if a != nil {
			s.adapters = append(s.adapters, a)
		}
	}
	return s
}

// For returns the adapter serving kind k.
func (s *Set) For(k types.SourceKind) (Adapter, bool) {
	for _, a := range s.adapters {
		if a.Supports(k) {
			return a, true
		}
	}
	return nil, false
}

// Kinds lists the kinds served by the set in verifiability order.
func (s *Set) Kinds() []types.SourceKind {
	var kinds []types.SourceKind
	for _, k := range types.AllSourceKinds() {
		if _, ok := s.For(k); ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Fetch runs sq against the adapter serving its kind. A kind with no
// adapter is reported as unavailable.
func (s *Set) Fetch(ctx context.Context, sq types.SubQuery) ([]types.Candidate, error) {
	a, ok := s.For(sq.Kind)
	if !ok {
		return nil, &types.SourceError{Kind: sq.Kind, Entity: sq.Entity,
			Err: fmt.Errorf("no adapter configured: %w", types.ErrSourceUnavailable)}
	}
	return a.Fetch(ctx, sq)
}

// sourceErr wraps err as a failure of sq. Context deadlines become
// ErrSourceTimeout; anything not already classified becomes
// ErrSourceUnavailable.
func sourceErr(ctx context.Context, sq types.SubQuery, err error) error {
	switch {
	case errors.Is(err, types.ErrSourceTimeout),
		errors.Is(err, types.ErrSourceUnavailable),
		errors.Is(err, types.ErrMalformedQuery):
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		err = fmt.Errorf("%w: %w", types.ErrSourceTimeout, err)
	default:
		err = fmt.Errorf("%w: %w", types.ErrSourceUnavailable, err)
	}
	return &types.SourceError{Kind: sq.Kind, Entity: sq.Entity, Err: err}
}

func malformed(sq types.SubQuery, format string, args ...any) error {
	return &types.SourceError{Kind: sq.Kind, Entity: sq.Entity,
		Err: fmt.Errorf("%w: %s", types.ErrMalformedQuery, fmt.Sprintf(format, args...))}
}

// snippet trims text to at most n bytes on a word boundary, or on a rune
// boundary when the first n bytes hold no space.
func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= n {
		return text
	}
	cut := strings.LastIndexByte(text[:n], ' ')
	if cut <= 0 {
		cut = n
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
	}
	return text[:cut] + "..."
}

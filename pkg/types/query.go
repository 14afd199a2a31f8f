// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the evidence engine:
// queries and sub-queries, candidates and evidence sets, client context,
// configuration, and the error taxonomy.
package types

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SourceKind identifies a category of backing data source.
type SourceKind string

const (
	SourceStructured SourceKind = "structured_records"
	SourceDocuments  SourceKind = "document_index"
	SourceLiveSignal SourceKind = "live_signal"
)

// AllSourceKinds returns every source kind in verifiability order.
func AllSourceKinds() []SourceKind {
	return []SourceKind{SourceStructured, SourceDocuments, SourceLiveSignal}
}

// Priority orders source kinds by verifiability. Lower is more verifiable;
// unknown kinds sort last.
func (k SourceKind) Priority() int {
	switch k {
	case SourceStructured:
		return 0
	case SourceDocuments:
		return 1
	case SourceLiveSignal:
		return 2
	default:
		return 3
	}
}

// Valid reports whether k is one of the known source kinds.
func (k SourceKind) Valid() bool {
	return k.Priority() < 3
}

// ParseSourceKind accepts the canonical names and the short aliases
// "structured", "documents", and "live".
func ParseSourceKind(s string) (SourceKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "structured_records", "structured", "records":
		return SourceStructured, nil
	case "document_index", "documents", "docs":
		return SourceDocuments, nil
	case "live_signal", "live", "signals":
		return SourceLiveSignal, nil
	}
	return "", fmt.Errorf("unknown source kind %q", s)
}

// SortKinds sorts kinds in place by verifiability priority.
func SortKinds(kinds []SourceKind) {
	sort.Slice(kinds, func(i, j int) bool {
		return kinds[i].Priority() < kinds[j].Priority()
	})
}

// Intent is the category of question a query asks.
type Intent string

const (
	IntentFundamental     Intent = "fundamental"
	IntentTechnical       Intent = "technical"
	IntentNews            Intent = "news"
	IntentPortfolioImpact Intent = "portfolio_impact"
)

// Depth selects how much evidence each source contributes.
type Depth string

const (
	DepthQuick         Depth = "quick"
	DepthStandard      Depth = "standard"
	DepthComprehensive Depth = "comprehensive"
)

// Valid reports whether d is one of the known depths.
func (d Depth) Valid() bool {
	switch d {
	case DepthQuick, DepthStandard, DepthComprehensive:
		return true
	}
	return false
}

// ParseDepth parses a depth name. Empty means standard.
func ParseDepth(s string) (Depth, error) {
	d := Depth(strings.ToLower(strings.TrimSpace(s)))
	if d == "" {
		return DepthStandard, nil
	}
	if !d.Valid() {
		return "", fmt.Errorf("unknown depth %q", s)
	}
	return d, nil
}

// Query is one incoming research request. It is treated as immutable once
// issued; the engine fills ID and AsOf on a copy when they are empty.
type Query struct {
	// ID uniquely identifies the request. Assigned by the engine if empty.
	ID string `json:"id,omitempty" yaml:"id,omitempty"`

	// RawText is the natural-language question.
	RawText string `json:"raw_text" yaml:"raw_text"`

	// TargetEntities lists ticker symbols supplied by the caller.
	TargetEntities []string `json:"target_entities,omitempty" yaml:"target_entities,omitempty"`

	// ClientID identifies the client whose context personalizes ranking.
	ClientID string `json:"client_id,omitempty" yaml:"client_id,omitempty"`

	// RiskProfile is a tag such as "conservative", "moderate", "aggressive".
	RiskProfile string `json:"risk_profile,omitempty" yaml:"risk_profile,omitempty"`

	// AsOf is the point in time the question is asked about.
	AsOf time.Time `json:"as_of" yaml:"as_of"`

	// Depth selects per-source result limits. Empty means standard.
	Depth Depth `json:"depth,omitempty" yaml:"depth,omitempty"`
}

// SubQuery is one (entity, source kind) unit of work produced by the planner.
type SubQuery struct {
	Kind     SourceKind    `json:"kind" yaml:"kind"`
	Entity   string        `json:"entity" yaml:"entity"`
	Intents  []Intent      `json:"intents" yaml:"intents"`
	Terms    []string      `json:"terms,omitempty" yaml:"terms,omitempty"`
	Limit    int           `json:"limit" yaml:"limit"`
	AsOf     time.Time     `json:"as_of" yaml:"as_of"`
	Window   time.Duration `json:"window,omitempty" yaml:"window,omitempty"`
	Priority float64       `json:"priority" yaml:"priority"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`
}

// HasIntent reports whether the sub-query carries intent i.
func (s SubQuery) HasIntent(i Intent) bool {
	for _, x := range s.Intents {
		if x == i {
			return true
		}
	}
	return false
}

// CacheKey returns a stable key over every field that changes the result of
// a fetch. Priority and Timeout are excluded.
func (s SubQuery) CacheKey() string {
	intents := make([]string, len(s.Intents))
	for i, in := range s.Intents {
		intents[i] = string(in)
	}
	sort.Strings(intents)
	terms := append([]string(nil), s.Terms...)
	sort.Strings(terms)
	return fmt.Sprintf("%s|%s|%s|%s|%d|%s|%d",
		s.Kind, strings.ToUpper(s.Entity),
		strings.Join(intents, ","), strings.Join(terms, ","),
		s.Limit, s.AsOf.UTC().Format(time.RFC3339Nano), int64(s.Window))
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Payload is the content of a candidate. The ranker reads only these fields.
type Payload struct {
	// Text is the snippet shown to the downstream synthesizer.
	Text string `json:"text" yaml:"text"`

	// Numeric holds named numeric facts carried by the candidate.
	Numeric map[string]float64 `json:"numeric,omitempty" yaml:"numeric,omitempty"`

	// Timestamp is when the underlying fact was true or observed.
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`

	// ConfidenceHint is a source-reported match strength in [0,1]; zero
	// means the source did not report one.
	ConfidenceHint float64 `json:"confidence_hint" yaml:"confidence_hint"`
}

// Provenance traces a candidate back to its source record.
type Provenance struct {
	Kind        SourceKind `json:"kind" yaml:"kind"`
	SourceID    string     `json:"source_id" yaml:"source_id"`
	RetrievedAt time.Time  `json:"retrieved_at" yaml:"retrieved_at"`
}

// Valid reports whether the provenance names a known kind and a source id.
func (p Provenance) Valid() bool {
	return p.Kind.Valid() && p.SourceID != ""
}

// Candidate is one unit of retrieved evidence from a single source.
// Candidates are never mutated after an adapter returns them.
type Candidate struct {
	Kind       SourceKind `json:"kind" yaml:"kind"`
	Entity     string     `json:"entity" yaml:"entity"`
	Payload    Payload    `json:"payload" yaml:"payload"`
	Provenance Provenance `json:"provenance" yaml:"provenance"`
}

// DedupKey identifies repeated results from the same source record.
func (c Candidate) DedupKey() string {
	return string(c.Kind) + "|" + c.Provenance.SourceID
}

// ScoredCandidate is the output unit of the ranker.
type ScoredCandidate struct {
	Candidate `yaml:",inline"`

	// Score is the normalized relevance in [0,1].
	Score float64 `json:"score" yaml:"score"`

	// Rank is the 1-based position in the evidence set.
	Rank int `json:"rank" yaml:"rank"`

	// DedupGroup names the group of near-duplicate candidates this one
	// survived from.
	DedupGroup string `json:"dedup_group" yaml:"dedup_group"`

	// Sources lists the candidate's own provenance first, followed by the
	// provenance of every duplicate merged into it.
	Sources []Provenance `json:"sources" yaml:"sources"`
}

// SourceFailure records one failed sub-query.
type SourceFailure struct {
	Kind   SourceKind `json:"kind" yaml:"kind"`
	Entity string     `json:"entity" yaml:"entity"`
	Reason string     `json:"reason" yaml:"reason"`
}

// EvidenceSet is the terminal output of the engine. The caller owns it.
type EvidenceSet struct {
	QueryID          string            `json:"query_id" yaml:"query_id"`
	GeneratedAt      time.Time         `json:"generated_at" yaml:"generated_at"`
	Items            []ScoredCandidate `json:"items" yaml:"items"`
	SourcesConsulted []SourceKind      `json:"sources_consulted" yaml:"sources_consulted"`
	SourcesFailed    []SourceKind      `json:"sources_failed" yaml:"sources_failed"`
	Failures         []SourceFailure   `json:"failures,omitempty" yaml:"failures,omitempty"`

	// LowConfidence is set when too few candidates survived ranking.
	LowConfidence bool `json:"low_confidence" yaml:"low_confidence"`

	// Partial is set when the request was cancelled and the caller opted
	// into best-effort results.
	Partial bool `json:"partial,omitempty" yaml:"partial,omitempty"`
}

// Len returns the number of ranked items.
func (e EvidenceSet) Len() int { return len(e.Items) }

// Consulted reports whether kind k is in SourcesConsulted.
func (e EvidenceSet) Consulted(k SourceKind) bool {
	for _, c := range e.SourcesConsulted {
		if c == k {
			return true
		}
	}
	return false
}

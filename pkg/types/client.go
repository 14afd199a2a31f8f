// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

const (
	// MinPreferenceWeight and MaxPreferenceWeight bound personalization drift.
	MinPreferenceWeight = 0.1
	MaxPreferenceWeight = 3.0

	// NeutralPreferenceWeight is the weight of a source kind for an unseen client.
	NeutralPreferenceWeight = 1.0
)

// ClampWeight clips w to [MinPreferenceWeight, MaxPreferenceWeight].
func ClampWeight(w float64) float64 {
	if w != w { // NaN
		return NeutralPreferenceWeight
	}
	if w < MinPreferenceWeight {
		return MinPreferenceWeight
	}
	if w > MaxPreferenceWeight {
		return MaxPreferenceWeight
	}
	return w
}

// Topic is one entry of a client's recent-topic window.
type Topic struct {
	Name   string    `json:"name" yaml:"name"`
	SeenAt time.Time `json:"seen_at" yaml:"seen_at"`
}

// ClientContext carries the personalization signals for one client.
type ClientContext struct {
	ClientID      string `json:"client_id" yaml:"client_id"`
	RiskTolerance string `json:"risk_tolerance,omitempty" yaml:"risk_tolerance,omitempty"`

	// RecentTopics is ordered most recent first.
	RecentTopics []Topic `json:"recent_topics" yaml:"recent_topics"`

	PreferenceWeights map[SourceKind]float64 `json:"preference_weights" yaml:"preference_weights"`

	Interactions int       `json:"interactions" yaml:"interactions"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
}

// DefaultClientContext returns the context of a client with no history.
func DefaultClientContext(clientID string) ClientContext {
	weights := make(map[SourceKind]float64, 3)
	for _, k := range AllSourceKinds() {
		weights[k] = NeutralPreferenceWeight
	}
	return ClientContext{
		ClientID:          clientID,
		PreferenceWeights: weights,
	}
}

// Weight returns the clipped preference weight for kind k, neutral when unset.
func (c ClientContext) Weight(k SourceKind) float64 {
	w, ok := c.PreferenceWeights[k]
	if !ok {
		return NeutralPreferenceWeight
	}
	return ClampWeight(w)
}

// TopicNames returns the recent topics without timestamps, most recent first.
func (c ClientContext) TopicNames() []string {
	names := make([]string, len(c.RecentTopics))
	for i, t := range c.RecentTopics {
		names[i] = t.Name
	}
	return names
}

// Clone returns a deep copy.
func (c ClientContext) Clone() ClientContext {
	out := c
	out.RecentTopics = append([]Topic(nil), c.RecentTopics...)
	out.PreferenceWeights = make(map[SourceKind]float64, len(c.PreferenceWeights))
	for k, v := range c.PreferenceWeights {
		out.PreferenceWeights[k] = v
	}
	return out
}

// Engagement records that the client used a candidate from a source.
type Engagement struct {
	Kind     SourceKind `json:"kind" yaml:"kind"`
	SourceID string     `json:"source_id,omitempty" yaml:"source_id,omitempty"`
	Score    float64    `json:"score" yaml:"score"`
}

// InteractionSummary is what the caller reports back after a request.
type InteractionSummary struct {
	QueryID       string       `json:"query_id,omitempty" yaml:"query_id,omitempty"`
	Topics        []string     `json:"topics,omitempty" yaml:"topics,omitempty"`
	Engagements   []Engagement `json:"engagements,omitempty" yaml:"engagements,omitempty"`
	RiskTolerance string       `json:"risk_tolerance,omitempty" yaml:"risk_tolerance,omitempty"`
	At            time.Time    `json:"at" yaml:"at"`
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceErrorUnwraps(t *testing.T) {
	err := fmt.Errorf("fetch: %w", &SourceError{Kind: SourceLiveSignal, Entity: "AAPL", Err: ErrSourceTimeout})
	assert.True(t, errors.Is(err, ErrSourceTimeout))
	assert.True(t, IsSourceFailure(err))
	assert.Equal(t, "fetch: live_signal [AAPL]: source timeout", err.Error())

	var se *SourceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, SourceLiveSignal, se.Kind)

	assert.Equal(t, "document_index: source unavailable",
		(&SourceError{Kind: SourceDocuments, Err: ErrSourceUnavailable}).Error())
	assert.False(t, IsSourceFailure(ErrAllSourcesUnavailable))
	assert.False(t, IsSourceFailure(errors.New("boom")))
}

func TestParseSourceKind(t *testing.T) {
	for in, want := range map[string]SourceKind{
		"structured":       SourceStructured,
		" Document_Index ": SourceDocuments,
		"live":             SourceLiveSignal,
	} {
		got, err := ParseSourceKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseSourceKind("rumours")
	assert.Error(t, err)

	kinds := []SourceKind{SourceLiveSignal, SourceStructured, SourceDocuments}
	SortKinds(kinds)
	assert.Equal(t, AllSourceKinds(), kinds)
	assert.False(t, SourceKind("rumours").Valid())
}

func TestParseDepth(t *testing.T) {
	d, err := ParseDepth("")
	require.NoError(t, err)
	assert.Equal(t, DepthStandard, d)

	d, err = ParseDepth("Comprehensive")
	require.NoError(t, err)
	assert.Equal(t, DepthComprehensive, d)

	_, err = ParseDepth("deep")
	assert.Error(t, err)
}

func TestCacheKey(t *testing.T) {
	asOf := time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)
	a := SubQuery{
		Kind: SourceDocuments, Entity: "aapl", Intents: []Intent{IntentNews, IntentFundamental},
		Terms: []string{"tech", "exposure"}, Limit: 3, AsOf: asOf, Priority: 1, Timeout: time.Second,
	}
	b := a
	b.Entity = "AAPL"
	b.Intents = []Intent{IntentFundamental, IntentNews}
	b.Terms = []string{"exposure", "tech"}
	b.Priority = 5
	b.Timeout = time.Minute
	assert.Equal(t, a.CacheKey(), b.CacheKey(), "order, case, priority, and timeout do not change the key")

	c := a
	c.AsOf = asOf.Add(time.Second)
	assert.NotEqual(t, a.CacheKey(), c.CacheKey())

	d := a
	d.Limit = 4
	assert.NotEqual(t, a.CacheKey(), d.CacheKey())

	assert.True(t, a.HasIntent(IntentNews))
	assert.False(t, a.HasIntent(IntentTechnical))
}

func TestClampWeight(t *testing.T) {
	assert.Equal(t, MinPreferenceWeight, ClampWeight(-2))
	assert.Equal(t, MaxPreferenceWeight, ClampWeight(10))
	assert.Equal(t, 1.5, ClampWeight(1.5))
	assert.Equal(t, NeutralPreferenceWeight, ClampWeight(math.NaN()))

	cc := DefaultClientContext("C1")
	cc.PreferenceWeights[SourceDocuments] = 9
	assert.Equal(t, MaxPreferenceWeight, cc.Weight(SourceDocuments))
	delete(cc.PreferenceWeights, SourceLiveSignal)
	assert.Equal(t, NeutralPreferenceWeight, cc.Weight(SourceLiveSignal))
}

func TestClientContextClone(t *testing.T) {
	cc := DefaultClientContext("C1")
	cc.RecentTopics = []Topic{{Name: "aapl"}}

	cp := cc.Clone()
	cp.RecentTopics[0].Name = "msft"
	cp.PreferenceWeights[SourceStructured] = 2

	assert.Equal(t, []string{"aapl"}, cc.TopicNames())
	assert.Equal(t, 1.0, cc.PreferenceWeights[SourceStructured])
}

func TestEvidenceSetHelpers(t *testing.T) {
	set := EvidenceSet{
		Items:            []ScoredCandidate{{}, {}},
		SourcesConsulted: []SourceKind{SourceStructured},
	}
	assert.Equal(t, 2, set.Len())
	assert.True(t, set.Consulted(SourceStructured))
	assert.False(t, set.Consulted(SourceLiveSignal))

	c := Candidate{Kind: SourceDocuments, Provenance: Provenance{Kind: SourceDocuments, SourceID: "documents:x:1"}}
	assert.Equal(t, "document_index|documents:x:1", c.DedupKey())
	assert.True(t, c.Provenance.Valid())
	assert.False(t, Provenance{Kind: SourceDocuments}.Valid())
}

func TestDefaultEngineConfig(t *testing.T) {
	cfg := DefaultEngineConfig()
	assert.Equal(t, 20, cfg.Ranking.MaxResults)
	assert.Equal(t, 3, cfg.Ranking.MinResults)
	assert.Less(t, cfg.Planner.LiveSignalTimeout, cfg.Planner.DefaultTimeout)

	std := cfg.Planner.Depths[DepthStandard]
	assert.Equal(t, 10, std.For(SourceStructured))
	assert.Equal(t, 3, std.For(SourceDocuments))
	assert.Equal(t, 5, std.For(SourceLiveSignal))
	assert.Zero(t, std.For("rumours"))
}

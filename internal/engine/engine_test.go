// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/pdiddy/evidence-engine/internal/registry"
	"github.com/pdiddy/evidence-engine/internal/secrets"
	"github.com/pdiddy/evidence-engine/internal/telemetry"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

var asOf = time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)

// --- test helpers ---

type fetchFunc func(ctx context.Context, sq types.SubQuery) ([]types.Candidate, error)

// fakeSources serves each configured kind with its function.
type fakeSources map[types.SourceKind]fetchFunc

func (f fakeSources) Kinds() []types.SourceKind {
	var out []types.SourceKind
	for _, k := range types.AllSourceKinds() {
		if _, ok := f[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

func (f fakeSources) Fetch(ctx context.Context, sq types.SubQuery) ([]types.Candidate, error) {
	fn, ok := f[sq.Kind]
	if !ok {
		return nil, &types.SourceError{Kind: sq.Kind, Err: types.ErrSourceUnavailable}
	}
	return fn(ctx, sq)
}

var codeWords = []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot"}

func fixed(kind types.SourceKind, n int, hint float64, age time.Duration) fetchFunc {
	return func(_ context.Context, sq types.SubQuery) ([]types.Candidate, error) {
		out := make([]types.Candidate, n)
		for i := range out {
			out[i] = types.Candidate{
				Kind:   kind,
				Entity: sq.Entity,
				Payload: types.Payload{
					Text:           fmt.Sprintf("%s %s finding for %s", kind, codeWords[i], sq.Entity),
					Timestamp:      sq.AsOf.Add(-age * time.Duration(i+1)),
					ConfidenceHint: hint - float64(i)*0.05,
				},
				Provenance: types.Provenance{Kind: kind, SourceID: fmt.Sprintf("%s:%s:%d", kind, sq.Entity, i), RetrievedAt: asOf},
			}
		}
		return out, nil
	}
}

func hangs(ctx context.Context, _ types.SubQuery) ([]types.Candidate, error) {
	<-ctx.Done()
	return nil, &types.SourceError{Kind: types.SourceLiveSignal, Err: fmt.Errorf("%w: %w", types.ErrSourceTimeout, ctx.Err())}
}

func unavailable(_ context.Context, sq types.SubQuery) ([]types.Candidate, error) {
	return nil, &types.SourceError{Kind: sq.Kind, Entity: sq.Entity, Err: types.ErrSourceUnavailable}
}

type failingContexts struct{}

func (failingContexts) LoadClientContext(context.Context, string) (types.ClientContext, bool, error) {
	return types.ClientContext{}, false, errors.New("connection refused")
}

func (failingContexts) SaveClientContext(context.Context, types.ClientContext) error {
	return errors.New("connection refused")
}

func testConfig() types.EngineConfig {
	cfg := types.DefaultEngineConfig()
	cfg.Planner.LiveSignalTimeout = 30 * time.Millisecond
	return cfg
}

func testEngine(t *testing.T, sources fakeSources) (*Engine, *telemetry.Recorder) {
	t.Helper()
	rec := &telemetry.Recorder{}
	e := New(testConfig(), Deps{
		Registry: registry.New([]registry.Entity{
			{Ticker: "AAPL", Name: "Apple Inc.", Aliases: []string{"apple"}},
			{Ticker: "MSFT", Name: "Microsoft Corporation"},
		}),
		Sources:   sources,
		Telemetry: rec,
		Log:       zaptest.NewLogger(t),
	})
	e.Now = func() time.Time { return asOf }
	return e, rec
}

func scenarioSources() fakeSources {
	return fakeSources{
		types.SourceStructured: fixed(types.SourceStructured, 5, 1.0, 24*time.Hour),
		types.SourceDocuments:  fixed(types.SourceDocuments, 3, 0.8, 72*time.Hour),
		types.SourceLiveSignal: hangs,
	}
}

func exposureQuery() types.Query {
	return types.Query{
		ID:             "q-1",
		RawText:        "How is AAPL doing given my tech exposure?",
		TargetEntities: []string{"AAPL"},
		ClientID:       "C1",
		AsOf:           asOf,
	}
}

// --- RetrieveEvidence ---

func TestRetrieveEvidenceLiveSourceTimesOut(t *testing.T) {
	defer goleak.VerifyNone(t)

	e, rec := testEngine(t, scenarioSources())
	set, err := e.RetrieveEvidence(context.Background(), exposureQuery())
	require.NoError(t, err)

	assert.Equal(t, "q-1", set.QueryID)
	assert.Equal(t, asOf, set.GeneratedAt)
	assert.Equal(t, []types.SourceKind{types.SourceStructured, types.SourceDocuments}, set.SourcesConsulted)
	assert.Equal(t, []types.SourceKind{types.SourceLiveSignal}, set.SourcesFailed)
	require.Len(t, set.Failures, 1)
	assert.False(t, set.LowConfidence)
	assert.False(t, set.Partial)

	require.Len(t, set.Items, 8)
	assert.LessOrEqual(t, set.Len(), types.DefaultEngineConfig().Ranking.MaxResults)
	for i, it := range set.Items {
		assert.True(t, set.Consulted(it.Provenance.Kind), "item %d from %s", i, it.Provenance.Kind)
		if i > 0 {
			assert.LessOrEqual(t, it.Score, set.Items[i-1].Score)
		}
	}

	recs := rec.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "q-1", recs[0].QueryID)
	assert.Equal(t, "C1", recs[0].ClientID)
	assert.Equal(t, 8, recs[0].Items)
	assert.Equal(t, []types.SourceKind{types.SourceLiveSignal}, recs[0].SourcesFailed)
	assert.Empty(t, recs[0].Err)
}

func TestRetrieveEvidenceIdempotent(t *testing.T) {
	e, _ := testEngine(t, scenarioSources())
	first, err := e.RetrieveEvidence(context.Background(), exposureQuery())
	require.NoError(t, err)
	second, err := e.RetrieveEvidence(context.Background(), exposureQuery())
	require.NoError(t, err)

	if diff := cmp.Diff(first.Items, second.Items); diff != "" {
		t.Errorf("evidence differs between identical requests (-first +second):\n%s", diff)
	}
	assert.Equal(t, first.SourcesConsulted, second.SourcesConsulted)
	assert.Equal(t, first.SourcesFailed, second.SourcesFailed)
}

func TestRetrieveEvidenceAllSourcesFail(t *testing.T) {
	e, rec := testEngine(t, fakeSources{
		types.SourceStructured: unavailable,
		types.SourceDocuments:  unavailable,
		types.SourceLiveSignal: hangs,
	})
	set, err := e.RetrieveEvidence(context.Background(), exposureQuery())
	assert.ErrorIs(t, err, types.ErrAllSourcesUnavailable)
	assert.Empty(t, set.Items)

	recs := rec.Records()
	require.Len(t, recs, 1)
	assert.Contains(t, recs[0].Err, "all sources unavailable")
}

func TestRetrieveEvidenceUnresolvable(t *testing.T) {
	e, rec := testEngine(t, scenarioSources())
	_, err := e.RetrieveEvidence(context.Background(), types.Query{RawText: "what is the market doing?"})
	assert.ErrorIs(t, err, types.ErrUnresolvableQuery)
	assert.Len(t, rec.Records(), 1)
}

func TestRetrieveEvidenceCancelled(t *testing.T) {
	e, _ := testEngine(t, scenarioSources())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.RetrieveEvidence(ctx, exposureQuery(), BestEffort())
	assert.ErrorIs(t, err, types.ErrRequestCancelled)
}

func TestRetrieveEvidenceFillsDefaults(t *testing.T) {
	e, _ := testEngine(t, scenarioSources())
	e.NewID = func() string { return "generated" }

	set, err := e.RetrieveEvidence(context.Background(), types.Query{RawText: "Apple revenue"})
	require.NoError(t, err)
	assert.Equal(t, "generated", set.QueryID)
	assert.NotEmpty(t, set.Items)
	// Fundamental intent plans no live signal sub-query.
	assert.Empty(t, set.SourcesFailed)
}

func TestRetrieveEvidenceSurvivesContextStoreOutage(t *testing.T) {
	rec := &telemetry.Recorder{}
	e := New(testConfig(), Deps{
		Registry:  registry.New([]registry.Entity{{Ticker: "AAPL", Name: "Apple"}}),
		Sources:   scenarioSources(),
		Contexts:  failingContexts{},
		Telemetry: rec,
		Log:       zaptest.NewLogger(t),
	})
	set, err := e.RetrieveEvidence(context.Background(), exposureQuery())
	require.NoError(t, err)
	assert.NotEmpty(t, set.Items)

	err = e.ReportOutcome(context.Background(), "C1", SummaryFor(exposureQuery(), set, asOf))
	assert.ErrorIs(t, err, types.ErrStorageUnavailable)
}

func TestRetrieveEvidenceWithoutSources(t *testing.T) {
	e := New(testConfig(), Deps{Registry: registry.New([]registry.Entity{{Ticker: "AAPL"}})})
	_, err := e.RetrieveEvidence(context.Background(), exposureQuery())
	assert.ErrorIs(t, err, types.ErrAllSourcesUnavailable)
}

// --- client context ---

func TestUnseenClientAndReportOutcome(t *testing.T) {
	e, _ := testEngine(t, scenarioSources())
	ctx := context.Background()

	cc, err := e.ClientContext(ctx, "new-client")
	require.NoError(t, err)
	for _, k := range types.AllSourceKinds() {
		assert.Equal(t, 1.0, cc.PreferenceWeights[k])
	}

	q := exposureQuery()
	q.ClientID = "new-client"
	set, err := e.RetrieveEvidence(ctx, q)
	require.NoError(t, err)

	summary := SummaryFor(q, set, asOf)
	assert.Equal(t, []string{"AAPL"}, summary.Topics)
	assert.Len(t, summary.Engagements, len(set.Items))
	require.NoError(t, e.ReportOutcome(ctx, "new-client", summary))

	cc, err = e.ClientContext(ctx, "new-client")
	require.NoError(t, err)
	assert.Equal(t, []string{"aapl"}, cc.TopicNames())
	assert.Equal(t, 1, cc.Interactions)
	for _, k := range types.AllSourceKinds() {
		w := cc.PreferenceWeights[k]
		assert.GreaterOrEqual(t, w, types.MinPreferenceWeight)
		assert.LessOrEqual(t, w, types.MaxPreferenceWeight)
	}
	assert.Greater(t, cc.PreferenceWeights[types.SourceStructured], 1.0)
}

func TestPreferenceWeightsReorderEvidence(t *testing.T) {
	sources := fakeSources{
		types.SourceStructured: fixed(types.SourceStructured, 1, 0.6, time.Hour),
		types.SourceDocuments:  fixed(types.SourceDocuments, 1, 0.6, time.Hour),
	}
	e, _ := testEngine(t, sources)
	ctx := context.Background()

	set, err := e.RetrieveEvidence(ctx, exposureQuery())
	require.NoError(t, err)
	require.Len(t, set.Items, 2)
	assert.Equal(t, types.SourceStructured, set.Items[0].Kind)

	for i := 0; i < 10; i++ {
		require.NoError(t, e.ReportOutcome(ctx, "C1", types.InteractionSummary{
			Engagements: []types.Engagement{{Kind: types.SourceDocuments, Score: 1}},
		}))
	}
	set, err = e.RetrieveEvidence(ctx, exposureQuery())
	require.NoError(t, err)
	assert.Equal(t, types.SourceDocuments, set.Items[0].Kind)
}

// --- query files ---

func TestQueryFileRoundTrip(t *testing.T) {
	e, _ := testEngine(t, scenarioSources())
	q := exposureQuery()
	set, err := e.RetrieveEvidence(context.Background(), q)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "aapl.yaml")
	require.NoError(t, WriteQueryFile(path, q, types.DefaultEngineConfig().Ranking, true, set))

	qf, err := ReadQueryFile(path)
	require.NoError(t, err)
	assert.Equal(t, q.RawText, qf.Query.RawText)
	assert.Equal(t, []string{"AAPL"}, qf.Query.TargetEntities)
	assert.True(t, qf.Config.BestEffort)
	assert.Equal(t, 20, qf.Config.MaxResults)
	assert.Equal(t, len(set.Items), qf.Summary.Total)
	assert.Equal(t, []types.SourceKind{types.SourceLiveSignal}, qf.Summary.Failed)
	require.Len(t, qf.Evidence.Items, len(set.Items))
	assert.Equal(t, set.Items[0].Provenance.SourceID, qf.Evidence.Items[0].Provenance.SourceID)
	assert.Equal(t, set.Items[0].Rank, qf.Evidence.Items[0].Rank)
}

func TestReadQueryFileErrors(t *testing.T) {
	_, err := ReadQueryFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

// --- runtime over SQLite ---

func TestRuntimeOverSeededStore(t *testing.T) {
	cfg := types.DefaultEngineConfig()
	cfg.Store.DataDir = t.TempDir()
	ctx := context.Background()

	rt, err := Open(ctx, cfg, secrets.Secrets{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })
	assert.Zero(t, rt.Registry.Len())

	var buf bytes.Buffer
	_, err = rt.Store.IngestFile(ctx, filepath.Join("..", "store", "testdata", "seed.yaml"), &buf)
	require.NoError(t, err)
	require.NoError(t, rt.ReloadRegistry(ctx, cfg.Planner))
	assert.Equal(t, 4, rt.Registry.Len())

	set, err := rt.RetrieveEvidence(ctx, exposureQuery())
	require.NoError(t, err)
	assert.Equal(t, []types.SourceKind{types.SourceStructured, types.SourceDocuments}, set.SourcesConsulted)
	assert.Empty(t, set.SourcesFailed, "live signals are not planned without a feed")
	assert.GreaterOrEqual(t, set.Len(), 3)
	assert.False(t, set.LowConfidence)

	audit, err := rt.Store.RecentAudit(ctx, "C1", 10)
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, "q-1", audit[0].QueryID)
	assert.Equal(t, set.Len(), audit[0].Items)
}

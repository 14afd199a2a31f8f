// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pdiddy/evidence-engine/internal/telemetry"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// --- test helpers ---

func testSetup(t *testing.T) *Store {
	t.Helper()
	s, err := Open(types.StoreConfig{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seededStore(t *testing.T) *Store {
	t.Helper()
	s := testSetup(t)
	var buf bytes.Buffer
	_, err := s.IngestFile(context.Background(), filepath.Join("testdata", "seed.yaml"), &buf)
	require.NoError(t, err)
	return s
}

func date(s string) time.Time {
	t, err := time.Parse(dateFmt, s)
	if err != nil {
		panic(err)
	}
	return t
}

// --- schema ---

func TestOpenCreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(types.StoreConfig{DataDir: filepath.Join(dir, "nested")})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, filepath.Join(dir, "nested", dbFile), s.Path())
	require.NoError(t, s.Ping(context.Background()))
}

func TestReopenKeepsSchema(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(types.StoreConfig{DataDir: dir})
	require.NoError(t, err)
	_, err = s.IngestFile(context.Background(), filepath.Join("testdata", "seed.yaml"), &bytes.Buffer{})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(types.StoreConfig{DataDir: dir})
	require.NoError(t, err)
	defer s.Close()

	hits, err := s.SearchDocuments(context.Background(), DocumentQuery{Terms: []string{"iPhone"}})
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}

// --- ingest ---

func TestIngestSummary(t *testing.T) {
	s := testSetup(t)
	var buf bytes.Buffer
	sum, err := s.IngestFile(context.Background(), filepath.Join("testdata", "seed.yaml"), &buf)
	require.NoError(t, err)

	assert.Equal(t, 4, sum.Companies)
	assert.Equal(t, 13, sum.Fundamentals)
	assert.Equal(t, 4, sum.PriceBars)
	assert.Equal(t, 5, sum.Documents)
	assert.Zero(t, sum.Skipped)
	assert.Equal(t, 26, sum.Total())
	assert.Contains(t, buf.String(), "documents: 5")
}

func TestIngestIdempotent(t *testing.T) {
	s := seededStore(t)
	_, err := s.IngestFile(context.Background(), filepath.Join("testdata", "seed.yaml"), &bytes.Buffer{})
	require.NoError(t, err)

	st, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, st.Companies)
	assert.Equal(t, 13, st.Fundamentals)
	assert.Equal(t, 5, st.Documents)

	// Updated content must stay searchable exactly once.
	hits, err := s.SearchDocuments(context.Background(), DocumentQuery{Terms: []string{"Azure"}})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestIngestSkipsInvalidRows(t *testing.T) {
	s := testSetup(t)
	seed := &Seed{
		Companies: []Company{{Ticker: "", Name: "nameless"}, {Ticker: "nvda", Name: "NVIDIA"}},
		Fundamentals: []Fundamental{
			{Ticker: "NVDA", Metric: "revenue", Value: 1},
			{Ticker: "NVDA", Metric: "revenue", Value: 60.9e9, AsOf: date("2024-01-28")},
		},
		Documents: []Document{{ID: "empty"}},
	}
	var buf bytes.Buffer
	sum, err := s.Ingest(context.Background(), seed, &buf)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Companies)
	assert.Equal(t, 1, sum.Fundamentals)
	assert.Zero(t, sum.Documents)
	assert.Equal(t, 3, sum.Skipped)
	assert.Contains(t, buf.String(), "skipped document")

	companies, err := s.Companies(context.Background())
	require.NoError(t, err)
	require.Len(t, companies, 1)
	assert.Equal(t, "NVDA", companies[0].Ticker)
}

func TestReadSeedMissingFile(t *testing.T) {
	_, err := ReadSeed(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

// --- records ---

func TestCompanies(t *testing.T) {
	s := seededStore(t)
	companies, err := s.Companies(context.Background())
	require.NoError(t, err)
	require.Len(t, companies, 4)

	assert.Equal(t, "AAPL", companies[0].Ticker)
	assert.Equal(t, "Apple Inc.", companies[0].Name)
	assert.Equal(t, []string{"apple"}, companies[0].Aliases)
	assert.Equal(t, "TSLA", companies[3].Ticker)
}

func TestFundamentalsLatestAsOf(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		asOf   time.Time
		wantPE float64
		wantN  int
	}{
		{"latest", time.Time{}, 31.2, 7},
		{"before second pe", date("2024-07-31"), 28.5, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Fundamentals(ctx, FundamentalsQuery{Ticker: "aapl", AsOf: tt.asOf})
			require.NoError(t, err)
			assert.Len(t, got, tt.wantN)

			byMetric := map[string]Fundamental{}
			for _, f := range got {
				byMetric[f.Metric] = f
			}
			assert.Equal(t, tt.wantPE, byMetric["pe_ratio"].Value)
			assert.Equal(t, 394.3e9, byMetric["revenue"].Value)
			assert.Equal(t, "USD", byMetric["revenue"].Unit)
		})
	}
}

func TestFundamentalsMetricFilter(t *testing.T) {
	s := seededStore(t)
	got, err := s.Fundamentals(context.Background(), FundamentalsQuery{
		Ticker:  "AAPL",
		Metrics: []string{"beta", "pe_ratio"},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "beta", got[0].Metric)
	assert.Equal(t, "pe_ratio", got[1].Metric)
	assert.Equal(t, date("2024-09-30"), got[1].AsOf)
}

func TestFundamentalsBeforeAnyData(t *testing.T) {
	s := seededStore(t)
	got, err := s.Fundamentals(context.Background(), FundamentalsQuery{Ticker: "AAPL", AsOf: date("2020-01-01")})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMarketDataNewestFirst(t *testing.T) {
	s := seededStore(t)
	bars, err := s.MarketData(context.Background(), "AAPL", time.Time{}, 2)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, date("2024-09-30"), bars[0].Date)
	assert.Equal(t, date("2024-09-27"), bars[1].Date)
	assert.InDelta(t, 62.3, bars[0].RSI, 1e-9)

	bars, err = s.MarketData(context.Background(), "AAPL", date("2024-09-26"), 0)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.EqualValues(t, 36636700, bars[0].Volume)
}

// --- documents ---

func TestSearchDocumentsTickerFilter(t *testing.T) {
	s := seededStore(t)
	hits, err := s.SearchDocuments(context.Background(), DocumentQuery{
		Terms:  []string{"risk"},
		Ticker: "AAPL",
	})
	require.NoError(t, err)

	ids := map[string]bool{}
	for _, h := range hits {
		ids[h.ID] = true
		assert.True(t, h.Ticker == "AAPL" || h.Collection == CollectionMarketIntelligence, h.ID)
	}
	assert.True(t, ids["aapl_analyst_2024q3"])
	assert.True(t, ids["tech_sector_2024"], "untagged market intelligence matches any ticker")
	assert.False(t, ids["msft_earnings_q4_2023"])
}

func TestSearchDocumentsCollectionsAndBefore(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	hits, err := s.SearchDocuments(ctx, DocumentQuery{
		Terms:       []string{"Apple"},
		Collections: []string{CollectionAnalystReports},
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "aapl_analyst_2024q3", hits[0].ID)
	assert.Equal(t, time.Date(2024, 8, 15, 0, 0, 0, 0, time.UTC), hits[0].PublishedAt)

	hits, err = s.SearchDocuments(ctx, DocumentQuery{
		Terms:  []string{"Apple"},
		Before: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, "aapl_analyst_2024q3", h.ID)
	}
	assert.NotEmpty(t, hits)
}

func TestSearchDocumentsQuotesOperators(t *testing.T) {
	s := seededStore(t)
	_, err := s.SearchDocuments(context.Background(), DocumentQuery{Terms: []string{`NEAR(" OR`, "revenue"}})
	require.NoError(t, err)
}

func TestSearchDocumentsNoTerms(t *testing.T) {
	s := seededStore(t)
	_, err := s.SearchDocuments(context.Background(), DocumentQuery{Terms: []string{" ", ""}})
	assert.Error(t, err)
}

func TestMatchExpression(t *testing.T) {
	assert.Equal(t, `"apple" OR "risk"`, MatchExpression([]string{"apple", " ", "risk"}))
	assert.Equal(t, `"say ""hi"""`, MatchExpression([]string{`say "hi"`}))
	assert.Empty(t, MatchExpression(nil))
}

// --- client contexts ---

func TestClientContextRoundTrip(t *testing.T) {
	s := testSetup(t)
	ctx := context.Background()

	_, found, err := s.LoadClientContext(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, found)

	cc := types.DefaultClientContext("c1")
	cc.RiskTolerance = "moderate"
	cc.RecentTopics = []types.Topic{{Name: "risk", SeenAt: time.Date(2024, 9, 30, 0, 0, 0, 0, time.UTC)}}
	cc.PreferenceWeights[types.SourceDocuments] = 1.4
	cc.Interactions = 3
	cc.UpdatedAt = time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveClientContext(ctx, cc))

	got, found, err := s.LoadClientContext(ctx, "c1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "moderate", got.RiskTolerance)
	assert.Equal(t, 3, got.Interactions)
	assert.Equal(t, 1.4, got.Weight(types.SourceDocuments))
	assert.Equal(t, 1.0, got.Weight(types.SourceStructured))
	assert.Equal(t, []string{"risk"}, got.TopicNames())
	assert.True(t, cc.UpdatedAt.Equal(got.UpdatedAt))

	cc.Interactions = 4
	require.NoError(t, s.SaveClientContext(ctx, cc))
	got, _, err = s.LoadClientContext(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 4, got.Interactions)
}

// --- audit and stats ---

func TestAuditSink(t *testing.T) {
	s := testSetup(t)
	ctx := context.Background()
	sink := NewAuditSink(s, zaptest.NewLogger(t))

	sink.RecordRequest(ctx, telemetry.RequestMetrics{
		QueryID:          "q1",
		ClientID:         "c1",
		SourcesConsulted: []types.SourceKind{types.SourceStructured},
		SourcesFailed:    []types.SourceKind{types.SourceLiveSignal},
		Items:            4,
		Latency:          1500 * time.Microsecond,
	})
	sink.RecordRequest(ctx, telemetry.RequestMetrics{QueryID: "q2", ClientID: "c2", Err: "boom"})

	all, err := s.RecentAudit(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "q2", all[0].QueryID)
	assert.Equal(t, "boom", all[0].Error)
	assert.Empty(t, all[0].SourcesConsulted)

	mine, err := s.RecentAudit(ctx, "c1", 10)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, []types.SourceKind{types.SourceStructured}, mine[0].SourcesConsulted)
	assert.Equal(t, []types.SourceKind{types.SourceLiveSignal}, mine[0].SourcesFailed)
	assert.Equal(t, 4, mine[0].Items)
	assert.InDelta(t, 1.5, mine[0].LatencyMS, 1e-9)
	assert.False(t, mine[0].CreatedAt.IsZero())
}

func TestAuditSinkClosedStoreDoesNotPanic(t *testing.T) {
	s := testSetup(t)
	require.NoError(t, s.Close())
	sink := NewAuditSink(s, nil)
	assert.NotPanics(t, func() {
		sink.RecordRequest(context.Background(), telemetry.RequestMetrics{QueryID: "q"})
	})
}

func TestStats(t *testing.T) {
	s := seededStore(t)
	st, err := s.Stats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, st.PriceBars)
	assert.Equal(t, 3, st.Collections[CollectionCompanyDocs])
	assert.Equal(t, 1, st.Collections[CollectionAnalystReports])
	assert.Equal(t, 1, st.Collections[CollectionMarketIntelligence])
	assert.Zero(t, st.ClientContexts)
	assert.Zero(t, st.AuditRows)
}

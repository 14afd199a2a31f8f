// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

func newRetrieveFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "retrieve"}
	cmd.Flags().StringSlice("entity", nil, "")
	cmd.Flags().String("client", "", "")
	cmd.Flags().String("risk", "", "")
	cmd.Flags().String("depth", "standard", "")
	cmd.Flags().String("as-of", "", "")
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd
}

func TestQueryFromFlags(t *testing.T) {
	cmd := newRetrieveFlags(t, "--entity", "AAPL", "--entity", "MSFT", "--client", "C1",
		"--risk", "moderate", "--depth", "quick", "--as-of", "2024-10-01")

	q, err := queryFromFlags(cmd, []string{"compare", "margins"})
	require.NoError(t, err)
	assert.Equal(t, "compare margins", q.RawText)
	assert.Equal(t, []string{"AAPL", "MSFT"}, q.TargetEntities)
	assert.Equal(t, "C1", q.ClientID)
	assert.Equal(t, "moderate", q.RiskProfile)
	assert.Equal(t, types.DepthQuick, q.Depth)
	assert.Equal(t, time.Date(2024, 10, 1, 23, 59, 59, 0, time.UTC), q.AsOf)
}

func TestQueryFromFlagsErrors(t *testing.T) {
	_, err := queryFromFlags(newRetrieveFlags(t), nil)
	assert.Error(t, err)

	_, err = queryFromFlags(newRetrieveFlags(t, "--depth", "deep"), []string{"AAPL"})
	assert.ErrorContains(t, err, "unknown depth")

	_, err = queryFromFlags(newRetrieveFlags(t, "--as-of", "yesterday"), []string{"AAPL"})
	assert.ErrorContains(t, err, "invalid --as-of")
}

func TestParseAsOf(t *testing.T) {
	got, err := parseAsOf("2024-10-01T09:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 10, 1, 9, 30, 0, 0, time.UTC), got)
}

func TestPrintEvidence(t *testing.T) {
	set := types.EvidenceSet{
		QueryID: "q-1",
		Items: []types.ScoredCandidate{{
			Candidate: types.Candidate{
				Kind:   types.SourceStructured,
				Entity: "AAPL",
				Payload: types.Payload{
					Text:      "AAPL revenue: 394.3 billion USD for fiscal year 2024, up from the prior year",
					Timestamp: time.Date(2024, 9, 28, 0, 0, 0, 0, time.UTC),
				},
			},
			Score:   1,
			Rank:    1,
			Sources: []types.Provenance{{Kind: types.SourceStructured}, {Kind: types.SourceDocuments}},
		}},
		SourcesConsulted: []types.SourceKind{types.SourceStructured, types.SourceDocuments},
		SourcesFailed:    []types.SourceKind{types.SourceLiveSignal},
		Failures:         []types.SourceFailure{{Kind: types.SourceLiveSignal, Entity: "AAPL", Reason: "source timeout"}},
		LowConfidence:    true,
	}

	var buf bytes.Buffer
	printEvidence(&buf, set)
	out := buf.String()
	assert.Contains(t, out, "structured_records+1")
	assert.Contains(t, out, "AAPL revenue: 394.3 billion USD for fiscal year...")
	assert.Contains(t, out, "2024-09-28")
	assert.Contains(t, out, "consulted: structured_records, document_index")
	assert.Contains(t, out, "live_signal AAPL: source timeout")
	assert.Contains(t, out, "low confidence")

	buf.Reset()
	printEvidence(&buf, types.EvidenceSet{})
	assert.Contains(t, buf.String(), "No evidence found.")
	assert.Contains(t, buf.String(), "consulted: none")
}

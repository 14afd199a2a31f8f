// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"sort"
	"time"

	"github.com/pdiddy/evidence-engine/internal/store"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// DocumentSearcher is the read side of the full-text document index.
type DocumentSearcher interface {
	SearchDocuments(ctx context.Context, q store.DocumentQuery) ([]store.DocumentHit, error)
}

const snippetLen = 400

// collectionsByIntent maps an intent to the collections that answer it.
var collectionsByIntent = map[types.Intent][]string{
	types.IntentFundamental:     {store.CollectionCompanyDocs, store.CollectionAnalystReports},
	types.IntentNews:            {store.CollectionMarketIntelligence, store.CollectionAnalystReports},
	types.IntentPortfolioImpact: store.Collections(),
}

// DocumentAdapter answers sub-queries with approximate full-text matches over
// filings, analyst reports, and market intelligence notes.
type DocumentAdapter struct {
	Index DocumentSearcher
	// Now stamps provenance; nil means time.Now.
	Now func() time.Time
}

// Kind returns types.SourceDocuments.
func (a *DocumentAdapter) Kind() types.SourceKind { return types.SourceDocuments }

// Supports reports whether k is the document index kind.
func (a *DocumentAdapter) Supports(k types.SourceKind) bool { return k == types.SourceDocuments }

// Fetch matches sq.Terms against the index, restricted to sq.Entity and to
// the collections of sq.Intents. Documents published after sq.AsOf are
// excluded. Each candidate's confidence hint is its bm25 similarity blended
// with its standing relative to the best hit.
func (a *DocumentAdapter) Fetch(ctx context.Context, sq types.SubQuery) ([]types.Candidate, error) {
	if store.MatchExpression(sq.Terms) == "" {
		return nil, malformed(sq, "document search needs at least one term")
	}
	if sq.Limit < 0 {
		return nil, malformed(sq, "negative limit %d", sq.Limit)
	}

	hits, err := a.Index.SearchDocuments(ctx, store.DocumentQuery{
		Terms:       sq.Terms,
		Ticker:      sq.Entity,
		Collections: collectionsFor(sq.Intents),
		Before:      sq.AsOf,
		Limit:       sq.Limit,
	})
	if err != nil {
		return nil, sourceErr(ctx, sq, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, sourceErr(ctx, sq, err)
	}

	retrievedAt := time.Now()
	if a.Now != nil {
		retrievedAt = a.Now()
	}

	best := 0.0
	for _, h := range hits {
		if h.Rank < best {
			best = h.Rank
		}
	}

	out := make([]types.Candidate, 0, len(hits))
	for _, h := range hits {
		text := h.Content
		if h.Title != "" {
			text = h.Title + ": " + h.Content
		}
		out = append(out, types.Candidate{
			Kind:   types.SourceDocuments,
			Entity: sq.Entity,
			Payload: types.Payload{
				Text:           snippet(text, snippetLen),
				Timestamp:      h.PublishedAt,
				ConfidenceHint: similarity(h.Rank, best),
			},
			Provenance: types.Provenance{
				Kind:        types.SourceDocuments,
				SourceID:    "documents:" + h.Collection + ":" + h.ID,
				RetrievedAt: retrievedAt,
			},
		})
	}
	return out, nil
}

// similarity maps a bm25 rank (lower is better, at most zero) into (0,1].
// Half comes from the absolute score -r/(1-r) and half from the hit's rank
// relative to the best hit of the same result set.
func similarity(rank, best float64) float64 {
	if rank > 0 {
		rank = 0
	}
	abs := -rank / (1 - rank)
	rel := 1.0
	if best < 0 {
		rel = rank / best
	}
	s := 0.5*abs + 0.5*rel
	if s < 0.01 {
		s = 0.01
	}
	if s > 1 {
		s = 1
	}
	return s
}

// collectionsFor returns the union of collections for intents, or nil for
// all collections.
func collectionsFor(intents []types.Intent) []string {
	seen := map[string]bool{}
	for _, in := range intents {
		cs, ok := collectionsByIntent[in]
		if !ok {
			continue
		}
		for _, c := range cs {
			seen[c] = true
		}
	}
	if len(seen) == 0 || len(seen) == len(store.Collections()) {
		return nil
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

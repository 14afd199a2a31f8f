// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/evidence-engine/internal/store"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// RecordsStore is the read side of the structured financial tables.
type RecordsStore interface {
	Fundamentals(ctx context.Context, q store.FundamentalsQuery) ([]store.Fundamental, error)
	MarketData(ctx context.Context, ticker string, asOf time.Time, limit int) ([]store.PriceBar, error)
}

// portfolioMetrics are the fundamentals relevant to portfolio impact.
var portfolioMetrics = []string{"beta", "dividend_yield", "market_cap"}

// RecordsAdapter answers sub-queries from structured financial records with
// exact ticker match and as-of range semantics. Results are deterministic.
type RecordsAdapter struct {
	Store RecordsStore
	// Now stamps provenance; nil means time.Now.
	Now func() time.Time
}

// Kind returns types.SourceStructured.
func (a *RecordsAdapter) Kind() types.SourceKind { return types.SourceStructured }

// Supports reports whether k is the structured records kind.
func (a *RecordsAdapter) Supports(k types.SourceKind) bool { return k == types.SourceStructured }

// Fetch reads fundamentals for fundamental and portfolio intents and market
// data for technical intent. A sub-query without intents reads all
// fundamentals.
func (a *RecordsAdapter) Fetch(ctx context.Context, sq types.SubQuery) ([]types.Candidate, error) {
	if strings.TrimSpace(sq.Entity) == "" {
		return nil, malformed(sq, "structured records need a ticker")
	}
	if sq.Limit < 0 {
		return nil, malformed(sq, "negative limit %d", sq.Limit)
	}

	retrievedAt := a.now()
	var out []types.Candidate

	wantFundamentals := len(sq.Intents) == 0 ||
		sq.HasIntent(types.IntentFundamental) || sq.HasIntent(types.IntentPortfolioImpact)
	if wantFundamentals {
		q := store.FundamentalsQuery{Ticker: sq.Entity, AsOf: sq.AsOf, Limit: sq.Limit}
		if sq.HasIntent(types.IntentPortfolioImpact) && !sq.HasIntent(types.IntentFundamental) && len(sq.Intents) > 0 {
			q.Metrics = portfolioMetrics
		}
		rows, err := a.Store.Fundamentals(ctx, q)
		if err != nil {
			return nil, sourceErr(ctx, sq, err)
		}
		for _, f := range rows {
			out = append(out, fundamentalCandidate(f, retrievedAt))
		}
	}

	if sq.HasIntent(types.IntentTechnical) {
		bars, err := a.Store.MarketData(ctx, sq.Entity, sq.AsOf, sq.Limit)
		if err != nil {
			return nil, sourceErr(ctx, sq, err)
		}
		for _, b := range bars {
			out = append(out, priceBarCandidate(b, retrievedAt))
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, sourceErr(ctx, sq, err)
	}
	return out, nil
}

func (a *RecordsAdapter) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func fundamentalCandidate(f store.Fundamental, retrievedAt time.Time) types.Candidate {
	label := strings.ReplaceAll(f.Metric, "_", " ")
	text := fmt.Sprintf("%s %s: %s as of %s", f.Ticker, label, humanValue(f.Value, f.Unit), f.AsOf.Format("2006-01-02"))
	return types.Candidate{
		Kind:   types.SourceStructured,
		Entity: f.Ticker,
		Payload: types.Payload{
			Text:           text,
			Numeric:        map[string]float64{f.Metric: f.Value},
			Timestamp:      f.AsOf,
			ConfidenceHint: 1.0,
		},
		Provenance: types.Provenance{
			Kind:        types.SourceStructured,
			SourceID:    "records:fundamentals:" + f.Ticker + ":" + f.Metric,
			RetrievedAt: retrievedAt,
		},
	}
}

func priceBarCandidate(b store.PriceBar, retrievedAt time.Time) types.Candidate {
	day := b.Date.Format("2006-01-02")
	text := fmt.Sprintf("%s on %s closed at %s (open %s, high %s, low %s, volume %d)",
		b.Ticker, day, num(b.Close), num(b.Open), num(b.High), num(b.Low), b.Volume)
	numeric := map[string]float64{
		"open": b.Open, "high": b.High, "low": b.Low, "close": b.Close,
		"volume": float64(b.Volume),
	}
	if b.RSI != 0 {
		text += fmt.Sprintf(", RSI %s", num(b.RSI))
		numeric["rsi"] = b.RSI
	}
	if b.MovingAvg50 != 0 && b.MovingAvg200 != 0 {
		text += fmt.Sprintf(", moving averages 50-day %s and 200-day %s", num(b.MovingAvg50), num(b.MovingAvg200))
		numeric["moving_avg_50"] = b.MovingAvg50
		numeric["moving_avg_200"] = b.MovingAvg200
	}
	return types.Candidate{
		Kind:   types.SourceStructured,
		Entity: b.Ticker,
		Payload: types.Payload{
			Text:           text,
			Numeric:        numeric,
			Timestamp:      b.Date,
			ConfidenceHint: 1.0,
		},
		Provenance: types.Provenance{
			Kind:        types.SourceStructured,
			SourceID:    "records:market_data:" + b.Ticker + ":" + day,
			RetrievedAt: retrievedAt,
		},
	}
}

// humanValue renders large amounts with a magnitude word so they read the
// way filings state them.
func humanValue(v float64, unit string) string {
	var s string
	abs := v
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 1e12:
		s = num(v/1e12) + " trillion"
	case abs >= 1e9:
		s = num(v/1e9) + " billion"
	case abs >= 1e6:
		s = num(v/1e6) + " million"
	default:
		s = num(v)
	}
	switch unit {
	case "":
		return s
	case "%":
		return s + "%"
	default:
		return s + " " + unit
	}
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

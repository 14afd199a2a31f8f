// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/evidence-engine/internal/httputil"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// signalsPath is appended to the configured feed URL.
const signalsPath = "/v1/signals"

// SignalAdapter pulls time-windowed market and sentiment signals from an
// HTTP feed. Every candidate carries its observation time and its staleness
// relative to the sub-query's as-of time.
type SignalAdapter struct {
	Client *http.Client
	Config types.SignalsConfig
	// Now stamps provenance and stands in for a zero as-of time; nil means
	// time.Now.
	Now func() time.Time
}

// NewSignalAdapter returns an adapter using cfg. The API key falls back to
// apiKey when cfg carries none.
func NewSignalAdapter(cfg types.SignalsConfig, apiKey string) *SignalAdapter {
	if cfg.APIKey == "" {
		cfg.APIKey = apiKey
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SignalAdapter{Client: &http.Client{Timeout: timeout}, Config: cfg}
}

// Kind returns types.SourceLiveSignal.
func (a *SignalAdapter) Kind() types.SourceKind { return types.SourceLiveSignal }

// Supports reports whether k is the live signal kind.
func (a *SignalAdapter) Supports(k types.SourceKind) bool { return k == types.SourceLiveSignal }

type signalResponse struct {
	Signals []signal `json:"signals"`
}

type signal struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Kind       string    `json:"kind"`
	Headline   string    `json:"headline"`
	Value      *float64  `json:"value"`
	Score      float64   `json:"score"`
	ObservedAt time.Time `json:"observed_at"`
}

// Fetch requests signals for sq.Entity observed in [AsOf-Window, AsOf].
// HTTP 400 and 422 are malformed queries; other non-200 statuses and
// transport errors make the source unavailable; deadlines are timeouts.
func (a *SignalAdapter) Fetch(ctx context.Context, sq types.SubQuery) ([]types.Candidate, error) {
	if strings.TrimSpace(sq.Entity) == "" {
		return nil, malformed(sq, "live signals need a symbol")
	}
	if a.Config.FeedURL == "" {
		return nil, &types.SourceError{Kind: sq.Kind, Entity: sq.Entity,
			Err: fmt.Errorf("no signal feed configured: %w", types.ErrSourceUnavailable)}
	}

	now := a.now()
	to := sq.AsOf
	if to.IsZero() {
		to = now
	}
	window := sq.Window
	if window <= 0 {
		window = 24 * time.Hour
	}
	from := to.Add(-window)

	params := url.Values{
		"symbol": {strings.ToUpper(sq.Entity)},
		"from":   {from.UTC().Format(time.RFC3339)},
		"to":     {to.UTC().Format(time.RFC3339)},
	}
	if sq.Limit > 0 {
		params.Set("limit", strconv.Itoa(sq.Limit))
	}
	reqURL := strings.TrimSuffix(a.Config.FeedURL, "/") + signalsPath + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, malformed(sq, "creating request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	if a.Config.UserAgent != "" {
		req.Header.Set("User-Agent", a.Config.UserAgent)
	}
	if a.Config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.Config.APIKey)
	}

	client := a.Client
	if client == nil {
		client = http.DefaultClient
	}
	retries := a.Config.MaxRetries
	if retries == 0 {
		retries = -1
	}
	resp, err := httputil.DoWithRetry(ctx, client, req, retries)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			err = fmt.Errorf("%w: %w", types.ErrSourceTimeout, err)
		}
		return nil, sourceErr(ctx, sq, fmt.Errorf("signal feed request: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, malformed(sq, "signal feed rejected query: HTTP %d", resp.StatusCode)
	default:
		return nil, sourceErr(ctx, sq, fmt.Errorf("signal feed returned HTTP %d", resp.StatusCode))
	}

	var sr signalResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, sourceErr(ctx, sq, fmt.Errorf("parsing signal feed response: %w", err))
	}

	// Newest first, ties by id.
	sort.SliceStable(sr.Signals, func(i, j int) bool {
		if !sr.Signals[i].ObservedAt.Equal(sr.Signals[j].ObservedAt) {
			return sr.Signals[i].ObservedAt.After(sr.Signals[j].ObservedAt)
		}
		return sr.Signals[i].ID < sr.Signals[j].ID
	})

	var out []types.Candidate
	for _, s := range sr.Signals {
		if s.ID == "" || s.ObservedAt.IsZero() {
			continue
		}
		if s.ObservedAt.After(to) || s.ObservedAt.Before(from) {
			continue
		}
		out = append(out, signalCandidate(s, sq.Entity, to, now))
		if sq.Limit > 0 && len(out) >= sq.Limit {
			break
		}
	}
	return out, nil
}

func (a *SignalAdapter) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func signalCandidate(s signal, entity string, asOf, retrievedAt time.Time) types.Candidate {
	staleness := asOf.Sub(s.ObservedAt)
	numeric := map[string]float64{"staleness_seconds": staleness.Seconds()}

	text := s.Headline
	if s.Value != nil {
		numeric["value"] = *s.Value
		if text == "" {
			text = fmt.Sprintf("%s %s %s", strings.ToUpper(entity), s.Kind, num(*s.Value))
		}
	}
	if text == "" {
		text = fmt.Sprintf("%s %s signal", strings.ToUpper(entity), s.Kind)
	}

	hint := s.Score
	if hint < 0 {
		hint = 0
	}
	if hint > 1 {
		hint = 1
	}

	return types.Candidate{
		Kind:   types.SourceLiveSignal,
		Entity: strings.ToUpper(entity),
		Payload: types.Payload{
			Text:           snippet(text, snippetLen),
			Numeric:        numeric,
			Timestamp:      s.ObservedAt,
			ConfidenceHint: hint,
		},
		Provenance: types.Provenance{
			Kind:        types.SourceLiveSignal,
			SourceID:    "signals:" + s.ID,
			RetrievedAt: retrievedAt,
		},
	}
}

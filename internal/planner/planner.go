// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package planner decomposes a query into per-source sub-queries. Planning
// is pure and deterministic: the same query, client context, and latency
// statistics always produce the same plan.
package planner

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/pdiddy/evidence-engine/internal/registry"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

const maxTerms = 8

// Resolver finds known entities in free text.
type Resolver interface {
	Resolve(text string) []string
}

// LatencySource reports the mean historical fetch latency of a source kind.
type LatencySource interface {
	Mean(k types.SourceKind) (time.Duration, bool)
}

// capabilities is the static intent to source kind table.
var capabilities = map[types.Intent][]types.SourceKind{
	types.IntentFundamental:     {types.SourceStructured, types.SourceDocuments},
	types.IntentTechnical:       {types.SourceStructured, types.SourceLiveSignal},
	types.IntentNews:            {types.SourceLiveSignal, types.SourceDocuments},
	types.IntentPortfolioImpact: {types.SourceStructured, types.SourceDocuments, types.SourceLiveSignal},
}

// intentOrder fixes the order in which intents are reported.
var intentOrder = []types.Intent{
	types.IntentFundamental, types.IntentTechnical, types.IntentNews, types.IntentPortfolioImpact,
}

// intentKeywords maps words and short phrases to intents.
var intentKeywords = map[types.Intent][]string{
	types.IntentFundamental: {
		"revenue", "earnings", "profit", "margin", "margins", "valuation", "p/e", "pe",
		"ratio", "eps", "debt", "cash flow", "balance sheet", "income", "dividend",
		"fundamentals", "fundamental", "growth", "sales",
	},
	types.IntentTechnical: {
		"price", "chart", "trend", "moving average", "rsi", "momentum", "support",
		"resistance", "volume", "technical", "technicals", "breakout", "overbought", "oversold",
	},
	types.IntentNews: {
		"news", "latest", "today", "announcement", "announced", "headline", "headlines",
		"sentiment", "recent", "recently", "outlook", "happening", "doing", "update",
	},
	types.IntentPortfolioImpact: {
		"portfolio", "exposure", "allocation", "risk", "risks", "diversification",
		"diversify", "holdings", "position", "positions", "impact", "hedge", "concentration",
	},
}

// defaultIntents apply when no keyword matches.
var defaultIntents = []types.Intent{types.IntentFundamental, types.IntentNews}

// fallbackTerms seed document search when the question has no usable words.
var fallbackTerms = map[types.Intent][]string{
	types.IntentFundamental:     {"revenue", "earnings"},
	types.IntentNews:            {"outlook"},
	types.IntentPortfolioImpact: {"risk", "exposure"},
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"by": true, "can": true, "did": true, "do": true, "does": true, "for": true, "from": true,
	"given": true, "has": true, "have": true, "how": true, "i": true, "in": true, "is": true,
	"it": true, "its": true, "me": true, "my": true, "of": true, "on": true, "or": true,
	"our": true, "should": true, "so": true, "than": true, "that": true, "the": true,
	"their": true, "this": true, "to": true, "vs": true, "was": true, "we": true, "what": true,
	"when": true, "where": true, "which": true, "who": true, "why": true, "will": true,
	"with": true, "would": true, "you": true, "your": true, "about": true, "any": true,
	"tell": true, "show": true, "give": true, "doing": true,
}

// Planner turns queries into ordered sub-query plans.
type Planner struct {
	Registry Resolver
	Config   types.PlannerConfig
	// Latency breaks ties between equally weighted sources; nil means no
	// history.
	Latency LatencySource
	// Available restricts plans to kinds with a configured adapter; empty
	// means every kind.
	Available []types.SourceKind
}

// New returns a planner over the given registry.
func New(reg Resolver, cfg types.PlannerConfig, latency LatencySource, available ...types.SourceKind) *Planner {
	return &Planner{Registry: reg, Config: cfg, Latency: latency, Available: available}
}

// Plan returns one sub-query per (entity, relevant source kind), ordered by
// client preference weight, then lower mean latency, then verifiability.
// It fails with types.ErrUnresolvableQuery when no entity can be resolved.
func (p *Planner) Plan(q types.Query, cc types.ClientContext) ([]types.SubQuery, error) {
	entities := p.Entities(q)
	if len(entities) == 0 {
		return nil, types.ErrUnresolvableQuery
	}

	intents := Intents(q.RawText)
	kindIntents := p.kindIntents(intents)
	limits := p.depthLimits(q.Depth)
	terms := Terms(q.RawText, entities)
	if len(terms) == 0 {
		terms = termsFor(intents)
	}

	type planned struct {
		sq      types.SubQuery
		entity  int
		latency time.Duration
	}
	var plan []planned
	for ei, entity := range entities {
		for _, kind := range types.AllSourceKinds() {
			ki, ok := kindIntents[kind]
			if !ok {
				continue
			}
			sq := types.SubQuery{
				Kind:     kind,
				Entity:   entity,
				Intents:  ki,
				Limit:    limits.For(kind),
				AsOf:     q.AsOf,
				Priority: cc.Weight(kind),
				Timeout:  p.timeout(kind),
			}
			switch kind {
			case types.SourceDocuments:
				if len(terms) == 0 {
					continue
				}
				sq.Terms = append([]string(nil), terms...)
			case types.SourceLiveSignal:
				sq.Window = p.Config.SignalWindow
			}
			plan = append(plan, planned{sq: sq, entity: ei, latency: p.meanLatency(kind)})
		}
	}

	sort.SliceStable(plan, func(i, j int) bool {
		a, b := plan[i], plan[j]
		if a.sq.Priority != b.sq.Priority {
			return a.sq.Priority > b.sq.Priority
		}
		if a.latency != b.latency {
			return a.latency < b.latency
		}
		if pa, pb := a.sq.Kind.Priority(), b.sq.Kind.Priority(); pa != pb {
			return pa < pb
		}
		return a.entity < b.entity
	})

	if limit := p.Config.MaxSubQueries; limit > 0 && len(plan) > limit {
		plan = plan[:limit]
	}

	out := make([]types.SubQuery, len(plan))
	for i, pl := range plan {
		out[i] = pl.sq
	}
	return out, nil
}

// Entities returns the caller's target entities followed by those resolved
// from the question text, normalized and without duplicates.
func (p *Planner) Entities(q types.Query) []string {
	var out []string
	seen := map[string]bool{}
	add := func(e string) {
		e = registry.NormalizeTicker(e)
		if e != "" && !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	for _, e := range q.TargetEntities {
		add(e)
	}
	if p.Registry != nil {
		for _, e := range p.Registry.Resolve(q.RawText) {
			add(e)
		}
	}
	return out
}

// Intents classifies text with the static keyword table. Text matching no
// keyword gets the default intents.
func Intents(text string) []types.Intent {
	padded := " " + strings.Join(words(text), " ") + " "

	var out []types.Intent
	for _, in := range intentOrder {
		for _, kw := range intentKeywords[in] {
			if strings.Contains(padded, " "+kw+" ") {
				out = append(out, in)
				break
			}
		}
	}
	if len(out) == 0 {
		return append([]types.Intent(nil), defaultIntents...)
	}
	return out
}

// Terms extracts document search terms from text: lower-cased words that
// are neither stopwords nor entity tickers, in order of first appearance.
func Terms(text string, entities []string) []string {
	skip := map[string]bool{}
	for _, e := range entities {
		skip[strings.ToLower(e)] = true
	}
	var out []string
	seen := map[string]bool{}
	for _, w := range words(text) {
		w = strings.TrimPrefix(w, "$")
		if len(w) < 2 || stopwords[w] || skip[w] || seen[w] || isNumber(w) {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if len(out) == maxTerms {
			break
		}
	}
	return out
}

func termsFor(intents []types.Intent) []string {
	var out []string
	for _, in := range intents {
		out = append(out, fallbackTerms[in]...)
	}
	return out
}

// kindIntents maps each relevant, available kind to the intents it serves.
func (p *Planner) kindIntents(intents []types.Intent) map[types.SourceKind][]types.Intent {
	out := make(map[types.SourceKind][]types.Intent)
	for _, in := range intents {
		for _, k := range capabilities[in] {
			if !p.available(k) {
				continue
			}
			out[k] = append(out[k], in)
		}
	}
	return out
}

func (p *Planner) available(k types.SourceKind) bool {
	if len(p.Available) == 0 {
		return true
	}
	for _, a := range p.Available {
		if a == k {
			return true
		}
	}
	return false
}

func (p *Planner) depthLimits(d types.Depth) types.DepthLimits {
	if d == "" {
		d = types.DepthStandard
	}
	if l, ok := p.Config.Depths[d]; ok {
		return l
	}
	if l, ok := types.DefaultDepths()[d]; ok {
		return l
	}
	return types.DefaultDepths()[types.DepthStandard]
}

func (p *Planner) timeout(k types.SourceKind) time.Duration {
	def := p.Config.DefaultTimeout
	if def <= 0 {
		def = 2 * time.Second
	}
	switch k {
	case types.SourceLiveSignal:
		if t := p.Config.LiveSignalTimeout; t > 0 && t < def {
			return t
		}
	case types.SourceDocuments:
		if t := p.Config.DocumentTimeout; t > def {
			return t
		}
	}
	return def
}

// meanLatency returns the recorded mean for k; kinds without history sort
// after measured ones.
func (p *Planner) meanLatency(k types.SourceKind) time.Duration {
	if p.Latency == nil {
		return math.MaxInt64
	}
	if d, ok := p.Latency.Mean(k); ok {
		return d
	}
	return math.MaxInt64
}

// words lower-cases text and splits it on anything but letters, digits,
// and the characters of "p/e", "$1.5" and "brk.b".
func words(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '/' && r != '$' && r != '.'
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.Trim(f, "./"); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func isNumber(w string) bool {
	for _, r := range w {
		if !unicode.IsDigit(r) && r != '.' {
			return false
		}
	}
	return true
}

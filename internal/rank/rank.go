// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package rank scores, deduplicates, and orders candidates from all sources
// into one bounded evidence list. Ranking is pure: output depends only on
// candidate content, the query, and the client context, never on the order
// in which candidates arrived.
package rank

import (
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/pdiddy/evidence-engine/internal/planner"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// minIntrinsic is the floor of the lexical match so candidates sharing no
// words with the question still score above zero.
const minIntrinsic = 0.05

// Ranker applies the relevance model.
type Ranker struct {
	Config types.RankingConfig
}

// New returns a ranker with cfg, filling zero fields from the defaults.
func New(cfg types.RankingConfig) *Ranker {
	def := types.DefaultEngineConfig().Ranking
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = def.MaxResults
	}
	if cfg.MinResults <= 0 {
		cfg.MinResults = def.MinResults
	}
	if cfg.DedupThreshold <= 0 || cfg.DedupThreshold > 1 {
		cfg.DedupThreshold = def.DedupThreshold
	}
	if cfg.StructuredHalfLife <= 0 {
		cfg.StructuredHalfLife = def.StructuredHalfLife
	}
	if cfg.DocumentHalfLife <= 0 {
		cfg.DocumentHalfLife = def.DocumentHalfLife
	}
	if cfg.LiveSignalHalfLife <= 0 {
		cfg.LiveSignalHalfLife = def.LiveSignalHalfLife
	}
	if cfg.UndatedRecency <= 0 || cfg.UndatedRecency > 1 {
		cfg.UndatedRecency = def.UndatedRecency
	}
	return &Ranker{Config: cfg}
}

type scored struct {
	c     types.Candidate
	score float64
	fp    fingerprint
}

// Rank returns the evidence items for candidates. Only Items and
// LowConfidence are set on the returned set; the caller fills the request
// metadata.
func (r *Ranker) Rank(candidates []types.Candidate, q types.Query, cc types.ClientContext) types.EvidenceSet {
	cands := canonical(candidates)
	terms := planner.Terms(q.RawText, q.TargetEntities)

	items := make([]scored, len(cands))
	best := 0.0
	for i, c := range cands {
		raw := intrinsic(c, terms) * r.recency(c, q.AsOf) * cc.Weight(c.Kind)
		items[i] = scored{c: c, score: raw}
		best = math.Max(best, raw)
	}
	for i := range items {
		if best > 0 {
			items[i].score /= best
		} else {
			items[i].score = 0
		}
		items[i].fp = fingerprintOf(items[i].c)
	}
	sort.SliceStable(items, func(i, j int) bool { return less(items[i], items[j]) })

	out := r.dedup(items)
	if len(out) > r.Config.MaxResults {
		out = out[:r.Config.MaxResults]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return types.EvidenceSet{
		Items:         out,
		LowConfidence: len(out) < r.Config.MinResults,
	}
}

// dedup merges near-duplicates into the highest-scoring member of their
// group. items must already be in final order.
func (r *Ranker) dedup(items []scored) []types.ScoredCandidate {
	var (
		out       []types.ScoredCandidate
		survivors []fingerprint
	)
	for _, it := range items {
		merged := false
		for si := range out {
			if !strings.EqualFold(out[si].Entity, it.c.Entity) || distinctRows(out[si].Candidate, it.c) {
				continue
			}
			if similarity(survivors[si], it.fp) >= r.Config.DedupThreshold {
				out[si].Sources = append(out[si].Sources, it.c.Provenance)
				merged = true
				break
			}
		}
		if merged {
			continue
		}
		out = append(out, types.ScoredCandidate{
			Candidate:  it.c,
			Score:      it.score,
			DedupGroup: groupID(it.c),
			Sources:    []types.Provenance{it.c.Provenance},
		})
		survivors = append(survivors, it.fp)
	}
	return out
}

// distinctRows reports whether a and b are different structured records. Each
// record is its own fact however similar its text.
func distinctRows(a, b types.Candidate) bool {
	return a.Kind == types.SourceStructured && b.Kind == types.SourceStructured &&
		a.Provenance.SourceID != b.Provenance.SourceID
}

// recency decays exponentially with the candidate's age at asOf.
func (r *Ranker) recency(c types.Candidate, asOf time.Time) float64 {
	ts := c.Payload.Timestamp
	if ts.IsZero() {
		return r.Config.UndatedRecency
	}
	if asOf.IsZero() {
		return 1
	}
	age := asOf.Sub(ts)
	if age <= 0 {
		return 1
	}
	halfLife := r.Config.HalfLife(c.Kind)
	return math.Exp(-math.Ln2 * float64(age) / float64(halfLife))
}

// intrinsic is the source's confidence hint, or the share of query terms
// found in the candidate text when the source reports none.
func intrinsic(c types.Candidate, terms []string) float64 {
	if h := c.Payload.ConfidenceHint; h > 0 {
		return math.Min(h, 1)
	}
	if len(terms) == 0 {
		return 0.5
	}
	words := map[string]bool{}
	for _, w := range strings.FieldsFunc(strings.ToLower(c.Payload.Text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '/'
	}) {
		words[w] = true
	}
	hit := 0
	for _, t := range terms {
		if words[t] {
			hit++
		}
	}
	return math.Max(float64(hit)/float64(len(terms)), minIntrinsic)
}

// canonical returns a copy of cands in a content-determined order.
func canonical(cands []types.Candidate) []types.Candidate {
	out := append([]types.Candidate(nil), cands...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if pa, pb := a.Kind.Priority(), b.Kind.Priority(); pa != pb {
			return pa < pb
		}
		if a.Provenance.SourceID != b.Provenance.SourceID {
			return a.Provenance.SourceID < b.Provenance.SourceID
		}
		if !a.Payload.Timestamp.Equal(b.Payload.Timestamp) {
			return a.Payload.Timestamp.Before(b.Payload.Timestamp)
		}
		if a.Entity != b.Entity {
			return a.Entity < b.Entity
		}
		return a.Payload.Text < b.Payload.Text
	})
	return out
}

// less orders by score, then verifiability, then earliest timestamp
// (undated last), then source id.
func less(a, b scored) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	if pa, pb := a.c.Kind.Priority(), b.c.Kind.Priority(); pa != pb {
		return pa < pb
	}
	ta, tb := a.c.Payload.Timestamp, b.c.Payload.Timestamp
	if !ta.Equal(tb) {
		switch {
		case ta.IsZero():
			return false
		case tb.IsZero():
			return true
		}
		return ta.Before(tb)
	}
	return a.c.Provenance.SourceID < b.c.Provenance.SourceID
}

func groupID(c types.Candidate) string {
	h := fnv.New64a()
	h.Write([]byte(c.DedupKey()))
	return fmt.Sprintf("g-%016x", h.Sum64())
}

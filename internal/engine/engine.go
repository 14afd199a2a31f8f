// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package engine is the single entry point of the evidence engine. It plans
// a query, retrieves candidates from every relevant source, ranks them into
// a bounded evidence set, and records the client's later feedback.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/evidence-engine/internal/memory"
	"github.com/pdiddy/evidence-engine/internal/planner"
	"github.com/pdiddy/evidence-engine/internal/rank"
	"github.com/pdiddy/evidence-engine/internal/retrieve"
	"github.com/pdiddy/evidence-engine/internal/source"
	"github.com/pdiddy/evidence-engine/internal/telemetry"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Sources dispatches sub-queries and reports which kinds it can serve.
// *source.Set implements it.
type Sources interface {
	retrieve.Fetcher
	Kinds() []types.SourceKind
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Registry  planner.Resolver
	Sources   Sources
	Contexts  memory.Store
	Telemetry telemetry.Sink
	// Latency is shared between the retriever, which records it, and the
	// planner, which reads it. Nil allocates a fresh tracker.
	Latency *telemetry.Latency
	Log     *zap.Logger
}

// Engine answers evidence requests.
type Engine struct {
	Planner   *planner.Planner
	Retriever *retrieve.Retriever
	Ranker    *rank.Ranker
	Memory    *memory.Memory
	Telemetry telemetry.Sink
	Latency   *telemetry.Latency
	Log       *zap.Logger

	// Now and NewID are the clock and query id generator.
	Now   func() time.Time
	NewID func() string
}

// New assembles an engine from cfg and d.
func New(cfg types.EngineConfig, d Deps) *Engine {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	latency := d.Latency
	if latency == nil {
		latency = &telemetry.Latency{}
	}
	contexts := d.Contexts
	if contexts == nil {
		contexts = memory.NewMapStore()
	}
	sources := d.Sources
	if sources == nil {
		sources = source.NewSet()
	}
	return &Engine{
		Planner:   planner.New(d.Registry, cfg.Planner, latency, sources.Kinds()...),
		Retriever: retrieve.New(sources, cfg.Retrieval.MaxConcurrency, latency, log.Named("retrieve")),
		Ranker:    rank.New(cfg.Ranking),
		Memory:    memory.New(contexts, cfg.Memory, log.Named("memory")),
		Telemetry: d.Telemetry,
		Latency:   latency,
		Log:       log,
		Now:       time.Now,
		NewID:     uuid.NewString,
	}
}

// Option adjusts one request.
type Option func(*requestOptions)

type requestOptions struct {
	bestEffort bool
}

// BestEffort returns the evidence gathered so far, flagged partial, when the
// request is cancelled after at least one source answered.
func BestEffort() Option {
	return func(o *requestOptions) { o.bestEffort = true }
}

// RetrieveEvidence answers q with a ranked evidence set. It fails only with
// types.ErrUnresolvableQuery, types.ErrAllSourcesUnavailable, or
// types.ErrRequestCancelled; every other failure is absorbed and reported
// in the set's metadata.
func (e *Engine) RetrieveEvidence(ctx context.Context, q types.Query, opts ...Option) (types.EvidenceSet, error) {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}

	start := e.now()
	if q.ID == "" {
		q.ID = e.newID()
	}
	if q.AsOf.IsZero() {
		q.AsOf = start
	}
	log := e.Log.With(zap.String("query_id", q.ID), zap.String("client_id", q.ClientID))

	if err := ctx.Err(); err != nil {
		err = fmt.Errorf("%w: %w", types.ErrRequestCancelled, err)
		e.emit(ctx, q, types.EvidenceSet{}, start, err)
		return types.EvidenceSet{}, err
	}

	cc, err := e.Memory.Get(ctx, q.ClientID)
	if err != nil {
		log.Warn("proceeding with default client context", zap.Error(err))
	}
	if cc.RiskTolerance == "" {
		cc.RiskTolerance = q.RiskProfile
	}

	plan, err := e.Planner.Plan(q, cc)
	if err != nil {
		e.emit(ctx, q, types.EvidenceSet{}, start, err)
		return types.EvidenceSet{}, err
	}
	log.Debug("query planned", zap.Int("sub_queries", len(plan)))

	res, err := e.Retriever.Retrieve(ctx, plan, o.bestEffort)
	if err != nil {
		e.emit(ctx, q, types.EvidenceSet{}, start, err)
		return types.EvidenceSet{}, err
	}

	set := e.Ranker.Rank(res.Candidates, q, cc)
	set.QueryID = q.ID
	set.GeneratedAt = e.now()
	set.SourcesConsulted = kinds(res.Consulted)
	set.SourcesFailed = kinds(res.Failed)
	set.Failures = res.Failures
	set.Partial = res.Partial
	if set.Items == nil {
		set.Items = []types.ScoredCandidate{}
	}

	e.emit(ctx, q, set, start, nil)
	return set, nil
}

// ReportOutcome records what the client did with an evidence set. It fails
// only with types.ErrStorageUnavailable.
func (e *Engine) ReportOutcome(ctx context.Context, clientID string, s types.InteractionSummary) error {
	if err := e.Memory.Update(ctx, clientID, s); err != nil {
		e.Log.Warn("client context update failed", zap.String("client_id", clientID), zap.Error(err))
		return err
	}
	return nil
}

// ClientContext returns the personalization context of clientID.
func (e *Engine) ClientContext(ctx context.Context, clientID string) (types.ClientContext, error) {
	return e.Memory.Get(ctx, clientID)
}

// SummaryFor builds the interaction summary of a client that engaged with
// every item of set: topics are the entities it covered and each item
// counts as an engagement with its score.
func SummaryFor(q types.Query, set types.EvidenceSet, at time.Time) types.InteractionSummary {
	s := types.InteractionSummary{QueryID: set.QueryID, RiskTolerance: q.RiskProfile, At: at}
	seen := map[string]bool{}
	for _, it := range set.Items {
		if it.Entity != "" && !seen[it.Entity] {
			seen[it.Entity] = true
			s.Topics = append(s.Topics, it.Entity)
		}
		s.Engagements = append(s.Engagements, types.Engagement{
			Kind: it.Kind, SourceID: it.Provenance.SourceID, Score: it.Score,
		})
	}
	return s
}

func (e *Engine) emit(ctx context.Context, q types.Query, set types.EvidenceSet, start time.Time, err error) {
	if e.Telemetry == nil {
		return
	}
	m := telemetry.RequestMetrics{
		QueryID:          q.ID,
		ClientID:         q.ClientID,
		SourcesConsulted: set.SourcesConsulted,
		SourcesFailed:    set.SourcesFailed,
		Items:            len(set.Items),
		LowConfidence:    set.LowConfidence,
		Partial:          set.Partial,
		Latency:          e.now().Sub(start),
		At:               start,
	}
	if err != nil {
		m.Err = err.Error()
	}
	e.Telemetry.RecordRequest(context.WithoutCancel(ctx), m)
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func kinds(k []types.SourceKind) []types.SourceKind {
	if k == nil {
		return []types.SourceKind{}
	}
	return k
}

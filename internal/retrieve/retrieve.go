// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package retrieve executes a sub-query plan against the source adapters
// concurrently. Each sub-query is bounded by its own timeout; per-source
// failures are recorded and absorbed unless every sub-query fails.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// defaultTimeout bounds sub-queries that carry no timeout of their own.
const defaultTimeout = 2 * time.Second

// Fetcher runs one sub-query against its source.
type Fetcher interface {
	Fetch(ctx context.Context, sq types.SubQuery) ([]types.Candidate, error)
}

// LatencyRecorder receives the duration of every finished fetch.
type LatencyRecorder interface {
	Observe(k types.SourceKind, d time.Duration)
}

// Result is the merged output of one plan.
type Result struct {
	// Candidates are deduplicated by (kind, source id) and ordered by
	// sub-query position, not by arrival time.
	Candidates []types.Candidate

	// Consulted lists kinds with at least one successful sub-query.
	Consulted []types.SourceKind

	// Failed lists kinds whose every sub-query failed.
	Failed []types.SourceKind

	// Failures records each failed sub-query.
	Failures []types.SourceFailure

	// Partial is set when the request was cancelled and best-effort results
	// were returned.
	Partial bool
}

// Retriever fans sub-queries out to a Fetcher.
type Retriever struct {
	Sources Fetcher

	// MaxConcurrency limits in-flight fetches; zero runs every sub-query
	// at once.
	MaxConcurrency int

	Latency LatencyRecorder
	Log     *zap.Logger
}

// New returns a retriever over sources.
func New(sources Fetcher, maxConcurrency int, latency LatencyRecorder, log *zap.Logger) *Retriever {
	if log == nil {
		log = zap.NewNop()
	}
	return &Retriever{Sources: sources, MaxConcurrency: maxConcurrency, Latency: latency, Log: log}
}

type outcome struct {
	candidates []types.Candidate
	err        error
	cancelled  bool
}

// Retrieve dispatches every sub-query concurrently and waits until each has
// finished or timed out.
//
// It fails with types.ErrAllSourcesUnavailable when no sub-query succeeds.
// When ctx ends first it fails with types.ErrRequestCancelled, unless
// bestEffort is set and at least one sub-query had already succeeded, in
// which case those results are returned with Partial set.
func (r *Retriever) Retrieve(ctx context.Context, subs []types.SubQuery, bestEffort bool) (Result, error) {
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}
	if len(subs) == 0 {
		return Result{}, fmt.Errorf("%w: empty plan", types.ErrAllSourcesUnavailable)
	}

	outcomes := make([]outcome, len(subs))
	var g errgroup.Group
	if r.MaxConcurrency > 0 {
		g.SetLimit(r.MaxConcurrency)
	}
	for i, sq := range subs {
		g.Go(func() error {
			if ctx.Err() != nil {
				outcomes[i] = outcome{err: ctx.Err(), cancelled: true}
				return nil
			}
			start := time.Now()
			cands, err := r.fetchOne(ctx, sq)
			if err != nil && ctx.Err() != nil {
				outcomes[i] = outcome{err: err, cancelled: true}
				return nil
			}
			if r.Latency != nil {
				r.Latency.Observe(sq.Kind, time.Since(start))
			}
			outcomes[i] = outcome{candidates: cands, err: err}
			return nil
		})
	}
	g.Wait()

	res, errs := merge(subs, outcomes, log)

	if ctxErr := ctx.Err(); ctxErr != nil {
		if !bestEffort || len(res.Consulted) == 0 {
			return Result{}, fmt.Errorf("%w: %w", types.ErrRequestCancelled, ctxErr)
		}
		res.Partial = true
		log.Warn("request cancelled, returning partial evidence",
			zap.Int("candidates", len(res.Candidates)), zap.Error(ctxErr))
		return res, nil
	}

	if len(res.Consulted) == 0 {
		return Result{}, fmt.Errorf("%w: %w", types.ErrAllSourcesUnavailable, errors.Join(errs...))
	}
	return res, nil
}

// fetchOne runs sq under its own timeout. The wait ends at the deadline even
// when the adapter ignores its context; the adapter's late result is dropped.
func (r *Retriever) fetchOne(ctx context.Context, sq types.SubQuery) ([]types.Candidate, error) {
	timeout := sq.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	fctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type fetched struct {
		cands []types.Candidate
		err   error
	}
	done := make(chan fetched, 1)
	go func() {
		c, err := r.Sources.Fetch(fctx, sq)
		done <- fetched{c, err}
	}()

	select {
	case f := <-done:
		switch {
		case f.err == nil, types.IsSourceFailure(f.err), ctx.Err() != nil:
			return f.cands, f.err
		case fctx.Err() != nil:
			return nil, timedOut(sq, timeout)
		default:
			return nil, &types.SourceError{Kind: sq.Kind, Entity: sq.Entity,
				Err: fmt.Errorf("%w: %w", types.ErrSourceUnavailable, f.err)}
		}
	case <-fctx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, timedOut(sq, timeout)
	}
}

func timedOut(sq types.SubQuery, timeout time.Duration) error {
	return &types.SourceError{Kind: sq.Kind, Entity: sq.Entity,
		Err: fmt.Errorf("%w: no response within %v", types.ErrSourceTimeout, timeout)}
}

// merge folds outcomes into a Result and collects the per-source errors.
func merge(subs []types.SubQuery, outcomes []outcome, log *zap.Logger) (Result, []error) {
	var (
		res       Result
		errs      []error
		succeeded = map[types.SourceKind]bool{}
		failed    = map[types.SourceKind]bool{}
		seen      = map[string]bool{}
	)

	for i, o := range outcomes {
		sq := subs[i]
		if o.cancelled {
			continue
		}
		if o.err != nil {
			failed[sq.Kind] = true
			errs = append(errs, o.err)
			res.Failures = append(res.Failures, types.SourceFailure{
				Kind: sq.Kind, Entity: sq.Entity, Reason: o.err.Error(),
			})
			log.Warn("source failed",
				zap.String("kind", string(sq.Kind)),
				zap.String("entity", sq.Entity),
				zap.Error(o.err))
			continue
		}
		succeeded[sq.Kind] = true
		for _, c := range o.candidates {
			if !c.Provenance.Valid() {
				log.Debug("dropping candidate without provenance",
					zap.String("kind", string(sq.Kind)), zap.String("entity", sq.Entity))
				continue
			}
			key := c.DedupKey()
			if seen[key] {
				continue
			}
			seen[key] = true
			res.Candidates = append(res.Candidates, c)
		}
	}

	for _, k := range types.AllSourceKinds() {
		switch {
		case succeeded[k]:
			res.Consulted = append(res.Consulted, k)
		case failed[k]:
			res.Failed = append(res.Failed, k)
		}
	}
	return res, errs
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package memory keeps per-client personalization context: recent topics,
// risk tolerance, and source preference weights. Updates for one client are
// serialized; different clients proceed in parallel.
package memory

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Memory is the client context service over a backing Store.
type Memory struct {
	store  Store
	cfg    types.MemoryConfig
	log    *zap.Logger
	shards []*semaphore.Weighted

	// Now is the clock used for interactions without a timestamp.
	Now func() time.Time
}

// New returns a Memory over store. Zero config fields take their defaults.
func New(store Store, cfg types.MemoryConfig, log *zap.Logger) *Memory {
	def := types.DefaultEngineConfig().Memory
	if cfg.TopicWindow <= 0 {
		cfg.TopicWindow = def.TopicWindow
	}
	if cfg.LearningRate <= 0 || cfg.LearningRate > 1 {
		cfg.LearningRate = def.LearningRate
	}
	if cfg.EngagementThreshold <= 0 {
		cfg.EngagementThreshold = def.EngagementThreshold
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = def.StoreTimeout
	}
	if cfg.Shards <= 0 {
		cfg.Shards = def.Shards
	}
	if log == nil {
		log = zap.NewNop()
	}
	shards := make([]*semaphore.Weighted, cfg.Shards)
	for i := range shards {
		shards[i] = semaphore.NewWeighted(1)
	}
	return &Memory{
		store:  store,
		cfg:    cfg,
		log:    log,
		shards: shards,
		Now:    time.Now,
	}
}

// Get returns the context of clientID, or the default context when the
// client is unseen. On storage failure it returns the default context and an
// error wrapping types.ErrStorageUnavailable; callers may proceed with it.
func (m *Memory) Get(ctx context.Context, clientID string) (types.ClientContext, error) {
	if clientID == "" {
		return types.DefaultClientContext(""), nil
	}
	cc, found, err := m.load(ctx, clientID)
	if err != nil {
		m.log.Warn("client context unavailable, using defaults",
			zap.String("client_id", clientID), zap.Error(err))
		return types.DefaultClientContext(clientID), err
	}
	if !found {
		return types.DefaultClientContext(clientID), nil
	}
	return cc, nil
}

// Update merges an interaction into the client's context. It only fails
// with types.ErrStorageUnavailable; the stored context is left unchanged
// when the read fails.
//
// The client's lock is held until the save returns, even when Update stops
// waiting for it at the store timeout, so a late save can never land on top
// of a newer one. A save that times out may still complete.
func (m *Memory) Update(ctx context.Context, clientID string, s types.InteractionSummary) error {
	if clientID == "" {
		return nil
	}
	sem := m.shard(clientID)
	lctx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	err := sem.Acquire(lctx, 1)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: client %s busy: %w", types.ErrStorageUnavailable, clientID, err)
	}

	cc, found, err := m.load(ctx, clientID)
	if err != nil {
		sem.Release(1)
		return err
	}
	if !found {
		cc = types.DefaultClientContext(clientID)
	}

	merged := Merge(cc, s, m.cfg, m.now())
	if err := m.boundedThen(ctx, func(ctx context.Context) error {
		return m.store.SaveClientContext(ctx, merged)
	}, func() { sem.Release(1) }); err != nil {
		return fmt.Errorf("%w: %w", types.ErrStorageUnavailable, err)
	}
	m.log.Debug("client context updated",
		zap.String("client_id", clientID),
		zap.Int("topics", len(merged.RecentTopics)),
		zap.Int("interactions", merged.Interactions))
	return nil
}

func (m *Memory) load(ctx context.Context, clientID string) (types.ClientContext, bool, error) {
	var (
		cc    types.ClientContext
		found bool
	)
	err := m.bounded(ctx, func(ctx context.Context) error {
		var err error
		cc, found, err = m.store.LoadClientContext(ctx, clientID)
		return err
	})
	if err != nil {
		return types.ClientContext{}, false, fmt.Errorf("%w: %w", types.ErrStorageUnavailable, err)
	}
	if found {
		cc = normalize(cc, clientID)
	}
	return cc, found, nil
}

// bounded runs fn under the store timeout and stops waiting at the deadline
// even if fn does not return.
func (m *Memory) bounded(ctx context.Context, fn func(context.Context) error) error {
	return m.boundedThen(ctx, fn, nil)
}

// boundedThen is bounded, calling after once fn has returned, however long
// that takes.
func (m *Memory) boundedThen(ctx context.Context, fn func(context.Context) error, after func()) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		err := fn(ctx)
		if after != nil {
			after()
		}
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("context store: %w", ctx.Err())
	}
}

func (m *Memory) shard(clientID string) *semaphore.Weighted {
	h := fnv.New32a()
	h.Write([]byte(clientID))
	return m.shards[h.Sum32()%uint32(len(m.shards))]
}

func (m *Memory) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Merge applies s to cc and returns the result; cc is not modified.
//
// Topics mentioned in s move to the front of the recent-topic window in the
// order given; topics older than the retention window and those beyond the
// window size are dropped. Preference weights move by an exponential moving
// average toward 1+2s for each kind whose mean engaged score s meets the
// threshold, and relax toward neutral at a quarter of the rate otherwise.
func Merge(cc types.ClientContext, s types.InteractionSummary, cfg types.MemoryConfig, now time.Time) types.ClientContext {
	out := cc.Clone()
	at := s.At
	if at.IsZero() {
		at = now
	}

	out.RecentTopics = mergeTopics(out.RecentTopics, s.Topics, at, cfg)
	if r := strings.TrimSpace(s.RiskTolerance); r != "" {
		out.RiskTolerance = r
	}

	sum := map[types.SourceKind]float64{}
	n := map[types.SourceKind]int{}
	for _, e := range s.Engagements {
		if !e.Kind.Valid() {
			continue
		}
		sum[e.Kind] += clamp01(e.Score)
		n[e.Kind]++
	}
	a := cfg.LearningRate
	for _, k := range types.AllSourceKinds() {
		w := out.Weight(k)
		if n[k] > 0 {
			if mean := sum[k] / float64(n[k]); mean >= cfg.EngagementThreshold {
				w = (1-a)*w + a*(1+2*mean)
				out.PreferenceWeights[k] = types.ClampWeight(w)
				continue
			}
		}
		w += (a / 4) * (types.NeutralPreferenceWeight - w)
		out.PreferenceWeights[k] = types.ClampWeight(w)
	}

	out.Interactions++
	if at.After(out.UpdatedAt) {
		out.UpdatedAt = at
	}
	return out
}

func mergeTopics(existing []types.Topic, mentioned []string, at time.Time, cfg types.MemoryConfig) []types.Topic {
	var out []types.Topic
	seen := map[string]bool{}
	for _, t := range mentioned {
		name := strings.ToLower(strings.TrimSpace(t))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, types.Topic{Name: name, SeenAt: at})
	}
	for _, t := range existing {
		if seen[t.Name] {
			continue
		}
		if cfg.TopicRetention > 0 && at.Sub(t.SeenAt) > cfg.TopicRetention {
			continue
		}
		seen[t.Name] = true
		out = append(out, t)
	}
	if cfg.TopicWindow > 0 && len(out) > cfg.TopicWindow {
		out = out[:cfg.TopicWindow]
	}
	return out
}

// normalize fills missing weights and clips stored ones.
func normalize(cc types.ClientContext, clientID string) types.ClientContext {
	cc.ClientID = clientID
	weights := make(map[types.SourceKind]float64, 3)
	for _, k := range types.AllSourceKinds() {
		weights[k] = cc.Weight(k)
	}
	cc.PreferenceWeights = weights
	return cc
}

func clamp01(v float64) float64 {
	switch {
	case v < 0 || v != v:
		return 0
	case v > 1:
		return 1
	}
	return v
}

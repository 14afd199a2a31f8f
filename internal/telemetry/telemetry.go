// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package telemetry emits per-request counters to external sinks and keeps
// the per-source latency statistics the planner uses for tie-breaking.
// The engine only emits; it never reads metrics back from a sink.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// RequestMetrics are the counters emitted once per request.
type RequestMetrics struct {
	QueryID          string
	ClientID         string
	SourcesConsulted []types.SourceKind
	SourcesFailed    []types.SourceKind
	Items            int
	LowConfidence    bool
	Partial          bool
	Latency          time.Duration
	Err              string
	At               time.Time
}

// Sink receives request metrics. Implementations must be safe for
// concurrent use and must not block the request for long.
type Sink interface {
	RecordRequest(ctx context.Context, m RequestMetrics)
}

// Multi fans one emission out to several sinks.
type Multi []Sink

// RecordRequest forwards m to every sink.
func (ms Multi) RecordRequest(ctx context.Context, m RequestMetrics) {
	for _, s := range ms {
		if s != nil {
			s.RecordRequest(ctx, m)
		}
	}
}

// LogSink writes request metrics as structured log lines.
type LogSink struct {
	Log *zap.Logger
}

// RecordRequest logs m at Info, or Warn when the request failed or was
// flagged low confidence.
func (l LogSink) RecordRequest(_ context.Context, m RequestMetrics) {
	if l.Log == nil {
		return
	}
	fields := []zap.Field{
		zap.String("query_id", m.QueryID),
		zap.String("client_id", m.ClientID),
		zap.Int("sources_consulted", len(m.SourcesConsulted)),
		zap.Int("sources_failed", len(m.SourcesFailed)),
		zap.Int("items", m.Items),
		zap.Bool("low_confidence", m.LowConfidence),
		zap.Bool("partial", m.Partial),
		zap.Duration("latency", m.Latency),
	}
	if m.Err != "" {
		l.Log.Warn("evidence request failed", append(fields, zap.String("error", m.Err))...)
		return
	}
	if m.LowConfidence || len(m.SourcesFailed) > 0 {
		l.Log.Warn("evidence request degraded", fields...)
		return
	}
	l.Log.Info("evidence request", fields...)
}

// Recorder keeps emitted metrics in memory.
type Recorder struct {
	mu      sync.Mutex
	records []RequestMetrics
}

// RecordRequest appends m.
func (r *Recorder) RecordRequest(_ context.Context, m RequestMetrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, m)
}

// Records returns a copy of everything recorded so far.
func (r *Recorder) Records() []RequestMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RequestMetrics(nil), r.records...)
}

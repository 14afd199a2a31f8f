// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

func TestMultiForwardsToEverySink(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	Multi{a, nil, b}.RecordRequest(context.Background(), RequestMetrics{QueryID: "q-1", Items: 4})

	require.Len(t, a.Records(), 1)
	require.Len(t, b.Records(), 1)
	assert.Equal(t, "q-1", b.Records()[0].QueryID)
}

func TestRecorderConcurrent(t *testing.T) {
	r := &Recorder{}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.RecordRequest(context.Background(), RequestMetrics{Items: i})
		}()
	}
	wg.Wait()
	assert.Len(t, r.Records(), 20)
}

func TestLogSinkLevels(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := LogSink{Log: zap.New(core)}
	ctx := context.Background()

	sink.RecordRequest(ctx, RequestMetrics{QueryID: "ok", Items: 5, SourcesConsulted: []types.SourceKind{types.SourceStructured}})
	sink.RecordRequest(ctx, RequestMetrics{QueryID: "degraded", Items: 5, SourcesFailed: []types.SourceKind{types.SourceLiveSignal}})
	sink.RecordRequest(ctx, RequestMetrics{QueryID: "failed", Err: "all sources unavailable"})
	LogSink{}.RecordRequest(ctx, RequestMetrics{QueryID: "dropped"})

	entries := logs.All()
	require.Len(t, entries, 3)

	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "evidence request", entries[0].Message)
	assert.Equal(t, int64(5), entries[0].ContextMap()["items"])

	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "evidence request degraded", entries[1].Message)
	assert.Equal(t, int64(1), entries[1].ContextMap()["sources_failed"])

	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, "all sources unavailable", entries[2].ContextMap()["error"])
}

func TestLatencyMean(t *testing.T) {
	var l Latency
	_, ok := l.Mean(types.SourceDocuments)
	assert.False(t, ok)

	l.Observe(types.SourceDocuments, 10*time.Millisecond)
	l.Observe(types.SourceDocuments, 20*time.Millisecond)
	mean, ok := l.Mean(types.SourceDocuments)
	require.True(t, ok)
	assert.Equal(t, 15*time.Millisecond, mean)

	l.Observe(types.SourceDocuments, 30*time.Millisecond)
	mean, _ = l.Mean(types.SourceDocuments)
	assert.InDelta(t, float64(20*time.Millisecond), float64(mean), float64(time.Microsecond))

	// Past warm-up a single outlier moves the mean by alpha only.
	for i := 0; i < 20; i++ {
		l.Observe(types.SourceLiveSignal, 100*time.Millisecond)
	}
	l.Observe(types.SourceLiveSignal, 1100*time.Millisecond)
	mean, _ = l.Mean(types.SourceLiveSignal)
	assert.InDelta(t, float64(300*time.Millisecond), float64(mean), float64(time.Microsecond))

	snap := l.Snapshot()
	assert.Len(t, snap, 2)
	_, ok = snap[types.SourceStructured]
	assert.False(t, ok)
}

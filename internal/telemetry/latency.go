// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package telemetry

import (
	"sync"
	"time"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Latency tracks the mean fetch latency per source kind as an exponential
// moving average. The zero value is ready to use.
type Latency struct {
	mu    sync.RWMutex
	mean  map[types.SourceKind]time.Duration
	count map[types.SourceKind]int
}

// latencyAlpha weights the newest observation once warm-up is over.
const latencyAlpha = 0.2

// Observe records one fetch duration for kind k. The first observations are
// averaged arithmetically so a single early outlier does not dominate.
func (l *Latency) Observe(k types.SourceKind, d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.mean == nil {
		l.mean = make(map[types.SourceKind]time.Duration)
		l.count = make(map[types.SourceKind]int)
	}
	n := l.count[k] + 1
	l.count[k] = n
	prev := l.mean[k]
	alpha := latencyAlpha
	if inv := 1.0 / float64(n); inv > alpha {
		alpha = inv
	}
	l.mean[k] = prev + time.Duration(alpha*float64(d-prev))
}

// Mean returns the mean latency of kind k and whether any observation exists.
func (l *Latency) Mean(k types.SourceKind) (time.Duration, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.count[k] == 0 {
		return 0, false
	}
	return l.mean[k], true
}

// Snapshot returns the current means of every observed kind.
func (l *Latency) Snapshot() map[types.SourceKind]time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[types.SourceKind]time.Duration, len(l.mean))
	for k, v := range l.mean {
		out[k] = v
	}
	return out
}

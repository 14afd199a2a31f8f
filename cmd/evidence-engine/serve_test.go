// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWatchReload(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal)

	var calls atomic.Int32
	reload := func(context.Context) error {
		if calls.Add(1) == 1 {
			return errors.New("registry file missing")
		}
		return nil
	}

	done := make(chan struct{})
	go func() {
		watchReload(ctx, sig, reload, zap.New(core))
		close(done)
	}()

	sig <- syscall.SIGHUP
	sig <- syscall.SIGHUP
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watchReload did not stop on cancel")
	}

	assert.Equal(t, int32(2), calls.Load())
	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "registry reload failed", entries[0].Message)
	assert.Equal(t, "registry reloaded", entries[1].Message)
}

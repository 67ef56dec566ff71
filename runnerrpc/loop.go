// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package runnerrpc

import (
	"context"
	"sync"
	"sync/atomic"
)

var loopSeq atomic.Uint64

// loop is the execution context a client schedules calls on. Each loop gets
// a unique, monotonically increasing id; pooled resources record the id of
// the loop they were built under.
type loop struct {
	id     uint64
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  atomic.Bool
	wg      sync.WaitGroup
	running atomic.Int64
}

func newLoop() *loop {
	ctx, cancel := context.WithCancel(context.Background())
	return &loop{id: loopSeq.Add(1), ctx: ctx, cancel: cancel}
}

func (l *loop) isClosed() bool {
	return l.closed.Load()
}

// spawn runs fn on its own goroutine under a context cancelled when either
// ctx or the loop is cancelled. It reports false if the loop no longer
// accepts work.
func (l *loop) spawn(ctx context.Context, fn func(ctx context.Context)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed.Load() {
		return false
	}
	l.wg.Add(1)
	l.running.Add(1)

	callCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(l.ctx, cancel)
	go func() {
		defer l.wg.Done()
		defer l.running.Add(-1)
		defer cancel()
		defer stop()
		fn(callCtx)
	}()
	return true
}

// shutdown stops accepting work. Running calls continue.
func (l *loop) shutdown() {
	l.mu.Lock()
	l.closed.Store(true)
	l.mu.Unlock()
}

// drained reports whether a shut down loop has no calls left.
func (l *loop) drained() bool {
	return l.isClosed() && l.running.Load() == 0
}

// close stops accepting work, cancels running calls and waits for them.
func (l *loop) close() {
	l.shutdown()
	l.cancel()
	l.wg.Wait()
}

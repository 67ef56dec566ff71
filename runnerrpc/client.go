// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package runnerrpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Client calls methods on one remote runner.
//
// A Client owns one execution context at a time, plus the connector and
// session built under it. Both are created on first use and rebuilt
// transparently when the execution context is replaced ([Client.Reset]) or
// they are closed. Calls may be issued concurrently from any goroutine.
type Client struct {
	runner string
	cfg    ConfigProvider
	opts   Options

	// mu serializes construction of the loop, connector and session.
	// Lookups of still-valid resources go through the atomics without it.
	mu     sync.Mutex
	loop   atomic.Pointer[loop]
	conn   atomic.Pointer[connector]
	sess   atomic.Pointer[session]
	closed atomic.Bool

	// retired holds loops replaced by Reset that may still run calls.
	retired []*loop

	connectorBuilds atomic.Int64
	sessionBuilds   atomic.Int64
}

// NewClient creates a client for the named runner. cfg supplies the
// runner's bind address and timeout; opts may be nil. No connection is made
// until the first call.
func NewClient(runner string, cfg ConfigProvider, opts *Options) *Client {
	var o Options
	if opts != nil {
		o = *opts
	}
	return &Client{runner: runner, cfg: cfg, opts: o.withDefaults()}
}

// Runner returns the runner name.
func (c *Client) Runner() string {
	return c.runner
}

// SetRequestHook installs a hook observing every request. The current
// session is retired so the next call picks the hook up.
func (c *Client) SetRequestHook(hook RequestHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts.Hook = hook
	if s := c.sess.Load(); s != nil {
		s.Close()
	}
}

// Call is an in-flight or completed asynchronous call.
type Call struct {
	Method MethodDescriptor
	Args   []any
	Kwargs map[string]any
	Reply  any
	Error  error
	Done   chan *Call // receives the call itself when it completes
}

func (call *Call) done() {
	select {
	case call.Done <- call:
	default:
		// Done has no room; the caller chose a channel that is too small.
	}
}

// Go starts method m asynchronously on the client's execution context and
// returns immediately. The completed call is sent on done, which must be
// buffered; a nil done allocates one.
func (c *Client) Go(ctx context.Context, m MethodDescriptor, args []any, kwargs map[string]any, done chan *Call) *Call {
	if done == nil {
		done = make(chan *Call, 1)
	} else if cap(done) == 0 {
		panic("runnerrpc: done channel is unbuffered")
	}
	call := &Call{Method: m, Args: args, Kwargs: kwargs, Done: done}

	for {
		l, err := c.activeLoop()
		if err != nil {
			call.Error = err
			call.done()
			return call
		}
		ok := l.spawn(ctx, func(ctx context.Context) {
			call.Reply, call.Error = c.invoke(ctx, m, args, kwargs)
			call.done()
		})
		if ok {
			return call
		}
		// The loop was replaced between lookup and spawn; use the new one.
	}
}

// Call invokes method m and waits for its result. It is safe to call from
// any goroutine; the call runs on the client's execution context.
func (c *Client) Call(ctx context.Context, m MethodDescriptor, args []any, kwargs map[string]any) (any, error) {
	call := <-c.Go(ctx, m, args, kwargs, make(chan *Call, 1)).Done
	return call.Reply, call.Error
}

// Invoke calls [DefaultMethod] with positional arguments.
func (c *Client) Invoke(ctx context.Context, args ...any) (any, error) {
	return c.Call(ctx, Method(DefaultMethod), args, nil)
}

// Reset replaces the client's execution context. Calls already running
// finish on the old one; pooled resources bound to it are rebuilt on the
// next call.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return
	}
	old := c.loop.Swap(newLoop())
	if old == nil {
		return
	}
	old.shutdown()

	live := c.retired[:0]
	for _, l := range c.retired {
		if !l.drained() {
			live = append(live, l)
		}
	}
	c.retired = append(live, old)
}

// Close cancels running calls, including those left on execution contexts
// replaced by Reset, waits for them and releases the runner's connections.
// Calls issued afterwards fail with ErrClientClosed. Close is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if !c.closed.CompareAndSwap(false, true) {
		c.mu.Unlock()
		return nil
	}
	loops := c.retired
	c.retired = nil
	if l := c.loop.Swap(nil); l != nil {
		loops = append(loops, l)
	}
	c.mu.Unlock()

	for _, l := range loops {
		l.close()
	}
	if s := c.sess.Swap(nil); s != nil {
		s.Close()
	}
	if conn := c.conn.Swap(nil); conn != nil {
		conn.Close()
	}
	c.opts.Logger.Debug("runner client closed", "runner", c.runner)
	return nil
}

// invoke runs one call: session, encode, post, decode. A session whose
// connector was closed before the request went out is replaced and the
// call retried until the client is closed or ctx is done.
func (c *Client) invoke(ctx context.Context, m MethodDescriptor, args []any, kwargs map[string]any) (any, error) {
	for {
		sess, err := c.session()
		if err != nil {
			return nil, err
		}

		req, err := c.encodeRequest(ctx, sess.conn.addr.Authority(), m, args, kwargs)
		if err != nil {
			return nil, err
		}

		info := RequestInfo{
			Runner:    c.runner,
			Method:    m.Name,
			RequestID: uuid.NewString(),
			Transport: sess.conn.addr.Scheme,
		}
		result, err := sess.roundTrip(ctx, req, info, func(resp *WireResponse) (any, error) {
			return decodeResponse(c.opts.Codec, c.runner, resp)
		})
		if errors.Is(err, errStaleSession) {
			if err = ctx.Err(); err == nil {
				continue
			}
		}
		if err != nil {
			c.logFailure(info, err)
		}
		return result, err
	}
}

func (c *Client) logFailure(info RequestInfo, err error) {
	var remote *RemoteFault
	var proto *ProtocolError
	switch {
	case errors.As(err, &remote):
		c.opts.Logger.Warn("remote runner fault", "runner", c.runner, "method", info.Method,
			"request_id", info.RequestID, "status", remote.Status)
	case errors.As(err, &proto):
		c.opts.Logger.Warn("runner protocol error", "runner", c.runner, "method", info.Method,
			"request_id", info.RequestID, "status", proto.Status, "reason", proto.Reason)
	default:
		c.opts.Logger.Debug("runner call failed", "runner", c.runner, "method", info.Method,
			"request_id", info.RequestID, "err_type", ErrorType(err), "err", err)
	}
}

// activeLoop returns the current execution context, creating one if none
// is open.
func (c *Client) activeLoop() (*loop, error) {
	if l := c.loop.Load(); l != nil && !l.isClosed() {
		return l, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeLoopLocked()
}

func (c *Client) activeLoopLocked() (*loop, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	if l := c.loop.Load(); l != nil && !l.isClosed() {
		return l, nil
	}
	l := newLoop()
	c.loop.Store(l)
	return l, nil
}

// connector returns a connector valid for the current execution context,
// rebuilding it if stale.
func (c *Client) connector() (*connector, error) {
	if l := c.loop.Load(); l != nil {
		if conn := c.conn.Load(); conn != nil && conn.valid(l) {
			return conn, nil
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectorLocked()
}

func (c *Client) connectorLocked() (*connector, error) {
	l, err := c.activeLoopLocked()
	if err != nil {
		return nil, err
	}
	if conn := c.conn.Load(); conn != nil && conn.valid(l) {
		return conn, nil
	}

	addr, err := resolveAddress(c.cfg, c.runner)
	if err != nil {
		return nil, err
	}
	conn := newConnector(addr, l.id, &c.opts)
	if old := c.conn.Swap(conn); old != nil {
		old.Close()
	}
	c.connectorBuilds.Add(1)
	c.opts.Logger.Debug("runner connector built", "runner", c.runner, "address", addr.String(), "loop", l.id)
	return conn, nil
}

// session returns a session valid for the current execution context,
// rebuilding it (and its connector) if stale.
func (c *Client) session() (*session, error) {
	if l := c.loop.Load(); l != nil {
		if s := c.sess.Load(); s != nil && s.valid(l) {
			return s, nil
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	l, err := c.activeLoopLocked()
	if err != nil {
		return nil, err
	}
	if s := c.sess.Load(); s != nil && s.valid(l) {
		return s, nil
	}

	conn, err := c.connectorLocked()
	if err != nil {
		return nil, err
	}
	timeout, err := c.cfg.RunnerTimeout(c.runner)
	if err != nil {
		return nil, &ConfigurationError{Runner: c.runner, Reason: fmt.Sprintf("timeout: %v", err)}
	}

	s := newSession(c.runner, conn, l.id, timeout, &c.opts)
	if old := c.sess.Swap(s); old != nil {
		old.Close()
	}
	c.sessionBuilds.Add(1)
	c.opts.Logger.Debug("runner session built", "runner", c.runner, "timeout", timeout, "loop", l.id)
	return s, nil
}

// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package runnerrpc

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
)

// connector owns the pooled connections to one runner address. It is bound
// to the execution context it was built under and is stale once that
// context is replaced or the connector is closed.
type connector struct {
	addr      RunnerAddress
	loopID    uint64
	transport *http.Transport

	closed   atomic.Bool
	mu       sync.Mutex
	inflight int
}

func newConnector(addr RunnerAddress, loopID uint64, opts *Options) *connector {
	dialer := &net.Dialer{Timeout: opts.DialTimeout, KeepAlive: opts.KeepAlive}

	t := &http.Transport{
		MaxConnsPerHost:     opts.ConnectionLimit,
		MaxIdleConns:        opts.ConnectionLimit,
		MaxIdleConnsPerHost: opts.ConnectionLimit,
		IdleConnTimeout:     opts.KeepAlive,
		// Bodies are handed to the decoder exactly as received.
		DisableCompression: true,
		TLSClientConfig:    &tls.Config{InsecureSkipVerify: !opts.VerifyTLS},
	}

	switch addr.Scheme {
	case SchemeUnix:
		path := addr.Path
		// The request authority is a placeholder; every connection goes to the socket.
		t.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, "unix", path)
		}
	default:
		t.DialContext = dialer.DialContext
		t.Proxy = http.ProxyFromEnvironment
	}

	return &connector{addr: addr, loopID: loopID, transport: t}
}

// valid reports whether the connector may serve calls on loop l.
func (c *connector) valid(l *loop) bool {
	return c.loopID == l.id && !c.closed.Load() && !l.isClosed()
}

// acquire registers an in-flight request. It fails once the connector is closed.
func (c *connector) acquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return false
	}
	c.inflight++
	return true
}

// release ends an in-flight request. The last release after Close drops the
// connections that request returned to the pool.
func (c *connector) release() {
	c.mu.Lock()
	c.inflight--
	drain := c.closed.Load() && c.inflight == 0
	c.mu.Unlock()
	if drain {
		c.transport.CloseIdleConnections()
	}
}

// Close stops new requests and releases idle connections. Requests already
// in flight complete normally. Close is idempotent.
func (c *connector) Close() {
	c.mu.Lock()
	if !c.closed.CompareAndSwap(false, true) {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.transport.CloseIdleConnections()
}

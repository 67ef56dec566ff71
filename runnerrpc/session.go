// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package runnerrpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"
)

// errStaleSession is returned when the session's connector was closed
// between lookup and use. The caller fetches a fresh session.
var errStaleSession = errors.New("runnerrpc: stale session")

// session issues requests through one connector with a fixed timeout and
// the client's request hook. It does not own the connector.
type session struct {
	runner    string
	conn      *connector
	loopID    uint64
	timeout   time.Duration
	client    *http.Client
	hook      RequestHook
	urlFilter URLFilter
	logger    *slog.Logger

	closed atomic.Bool
}

func newSession(runner string, conn *connector, loopID uint64, timeout time.Duration, opts *Options) *session {
	return &session{
		runner:  runner,
		conn:    conn,
		loopID:  loopID,
		timeout: timeout,
		client: &http.Client{
			Transport: conn.transport,
			Timeout:   timeout,
			// No cookie jar: cookies are not part of the protocol.
			Jar: nil,
		},
		hook:      opts.Hook,
		urlFilter: opts.URLFilter,
		logger:    opts.Logger,
	}
}

// valid reports whether the session may serve calls on loop l. A session
// never outlives its connector.
func (s *session) valid(l *loop) bool {
	return s.loopID == l.id && !s.closed.Load() && s.conn.valid(l)
}

// Close marks the session unusable. The shared connector stays open.
func (s *session) Close() {
	s.closed.Store(true)
}

// roundTrip sends req, reads the full response body and hands it to decode.
// Hooks observe the whole exchange including decoding.
func (s *session) roundTrip(ctx context.Context, req *outgoingRequest, info RequestInfo,
	decode func(*WireResponse) (any, error)) (any, error) {

	if !s.conn.acquire() {
		return nil, errStaleSession
	}
	defer s.conn.release()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.url, bytes.NewReader(req.body))
	if err != nil {
		return nil, fmt.Errorf("runner %s: building request: %w", s.runner, err)
	}
	httpReq.Header = req.header
	info.URL = s.urlFilter(httpReq.URL)
	info.Header = httpReq.Header

	stats := &CallStatistics{RequestBytes: int64(len(req.body))}
	ctx, token := s.hookStart(ctx, info)
	httpReq = httpReq.WithContext(ctx)

	limit := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < limit {
			limit = d
		}
	}

	result, err := func() (any, error) {
		resp, err := s.client.Do(httpReq)
		if err != nil {
			return nil, s.transportError(req.method.Name, limit, err)
		}
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, s.transportError(req.method.Name, limit, err)
		}
		stats.StatusCode = resp.StatusCode
		stats.ResponseBytes = int64(len(body))
		return decode(&WireResponse{Status: resp.StatusCode, Body: body, Header: resp.Header})
	}()

	s.hookEnd(ctx, token, info, stats, err)
	return result, err
}

// transportError classifies a failed request or body read. limit is the
// tighter of the session timeout and the caller's deadline.
func (s *session) transportError(method string, limit time.Duration, err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &TimeoutError{Runner: s.runner, Method: method, Timeout: limit, Err: err}
	}
	return fmt.Errorf("runner %s method %s: %w", s.runner, method, err)
}

func (s *session) hookStart(ctx context.Context, info RequestInfo) (context.Context, HookToken) {
	if s.hook == nil {
		return ctx, nil
	}
	var token HookToken
	func() {
		defer func() {
			if rv := recover(); rv != nil {
				s.logger.Error("request hook start panic", "runner", s.runner, "err", rv)
			}
		}()
		var hookCtx context.Context
		hookCtx, token = s.hook.OnRequestStart(ctx, info)
		if hookCtx != nil {
			ctx = hookCtx
		}
	}()
	return ctx, token
}

func (s *session) hookEnd(ctx context.Context, token HookToken, info RequestInfo, stats *CallStatistics, err error) {
	if s.hook == nil {
		return
	}
	defer func() {
		if rv := recover(); rv != nil {
			s.logger.Error("request hook end panic", "runner", s.runner, "err", rv)
		}
	}()
	s.hook.OnRequestEnd(ctx, token, info, stats, err)
}

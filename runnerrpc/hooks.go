// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package runnerrpc

import (
	"context"
	"net/http"
	"net/url"
)

// RequestHook provides observability callpoints around each runner request.
// Implementations must be safe for concurrent use.
type RequestHook interface {
	// OnRequestStart runs after the request is encoded and before it is sent.
	// It may add headers (e.g. trace context) to info.Header.
	OnRequestStart(ctx context.Context, info RequestInfo) (context.Context, HookToken)
	// OnRequestEnd runs after the response is decoded or the call failed.
	OnRequestEnd(ctx context.Context, token HookToken, info RequestInfo, stats *CallStatistics, err error)
}

// HookToken is an opaque value returned by OnRequestStart and passed back to
// OnRequestEnd. Only meaningful to the RequestHook that created it.
type HookToken interface{}

// RequestInfo carries request metadata passed to hooks.
type RequestInfo struct {
	Runner    string      // runner name
	Method    string      // runner method name
	RequestID string      // client-generated identifier, unique per call
	Transport Scheme      // SchemeUnix or SchemeTCP
	URL       string      // request URL after the session's URLFilter
	Header    http.Header // outgoing request headers
}

// CallStatistics holds per-call I/O counters.
type CallStatistics struct {
	StatusCode    int
	RequestBytes  int64
	ResponseBytes int64
}

// URLFilter turns a request URL into the form recorded by hooks.
type URLFilter func(u *url.URL) string

// StripQuery is the default URLFilter. It drops the query string and
// fragment so recorded URLs carry no parameters.
func StripQuery(u *url.URL) string {
	clean := *u
	clean.RawQuery = ""
	clean.ForceQuery = false
	clean.Fragment = ""
	clean.RawFragment = ""
	clean.User = nil
	return clean.String()
}

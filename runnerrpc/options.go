// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package runnerrpc

import (
	"log/slog"
	"time"

	"github.com/Query-farm/runner-rpc/container"
)

// Defaults applied by [NewClient] to zero-valued [Options] fields.
const (
	DefaultConnectionLimit = 800
	DefaultKeepAlive       = 1800 * time.Second
	DefaultDialTimeout     = 30 * time.Second
)

// Codec converts call arguments and results to and from payloads.
// [container.AutoContainer] is the default implementation.
type Codec interface {
	ToPayload(v any, batchDim int) (container.Payload, error)
	FromPayload(p container.Payload) (any, error)
	EncodeParams(p container.Params[container.Payload]) ([]byte, error)
}

// Options configures a [Client].
type Options struct {
	// ConnectionLimit bounds concurrent connections to the runner.
	ConnectionLimit int
	// KeepAlive is how long an idle pooled connection is kept.
	KeepAlive time.Duration
	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration
	// VerifyTLS enables certificate verification for TCP runners served over
	// TLS. Disabled by default.
	VerifyTLS bool
	// Codec encodes arguments and decodes results. Defaults to container.Auto().
	Codec Codec
	// Identity supplies the deployment identity headers. Defaults to ContextIdentity{}.
	Identity IdentitySource
	// Hook observes every request. Optional.
	Hook RequestHook
	// URLFilter shapes the URL passed to Hook. Defaults to StripQuery.
	URLFilter URLFilter
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns Options with every default filled in.
func DefaultOptions() Options {
	return Options{
		ConnectionLimit: DefaultConnectionLimit,
		KeepAlive:       DefaultKeepAlive,
		DialTimeout:     DefaultDialTimeout,
		Codec:           container.Auto(),
		Identity:        ContextIdentity{},
		URLFilter:       StripQuery,
	}
}

// withDefaults fills zero fields from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ConnectionLimit <= 0 {
		o.ConnectionLimit = d.ConnectionLimit
	}
	if o.KeepAlive <= 0 {
		o.KeepAlive = d.KeepAlive
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = d.DialTimeout
	}
	if o.Codec == nil {
		o.Codec = d.Codec
	}
	if o.Identity == nil {
		o.Identity = d.Identity
	}
	if o.URLFilter == nil {
		o.URLFilter = d.URLFilter
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

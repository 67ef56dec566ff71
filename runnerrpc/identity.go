// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package runnerrpc

import (
	"context"
	"net/http"
)

// Identity names the deployment issuing a call. Every field is sent as a
// request header; empty fields are sent empty.
type Identity struct {
	BentoName           string
	BentoVersion        string
	DeploymentName      string
	DeploymentNamespace string
}

// IdentitySource supplies the identity of the current request.
type IdentitySource interface {
	Identity(ctx context.Context) Identity
}

type identityKey struct{}

// WithIdentity returns a context carrying id for [ContextIdentity].
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity stored by [WithIdentity].
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// ContextIdentity reads the identity from the call context and falls back to
// Default when none was attached.
type ContextIdentity struct {
	Default Identity
}

func (s ContextIdentity) Identity(ctx context.Context) Identity {
	if id, ok := IdentityFromContext(ctx); ok {
		return id
	}
	return s.Default
}

func (id Identity) setHeaders(h http.Header, runner string) {
	h.Set(HeaderBentoName, id.BentoName)
	h.Set(HeaderBentoVersion, id.BentoVersion)
	h.Set(HeaderRunnerName, runner)
	h.Set(HeaderYataiDeploymentName, id.DeploymentName)
	h.Set(HeaderYataiDeploymentNamespace, id.DeploymentNamespace)
}

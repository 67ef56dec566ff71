// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package runnerrpc

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Query-farm/runner-rpc/container"
)

// outgoingRequest is an encoded call ready to be posted.
type outgoingRequest struct {
	method MethodDescriptor
	url    string
	body   []byte
	header http.Header
}

// encodeRequest turns a method call into a request against authority.
// Batchable methods are rejected before anything is sent if their arguments
// disagree on batch size.
func (c *Client) encodeRequest(ctx context.Context, authority string, m MethodDescriptor,
	args []any, kwargs map[string]any) (*outgoingRequest, error) {

	codec := c.opts.Codec
	params, err := container.MapParams(container.NewParams(args, kwargs), func(v any) (container.Payload, error) {
		return codec.ToPayload(v, m.InputBatchDim)
	})
	if err != nil {
		return nil, &ValidationError{Runner: c.runner, Method: m.Name, Reason: "encoding arguments", Err: err}
	}

	if m.Batchable && !container.SameBatchSize(params) {
		return nil, &ValidationError{
			Runner: c.runner,
			Method: m.Name,
			Reason: fmt.Sprintf("all batchable arguments must have the same batch size, got %v",
				container.BatchSizes(params)),
		}
	}

	body, err := codec.EncodeParams(params)
	if err != nil {
		return nil, &ValidationError{Runner: c.runner, Method: m.Name, Reason: "serializing arguments", Err: err}
	}

	header := make(http.Header, 6)
	c.opts.Identity.Identity(ctx).setHeaders(header, c.runner)
	header.Set(HeaderContentType, ParamsContentType)

	return &outgoingRequest{
		method: m,
		url:    authority + "/" + m.Path(),
		body:   body,
		header: header,
	}, nil
}

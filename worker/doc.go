// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package worker is a minimal runner worker speaking the same wire protocol
// as [runnerrpc.Client]. It decodes argument bundles, dispatches to
// registered handlers and encodes results with Payload-Meta and a vendor
// Content-Type. It serves one request per call; there is no adaptive
// batching.
//
// Routes:
//
//	POST /          the default method (__call__)
//	POST /{method}  any other registered method
//
// A handler error or panic yields a 500 response with the error text as
// body. Unknown methods yield 404.
package worker

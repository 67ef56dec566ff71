// Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package runnerrpc implements the client side of the remote runner
// protocol: an HTTP/1.1 RPC used by a serving front end to call model
// runners hosted in separate worker processes.
//
// A [Client] is bound to one runner name. Its bind address and timeout come
// from a [ConfigProvider] ([MapConfig] or a YAML [FileConfig]). Addresses
// take one of two forms:
//
//	unix:///path/to/runner.sock   (file:// is accepted as a synonym)
//	tcp://host:port
//
// # Calls
//
// Every call is a POST of a serialized argument bundle to
//
//	{authority}/{method}
//
// where the default method [DefaultMethod] is served at the root path.
// Domain-socket requests use a fixed placeholder authority.
//
// Arguments are encoded by a [Codec], by default [container.Auto], into
// payloads tagged with the container that produced them. For batchable
// methods every argument must report the same batch size; otherwise the call
// fails with a [*ValidationError] before anything is sent.
//
// # Responses
//
// A response is checked in a fixed order:
//
//   - a status other than 200 is a [*RemoteFault]
//   - a missing Payload-Meta or Content-Type header, or a Content-Type
//     outside the application/vnd.bentoml. namespace, is a [*ProtocolError]
//   - Payload-Meta that is not valid JSON is a [*ValidationError]
//
// The remainder of the Content-Type after the vendor prefix is the container
// tag used to decode the body.
//
// # Execution contexts
//
// Calls run on the client's current execution context. [Client.Go] starts a
// call asynchronously and [Client.Call] waits for it; both may be used from
// any goroutine. [Client.Reset] replaces the execution context, after which
// the connector and session are rebuilt once on the next call. [Client.Close]
// cancels running calls and releases all connections.
//
// # Observability
//
// A [RequestHook] observes each request. The runnerotel subpackage provides
// an OpenTelemetry implementation.
package runnerrpc

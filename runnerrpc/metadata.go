// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package runnerrpc

// HTTP headers used by the runner wire protocol.
const (
	HeaderBentoName                = "Bento-Name"
	HeaderBentoVersion             = "Bento-Version"
	HeaderRunnerName               = "Runner-Name"
	HeaderYataiDeploymentName      = "Yatai-Bento-Deployment-Name"
	HeaderYataiDeploymentNamespace = "Yatai-Bento-Deployment-Namespace"
	HeaderPayloadMeta              = "Payload-Meta"
	HeaderContentType              = "Content-Type"
	HeaderContentEncoding          = "Content-Encoding"

	// ContentTypePrefix is the reserved vendor prefix of every payload
	// Content-Type. The remainder is the container tag.
	ContentTypePrefix = "application/vnd.bentoml."

	// ParamsContentType marks a request body holding a serialized argument bundle.
	ParamsContentType = ContentTypePrefix + "params"
)

// DefaultMethod is the name of a runner's default method. It is served at
// the root path.
const DefaultMethod = "__call__"

// unixAuthority is the authority used for domain-socket requests. The socket
// path alone selects the peer, so the value is never dialed.
const unixAuthority = "http://127.0.0.1:8000"

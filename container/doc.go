// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package container converts method arguments and return values to and from
// the transportable [Payload] form used by the runner RPC protocol.
//
// A payload is raw bytes plus JSON-compatible metadata plus a container tag
// naming the encoding that produced the bytes. The tag travels in the
// response Content-Type (application/vnd.bentoml.<tag>) and selects the
// container used to decode the bytes on the other side.
//
// # Containers
//
//   - [ArrowContainer] carries Apache Arrow records as an Arrow IPC stream.
//     The batch size is the record's row count.
//   - [DefaultContainer] carries any JSON-encodable value. The batch size is
//     the length of the slice found at the batch dimension, or 1 for scalars.
//
// [AutoContainer] picks the first registered container that accepts a value
// and dispatches decoding by tag. [Auto] returns the default registry.
//
// # Argument bundles
//
// A call's arguments are carried as [Params]: positional payloads in order
// plus named payloads. [EncodeParams] serializes the whole bundle in one gob
// pass so the receiver recovers both structure and payload metadata together.
package container

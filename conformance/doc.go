// Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package conformance provides test fixtures for the runner wire protocol.
// [RegisterMethods] registers a small set of methods on a [worker.Server]
// that exercise each client path: the default method, JSON and Arrow
// payloads, batchable calls, remote failures and slow calls.
package conformance

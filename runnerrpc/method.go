// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package runnerrpc

import "net/url"

// MethodDescriptor describes a runner method. It is owned by the runner
// definition and never modified by the client.
type MethodDescriptor struct {
	Name string
	// Batchable methods require every argument to carry the same batch size.
	Batchable bool
	// InputBatchDim is the batch axis of the arguments.
	InputBatchDim int
	// OutputBatchDim is the batch axis of the return value.
	OutputBatchDim int
}

// Method returns a non-batchable descriptor for name.
func Method(name string) MethodDescriptor {
	return MethodDescriptor{Name: name}
}

// BatchableMethod returns a descriptor batched along dimension 0 on both sides.
func BatchableMethod(name string) MethodDescriptor {
	return MethodDescriptor{Name: name, Batchable: true}
}

// Path returns the request path below the runner authority: empty for
// [DefaultMethod], the escaped method name otherwise.
func (m MethodDescriptor) Path() string {
	if m.Name == DefaultMethod {
		return ""
	}
	return url.PathEscape(m.Name)
}

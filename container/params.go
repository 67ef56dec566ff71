// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"fmt"
	"sort"
)

// Params holds the positional and keyword arguments of one method call.
type Params[T any] struct {
	Args   []T
	Kwargs map[string]T
}

// NewParams builds a Params from positional and keyword values.
// A nil kwargs map is allowed.
func NewParams[T any](args []T, kwargs map[string]T) Params[T] {
	return Params[T]{Args: args, Kwargs: kwargs}
}

// Len returns the total number of arguments.
func (p Params[T]) Len() int {
	return len(p.Args) + len(p.Kwargs)
}

// KwargNames returns the keyword argument names in sorted order.
func (p Params[T]) KwargNames() []string {
	names := make([]string, 0, len(p.Kwargs))
	for k := range p.Kwargs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Values returns every argument, positional first and then keyword arguments
// ordered by name.
func (p Params[T]) Values() []T {
	out := make([]T, 0, p.Len())
	out = append(out, p.Args...)
	for _, k := range p.KwargNames() {
		out = append(out, p.Kwargs[k])
	}
	return out
}

// MapParams applies fn to every argument and returns the results with the
// same shape. The first error stops the mapping and is returned annotated with
// the argument's position or name.
func MapParams[T, U any](p Params[T], fn func(T) (U, error)) (Params[U], error) {
	out := Params[U]{Args: make([]U, len(p.Args))}
	for i, v := range p.Args {
		u, err := fn(v)
		if err != nil {
			return Params[U]{}, fmt.Errorf("argument %d: %w", i, err)
		}
		out.Args[i] = u
	}
	if p.Kwargs != nil {
		out.Kwargs = make(map[string]U, len(p.Kwargs))
		for _, k := range p.KwargNames() {
			u, err := fn(p.Kwargs[k])
			if err != nil {
				return Params[U]{}, fmt.Errorf("argument %q: %w", k, err)
			}
			out.Kwargs[k] = u
		}
	}
	return out, nil
}

// BatchSizes returns the batch size of every payload in [Params.Values] order.
func BatchSizes(p Params[Payload]) []int {
	values := p.Values()
	sizes := make([]int, len(values))
	for i, v := range values {
		sizes[i] = v.BatchSize
	}
	return sizes
}

// SameBatchSize reports whether all payloads share one batch size.
// Empty and single-argument bundles trivially do.
func SameBatchSize(p Params[Payload]) bool {
	sizes := BatchSizes(p)
	for _, s := range sizes[min(1, len(sizes)):] {
		if s != sizes[0] {
			return false
		}
	}
	return true
}

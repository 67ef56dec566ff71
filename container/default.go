// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"fmt"
	"reflect"

	"github.com/goccy/go-json"
)

// DefaultContainerTag is the wire tag of [DefaultContainer].
const DefaultContainerTag = "DefaultContainer"

// DefaultContainer encodes any JSON-encodable value. Decoded values use the
// generic JSON shapes: float64, string, bool, []any and map[string]any.
type DefaultContainer struct{}

func (DefaultContainer) Tag() string { return DefaultContainerTag }

// Accepts reports true for every value; DefaultContainer is the fallback.
func (DefaultContainer) Accepts(any) bool { return true }

func (DefaultContainer) ToPayload(v any, batchDim int) (Payload, error) {
	if batchDim < 0 {
		return Payload{}, fmt.Errorf("invalid batch dimension %d", batchDim)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Payload{}, err
	}
	return Payload{
		Data:      data,
		Meta:      map[string]any{"format": "json"},
		Container: DefaultContainerTag,
		BatchSize: batchSizeOf(v, batchDim),
	}, nil
}

func (DefaultContainer) FromPayload(p Payload) (any, error) {
	if f, ok := p.Meta["format"]; ok && f != "json" {
		return nil, fmt.Errorf("unsupported format %v", f)
	}
	var v any
	if err := json.Unmarshal(p.Data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// batchSizeOf returns the length of the slice found batchDim levels deep,
// following the first element at each level. Scalars, nil and byte slices
// count as a batch of one.
func batchSizeOf(v any, batchDim int) int {
	rv := reflect.ValueOf(v)
	for depth := 0; ; depth++ {
		for rv.Kind() == reflect.Interface || rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				return 1
			}
			rv = rv.Elem()
		}
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return 1
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return 1
		}
		if depth == batchDim {
			return rv.Len()
		}
		if rv.Len() == 0 {
			return 0
		}
		rv = rv.Index(0)
	}
}

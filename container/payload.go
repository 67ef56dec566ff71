// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"errors"
	"fmt"
	"sync"
)

// Payload is the transportable encoding of a single value.
type Payload struct {
	// Data is the encoded value.
	Data []byte
	// Meta is JSON-compatible metadata the container needs to decode Data.
	Meta map[string]any
	// Container is the tag of the container that produced Data.
	Container string
	// BatchSize is the number of items along the batch dimension.
	BatchSize int
}

// Container encodes one family of Go values.
type Container interface {
	// Tag names the container on the wire.
	Tag() string
	// Accepts reports whether v can be encoded by this container.
	Accepts(v any) bool
	// ToPayload encodes v. batchDim is the axis used to compute BatchSize.
	ToPayload(v any, batchDim int) (Payload, error)
	// FromPayload decodes a payload produced by ToPayload.
	FromPayload(p Payload) (any, error)
}

// ErrUnknownContainer is returned when a payload's tag matches no registered container.
var ErrUnknownContainer = errors.New("container: unknown container tag")

// AutoContainer dispatches encoding to the first accepting container and
// decoding by tag. It is safe for concurrent use.
type AutoContainer struct {
	mu         sync.RWMutex
	containers []Container
	byTag      map[string]Container
}

// NewAutoContainer creates a registry. Containers are consulted in the order given.
func NewAutoContainer(containers ...Container) *AutoContainer {
	a := &AutoContainer{byTag: make(map[string]Container)}
	for _, c := range containers {
		a.Register(c)
	}
	return a
}

var (
	autoOnce sync.Once
	auto     *AutoContainer
)

// Auto returns the shared default registry: [ArrowContainer] then [DefaultContainer].
func Auto() *AutoContainer {
	autoOnce.Do(func() {
		auto = NewAutoContainer(ArrowContainer{}, DefaultContainer{})
	})
	return auto
}

// Register appends a container. A container with an already registered tag
// replaces the previous one in place.
func (a *AutoContainer) Register(c Container) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.byTag[c.Tag()]; ok {
		for i, old := range a.containers {
			if old.Tag() == c.Tag() {
				a.containers[i] = c
			}
		}
	} else {
		a.containers = append(a.containers, c)
	}
	a.byTag[c.Tag()] = c
}

// ToPayload encodes v with the first container that accepts it.
func (a *AutoContainer) ToPayload(v any, batchDim int) (Payload, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, c := range a.containers {
		if c.Accepts(v) {
			p, err := c.ToPayload(v, batchDim)
			if err != nil {
				return Payload{}, fmt.Errorf("%s: %w", c.Tag(), err)
			}
			return p, nil
		}
	}
	return Payload{}, fmt.Errorf("container: no container accepts %T", v)
}

// FromPayload decodes p with the container named by p.Container.
func (a *AutoContainer) FromPayload(p Payload) (any, error) {
	a.mu.RLock()
	c, ok := a.byTag[p.Container]
	a.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownContainer, p.Container)
	}
	v, err := c.FromPayload(p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Tag(), err)
	}
	return v, nil
}

// EncodeParams serializes an argument bundle. See [EncodeParams].
func (a *AutoContainer) EncodeParams(p Params[Payload]) ([]byte, error) {
	return EncodeParams(p)
}

// DecodeParams deserializes an argument bundle. See [DecodeParams].
func (a *AutoContainer) DecodeParams(data []byte) (Params[Payload], error) {
	return DecodeParams(data)
}

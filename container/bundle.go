// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/goccy/go-json"
)

// bundleVersion is bumped whenever the gob layout below changes.
const bundleVersion = 1

type wirePayload struct {
	Data      []byte
	Meta      []byte // JSON object
	Container string
	BatchSize int
}

type wireBundle struct {
	Version int
	Args    []wirePayload
	Kwargs  map[string]wirePayload
}

func toWire(p Payload) (wirePayload, error) {
	var meta []byte
	if p.Meta != nil {
		var err error
		meta, err = json.Marshal(p.Meta)
		if err != nil {
			return wirePayload{}, fmt.Errorf("payload meta: %w", err)
		}
	}
	return wirePayload{Data: p.Data, Meta: meta, Container: p.Container, BatchSize: p.BatchSize}, nil
}

func fromWire(w wirePayload) (Payload, error) {
	p := Payload{Data: w.Data, Container: w.Container, BatchSize: w.BatchSize}
	if len(w.Meta) > 0 {
		if err := json.Unmarshal(w.Meta, &p.Meta); err != nil {
			return Payload{}, fmt.Errorf("payload meta: %w", err)
		}
	}
	return p, nil
}

// EncodeParams serializes a complete argument bundle in a single gob pass.
func EncodeParams(p Params[Payload]) ([]byte, error) {
	wp, err := MapParams(p, toWire)
	if err != nil {
		return nil, err
	}
	bundle := wireBundle{Version: bundleVersion, Args: wp.Args, Kwargs: wp.Kwargs}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&bundle); err != nil {
		return nil, fmt.Errorf("params bundle encode: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeParams reverses [EncodeParams].
func DecodeParams(data []byte) (Params[Payload], error) {
	var bundle wireBundle
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&bundle); err != nil {
		return Params[Payload]{}, fmt.Errorf("params bundle decode: %w", err)
	}
	if bundle.Version != bundleVersion {
		return Params[Payload]{}, fmt.Errorf("params bundle: unsupported version %d, expected %d",
			bundle.Version, bundleVersion)
	}
	return MapParams(NewParams(bundle.Args, bundle.Kwargs), fromWire)
}

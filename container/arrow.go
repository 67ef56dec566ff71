// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ArrowContainerTag is the wire tag of [ArrowContainer].
const ArrowContainerTag = "ArrowContainer"

const arrowFormat = "arrow_ipc"

// ArrowContainer carries an [arrow.RecordBatch] as a single-batch Arrow IPC stream.
// Rows are the batch dimension, so only batchDim 0 is supported.
//
// Decoded records are owned by the caller, who must Release them.
type ArrowContainer struct {
	// Uncompressed disables zstd compression of the IPC body buffers.
	Uncompressed bool
}

func (ArrowContainer) Tag() string { return ArrowContainerTag }

func (ArrowContainer) Accepts(v any) bool {
	_, ok := v.(arrow.RecordBatch)
	return ok
}

func (c ArrowContainer) ToPayload(v any, batchDim int) (Payload, error) {
	rec, ok := v.(arrow.RecordBatch)
	if !ok {
		return Payload{}, fmt.Errorf("expected arrow.RecordBatch, got %T", v)
	}
	if batchDim != 0 {
		return Payload{}, fmt.Errorf("arrow records batch along rows; batch dimension %d unsupported", batchDim)
	}

	opts := []ipc.Option{ipc.WithSchema(rec.Schema())}
	compression := "none"
	if !c.Uncompressed {
		opts = append(opts, ipc.WithZstd())
		compression = "zstd"
	}

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, opts...)
	if err := w.Write(rec); err != nil {
		_ = w.Close()
		return Payload{}, fmt.Errorf("writing record: %w", err)
	}
	if err := w.Close(); err != nil {
		return Payload{}, fmt.Errorf("closing IPC stream: %w", err)
	}

	return Payload{
		Data: buf.Bytes(),
		Meta: map[string]any{
			"format":      arrowFormat,
			"compression": compression,
			"num_rows":    rec.NumRows(),
		},
		Container: ArrowContainerTag,
		BatchSize: int(rec.NumRows()),
	}, nil
}

func (ArrowContainer) FromPayload(p Payload) (any, error) {
	if f, ok := p.Meta["format"]; ok && f != arrowFormat {
		return nil, fmt.Errorf("unsupported format %v", f)
	}
	reader, err := ipc.NewReader(bytes.NewReader(p.Data), ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, fmt.Errorf("reading IPC stream: %w", err)
	}
	defer reader.Release()

	if !reader.Next() {
		if err := reader.Err(); err != nil {
			return nil, fmt.Errorf("reading record: %w", err)
		}
		return nil, errors.New("IPC stream holds no record")
	}
	rec := reader.RecordBatch()
	rec.Retain() // keep the record alive after the reader is released
	return rec, nil
}

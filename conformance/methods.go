// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package conformance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/Query-farm/runner-rpc/runnerrpc"
	"github.com/Query-farm/runner-rpc/worker"
)

// Method names registered by [RegisterMethods].
const (
	MethodPredict  = "predict"
	MethodClassify = "classify"
	MethodFail     = "fail"
	MethodSlow     = "slow"
)

// FailMessage is the error text returned by the fail method.
const FailMessage = "boom"

// LabelField is the output column of classify.
const LabelField = "label"

// RegisterMethods registers every conformance method on srv.
func RegisterMethods(srv *worker.Server) {
	srv.Handle(runnerrpc.DefaultMethod, echo)
	srv.Handle(MethodPredict, predict)
	srv.Handle(MethodClassify, classify)
	srv.Handle(MethodFail, fail)
	srv.Handle(MethodSlow, slow)
}

// echo returns its single positional argument, or every argument when
// called with more than one.
func echo(_ context.Context, call *worker.Call) (any, error) {
	if len(call.Args) == 1 && len(call.Kwargs) == 0 {
		if rec, ok := call.Args[0].(arrow.RecordBatch); ok {
			rec.Retain()
		}
		return call.Args[0], nil
	}
	return map[string]any{"args": call.Args, "kwargs": call.Kwargs}, nil
}

// predict sums a list of numbers, or every float64 value of an Arrow record.
func predict(_ context.Context, call *worker.Call) (any, error) {
	if len(call.Args) != 1 {
		return nil, fmt.Errorf("predict takes 1 argument, got %d", len(call.Args))
	}
	switch x := call.Args[0].(type) {
	case []any:
		var sum float64
		for i, v := range x {
			f, ok := v.(float64)
			if !ok {
				return nil, fmt.Errorf("predict: element %d is %T, not a number", i, v)
			}
			sum += f
		}
		return sum, nil
	case arrow.RecordBatch:
		var sum float64
		for _, col := range float64Columns(x) {
			for _, v := range col.Float64Values() {
				sum += v
			}
		}
		return sum, nil
	default:
		return nil, fmt.Errorf("predict: unsupported input %T", x)
	}
}

// classify labels each row of its first Arrow argument with the index of
// the largest float64 column. Every argument must share the row count.
func classify(_ context.Context, call *worker.Call) (any, error) {
	if len(call.Args) == 0 {
		return nil, errors.New("classify takes at least 1 argument")
	}
	recs := make([]arrow.RecordBatch, len(call.Args))
	for i, a := range call.Args {
		rec, ok := a.(arrow.RecordBatch)
		if !ok {
			return nil, fmt.Errorf("classify: argument %d is %T, not an Arrow record", i, a)
		}
		if i > 0 && rec.NumRows() != recs[0].NumRows() {
			return nil, fmt.Errorf("classify: argument %d has %d rows, want %d", i, rec.NumRows(), recs[0].NumRows())
		}
		recs[i] = rec
	}

	cols := float64Columns(recs[0])
	if len(cols) == 0 {
		return nil, errors.New("classify: no float64 columns")
	}

	mem := memory.NewGoAllocator()
	b := array.NewInt64Builder(mem)
	defer b.Release()
	rows := int(recs[0].NumRows())
	b.Reserve(rows)
	for row := 0; row < rows; row++ {
		best := 0
		for c := 1; c < len(cols); c++ {
			if cols[c].Value(row) > cols[best].Value(row) {
				best = c
			}
		}
		b.Append(int64(best))
	}
	labels := b.NewArray()
	defer labels.Release()

	schema := arrow.NewSchema([]arrow.Field{{Name: LabelField, Type: arrow.PrimitiveTypes.Int64}}, nil)
	return array.NewRecordBatch(schema, []arrow.Array{labels}, int64(rows)), nil
}

func fail(context.Context, *worker.Call) (any, error) {
	return nil, errors.New(FailMessage)
}

// slow waits for the duration given by the seconds keyword argument, or
// until the request is cancelled.
func slow(ctx context.Context, call *worker.Call) (any, error) {
	secs, _ := call.Kwargs["seconds"].(float64)
	t := time.NewTimer(time.Duration(secs * float64(time.Second)))
	defer t.Stop()
	select {
	case <-t.C:
		return "done", nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func float64Columns(rec arrow.RecordBatch) []*array.Float64 {
	var cols []*array.Float64
	for i := 0; i < int(rec.NumCols()); i++ {
		if c, ok := rec.Column(i).(*array.Float64); ok {
			cols = append(cols, c)
		}
	}
	return cols
}

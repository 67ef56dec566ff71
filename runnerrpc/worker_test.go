// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package runnerrpc_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Query-farm/runner-rpc/conformance"
	"github.com/Query-farm/runner-rpc/runnerrpc"
	"github.com/Query-farm/runner-rpc/worker"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func startWorker(t *testing.T, compression string) (*worker.Server, string) {
	t.Helper()
	srv := worker.NewServer("iris", nil)
	srv.SetLogger(quiet)
	conformance.RegisterMethods(srv)
	require.NoError(t, srv.SetCompression(compression))

	hs := httptest.NewServer(srv)
	t.Cleanup(hs.Close)
	return srv, "tcp://" + hs.Listener.Addr().String()
}

func dial(t *testing.T, bind string) *runnerrpc.Client {
	t.Helper()
	c := runnerrpc.NewClient("iris", runnerrpc.MapConfig{
		Addresses:      map[string]string{"iris": bind},
		DefaultTimeout: 10 * time.Second,
	}, &runnerrpc.Options{Logger: quiet})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func features(t *testing.T, cols ...[]float64) arrow.RecordBatch {
	t.Helper()
	mem := memory.NewGoAllocator()
	fields := make([]arrow.Field, len(cols))
	arrs := make([]arrow.Array, len(cols))
	for i, values := range cols {
		fields[i] = arrow.Field{Name: string(rune('a' + i)), Type: arrow.PrimitiveTypes.Float64}
		b := array.NewFloat64Builder(mem)
		b.AppendValues(values, nil)
		arrs[i] = b.NewArray()
		b.Release()
	}
	rec := array.NewRecordBatch(arrow.NewSchema(fields, nil), arrs, int64(len(cols[0])))
	for _, a := range arrs {
		a.Release()
	}
	t.Cleanup(rec.Release)
	return rec
}

func TestWorkerRoundTrip(t *testing.T) {
	for _, compression := range []string{"", "zstd", "gzip"} {
		t.Run("compression="+compression, func(t *testing.T) {
			_, bind := startWorker(t, compression)
			c := dial(t, bind)
			ctx := context.Background()

			v, err := c.Call(ctx, runnerrpc.Method(conformance.MethodPredict), []any{[]float64{1, 2, 3.5}}, nil)
			require.NoError(t, err)
			assert.Equal(t, 6.5, v)

			v, err = c.Invoke(ctx, "hello")
			require.NoError(t, err)
			assert.Equal(t, "hello", v)

			v, err = c.Call(ctx, runnerrpc.Method(runnerrpc.DefaultMethod), []any{1.0}, map[string]any{"k": "v"})
			require.NoError(t, err)
			assert.Equal(t, map[string]any{"args": []any{1.0}, "kwargs": map[string]any{"k": "v"}}, v)
		})
	}
}

func TestWorkerArrowCalls(t *testing.T) {
	_, bind := startWorker(t, "")
	c := dial(t, bind)
	ctx := context.Background()

	x := features(t, []float64{0.1, 0.9, 0.5}, []float64{0.8, 0.2, 0.4})
	v, err := c.Call(ctx, runnerrpc.BatchableMethod(conformance.MethodClassify), []any{x}, nil)
	require.NoError(t, err)
	out, ok := v.(arrow.RecordBatch)
	require.True(t, ok, "got %T", v)
	defer out.Release()
	require.EqualValues(t, 3, out.NumRows())
	labels := out.Column(0).(*array.Int64)
	assert.Equal(t, []int64{1, 0, 0}, labels.Int64Values())

	v, err = c.Call(ctx, runnerrpc.Method(conformance.MethodPredict), []any{x}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 2.9, v, 1e-9)

	short := features(t, []float64{1, 2})
	_, err = c.Call(ctx, runnerrpc.BatchableMethod(conformance.MethodClassify), []any{x, short}, nil)
	assert.ErrorIs(t, err, runnerrpc.ErrValidation)

	// Without batch validation the worker sees the mismatch and fails the call.
	_, err = c.Call(ctx, runnerrpc.Method(conformance.MethodClassify), []any{x, short}, nil)
	assert.ErrorIs(t, err, runnerrpc.ErrRemote)
}

func TestWorkerFailures(t *testing.T) {
	_, bind := startWorker(t, "")
	c := dial(t, bind)
	ctx := context.Background()

	_, err := c.Call(ctx, runnerrpc.Method(conformance.MethodFail), nil, nil)
	var fault *runnerrpc.RemoteFault
	require.True(t, errors.As(err, &fault), "got %v", err)
	assert.Equal(t, http.StatusInternalServerError, fault.Status)
	assert.Equal(t, conformance.FailMessage, string(fault.Body))

	_, err = c.Call(ctx, runnerrpc.Method("no_such_method"), nil, nil)
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, http.StatusNotFound, fault.Status)
}

func TestWorkerSlowCallTimesOut(t *testing.T) {
	_, bind := startWorker(t, "")
	c := runnerrpc.NewClient("iris", runnerrpc.MapConfig{
		Addresses:      map[string]string{"iris": bind},
		Timeouts:       map[string]time.Duration{"iris": 100 * time.Millisecond},
		DefaultTimeout: time.Minute,
	}, &runnerrpc.Options{Logger: quiet})
	defer c.Close()

	_, err := c.Call(context.Background(), runnerrpc.Method(conformance.MethodSlow), nil, map[string]any{"seconds": 5.0})
	assert.ErrorIs(t, err, runnerrpc.ErrTimeout)

	v, err := c.Call(context.Background(), runnerrpc.Method(conformance.MethodSlow), nil, map[string]any{"seconds": 0.0})
	require.NoError(t, err)
	assert.Equal(t, "done", v)
}

func TestWorkerIdentityHeaders(t *testing.T) {
	srv, bind := startWorker(t, "")
	srv.Handle("whoami", func(_ context.Context, call *worker.Call) (any, error) {
		return map[string]any{
			"bento":     call.Identity.BentoName,
			"version":   call.Identity.BentoVersion,
			"namespace": call.Identity.DeploymentNamespace,
		}, nil
	})
	c := dial(t, bind)

	ctx := runnerrpc.WithIdentity(context.Background(), runnerrpc.Identity{
		BentoName:           "iris_service",
		BentoVersion:        "v3",
		DeploymentNamespace: "models",
	})
	v, err := c.Call(ctx, runnerrpc.Method("whoami"), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"bento": "iris_service", "version": "v3", "namespace": "models"}, v)
}

func TestWorkerOverUnixSocket(t *testing.T) {
	dir, err := os.MkdirTemp("", "rr")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	path := filepath.Join(dir, "iris.sock")

	srv := worker.NewServer("iris", nil)
	srv.SetLogger(quiet)
	conformance.RegisterMethods(srv)
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx, ln) }()

	c := dial(t, "unix://"+path)
	v, err := c.Call(context.Background(), runnerrpc.Method(conformance.MethodPredict), []any{[]float64{2, 2}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 4.0, v)

	require.NoError(t, c.Close())
	cancel()
	assert.NoError(t, <-served)
}

func TestWorkerPredictProperty(t *testing.T) {
	_, bind := startWorker(t, "zstd")
	c := dial(t, bind)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("predict returns the sum computed locally", prop.ForAll(
		func(xs []float64) bool {
			if xs == nil {
				xs = []float64{}
			}
			v, err := c.Call(context.Background(), runnerrpc.Method(conformance.MethodPredict), []any{xs}, nil)
			if err != nil {
				return false
			}
			var want float64
			for _, x := range xs {
				want += x
			}
			return v == want
		},
		gen.SliceOf(gen.Float64Range(-1e6, 1e6)),
	))

	properties.Property("the default method echoes strings", prop.ForAll(
		func(s string) bool {
			v, err := c.Invoke(context.Background(), s)
			return err == nil && v == s
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package worker_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Query-farm/runner-rpc/conformance"
	"github.com/Query-farm/runner-rpc/container"
	"github.com/Query-farm/runner-rpc/runnerrpc"
	"github.com/Query-farm/runner-rpc/worker"
)

func newServer(t *testing.T) *worker.Server {
	t.Helper()
	srv := worker.NewServer("iris", nil)
	srv.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	conformance.RegisterMethods(srv)
	return srv
}

func encodeArgs(t *testing.T, args ...any) []byte {
	t.Helper()
	params, err := container.MapParams(container.NewParams(args, nil), func(v any) (container.Payload, error) {
		return container.Auto().ToPayload(v, 0)
	})
	require.NoError(t, err)
	body, err := container.EncodeParams(params)
	require.NoError(t, err)
	return body
}

func post(t *testing.T, h http.Handler, path, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set(runnerrpc.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServerResponseHeaders(t *testing.T) {
	srv := newServer(t)
	rec := post(t, srv, "/predict", runnerrpc.ParamsContentType, encodeArgs(t, []float64{1, 2}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, runnerrpc.ContentTypePrefix+container.DefaultContainerTag, rec.Header().Get(runnerrpc.HeaderContentType))
	assert.JSONEq(t, `{"format":"json"}`, rec.Header().Get(runnerrpc.HeaderPayloadMeta))
	assert.Empty(t, rec.Header().Get(runnerrpc.HeaderContentEncoding))
	assert.Equal(t, "3", rec.Body.String())
}

func TestServerDefaultMethodAtRoot(t *testing.T) {
	srv := newServer(t)
	for _, path := range []string{"/", "/" + runnerrpc.DefaultMethod} {
		rec := post(t, srv, path, runnerrpc.ParamsContentType, encodeArgs(t, "hi"))
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, `"hi"`, rec.Body.String())
	}
}

func TestServerErrors(t *testing.T) {
	srv := newServer(t)
	srv.Handle("explode", func(context.Context, *worker.Call) (any, error) {
		panic("kaboom")
	})

	tests := []struct {
		name        string
		path        string
		contentType string
		body        []byte
		status      int
		contains    string
	}{
		{"unknown method", "/missing", runnerrpc.ParamsContentType, encodeArgs(t), http.StatusNotFound, "missing"},
		{"wrong content type", "/predict", "application/json", []byte("[1]"), http.StatusUnsupportedMediaType, "application/json"},
		{"garbage bundle", "/predict", runnerrpc.ParamsContentType, []byte("garbage"), http.StatusBadRequest, "decoding params"},
		{"handler error", "/fail", runnerrpc.ParamsContentType, encodeArgs(t), http.StatusInternalServerError, conformance.FailMessage},
		{"handler panic", "/explode", runnerrpc.ParamsContentType, encodeArgs(t), http.StatusInternalServerError, "kaboom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, srv, tt.path, tt.contentType, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.contains)
			assert.Empty(t, rec.Header().Get(runnerrpc.HeaderPayloadMeta))
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/predict", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServerCompression(t *testing.T) {
	srv := newServer(t)
	require.NoError(t, srv.SetCompression("zstd"))
	assert.Error(t, srv.SetCompression("lz4"))

	rec := post(t, srv, "/predict", runnerrpc.ParamsContentType, encodeArgs(t, []float64{4, 5}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "zstd", rec.Header().Get(runnerrpc.HeaderContentEncoding))

	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	raw, err := dec.DecodeAll(rec.Body.Bytes(), nil)
	require.NoError(t, err)

	var v float64
	require.NoError(t, json.Unmarshal(raw, &v))
	assert.Equal(t, 9.0, v)
}

func TestServerMethods(t *testing.T) {
	srv := newServer(t)
	assert.Equal(t, []string{
		runnerrpc.DefaultMethod,
		conformance.MethodClassify,
		conformance.MethodFail,
		conformance.MethodPredict,
		conformance.MethodSlow,
	}, srv.Methods())
}

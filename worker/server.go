// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/Query-farm/runner-rpc/container"
	"github.com/Query-farm/runner-rpc/runnerrpc"
)

// Codec is the payload codec a worker needs: everything the client uses plus
// bundle decoding.
type Codec interface {
	runnerrpc.Codec
	DecodeParams(data []byte) (container.Params[container.Payload], error)
}

// Call is one decoded request handed to a [HandlerFunc].
type Call struct {
	Runner   string
	Method   string
	Args     []any
	Kwargs   map[string]any
	Identity runnerrpc.Identity
}

// HandlerFunc serves one runner method. A returned error becomes a 500
// response whose body is the error text.
type HandlerFunc func(ctx context.Context, call *Call) (any, error)

// Server serves runner methods over HTTP.
type Server struct {
	runner string
	codec  Codec
	logger *slog.Logger

	mu          sync.RWMutex
	methods     map[string]HandlerFunc
	compression string

	mux *http.ServeMux
}

// NewServer creates a worker for the named runner. A nil codec uses
// [container.Auto].
func NewServer(runner string, codec Codec) *Server {
	if codec == nil {
		codec = container.Auto()
	}
	s := &Server{
		runner:  runner,
		codec:   codec,
		logger:  slog.Default(),
		methods: make(map[string]HandlerFunc),
	}
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("POST /{$}", s.handleCall)
	s.mux.HandleFunc("POST /{method}", s.handleCall)
	return s
}

// Handle registers fn under the method name. [runnerrpc.DefaultMethod] is
// served at the root path.
func (s *Server) Handle(name string, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods[name] = fn
}

// Methods returns the registered method names in sorted order.
func (s *Server) Methods() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetLogger replaces the server's logger.
func (s *Server) SetLogger(l *slog.Logger) {
	s.logger = l
}

// SetCompression selects the Content-Encoding of response bodies: "zstd",
// "gzip", or "" for none.
func (s *Server) SetCompression(encoding string) error {
	switch encoding {
	case "", encodingZstd, encodingGzip:
	default:
		return fmt.Errorf("worker: unsupported compression %q", encoding)
	}
	s.mu.Lock()
	s.compression = encoding
	s.mu.Unlock()
	return nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s, ReadHeaderTimeout: 30 * time.Second}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()

	s.logger.Info("runner worker listening", "runner", s.runner, "network", ln.Addr().Network(), "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	method := r.PathValue("method")
	if method == "" {
		method = runnerrpc.DefaultMethod
	}

	s.mu.RLock()
	fn, ok := s.methods[method]
	compression := s.compression
	s.mu.RUnlock()
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown method %q on runner %s", method, s.runner))
		return
	}

	if ct := r.Header.Get(runnerrpc.HeaderContentType); ct != runnerrpc.ParamsContentType {
		s.writeError(w, http.StatusUnsupportedMediaType, fmt.Sprintf("unsupported content type: %s", ct))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	call, err := s.decodeCall(r, method, body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	result, err := s.invoke(r.Context(), fn, call)
	release(call.Args...)
	for _, v := range call.Kwargs {
		release(v)
	}
	if err != nil {
		s.logger.Warn("runner method failed", "runner", s.runner, "method", method, "err", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	p, err := s.codec.ToPayload(result, 0)
	release(result)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("encoding result: %v", err))
		return
	}
	meta, err := json.Marshal(p.Meta)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("encoding payload meta: %v", err))
		return
	}
	data, err := compress(compression, p.Data)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h := w.Header()
	h.Set(runnerrpc.HeaderPayloadMeta, string(meta))
	h.Set(runnerrpc.HeaderContentType, runnerrpc.ContentTypePrefix+p.Container)
	if compression != "" {
		h.Set(runnerrpc.HeaderContentEncoding, compression)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)

	s.logger.Debug("runner method served", "runner", s.runner, "method", method,
		"container", p.Container, "bytes", len(data), "duration", time.Since(start))
}

func (s *Server) decodeCall(r *http.Request, method string, body []byte) (*Call, error) {
	bundle, err := s.codec.DecodeParams(body)
	if err != nil {
		return nil, fmt.Errorf("decoding params: %w", err)
	}
	params, err := container.MapParams(bundle, s.codec.FromPayload)
	if err != nil {
		return nil, fmt.Errorf("decoding params: %w", err)
	}
	return &Call{
		Runner: s.runner,
		Method: method,
		Args:   params.Args,
		Kwargs: params.Kwargs,
		Identity: runnerrpc.Identity{
			BentoName:           r.Header.Get(runnerrpc.HeaderBentoName),
			BentoVersion:        r.Header.Get(runnerrpc.HeaderBentoVersion),
			DeploymentName:      r.Header.Get(runnerrpc.HeaderYataiDeploymentName),
			DeploymentNamespace: r.Header.Get(runnerrpc.HeaderYataiDeploymentNamespace),
		},
	}, nil
}

// invoke runs fn, turning a panic into an error.
func (s *Server) invoke(ctx context.Context, fn HandlerFunc, call *Call) (result any, err error) {
	defer func() {
		if rv := recover(); rv != nil {
			s.logger.Error("runner method panic", "runner", s.runner, "method", call.Method,
				"err", rv, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", rv)
		}
	}()
	return fn(ctx, call)
}

// release drops decoded values that hold reference-counted memory, such as
// Arrow records.
func release(values ...any) {
	for _, v := range values {
		if r, ok := v.(interface{ Release() }); ok {
			r.Release()
		}
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set(runnerrpc.HeaderContentType, "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, strings.TrimSpace(msg))
}

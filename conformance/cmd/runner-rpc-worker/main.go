// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Command runner-rpc-worker serves the conformance methods over the runner
// wire protocol.
//
//	runner-rpc-worker --http [runner]         listen on a random local TCP port, print PORT:<n>
//	runner-rpc-worker --unix <path> [runner]  listen on a unix socket, print UNIX:<path>
//
// Set RUNNER_RPC_COMPRESSION to zstd or gzip to compress response bodies.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/Query-farm/runner-rpc/conformance"
	"github.com/Query-farm/runner-rpc/worker"
)

const defaultRunner = "conformance"

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	var network, addr, runner string
	switch {
	case len(os.Args) > 1 && os.Args[1] == "--http":
		network, addr = "tcp", "127.0.0.1:0"
		runner = argOr(2, defaultRunner)
	case len(os.Args) > 2 && os.Args[1] == "--unix":
		network, addr = "unix", os.Args[2]
		runner = argOr(3, defaultRunner)
		os.Remove(addr)
	default:
		fmt.Fprintln(os.Stderr, "usage: runner-rpc-worker --http [runner] | --unix <path> [runner]")
		os.Exit(2)
	}

	server := worker.NewServer(runner, nil)
	server.SetLogger(logger)
	conformance.RegisterMethods(server)
	if err := server.SetCompression(os.Getenv("RUNNER_RPC_COMPRESSION")); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	listener, err := net.Listen(network, addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to listen: %v\n", err)
		os.Exit(1)
	}
	if tcp, ok := listener.Addr().(*net.TCPAddr); ok {
		fmt.Printf("PORT:%d\n", tcp.Port)
	} else {
		fmt.Printf("UNIX:%s\n", addr)
	}
	os.Stdout.Sync()

	// Catch SIGTERM/SIGINT so the process exits cleanly and removes its socket.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	err = server.Serve(ctx, listener)
	if network == "unix" {
		os.Remove(addr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "serve error: %v\n", err)
		os.Exit(1)
	}
}

func argOr(i int, def string) string {
	if len(os.Args) > i {
		return os.Args[i]
	}
	return def
}

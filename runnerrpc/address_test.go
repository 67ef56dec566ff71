// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package runnerrpc

import (
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name      string
		bind      string
		want      RunnerAddress
		authority string
	}{
		{"unix", "unix:///tmp/runner.sock", RunnerAddress{Scheme: SchemeUnix, Path: "/tmp/runner.sock"}, unixAuthority},
		{"file", "file:///tmp/runner.sock", RunnerAddress{Scheme: SchemeUnix, Path: "/tmp/runner.sock"}, unixAuthority},
		{"percent encoded", "unix:///var/run/my%20runner.sock", RunnerAddress{Scheme: SchemeUnix, Path: "/var/run/my runner.sock"}, unixAuthority},
		{"localhost host", "file://localhost/tmp/r.sock", RunnerAddress{Scheme: SchemeUnix, Path: "/tmp/r.sock"}, unixAuthority},
		{"relative", "unix://runner.sock", RunnerAddress{Scheme: SchemeUnix, Path: "runner.sock"}, unixAuthority},
		{"tcp", "tcp://127.0.0.1:3001", RunnerAddress{Scheme: SchemeTCP, Host: "127.0.0.1:3001"}, "http://127.0.0.1:3001"},
		{"tcp hostname", "tcp://iris.runners.svc:8080", RunnerAddress{Scheme: SchemeTCP, Host: "iris.runners.svc:8080"}, "http://iris.runners.svc:8080"},
		{"tcp ipv6", "tcp://[::1]:3000", RunnerAddress{Scheme: SchemeTCP, Host: "[::1]:3000"}, "http://[::1]:3000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAddress(tt.bind)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.authority, got.Authority())
		})
	}
}

func TestParseAddressRejects(t *testing.T) {
	tests := []struct {
		name   string
		bind   string
		scheme string
	}{
		{"http scheme", "http://127.0.0.1:3000", "http"},
		{"grpc scheme", "grpc://runner:50051", "grpc"},
		{"no scheme", "/tmp/runner.sock", ""},
		{"empty", "", ""},
		{"tcp without port", "tcp://127.0.0.1", ""},
		{"tcp without host", "tcp://", ""},
		{"unix without path", "unix://", ""},
		{"unparsable", "::not a url", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAddress(tt.bind)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfiguration)

			var ce *ConfigurationError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.scheme, ce.Scheme)
			assert.Equal(t, tt.bind, ce.Address)
		})
	}
}

func TestResolveAddressNamesRunner(t *testing.T) {
	cfg := MapConfig{Addresses: map[string]string{"iris": "http://127.0.0.1:3000"}}

	_, err := resolveAddress(cfg, "iris")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "runner iris")
	assert.Contains(t, err.Error(), `"http"`)

	_, err = resolveAddress(cfg, "missing")
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), ErrRunnerNotMapped.Error())
}

func TestAddressProperties(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("unix addresses dial the path behind a placeholder authority", prop.ForAll(
		func(dir, name string) bool {
			path := "/" + dir + "/" + name + ".sock"
			addr, err := ParseAddress("unix://" + path)
			return err == nil &&
				addr.Path == path &&
				addr.Network() == "unix" &&
				addr.Target() == path &&
				addr.Authority() == unixAuthority
		},
		gen.Identifier(),
		gen.Identifier(),
	))

	properties.Property("tcp addresses keep host and port", prop.ForAll(
		func(host string, port int) bool {
			hostport := fmt.Sprintf("%s:%d", host, port)
			addr, err := ParseAddress("tcp://" + hostport)
			return err == nil &&
				addr.Target() == hostport &&
				addr.Authority() == "http://"+hostport &&
				addr.String() == "tcp://"+hostport
		},
		gen.Identifier(),
		gen.IntRange(1, 65535),
	))

	properties.TestingRun(t)
}

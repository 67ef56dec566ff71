// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package runnerrpc

import (
	"net/url"
)

// Scheme is a supported transport kind.
type Scheme string

const (
	// SchemeUnix connects over a unix domain socket.
	SchemeUnix Scheme = "unix"
	// SchemeTCP connects over TCP.
	SchemeTCP Scheme = "tcp"
)

// RunnerAddress is a parsed runner bind address.
type RunnerAddress struct {
	Scheme Scheme
	// Path is the socket path for SchemeUnix.
	Path string
	// Host is host:port for SchemeTCP.
	Host string
}

// Authority returns the scheme and host used in request URLs.
// For domain sockets this is a fixed placeholder.
func (a RunnerAddress) Authority() string {
	if a.Scheme == SchemeUnix {
		return unixAuthority
	}
	return "http://" + a.Host
}

// Network returns the net.Dial network name.
func (a RunnerAddress) Network() string {
	return string(a.Scheme)
}

// Target returns the dial target: the socket path or host:port.
func (a RunnerAddress) Target() string {
	if a.Scheme == SchemeUnix {
		return a.Path
	}
	return a.Host
}

func (a RunnerAddress) String() string {
	return string(a.Scheme) + "://" + a.Target()
}

// ParseAddress parses a bind address of the form unix:///path/to/sock,
// file:///path/to/sock or tcp://host:port. Any other form returns a
// *ConfigurationError.
func ParseAddress(bind string) (RunnerAddress, error) {
	u, err := url.Parse(bind)
	if err != nil {
		return RunnerAddress{}, &ConfigurationError{Address: bind, Reason: err.Error()}
	}

	switch u.Scheme {
	case "unix", "file":
		// url.Parse has already percent-decoded the path.
		path := u.Path
		if path == "" {
			// unix://relative.sock parses the name as host
			path = u.Host
		} else if u.Host != "" && u.Host != "localhost" {
			path = u.Host + path
		}
		if path == "" {
			return RunnerAddress{}, &ConfigurationError{Address: bind, Reason: "missing socket path"}
		}
		return RunnerAddress{Scheme: SchemeUnix, Path: path}, nil
	case "tcp":
		if u.Host == "" {
			return RunnerAddress{}, &ConfigurationError{Address: bind, Reason: "missing host"}
		}
		if u.Port() == "" {
			return RunnerAddress{}, &ConfigurationError{Address: bind, Reason: "missing port"}
		}
		return RunnerAddress{Scheme: SchemeTCP, Host: u.Host}, nil
	case "":
		return RunnerAddress{}, &ConfigurationError{Address: bind, Reason: "missing scheme"}
	default:
		return RunnerAddress{}, &ConfigurationError{Address: bind, Scheme: u.Scheme}
	}
}

// resolveAddress looks up and parses the bind address of a runner.
func resolveAddress(cfg ConfigProvider, runner string) (RunnerAddress, error) {
	bind, err := cfg.RunnerAddress(runner)
	if err != nil {
		return RunnerAddress{}, &ConfigurationError{Runner: runner, Reason: err.Error()}
	}
	addr, err := ParseAddress(bind)
	if err != nil {
		if ce, ok := err.(*ConfigurationError); ok {
			ce.Runner = runner
		}
		return RunnerAddress{}, err
	}
	return addr, nil
}

// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package runnerrpc

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// Sentinels for use with errors.Is. Each matches any error of the
// corresponding type regardless of its fields.
var (
	ErrConfiguration = &ConfigurationError{}
	ErrValidation    = &ValidationError{}
	ErrProtocol      = &ProtocolError{}
	ErrRemote        = &RemoteFault{}
	ErrTimeout       = &TimeoutError{}
)

// ErrClientClosed is returned by calls issued after [Client.Close].
var ErrClientClosed = errors.New("runnerrpc: client is closed")

// maxBodyPrefix caps how much of a response body is quoted in error messages.
const maxBodyPrefix = 512

// bodyPrefix returns at most maxBodyPrefix bytes of body as text, cut on a
// rune boundary.
func bodyPrefix(body []byte) string {
	if len(body) <= maxBodyPrefix {
		return string(body)
	}
	cut := maxBodyPrefix
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return string(body[:cut]) + "..."
}

// ConfigurationError reports a runner bind address that cannot be used.
// It is raised before any connection attempt and is never retried.
type ConfigurationError struct {
	Runner  string
	Address string
	Scheme  string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	prefix := "runnerrpc"
	if e.Runner != "" {
		prefix = "runner " + e.Runner
	}
	switch {
	case e.Scheme != "":
		return fmt.Sprintf("%s: unsupported bind scheme %q in %q", prefix, e.Scheme, e.Address)
	case e.Address != "":
		return fmt.Sprintf("%s: invalid bind address %q: %s", prefix, e.Address, e.Reason)
	default:
		return fmt.Sprintf("%s: %s", prefix, e.Reason)
	}
}

// Is supports errors.Is by matching any *ConfigurationError target.
func (e *ConfigurationError) Is(target error) bool {
	_, ok := target.(*ConfigurationError)
	return ok
}

// ValidationError reports a call that was rejected on the client, or response
// metadata that could not be parsed.
type ValidationError struct {
	Runner string
	Method string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("runner %s", e.Runner)
	if e.Method != "" {
		msg += fmt.Sprintf(" method %s", e.Method)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Is supports errors.Is by matching any *ValidationError target.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// ProtocolError reports a response that does not follow the runner wire
// contract, typically because the worker failed before producing a
// structured response or a proxy answered instead of the worker.
type ProtocolError struct {
	Runner string
	Status int
	Body   []byte
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	reason := e.Reason
	if e.Err != nil {
		reason += ": " + e.Err.Error()
	}
	return fmt.Sprintf("runner %s: payload decode error: %s [%d] %s",
		e.Runner, reason, e.Status, bodyPrefix(e.Body))
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Is supports errors.Is by matching any *ProtocolError target.
func (e *ProtocolError) Is(target error) bool {
	_, ok := target.(*ProtocolError)
	return ok
}

// RemoteFault reports a non-200 response: the worker explicitly failed the call.
type RemoteFault struct {
	Runner string
	Status int
	Body   []byte
}

func (e *RemoteFault) Error() string {
	return fmt.Sprintf("an exception occurred in remote runner %s: [%d] %s",
		e.Runner, e.Status, bodyPrefix(e.Body))
}

// Is supports errors.Is by matching any *RemoteFault target.
func (e *RemoteFault) Is(target error) bool {
	_, ok := target.(*RemoteFault)
	return ok
}

// TimeoutError reports a call aborted by the transport because it exceeded
// the runner's configured timeout or the caller's deadline.
type TimeoutError struct {
	Runner  string
	Method  string
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("runner %s method %s: timed out after %v: %v", e.Runner, e.Method, e.Timeout, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// Is supports errors.Is by matching any *TimeoutError target.
func (e *TimeoutError) Is(target error) bool {
	_, ok := target.(*TimeoutError)
	return ok
}

// ErrorType returns a short classification of err for logs and hooks.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "ConfigurationError"
	case errors.Is(err, ErrValidation):
		return "ValidationError"
	case errors.Is(err, ErrProtocol):
		return "ProtocolError"
	case errors.Is(err, ErrRemote):
		return "RemoteFault"
	case errors.Is(err, ErrTimeout):
		return "TimeoutError"
	default:
		return fmt.Sprintf("%T", err)
	}
}

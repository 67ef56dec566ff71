// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package runnerrpc

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigProvider resolves per-runner transport settings.
type ConfigProvider interface {
	// RunnerAddress returns the bind address of the named runner.
	RunnerAddress(runner string) (string, error)
	// RunnerTimeout returns the request timeout of the named runner: the
	// runner's own timeout if configured, otherwise the global timeout.
	RunnerTimeout(runner string) (time.Duration, error)
}

// ErrRunnerNotMapped is returned when a runner has no configured bind address.
var ErrRunnerNotMapped = errors.New("runner has no remote address")

// MapConfig is an in-memory ConfigProvider.
type MapConfig struct {
	// Addresses maps runner names to bind addresses.
	Addresses map[string]string
	// Timeouts holds per-runner timeouts.
	Timeouts map[string]time.Duration
	// DefaultTimeout is the global timeout used when a runner has none.
	DefaultTimeout time.Duration
}

func (c MapConfig) RunnerAddress(runner string) (string, error) {
	addr, ok := c.Addresses[runner]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrRunnerNotMapped, runner)
	}
	return addr, nil
}

func (c MapConfig) RunnerTimeout(runner string) (time.Duration, error) {
	if d, ok := c.Timeouts[runner]; ok {
		return d, nil
	}
	if c.DefaultTimeout <= 0 {
		return 0, fmt.Errorf("runner %s: no timeout configured", runner)
	}
	return c.DefaultTimeout, nil
}

// FileConfig is a ConfigProvider read from YAML:
//
//	runners:
//	  timeout: 300
//	  iris_clf:
//	    timeout: 60
//	remote_runner_mapping:
//	  iris_clf: tcp://127.0.0.1:3001
//
// Timeouts are in seconds. Under runners, the key timeout is the global
// timeout. Other mapping keys are runner sections, except the global runner
// settings in globalRunnerKeys; scalar keys are ignored.
type FileConfig struct {
	mapping   map[string]string
	timeouts  map[string]time.Duration
	global    time.Duration
	hasGlobal bool
}

type fileConfigDoc struct {
	Runners             map[string]yaml.Node `yaml:"runners"`
	RemoteRunnerMapping map[string]string    `yaml:"remote_runner_mapping"`
}

// globalRunnerKeys are settings under runners that apply to every runner.
var globalRunnerKeys = map[string]bool{
	"batching":             true,
	"resources":            true,
	"logging":              true,
	"metrics":              true,
	"traffic":              true,
	"workers_per_resource": true,
}

type runnerSection struct {
	Timeout *float64 `yaml:"timeout"`
}

// LoadFileConfig reads a FileConfig from path.
func LoadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading runner config: %w", err)
	}
	return ParseFileConfig(data)
}

// ParseFileConfig parses a FileConfig from YAML bytes.
func ParseFileConfig(data []byte) (*FileConfig, error) {
	var doc fileConfigDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing runner config: %w", err)
	}

	cfg := &FileConfig{
		mapping:  doc.RemoteRunnerMapping,
		timeouts: make(map[string]time.Duration),
	}
	for key, node := range doc.Runners {
		if key == "timeout" {
			var secs float64
			if err := node.Decode(&secs); err != nil {
				return nil, fmt.Errorf("runners.timeout: %w", err)
			}
			cfg.global = seconds(secs)
			cfg.hasGlobal = true
			continue
		}
		if node.Kind != yaml.MappingNode || globalRunnerKeys[key] {
			continue
		}
		var section runnerSection
		if err := node.Decode(&section); err != nil {
			return nil, fmt.Errorf("runners.%s: %w", key, err)
		}
		if section.Timeout != nil {
			cfg.timeouts[key] = seconds(*section.Timeout)
		}
	}
	return cfg, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (c *FileConfig) RunnerAddress(runner string) (string, error) {
	addr, ok := c.mapping[runner]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrRunnerNotMapped, runner)
	}
	return addr, nil
}

func (c *FileConfig) RunnerTimeout(runner string) (time.Duration, error) {
	if d, ok := c.timeouts[runner]; ok {
		return d, nil
	}
	if !c.hasGlobal {
		return 0, fmt.Errorf("runner %s: no timeout configured", runner)
	}
	return c.global, nil
}

// File: netio/options.go
// Package netio defines functional options for the NetworkLoop facade.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package netio

import (
	"time"

	"github.com/momentics/hioload-netio/control"
	"github.com/momentics/hioload-netio/internal/logging"
)

const (
	defaultRecvBatchSize  = 64
	maxRecvBatchSize      = 4096
	defaultResolveTimeout = 10 * time.Second
)

// Option customizes NetworkLoop initialization.
type Option func(*NetworkLoop)

// WithLogger sets the engine logger.
func WithLogger(l *logging.Logger) Option {
	return func(nl *NetworkLoop) {
		if l != nil {
			nl.log = l
		}
	}
}

// WithMetrics publishes engine metrics into m.
func WithMetrics(m *control.Metrics) Option {
	return func(nl *NetworkLoop) {
		nl.metrics = m
	}
}

// WithDebugProbes registers the engine state probes in dp.
func WithDebugProbes(dp *control.DebugProbes) Option {
	return func(nl *NetworkLoop) {
		nl.probes = dp
	}
}

// WithResolveTimeout bounds each hostname lookup.
func WithResolveTimeout(d time.Duration) Option {
	return func(nl *NetworkLoop) {
		if d > 0 {
			nl.resolveTimeout = d
		}
	}
}

// WithRecvBatchSize limits datagrams read per receiver wakeup.
func WithRecvBatchSize(n int) Option {
	return func(nl *NetworkLoop) {
		nl.recvBatch = n
	}
}

// WithLookupFunc replaces the system resolver.
func WithLookupFunc(fn LookupFunc) Option {
	return func(nl *NetworkLoop) {
		if fn != nil {
			nl.lookup = fn
		}
	}
}

// WithCPU pins the loop thread to a CPU; negative disables pinning.
func WithCPU(cpu int) Option {
	return func(nl *NetworkLoop) {
		nl.cpu = cpu
	}
}

// WithPanicHandler recovers panics raised by completers and connection
// handlers on the loop goroutine. Without it such panics crash the process.
func WithPanicHandler(fn func(v any)) Option {
	return func(nl *NetworkLoop) {
		nl.panicHandler = fn
	}
}

// WithEngineConfig applies the [engine] section of a control.Config.
func WithEngineConfig(cfg control.EngineConfig) Option {
	return func(nl *NetworkLoop) {
		WithRecvBatchSize(cfg.RecvBatchSize)(nl)
		WithResolveTimeout(cfg.ResolveTimeout)(nl)
		WithCPU(cfg.CPU)(nl)
	}
}

func clampRecvBatch(n int) int {
	switch {
	case n <= 0:
		return defaultRecvBatchSize
	case n > maxRecvBatchSize:
		return maxRecvBatchSize
	default:
		return n
	}
}

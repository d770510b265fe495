// File: internal/logging/logging.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Structured JSON logger construction for hioload-netio.

package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the logger type passed around the module.
type Logger = logiface.Logger[logiface.Event]

// Options configure New.
type Options struct {
	Writer io.Writer
	Level  logiface.Level
	// TimeField names the timestamp field; empty disables timestamps.
	TimeField string
	// RateLimits caps limited messages per call site, per window.
	RateLimits map[time.Duration]int
}

// DefaultOptions logs at info to stderr with a "time" field.
func DefaultOptions() Options {
	return Options{
		Writer:    os.Stderr,
		Level:     logiface.LevelInformational,
		TimeField: "time",
		RateLimits: map[time.Duration]int{
			time.Second: 5,
			time.Minute: 60,
		},
	}
}

// New builds a stumpy-backed logger.
func New(opts Options) *Logger {
	if opts.Writer == nil {
		opts.Writer = os.Stderr
	}
	options := []logiface.Option[*stumpy.Event]{
		stumpy.L.WithStumpy(
			stumpy.WithWriter(opts.Writer),
			stumpy.WithTimeField(opts.TimeField),
		),
		stumpy.L.WithLevel(opts.Level),
	}
	if len(opts.RateLimits) != 0 {
		options = append(options, stumpy.L.WithCategoryRateLimits(opts.RateLimits))
	}
	return stumpy.L.New(options...).Logger()
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(io.Discard)),
		stumpy.L.WithLevel(logiface.LevelDisabled),
	).Logger()
}

// ParseLevel accepts syslog keywords ("err", "warning", "info", "debug", ...)
// and a few common aliases.
func ParseLevel(s string) (logiface.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disabled", "off", "none":
		return logiface.LevelDisabled, nil
	case "emerg", "emergency":
		return logiface.LevelEmergency, nil
	case "alert":
		return logiface.LevelAlert, nil
	case "crit", "critical":
		return logiface.LevelCritical, nil
	case "err", "error":
		return logiface.LevelError, nil
	case "warning", "warn":
		return logiface.LevelWarning, nil
	case "notice":
		return logiface.LevelNotice, nil
	case "info", "":
		return logiface.LevelInformational, nil
	case "debug":
		return logiface.LevelDebug, nil
	case "trace":
		return logiface.LevelTrace, nil
	default:
		return logiface.LevelDisabled, fmt.Errorf("logging: unknown level %q", s)
	}
}

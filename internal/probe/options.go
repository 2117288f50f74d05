// Package probe provides the shared low-level machinery every protocol
// strategy builds on: timeout-bounded UDP/TCP round trips, a shared/
// dedicated HTTP client wrapper, and the normalization helpers (color-code
// stripping, player/bot splitting, keyword overrides) spec.md §4.B
// requires strategies to reproduce consistently. It plays the role the
// teacher's probes/options package plays for cloudprober's probes.
package probe

import (
	"time"

	"github.com/DiscordGSM/GameServerMonitor/internal/logger"
)

// DefaultProbeTimeout is the spec.md §6 default for TASK_QUERY_SERVER_TIMEOUT.
const DefaultProbeTimeout = 15 * time.Second

// Options carries the per-call configuration passed to every
// registry.Strategy.Query/PreQuery invocation, mirroring the shape of the
// teacher's probes/options.Options (a small bag of cross-cutting knobs
// plus a logger, rather than one parameter per concern).
type Options struct {
	// Timeout bounds the whole probe round trip, including retries within
	// a multi-stage fallback strategy.
	Timeout time.Duration
	// Logger is scoped to the calling strategy's name; never nil when
	// constructed via DefaultOptions/NewOptions.
	Logger *logger.Logger
}

// DefaultOptions returns Options with the spec default timeout and a
// logger safe to call at its zero value, matching the teacher's
// DefaultOptions() constructor used throughout its probe tests.
func DefaultOptions() *Options {
	return &Options{Timeout: DefaultProbeTimeout, Logger: &logger.Logger{}}
}

// NewOptions builds Options for a named strategy with an explicit timeout
// and parent logger.
func NewOptions(name string, timeout time.Duration, parent *logger.Logger) *Options {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	var l *logger.Logger
	if parent != nil {
		l = parent.Named(name)
	} else {
		l = logger.New(name, false, nil)
	}
	return &Options{Timeout: timeout, Logger: l}
}

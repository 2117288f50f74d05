// Package registry implements the protocol registry (spec.md §4.A): a
// process-wide mapping from protocol name to probe strategy, populated at
// package-init time from the fixed list of strategies enumerated in
// spec.md §6, following the teacher's (cloudprober) convention of a
// registration map built by each probe package's own init() rather than a
// runtime scan of subclasses (spec.md §9 design note).
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/DiscordGSM/GameServerMonitor/internal/errs"
	"github.com/DiscordGSM/GameServerMonitor/internal/probe"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
)

// Strategy is the per-protocol probe adapter contract.
type Strategy interface {
	// Name is the protocol identifier used in the game catalog.
	Name() string
	// PreQueryRequired reports whether the scheduler must call PreQuery
	// once per tick before any Query of this protocol runs.
	PreQueryRequired() bool
	// PreQuery idempotently refreshes strategy-shared state (an access
	// token, a master-server snapshot). Must tolerate concurrent
	// invocations; the scheduler itself serializes to one call per tick.
	PreQuery(ctx context.Context, opts *probe.Options) error
	// Query performs the probe and returns a normalized Probe.
	Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error)
}

var (
	mu    sync.RWMutex
	strategies = map[string]Strategy{}
)

// Register adds a strategy to the process-wide registry. Called from each
// strategy package's init(). Panics on duplicate registration, since that
// can only indicate a programming error (two packages claiming the same
// protocol name), never a runtime condition.
func Register(s Strategy) {
	mu.Lock()
	defer mu.Unlock()
	name := s.Name()
	if _, exists := strategies[name]; exists {
		panic(fmt.Sprintf("registry: duplicate strategy registration for %q", name))
	}
	strategies[name] = s
}

// Lookup returns the strategy registered for name, or (nil, false).
func Lookup(name string) (Strategy, bool) {
	mu.RLock()
	defer mu.RUnlock()
	s, ok := strategies[name]
	return s, ok
}

// MustLookup returns the strategy for name or an InvalidInput error,
// matching spec.md §4.A: "Unknown names yield a hard error at config load."
func MustLookup(name string) (Strategy, error) {
	s, ok := Lookup(name)
	if !ok {
		return nil, errs.New(errs.InvalidInput, fmt.Sprintf("registry: unknown protocol %q", name), nil)
	}
	return s, nil
}

// Names returns every registered protocol name, sorted, for catalog
// validation and diagnostics.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(strategies))
	for n := range strategies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// PreQueryRequiredNames returns the subset of registered names whose
// strategy requires a once-per-tick PreQuery call, used by the scheduler's
// pre-query phase (spec.md §4.E step 1).
func PreQueryRequiredNames() []string {
	mu.RLock()
	defer mu.RUnlock()
	var names []string
	for n, s := range strategies {
		if s.PreQueryRequired() {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// reset clears the registry; only used by tests that need isolation
// between strategy-registration scenarios.
func reset() {
	mu.Lock()
	defer mu.Unlock()
	strategies = map[string]Strategy{}
}

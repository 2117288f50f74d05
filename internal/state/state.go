// Package state holds the small set of process-wide singletons referenced
// by multiple components: the shared outbound HTTP client, the process
// start time (used by presence/telemetry and debug surfaces), and the
// config file path. The shape follows the teacher's (cloudprober) "state"
// package: package-level getters/setters guarded by a mutex, with a
// lazily-constructed default and an explicit setter tests can use to
// substitute a fake for the duration of a test.
package state

import (
	"net/http"
	"sync"
	"time"
)

var (
	mu             sync.RWMutex
	startTime      = time.Now()
	configFilePath string
	sharedClient   *http.Client
)

// StartTime returns when this process started, used by presence/telemetry
// and any future uptime reporting.
func StartTime() time.Time {
	mu.RLock()
	defer mu.RUnlock()
	return startTime
}

// ConfigFilePath returns the path the process was configured from, if any.
func ConfigFilePath() string {
	mu.RLock()
	defer mu.RUnlock()
	return configFilePath
}

// SetConfigFilePath records the path the process was configured from.
func SetConfigFilePath(path string) {
	mu.Lock()
	defer mu.Unlock()
	configFilePath = path
}

// DefaultHTTPClient returns the process-wide shared HTTP client used by
// strategies and the alert/refresher components that don't need dedicated
// transport settings. It is lazily constructed on first use, following the
// teacher's read-through-with-lazy-initialisation requirement (spec §5).
func DefaultHTTPClient() *http.Client {
	mu.Lock()
	defer mu.Unlock()
	if sharedClient == nil {
		sharedClient = &http.Client{Timeout: 15 * time.Second}
	}
	return sharedClient
}

// SetDefaultHTTPClient overrides the shared HTTP client; tests use this to
// install a client pointed at an httptest.Server.
func SetDefaultHTTPClient(c *http.Client) {
	mu.Lock()
	defer mu.Unlock()
	sharedClient = c
}

// NewDedicatedHTTPClient builds a standalone client for a strategy that
// needs its own timeout or transport, independent of the shared client.
// This mirrors the teacher's dedicated-vs-shared server lifecycle in
// internal/servers/grpc: most callers reuse the shared instance, but a
// caller with special requirements gets one wired and owned by it alone.
func NewDedicatedHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// Package scheduler implements the single long-lived tick loop of
// spec.md §4.E: pre-query, fan-out probing, persistence, and a concurrent
// alert/refresh/presence post-query phase, every TASK_QUERY_SERVER
// seconds (floor 15s).
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/DiscordGSM/GameServerMonitor/internal/errs"
	"github.com/DiscordGSM/GameServerMonitor/internal/logger"
	"github.com/DiscordGSM/GameServerMonitor/internal/probe"
	"github.com/DiscordGSM/GameServerMonitor/internal/registry"
	"github.com/DiscordGSM/GameServerMonitor/internal/repository"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
)

// Alerter is the post-query alert-engine hook (internal/alert.Engine).
type Alerter interface {
	Run(ctx context.Context) error
}

// Refresher is the post-query message-edit hook (internal/refresher.Refresher).
type Refresher interface {
	Run(ctx context.Context) error
}

// Presence is the post-query telemetry hook (internal/presence.Updater).
type Presence interface {
	Run(ctx context.Context) error
}

// Options configures a Scheduler. ChunkSize, ProbeTimeout and
// DisableAfterDays follow spec.md §6's TASK_QUERY_* environment variables.
type Options struct {
	Period           time.Duration
	ProbeTimeout     time.Duration
	ChunkSize        int
	DisableAfterDays int
	Logger           *logger.Logger
}

// Scheduler drives one tick loop against a Repository.
type Scheduler struct {
	repo      repository.Repository
	opts      Options
	alerter   Alerter
	refresher Refresher
	presence  Presence
	log       *logger.Logger

	tickIndex int
}

// New builds a Scheduler. alerter/refresher/presence may be nil, in which
// case that post-query leg is skipped (useful for tests exercising only
// the fan-out/persist phases).
func New(repo repository.Repository, opts Options, alerter Alerter, refresher Refresher, presence Presence) *Scheduler {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 50
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = probe.DefaultProbeTimeout
	}
	if opts.Period < 15*time.Second {
		opts.Period = 15 * time.Second
	}
	return &Scheduler{
		repo:      repo,
		opts:      opts,
		alerter:   alerter,
		refresher: refresher,
		presence:  presence,
		log:       opts.Logger.Named("scheduler"),
	}
}

// Run blocks, driving ticks until ctx is cancelled. A tick that overruns
// its period does not pile up: the next tick starts immediately once the
// current one finishes (spec.md §4.E step 6).
func (s *Scheduler) Run(ctx context.Context) {
	for {
		start := time.Now()
		guard(s.log, "tick", func() { s.tick(ctx) })
		s.tickIndex++

		if ctx.Err() != nil {
			return
		}
		elapsed := time.Since(start)
		wait := s.opts.Period - elapsed
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	s.preQuery(ctx)

	targets, err := s.repo.DistinctServers(ctx)
	if err != nil {
		s.log.Errorf("tick: distinct servers: %v", err)
		return
	}

	results := s.fanOut(ctx, s.filterAutoDisabled(targets))

	if err := s.repo.UpdateServers(ctx, results); err != nil {
		s.log.Errorf("tick: update servers: %v", err)
	}
	if err := s.repo.UpdateMetrics(ctx, results); err != nil {
		s.log.Errorf("tick: update metrics: %v", err)
	}

	s.postQuery(ctx)
}

// preQuery launches PreQuery for every registered strategy that needs it
// and whose protocol has at least one configured server, in parallel,
// with a per-call timeout equal to the probe timeout. A failed pre-query
// does not abort the tick.
func (s *Scheduler) preQuery(ctx context.Context) {
	counts, err := s.repo.CountPerGame(ctx)
	if err != nil {
		s.log.Errorf("pre-query: count per game: %v", err)
		return
	}

	var wg sync.WaitGroup
	for _, name := range registry.PreQueryRequiredNames() {
		if counts[name] <= 0 {
			continue
		}
		strat, ok := registry.Lookup(name)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(name string, strat registry.Strategy) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, s.opts.ProbeTimeout)
			defer cancel()
			guard(s.log, "pre-query:"+name, func() {
				if err := strat.PreQuery(pctx, probe.NewOptions(name, s.opts.ProbeTimeout, s.log)); err != nil {
					s.log.Warningf("pre-query %s: %v", name, err)
				}
			})
		}(name, strat)
	}
	wg.Wait()
}

// filterAutoDisabled drops targets that have been offline for longer than
// DisableAfterDays, leaving their last persisted result/status untouched.
func (s *Scheduler) filterAutoDisabled(targets []repository.DistinctProbeTarget) []repository.DistinctProbeTarget {
	if s.opts.DisableAfterDays <= 0 {
		return targets
	}
	cutoff := time.Duration(s.opts.DisableAfterDays) * 24 * time.Hour
	now := time.Now().Unix()

	out := make([]repository.DistinctProbeTarget, 0, len(targets))
	for _, t := range targets {
		offlineSince := t.Result.OfflineSince()
		if offlineSince > 0 && time.Duration(now-offlineSince)*time.Second >= cutoff {
			continue
		}
		out = append(out, t)
	}
	return out
}

// fanOut probes every target, chunked to bound in-flight concurrency.
func (s *Scheduler) fanOut(ctx context.Context, targets []repository.DistinctProbeTarget) []repository.DistinctProbeTarget {
	out := make([]repository.DistinctProbeTarget, len(targets))
	for start := 0; start < len(targets); start += s.opts.ChunkSize {
		end := start + s.opts.ChunkSize
		if end > len(targets) {
			end = len(targets)
		}
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				out[i] = s.probeOne(ctx, targets[i])
			}(i)
		}
		wg.Wait()
		if ctx.Err() != nil {
			copy(out[end:], targets[end:])
			return out
		}
	}
	return out
}

// probeOne performs the per-probe bookkeeping of spec.md §4.E step 3.
func (s *Scheduler) probeOne(ctx context.Context, t repository.DistinctProbeTarget) repository.DistinctProbeTarget {
	strat, ok := registry.Lookup(t.GameID)
	if !ok {
		s.log.Errorf("probe: unknown protocol %q for %s:%d", t.GameID, t.Address, t.QueryPort)
		return t
	}

	sentAlert := t.Result.SentOfflineAlert()
	pctx, cancel := context.WithTimeout(ctx, s.opts.ProbeTimeout)
	defer cancel()

	var result server.Probe
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errs.New(errs.Unknown, "probe: recovered panic", nil)
			}
		}()
		result, err = strat.Query(pctx, t.Address, t.QueryPort, t.QueryExtra, probe.NewOptions(t.GameID, s.opts.ProbeTimeout, s.log))
		return err
	}()

	if err != nil {
		result = t.Result
		result.SetFailCount(result.FailCount() + 1)
		offlineSince := result.OfflineSince()
		now := time.Now().Unix()
		if offlineSince == 0 || now < offlineSince {
			result.SetOfflineSince(now)
		}
		result.SetSentOfflineAlert(sentAlert)
		t.Status = false
		t.Result = result
		return t
	}

	result.SetFailCount(0)
	result.SetOfflineSince(0)
	result.SetSentOfflineAlert(sentAlert)
	t.Status = true
	t.Result = result
	return t
}

// postQuery runs the alert, refresh, and presence legs concurrently; the
// tick ends when all three return (spec.md §4.E step 5).
func (s *Scheduler) postQuery(ctx context.Context) {
	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		if fn == nil {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			guard(s.log, name, func() {
				if err := fn(ctx); err != nil {
					s.log.Errorf("%s: %v", name, err)
				}
			})
		}()
	}

	if s.alerter != nil {
		run("alert", s.alerter.Run)
	}
	if s.refresher != nil {
		run("refresh", s.refresher.Run)
	}
	if s.presence != nil {
		run("presence", s.presence.Run)
	}
	wg.Wait()
}

// guard converts a panic in fn into a logged error instead of crashing the
// scheduler goroutine (spec.md §7's propagation policy; component I).
func guard(l *logger.Logger, phase string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.Errorf("%s: recovered panic: %v", phase, r)
		}
	}()
	fn()
}

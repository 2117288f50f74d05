package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/DiscordGSM/GameServerMonitor/internal/logger"
	"github.com/DiscordGSM/GameServerMonitor/internal/probe"
	"github.com/DiscordGSM/GameServerMonitor/internal/registry"
	"github.com/DiscordGSM/GameServerMonitor/internal/repository"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedStrategy returns queued results/errors in order, one per call to
// Query, repeating the last entry once exhausted.
type scriptedStrategy struct {
	name    string
	results []server.Probe
	errs    []error
	calls   int
}

func (s *scriptedStrategy) Name() string          { return s.name }
func (s *scriptedStrategy) PreQueryRequired() bool { return false }
func (s *scriptedStrategy) PreQuery(ctx context.Context, opts *probe.Options) error { return nil }
func (s *scriptedStrategy) Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error) {
	i := s.calls
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	s.calls++
	return s.results[i], s.errs[i]
}

// TestStableTick exercises seed scenario 1: one server, one successful
// probe, status becomes true and the result is propagated.
func TestStableTick(t *testing.T) {
	const proto = "scheduler-test-stable"
	registry.Register(&scriptedStrategy{
		name:    proto,
		results: []server.Probe{{Name: "S", NumPlayers: 3, MaxPlayers: 16}},
		errs:    []error{nil},
	})

	repo := repository.NewMemory(0)
	defer repo.Close()
	ctx := context.Background()
	_, err := repo.AddServer(ctx, server.Server{ChannelID: 1, GameID: proto, Address: "h", QueryPort: 1})
	require.NoError(t, err)

	sch := New(repo, Options{Period: 15 * time.Second, Logger: &logger.Logger{}}, nil, nil, nil)
	sch.tick(ctx)

	all, err := repo.AllServers(ctx, repository.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Status)
	assert.Equal(t, 3, all[0].Result.NumPlayers)
	assert.Equal(t, 0, all[0].Result.FailCount())
}

// TestTransientFailureThenRecovery exercises seed scenario 2's scheduler
// half: two failing ticks then a success resets the counters while
// preserving the hysteresis flag across them.
func TestTransientFailureThenRecovery(t *testing.T) {
	const proto = "scheduler-test-transient"
	strat := &scriptedStrategy{
		name:    proto,
		results: []server.Probe{{}, {}, {Name: "ok"}},
		errs:    []error{assertErr, assertErr, nil},
	}
	registry.Register(strat)

	repo := repository.NewMemory(0)
	defer repo.Close()
	ctx := context.Background()
	_, err := repo.AddServer(ctx, server.Server{ChannelID: 1, GameID: proto, Address: "h", QueryPort: 1})
	require.NoError(t, err)

	sch := New(repo, Options{Period: 15 * time.Second, Logger: &logger.Logger{}}, nil, nil, nil)

	sch.tick(ctx)
	all, _ := repo.AllServers(ctx, repository.Filter{})
	assert.Equal(t, 1, all[0].Result.FailCount())
	assert.False(t, all[0].Status)

	sch.tick(ctx)
	all, _ = repo.AllServers(ctx, repository.Filter{})
	assert.Equal(t, 2, all[0].Result.FailCount())
	assert.False(t, all[0].Status)

	sch.tick(ctx)
	all, _ = repo.AllServers(ctx, repository.Filter{})
	assert.True(t, all[0].Status)
	assert.Equal(t, 0, all[0].Result.FailCount())
	assert.Equal(t, int64(0), all[0].Result.OfflineSince())
}

// TestAutoDisableSkipsLongOfflineTarget exercises seed scenario 6.
func TestAutoDisableSkipsLongOfflineTarget(t *testing.T) {
	sch := New(nil, Options{Period: 15 * time.Second, DisableAfterDays: 7, Logger: &logger.Logger{}}, nil, nil, nil)

	stale := repository.DistinctProbeTarget{GameID: "x", Address: "old"}
	stale.Result.SetOfflineSince(time.Now().Add(-8 * 24 * time.Hour).Unix())

	fresh := repository.DistinctProbeTarget{GameID: "x", Address: "new"}
	fresh.Result.SetOfflineSince(time.Now().Add(-1 * time.Hour).Unix())

	out := sch.filterAutoDisabled([]repository.DistinctProbeTarget{stale, fresh})
	require.Len(t, out, 1)
	assert.Equal(t, "new", out[0].Address)
}

func TestPeriodClampedToFifteenSeconds(t *testing.T) {
	sch := New(nil, Options{Period: 5 * time.Second, Logger: &logger.Logger{}}, nil, nil, nil)
	assert.Equal(t, 15*time.Second, sch.opts.Period)
}

func TestChunkSizeOfOneStillCoversAllTargets(t *testing.T) {
	const proto = "scheduler-test-chunk1"
	registry.Register(&scriptedStrategy{
		name:    proto,
		results: []server.Probe{{Name: "a"}, {Name: "b"}, {Name: "c"}},
		errs:    []error{nil, nil, nil},
	})

	repo := repository.NewMemory(0)
	defer repo.Close()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := repo.AddServer(ctx, server.Server{ChannelID: 1, GameID: proto, Address: string(rune('a' + i)), QueryPort: i})
		require.NoError(t, err)
	}

	sch := New(repo, Options{Period: 15 * time.Second, ChunkSize: 1, Logger: &logger.Logger{}}, nil, nil, nil)
	sch.tick(ctx)

	all, err := repo.AllServers(ctx, repository.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, s := range all {
		assert.True(t, s.Status)
	}
}

// assertErr is a sentinel probe failure used by scripted strategies.
var assertErr = &probeFailure{}

type probeFailure struct{}

func (p *probeFailure) Error() string { return "scripted probe failure" }

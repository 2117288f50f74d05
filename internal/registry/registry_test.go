package registry

import (
	"context"
	"testing"
	"time"

	"github.com/DiscordGSM/GameServerMonitor/internal/probe"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStrategy struct {
	name          string
	preQueryReq   bool
	preQueryCalls int
}

func (f *fakeStrategy) Name() string             { return f.name }
func (f *fakeStrategy) PreQueryRequired() bool    { return f.preQueryReq }
func (f *fakeStrategy) PreQuery(ctx context.Context, opts *probe.Options) error {
	f.preQueryCalls++
	return nil
}
func (f *fakeStrategy) Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error) {
	return server.Probe{Name: f.name}, nil
}

func TestRegisterAndLookup(t *testing.T) {
	reset()
	defer reset()

	Register(&fakeStrategy{name: "testproto", preQueryReq: true})

	s, ok := Lookup("testproto")
	require.True(t, ok)
	assert.Equal(t, "testproto", s.Name())

	_, ok = Lookup("missing")
	assert.False(t, ok)

	_, err := MustLookup("missing")
	assert.Error(t, err)

	names := PreQueryRequiredNames()
	assert.Contains(t, names, "testproto")
}

func TestRegisterDuplicatePanics(t *testing.T) {
	reset()
	defer reset()

	Register(&fakeStrategy{name: "dup"})
	assert.Panics(t, func() {
		Register(&fakeStrategy{name: "dup"})
	})
}

func TestSnapshotCacheRefreshAndStale(t *testing.T) {
	var cache SnapshotCache[[]string]

	assert.True(t, cache.Stale(0))

	err := cache.Refresh(context.Background(), func(ctx context.Context) ([]string, error) {
		return []string{"a", "b"}, nil
	})
	require.NoError(t, err)

	v, ts := cache.Get()
	assert.Equal(t, []string{"a", "b"}, v)
	assert.False(t, ts.IsZero())
	assert.False(t, cache.Stale(time.Hour))
}

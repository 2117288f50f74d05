package repository

import (
	"context"
	"testing"

	"github.com/DiscordGSM/GameServerMonitor/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(channelID int64, pos int, address string) server.Server {
	return server.Server{
		ChannelID: channelID,
		Position:  pos,
		GameID:    "source",
		Address:   address,
		QueryPort: 27015,
	}
}

func TestAddServerThenFindServerRoundTrip(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()
	ctx := context.Background()

	srv := newServer(1, 0, "1.2.3.4")
	added, err := m.AddServer(ctx, srv)
	require.NoError(t, err)
	assert.NotZero(t, added.ID)

	found, err := m.FindServer(ctx, 1, "1.2.3.4", 27015)
	require.NoError(t, err)
	assert.Equal(t, added.ID, found.ID)
	assert.Equal(t, "source", found.GameID)
}

func TestAddServerDuplicateConflict(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()
	ctx := context.Background()

	srv := newServer(1, 0, "1.2.3.4")
	_, err := m.AddServer(ctx, srv)
	require.NoError(t, err)

	_, err = m.AddServer(ctx, srv)
	assert.Error(t, err)
}

func TestFindServerNotFound(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()
	_, err := m.FindServer(context.Background(), 1, "nope", 1)
	assert.Error(t, err)
}

// TestDuplicateMonitorsStayInLockstep exercises seed scenario 3: two
// servers in two channels sharing the same distinct key both get the same
// status/result from one UpdateServers call, but keep distinct message ids.
func TestDuplicateMonitorsStayInLockstep(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()
	ctx := context.Background()

	a, err := m.AddServer(ctx, newServer(1, 0, "5.6.7.8"))
	require.NoError(t, err)
	msgA := int64(100)
	a.MessageID = &msgA
	b, err := m.AddServer(ctx, newServer(2, 0, "5.6.7.8"))
	require.NoError(t, err)
	msgB := int64(200)
	b.MessageID = &msgB
	require.NoError(t, m.UpdateServersMessageID(ctx, []server.Server{a, b}))

	target := DistinctProbeTarget{GameID: "source", Address: "5.6.7.8", QueryPort: 27015, Status: true}
	target.Result.Name = "Shared"
	require.NoError(t, m.UpdateServers(ctx, []DistinctProbeTarget{target}))

	all, err := m.AllServers(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, s := range all {
		assert.True(t, s.Status)
		assert.Equal(t, "Shared", s.Result.Name)
	}
	assert.NotEqual(t, *all[0].MessageID, *all[1].MessageID)
}

// TestMoveServerSwapsPositionAndMessage exercises seed scenario 4.
func TestMoveServerSwapsPositionAndMessage(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()
	ctx := context.Background()

	msg100, msg101, msg102 := int64(100), int64(101), int64(102)
	a, err := m.AddServer(ctx, newServer(1, 0, "a"))
	require.NoError(t, err)
	a.MessageID = &msg100
	b, err := m.AddServer(ctx, newServer(1, 1, "b"))
	require.NoError(t, err)
	b.MessageID = &msg101
	c, err := m.AddServer(ctx, newServer(1, 2, "c"))
	require.NoError(t, err)
	c.MessageID = &msg102
	require.NoError(t, m.UpdateServersMessageID(ctx, []server.Server{a, b, c}))

	require.NoError(t, m.MoveServer(ctx, b, MoveUp))

	all, err := m.AllServers(ctx, Filter{ChannelID: 1})
	require.NoError(t, err)
	require.Len(t, all, 3)
	byID := map[int64]server.Server{}
	for _, s := range all {
		byID[s.ID] = s
	}
	assert.Equal(t, 0, byID[b.ID].Position)
	assert.Equal(t, msg100, *byID[b.ID].MessageID)
	assert.Equal(t, 1, byID[a.ID].Position)
	assert.Equal(t, msg101, *byID[a.ID].MessageID)
	assert.Equal(t, 2, byID[c.ID].Position)
	assert.Equal(t, msg102, *byID[c.ID].MessageID)
}

// TestMoveServerBoundaryIsNoop covers the "moving the top server up" case.
func TestMoveServerBoundaryIsNoop(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()
	ctx := context.Background()

	a, err := m.AddServer(ctx, newServer(1, 0, "a"))
	require.NoError(t, err)
	b, err := m.AddServer(ctx, newServer(1, 1, "b"))
	require.NoError(t, err)

	require.NoError(t, m.MoveServer(ctx, a, MoveUp))

	all, err := m.AllServers(ctx, Filter{ChannelID: 1})
	require.NoError(t, err)
	byID := map[int64]server.Server{}
	for _, s := range all {
		byID[s.ID] = s
	}
	assert.Equal(t, 0, byID[a.ID].Position)
	assert.Equal(t, 1, byID[b.ID].Position)
}

func TestDeleteServersRefusesUnfiltered(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()
	err := m.DeleteServers(context.Background(), Filter{})
	assert.Error(t, err)
}

func TestUpdateMetricsTrimsRingBuffer(t *testing.T) {
	m := NewMemory(2)
	defer m.Close()
	ctx := context.Background()

	target := DistinctProbeTarget{GameID: "source", Address: "1.1.1.1", QueryPort: 27015}
	for i := 0; i < 5; i++ {
		require.NoError(t, m.UpdateMetrics(ctx, []DistinctProbeTarget{target}))
	}
	assert.Len(t, m.Metrics(target.Key()), 2)
}

func TestStatisticsCountsDistinctEndpoints(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()
	ctx := context.Background()

	_, err := m.AddServer(ctx, newServer(1, 0, "dup"))
	require.NoError(t, err)
	_, err = m.AddServer(ctx, newServer(2, 0, "dup"))
	require.NoError(t, err)
	_, err = m.AddServer(ctx, newServer(2, 1, "other"))
	require.NoError(t, err)

	stats, err := m.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Channels)
	assert.Equal(t, 1, stats.Guilds)
	assert.Equal(t, 2, stats.UniqueServers)
}

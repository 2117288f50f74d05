package presence

import (
	"context"
	"testing"

	"github.com/DiscordGSM/GameServerMonitor/internal/config"
	"github.com/DiscordGSM/GameServerMonitor/internal/logger"
	"github.com/DiscordGSM/GameServerMonitor/internal/repository"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRepo(t *testing.T) *repository.Memory {
	t.Helper()
	m := repository.NewMemory(0)
	ctx := context.Background()

	online := server.Server{ChannelID: 1, GameID: "source", Address: "a", QueryPort: 1, Status: true}
	online.Result.Name = "Alpha"
	online.Result.NumPlayers, online.Result.MaxPlayers = 3, 16
	_, err := m.AddServer(ctx, online)
	require.NoError(t, err)

	offline := server.Server{ChannelID: 1, GameID: "source", Address: "b", QueryPort: 2}
	offline.Result.Name = "Bravo"
	offline.Result.NumPlayers, offline.Result.MaxPlayers = 0, 10
	_, err = m.AddServer(ctx, offline)
	require.NoError(t, err)

	return m
}

func TestServerCountMode(t *testing.T) {
	m := seedRepo(t)
	defer m.Close()
	u := New(m, config.AdvertiseServerCount, nil, &logger.Logger{})
	text, err := u.compute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2 servers", text)
}

func TestIndividuallyModeSkipsOffline(t *testing.T) {
	m := seedRepo(t)
	defer m.Close()
	u := New(m, config.AdvertiseIndividually, nil, &logger.Logger{})
	text, err := u.compute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "3(0)/16 (19%) Alpha", text)
}

func TestIndividuallyModeEmptyWhenNoneOnline(t *testing.T) {
	m := repository.NewMemory(0)
	defer m.Close()
	ctx := context.Background()
	offline := server.Server{ChannelID: 1, GameID: "source", Address: "b", QueryPort: 2}
	_, err := m.AddServer(ctx, offline)
	require.NoError(t, err)

	u := New(m, config.AdvertiseIndividually, nil, &logger.Logger{})
	text, err := u.compute(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", text)
}

func TestPlayerStatsModeSumsAcrossServers(t *testing.T) {
	m := seedRepo(t)
	defer m.Close()
	u := New(m, config.AdvertisePlayerStats, nil, &logger.Logger{})
	text, err := u.compute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "3(0)/26 (12%)", text)
}

func TestRunAdvancesTickIndexAndInvokesSet(t *testing.T) {
	m := seedRepo(t)
	defer m.Close()

	var got string
	set := func(ctx context.Context, text string) error {
		got = text
		return nil
	}
	u := New(m, config.AdvertiseServerCount, set, &logger.Logger{})
	require.NoError(t, u.Run(context.Background()))
	assert.Equal(t, "2 servers", got)
	assert.Equal(t, 1, u.tickIdx)
}

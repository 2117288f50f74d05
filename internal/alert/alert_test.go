package alert

import (
	"context"
	"testing"
	"time"

	"github.com/DiscordGSM/GameServerMonitor/internal/logger"
	"github.com/DiscordGSM/GameServerMonitor/internal/repository"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThresholdFormula(t *testing.T) {
	cases := []struct {
		period time.Duration
		want   int
	}{
		{15 * time.Second, 8},
		{60 * time.Second, 2},
		{120 * time.Second, 2},
		{300 * time.Second, 2},
	}
	for _, c := range cases {
		e := New(nil, c.period, &logger.Logger{})
		assert.Equal(t, c.want, e.Threshold())
	}
}

// TestOfflineAlertFiresExactlyOnce exercises seed scenario 2's hysteresis
// half: the offline alert fires on the tick where __fail_query_count first
// equals the threshold, and never again while the server stays down.
func TestOfflineAlertFiresExactlyOnce(t *testing.T) {
	m := repository.NewMemory(0)
	defer m.Close()
	ctx := context.Background()

	srv, err := m.AddServer(ctx, server.Server{ChannelID: 1, GameID: "source", Address: "a", QueryPort: 1})
	require.NoError(t, err)
	srv.StyleData = map[string]string{"_alert_webhook_url": ""}
	require.NoError(t, m.UpdateServersStyleData(ctx, []server.Server{srv}))

	e := New(m, 60*time.Second, &logger.Logger{}) // threshold = 2

	setFailCount := func(n int, status bool) {
		target := repository.DistinctProbeTarget{GameID: "source", Address: "a", QueryPort: 1, Status: status}
		target.Result.SetFailCount(n)
		require.NoError(t, m.UpdateServers(ctx, []repository.DistinctProbeTarget{target}))
	}

	setFailCount(1, false)
	require.NoError(t, e.Run(ctx))
	all, _ := m.AllServers(ctx, repository.Filter{})
	assert.False(t, all[0].Result.SentOfflineAlert(), "must not fire before threshold")

	setFailCount(2, false)
	require.NoError(t, e.Run(ctx))
	all, _ = m.AllServers(ctx, repository.Filter{})
	assert.True(t, all[0].Result.SentOfflineAlert(), "must fire exactly at threshold")

	// Keep failing: alert must not re-fire (flag stays true, no panic/error).
	setFailCount(3, false)
	all, _ = m.AllServers(ctx, repository.Filter{})
	all[0].Result.SetSentOfflineAlert(true) // preserve flag across the raw UpdateServers above
	require.NoError(t, e.Run(ctx))
	all, _ = m.AllServers(ctx, repository.Filter{})
	assert.True(t, all[0].Result.SentOfflineAlert())
}

// TestOnlineAlertFiresOnRecovery exercises the recovery half of scenario 2.
func TestOnlineAlertFiresOnRecovery(t *testing.T) {
	m := repository.NewMemory(0)
	defer m.Close()
	ctx := context.Background()

	_, err := m.AddServer(ctx, server.Server{ChannelID: 1, GameID: "source", Address: "a", QueryPort: 1})
	require.NoError(t, err)

	e := New(m, 60*time.Second, &logger.Logger{})

	down := repository.DistinctProbeTarget{GameID: "source", Address: "a", QueryPort: 1, Status: false}
	down.Result.SetFailCount(2)
	require.NoError(t, m.UpdateServers(ctx, []repository.DistinctProbeTarget{down}))
	require.NoError(t, e.Run(ctx))

	recovered := repository.DistinctProbeTarget{GameID: "source", Address: "a", QueryPort: 1, Status: true}
	all, _ := m.AllServers(ctx, repository.Filter{})
	recovered.Result = all[0].Result // carry SentOfflineAlert forward, as the scheduler does
	require.NoError(t, m.UpdateServers(ctx, []repository.DistinctProbeTarget{recovered}))

	require.NoError(t, e.Run(ctx))
	all, _ = m.AllServers(ctx, repository.Filter{})
	assert.False(t, all[0].Result.SentOfflineAlert())
}

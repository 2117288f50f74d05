package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, names ...string) {
	t.Helper()
	for _, n := range names {
		orig, had := os.LookupEnv(n)
		os.Unsetenv(n)
		t.Cleanup(func() {
			if had {
				os.Setenv(n, orig)
			}
		})
	}
}

func TestLoadRequiresAppToken(t *testing.T) {
	clearEnv(t, "APP_TOKEN")
	_, err := Load("/nonexistent/.env")
	assert.Error(t, err)
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t, "APP_TOKEN", "TASK_QUERY_SERVER", "TASK_QUERY_CHUNK_SIZE", "METRICS_RECORD_LIMIT")
	os.Setenv("APP_TOKEN", "token")
	t.Cleanup(func() { os.Unsetenv("APP_TOKEN") })

	cfg, err := Load("/nonexistent/.env")
	require.NoError(t, err)
	assert.Equal(t, "token", cfg.AppToken)
	assert.Equal(t, defaultTickPeriod, cfg.TickPeriod)
	assert.Equal(t, defaultChunkSize, cfg.ChunkSize)
	assert.Equal(t, defaultMetricLimit, cfg.MetricsRecordLimit)
	assert.True(t, cfg.UsesSQLite())
}

// TestTickPeriodClampedToFifteenSeconds covers spec.md §8's "tick period
// below 15s is clamped to 15s" boundary behaviour.
func TestTickPeriodClampedToFifteenSeconds(t *testing.T) {
	clearEnv(t, "APP_TOKEN", "TASK_QUERY_SERVER")
	os.Setenv("APP_TOKEN", "token")
	os.Setenv("TASK_QUERY_SERVER", "5")
	t.Cleanup(func() {
		os.Unsetenv("APP_TOKEN")
		os.Unsetenv("TASK_QUERY_SERVER")
	})

	cfg, err := Load("/nonexistent/.env")
	require.NoError(t, err)
	assert.Equal(t, minTickPeriod, cfg.TickPeriod)
}

func TestUsesSQLiteFalseWhenDatabaseURLSet(t *testing.T) {
	clearEnv(t, "APP_TOKEN", "DATABASE_URL")
	os.Setenv("APP_TOKEN", "token")
	os.Setenv("DATABASE_URL", "postgres://host/db")
	t.Cleanup(func() {
		os.Unsetenv("APP_TOKEN")
		os.Unsetenv("DATABASE_URL")
	})

	cfg, err := Load("/nonexistent/.env")
	require.NoError(t, err)
	assert.False(t, cfg.UsesSQLite())
}

func TestParseIDListAcceptsSemicolonOrComma(t *testing.T) {
	assert.Equal(t, []int64{1, 2, 3}, parseIDList("1;2;3"))
	assert.Equal(t, []int64{1, 2, 3}, parseIDList("1,2,3"))
	assert.Nil(t, parseIDList(""))
}

func TestParseAdvertiseTypeDefaultsToServerCount(t *testing.T) {
	assert.Equal(t, AdvertiseServerCount, parseAdvertiseType(""))
	assert.Equal(t, AdvertiseServerCount, parseAdvertiseType("bogus"))
	assert.Equal(t, AdvertiseIndividually, parseAdvertiseType("individually"))
	assert.Equal(t, AdvertisePlayerStats, parseAdvertiseType("player_stats"))
}

func TestClampDurationFloor(t *testing.T) {
	assert.Equal(t, 20*time.Second, clampDuration("20", 60*time.Second, 15*time.Second))
	assert.Equal(t, 15*time.Second, clampDuration("5", 60*time.Second, 15*time.Second))
	assert.Equal(t, 60*time.Second, clampDuration("", 60*time.Second, 15*time.Second))
}

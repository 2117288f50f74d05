// Package presence computes the bot's presence/telemetry string once per
// tick, per spec.md §4.H's three APP_ADVERTISE_TYPE modes.
package presence

import (
	"context"
	"fmt"

	"github.com/DiscordGSM/GameServerMonitor/internal/config"
	"github.com/DiscordGSM/GameServerMonitor/internal/logger"
	"github.com/DiscordGSM/GameServerMonitor/internal/repository"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
)

// SetActivity is called with the computed presence string; the actual
// chat-platform activity-set call is out of scope (spec.md §1).
type SetActivity func(ctx context.Context, text string) error

// Updater computes and publishes the presence string once per tick.
type Updater struct {
	repo    repository.Repository
	mode    config.AdvertiseType
	set     SetActivity
	log     *logger.Logger
	tickIdx int
}

// New builds an Updater.
func New(repo repository.Repository, mode config.AdvertiseType, set SetActivity, l *logger.Logger) *Updater {
	return &Updater{repo: repo, mode: mode, set: set, log: l.Named("presence")}
}

// Run computes the presence string for the configured mode and publishes
// it via set.
func (u *Updater) Run(ctx context.Context) error {
	text, err := u.compute(ctx)
	if err != nil {
		return err
	}
	u.tickIdx++
	if u.set == nil || text == "" {
		return nil
	}
	return u.set(ctx, text)
}

func (u *Updater) compute(ctx context.Context) (string, error) {
	switch u.mode {
	case config.AdvertiseIndividually:
		return u.individually(ctx)
	case config.AdvertisePlayerStats:
		return u.playerStats(ctx)
	default:
		return u.serverCount(ctx)
	}
}

func (u *Updater) serverCount(ctx context.Context) (string, error) {
	stats, err := u.repo.Statistics(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d servers", stats.UniqueServers), nil
}

func (u *Updater) individually(ctx context.Context) (string, error) {
	servers, err := u.repo.AllServers(ctx, repository.Filter{})
	if err != nil {
		return "", err
	}
	var online []server.Server
	for _, s := range servers {
		if s.Status {
			online = append(online, s)
		}
	}
	if len(online) == 0 {
		return "", nil
	}
	s := online[u.tickIdx%len(online)]
	return playersString(s.Result.NumPlayers, s.Result.NumBots, s.Result.MaxPlayers) + " " + s.Result.Name, nil
}

func (u *Updater) playerStats(ctx context.Context) (string, error) {
	servers, err := u.repo.AllServers(ctx, repository.Filter{})
	if err != nil {
		return "", err
	}
	var players, bots, max int
	for _, s := range servers {
		players += s.Result.NumPlayers
		bots += s.Result.NumBots
		max += s.Result.MaxPlayers
	}
	return playersString(players, bots, max), nil
}

// playersString formats the "{players}({bots})/{max} ({pct}%)" string shared
// by the individually and player_stats presence modes, matching
// original_source/discordgsm/styles/style.py's to_players_string.
func playersString(players, bots, max int) string {
	pct := 0.0
	if max > 0 {
		pct = float64(players) / float64(max) * 100
	}
	return fmt.Sprintf("%d(%d)/%d (%.0f%%)", players, bots, max, pct)
}

package strategies

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DiscordGSM/GameServerMonitor/internal/errs"
	"github.com/DiscordGSM/GameServerMonitor/internal/probe"
	"github.com/DiscordGSM/GameServerMonitor/internal/registry"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
)

func init() {
	registry.Register(&discordStrategy{})
}

// discordStrategy reads a Discord guild's public widget
// (original_source/.../discord.py) — no address/port at all, just a guild
// id passed through extra["_guildid"], since this "server" is a Discord
// server rather than a game server.
type discordStrategy struct{}

func (discordStrategy) Name() string                                  { return "discord" }
func (discordStrategy) PreQueryRequired() bool                        { return false }
func (discordStrategy) PreQuery(context.Context, *probe.Options) error { return nil }

func (discordStrategy) Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error) {
	guildID := extra["_guildid"]
	url := fmt.Sprintf("https://discord.com/api/guilds/%s/widget.json", guildID)

	start := time.Now()
	body, err := probe.Shared().Get(ctx, url)
	if err != nil {
		return server.Probe{}, err
	}
	pingMS := int(time.Since(start) / time.Millisecond)

	var data struct {
		Name           string `json:"name"`
		InstantInvite  string `json:"instant_invite"`
		PresenceCount  int    `json:"presence_count"`
		Members        []struct {
			Username string `json:"username"`
		} `json:"members"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "discord: decode widget", err)
	}

	var players []server.Player
	for _, m := range data.Members {
		players = append(players, server.Player{Name: m.Username})
	}

	return server.Probe{
		Name:       data.Name,
		MaxPlayers: -1,
		NumPlayers: data.PresenceCount,
		Players:    players,
		Connect:    data.InstantInvite,
		PingMS:     pingMS,
	}, nil
}

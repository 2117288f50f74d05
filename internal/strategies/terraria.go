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
	registry.Register(&terrariaStrategy{})
}

// terrariaStrategy queries TShock's REST API (original_source/.../terraria.py),
// a plain HTTP+JSON server status endpoint gated by a bearer-less API token
// query parameter.
type terrariaStrategy struct{}

func (terrariaStrategy) Name() string                                  { return "terraria" }
func (terrariaStrategy) PreQueryRequired() bool                        { return false }
func (terrariaStrategy) PreQuery(context.Context, *probe.Options) error { return nil }

func (terrariaStrategy) Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error) {
	url := fmt.Sprintf("http://%s:%d/v2/server/status?players=true&rules=false&token=%s", address, port, extra["_token"])

	start := time.Now()
	body, err := probe.Shared().Get(ctx, url)
	if err != nil {
		return server.Probe{}, err
	}
	pingMS := int(time.Since(start) / time.Millisecond)

	var data struct {
		Name           string `json:"name"`
		World          string `json:"world"`
		ServerPassword bool   `json:"serverpassword"`
		MaxPlayers     int    `json:"maxplayers"`
		Port           int    `json:"port"`
		Players        []struct {
			Nickname string `json:"nickname"`
		} `json:"players"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "terraria: decode response", err)
	}

	var players []server.Player
	for _, p := range data.Players {
		players = append(players, server.Player{Name: p.Nickname})
	}

	return server.Probe{
		Name:       data.Name,
		Map:        data.World,
		Password:   data.ServerPassword,
		NumPlayers: len(data.Players),
		MaxPlayers: data.MaxPlayers,
		Players:    players,
		Connect:    probe.AddrPort(address, data.Port),
		PingMS:     pingMS,
	}, nil
}

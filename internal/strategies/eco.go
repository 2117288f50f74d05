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
	registry.Register(&ecoStrategy{})
}

// ecoStrategy queries Eco's built-in HTTP status endpoint
// (original_source/.../eco.py), a plain unauthenticated JSON document.
type ecoStrategy struct{}

func (ecoStrategy) Name() string                                  { return "eco" }
func (ecoStrategy) PreQueryRequired() bool                        { return false }
func (ecoStrategy) PreQuery(context.Context, *probe.Options) error { return nil }

func (ecoStrategy) Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error) {
	url := fmt.Sprintf("http://%s:%d/info", address, port)

	start := time.Now()
	body, err := probe.Shared().Get(ctx, url)
	if err != nil {
		return server.Probe{}, err
	}
	pingMS := int(time.Since(start) / time.Millisecond)

	var data struct {
		Description        string   `json:"Description"`
		HasPassword         bool     `json:"HasPassword"`
		MaxActivePlayers    int      `json:"MaxActivePlayers"`
		OnlinePlayers       int      `json:"OnlinePlayers"`
		OnlinePlayersNames  []string `json:"OnlinePlayersNames"`
		JoinURL             string   `json:"JoinUrl"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "eco: decode response", err)
	}

	var players []server.Player
	for _, name := range data.OnlinePlayersNames {
		players = append(players, server.Player{Name: name})
	}

	return server.Probe{
		Name:       data.Description,
		Password:   data.HasPassword,
		MaxPlayers: data.MaxActivePlayers,
		NumPlayers: data.OnlinePlayers,
		Players:    players,
		Connect:    data.JoinURL,
		PingMS:     pingMS,
	}, nil
}

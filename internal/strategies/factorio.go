package strategies

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/DiscordGSM/GameServerMonitor/internal/errs"
	"github.com/DiscordGSM/GameServerMonitor/internal/probe"
	"github.com/DiscordGSM/GameServerMonitor/internal/registry"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
)

var factorioRichTextTag = regexp.MustCompile(`\[\w*=\w*\]|\[/\w*\]`)

func init() {
	registry.Register(&factorioStrategy{})
}

// factorioStrategy looks a running game up on Factorio's own multiplayer
// matchmaking service by game id (original_source/.../factorio.py), since
// Factorio servers aren't directly queryable without joining.
type factorioStrategy struct{}

func (factorioStrategy) Name() string                                  { return "factorio" }
func (factorioStrategy) PreQueryRequired() bool                        { return false }
func (factorioStrategy) PreQuery(context.Context, *probe.Options) error { return nil }

func (factorioStrategy) Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error) {
	gameID := extra["_gameid"]
	url := fmt.Sprintf("https://multiplayer.factorio.com/get-game-details/%s", gameID)

	start := time.Now()
	body, err := probe.Shared().Get(ctx, url)
	if err != nil {
		return server.Probe{}, err
	}
	pingMS := int(time.Since(start) / time.Millisecond)

	var data struct {
		Message     string   `json:"message"`
		HostAddress string   `json:"host_address"`
		Name        string   `json:"name"`
		HasPassword bool     `json:"has_password"`
		MaxPlayers  int      `json:"max_players"`
		Players     []string `json:"players"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "factorio: decode response", err)
	}
	if data.Message != "" {
		return server.Probe{}, errs.New(errs.Protocol, "factorio: "+data.Message, nil)
	}
	if data.HostAddress != probe.AddrPort(address, port) {
		return server.Probe{}, errs.New(errs.Protocol, "factorio: host address mismatch", nil)
	}

	var players []server.Player
	for _, name := range data.Players {
		players = append(players, server.Player{Name: name})
	}

	return server.Probe{
		Name:       factorioRichTextTag.ReplaceAllString(data.Name, ""),
		Password:   data.HasPassword,
		NumPlayers: len(data.Players),
		MaxPlayers: data.MaxPlayers,
		Players:    players,
		Connect:    data.HostAddress,
		PingMS:     pingMS,
	}, nil
}

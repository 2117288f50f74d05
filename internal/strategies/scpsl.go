package strategies

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/DiscordGSM/GameServerMonitor/internal/errs"
	"github.com/DiscordGSM/GameServerMonitor/internal/probe"
	"github.com/DiscordGSM/GameServerMonitor/internal/registry"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
)

func init() {
	registry.Register(&scpslStrategy{})
}

// scpslStrategy queries the SCP: Secret Laboratory public server list API
// (original_source/discordgsm/protocols/scpsl.py), which is keyed by an
// account id and API key rather than by host/port directly — extra["_token"],
// extra["_accountid"] and extra["_servername"] stand in for self.kv there.
type scpslStrategy struct{}

func (scpslStrategy) Name() string                                  { return "scpsl" }
func (scpslStrategy) PreQueryRequired() bool                        { return false }
func (scpslStrategy) PreQuery(context.Context, *probe.Options) error { return nil }

func (scpslStrategy) Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error) {
	token, accountID, serverName := extra["_token"], extra["_accountid"], extra["_servername"]
	url := fmt.Sprintf("https://api.scpslgame.com/serverinfo.php?id=%s&key=%s&lo=true&players=true&list=true&version=true&flags=true&online=true", accountID, token)

	start := time.Now()
	client := probe.Shared()
	body, err := client.Get(ctx, url)
	if err != nil {
		return server.Probe{}, err
	}
	pingMS := int(time.Since(start) / time.Millisecond)

	var data struct {
		Servers []struct {
			ID          any      `json:"ID"`
			Players     string   `json:"Players"`
			PlayersList []string `json:"PlayersList"`
		} `json:"Servers"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "scpsl: decode response", err)
	}
	if len(data.Servers) == 0 {
		return server.Probe{}, errs.New(errs.NotFound, "scpsl: no matching server", nil)
	}
	info := data.Servers[0]

	numPlayers, maxPlayers := 0, 0
	if parts := strings.SplitN(info.Players, "/", 2); len(parts) == 2 {
		numPlayers, _ = strconv.Atoi(parts[0])
		maxPlayers, _ = strconv.Atoi(parts[1])
	}

	var players []server.Player
	for _, name := range info.PlayersList {
		players = append(players, server.Player{Name: probe.StripColorCodes(name)})
	}

	return server.Probe{
		Name:       fmt.Sprintf("%s - SCP SL Server %v", serverName, info.ID),
		NumPlayers: numPlayers,
		MaxPlayers: maxPlayers,
		Players:    players,
		PingMS:     pingMS,
		Raw:        map[string]any{"id": info.ID},
	}, nil
}

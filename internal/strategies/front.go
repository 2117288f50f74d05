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

const frontMasterServerURL = "https://master-server.opengsq.com"

func init() {
	registry.Register(&frontStrategy{})
}

// frontStrategy queries The Front through opengsq's community master-server
// relay rather than the game's own Source-engine query port
// (original_source/.../front.py's current `query`, which replaced the
// direct A2S_INFO/A2S_RULES approach in `_query` after the game started
// blocking unsolicited UDP queries).
type frontStrategy struct{}

func (frontStrategy) Name() string                                  { return "front" }
func (frontStrategy) PreQueryRequired() bool                        { return false }
func (frontStrategy) PreQuery(context.Context, *probe.Options) error { return nil }

func (frontStrategy) Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error) {
	url := fmt.Sprintf("%s/thefront/search?host=%s&port=%d", frontMasterServerURL, address, port)

	start := time.Now()
	body, err := probe.Shared().Get(ctx, url)
	if err != nil {
		return server.Probe{}, err
	}
	pingMS := int(time.Since(start) / time.Millisecond)

	var data struct {
		ServerName string         `json:"server_name"`
		Online     int            `json:"online"`
		Info       map[string]any `json:"info"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "front: decode response", err)
	}

	gameMap, _ := data.Info["game_map"].(string)
	hasPassword, _ := data.Info["HasPWD"].(bool)
	maxPlayers, _ := data.Info["maxplayer"].(float64)

	return server.Probe{
		Name:       data.ServerName,
		Map:        gameMap,
		Password:   hasPassword,
		NumPlayers: data.Online,
		MaxPlayers: int(maxPlayers),
		Connect:    probe.AddrPort(address, port),
		PingMS:     pingMS,
		Raw:        data.Info,
	}, nil
}

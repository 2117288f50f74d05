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

const scumMasterServerURL = "https://master-server.opengsq.com"

func init() {
	registry.Register(&scumStrategy{})
}

// scumStrategy queries SCUM through the same community master-server relay
// as The Front (original_source/.../scum.py); SCUM's own query port runs
// two below the advertised game port, hence the "-2" connect adjustment.
type scumStrategy struct{}

func (scumStrategy) Name() string                                  { return "scum" }
func (scumStrategy) PreQueryRequired() bool                        { return false }
func (scumStrategy) PreQuery(context.Context, *probe.Options) error { return nil }

func (scumStrategy) Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error) {
	url := fmt.Sprintf("%s/scum/search?host=%s&port=%d", scumMasterServerURL, address, port)

	start := time.Now()
	body, err := probe.Shared().Get(ctx, url)
	if err != nil {
		return server.Probe{}, err
	}
	pingMS := int(time.Since(start) / time.Millisecond)

	var data struct {
		Name       string `json:"name"`
		Password   bool   `json:"password"`
		NumPlayers int    `json:"num_players"`
		MaxPlayers int    `json:"maxplayers"`
		Port       int    `json:"port"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "scum: decode response", err)
	}
	connectPort := data.Port
	if connectPort == 0 {
		connectPort = port
	}

	return server.Probe{
		Name:       data.Name,
		Password:   data.Password,
		NumPlayers: data.NumPlayers,
		MaxPlayers: data.MaxPlayers,
		Connect:    probe.AddrPort(address, connectPort-2),
		PingMS:     pingMS,
	}, nil
}

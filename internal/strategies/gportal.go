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
	registry.Register(&gportalStrategy{})
}

// gportalStrategy queries G-Portal's hosting-panel API for a rented
// server's live state (original_source/.../gportal.py), keyed by a
// G-Portal server id (extra["_serverid"]) rather than by host/port probing.
type gportalStrategy struct{}

func (gportalStrategy) Name() string                                  { return "gportal" }
func (gportalStrategy) PreQueryRequired() bool                        { return false }
func (gportalStrategy) PreQuery(context.Context, *probe.Options) error { return nil }

func (gportalStrategy) Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error) {
	url := fmt.Sprintf("https://api.g-portal.com/gameserver/query/%s", extra["_serverid"])

	start := time.Now()
	body, err := probe.Shared().Get(ctx, url)
	if err != nil {
		return server.Probe{}, err
	}
	pingMS := int(time.Since(start) / time.Millisecond)

	var data struct {
		Name           string `json:"name"`
		IPAddress      string `json:"ipAddress"`
		Port           int    `json:"port"`
		Online         bool   `json:"online"`
		CurrentPlayers int    `json:"currentPlayers"`
		MaxPlayers     int    `json:"maxPlayers"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "gportal: decode response", err)
	}
	if address != data.IPAddress || port != data.Port {
		return server.Probe{}, errs.New(errs.Protocol, "gportal: address or port mismatch", nil)
	}
	if !data.Online {
		return server.Probe{}, errs.New(errs.NotFound, "gportal: server offline", nil)
	}

	return server.Probe{
		Name:       data.Name,
		NumPlayers: data.CurrentPlayers,
		MaxPlayers: data.MaxPlayers,
		Connect:    probe.AddrPort(data.IPAddress, data.Port),
		PingMS:     pingMS,
		Raw:        map[string]any{"ipAddress": data.IPAddress, "port": data.Port},
	}, nil
}

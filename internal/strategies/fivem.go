package strategies

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/DiscordGSM/GameServerMonitor/internal/errs"
	"github.com/DiscordGSM/GameServerMonitor/internal/probe"
	"github.com/DiscordGSM/GameServerMonitor/internal/registry"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
)

func init() {
	registry.Register(&fivemStrategy{})
}

// fivemStrategy combines id Tech 3's "getstatus" UDP exchange (for the
// hostname/map/max-clients cvars) with FiveM's own HTTP players.json
// endpoint (original_source/.../fivem.py), since FXServer's UDP status
// response omits player names.
type fivemStrategy struct{}

func (fivemStrategy) Name() string                                  { return "fivem" }
func (fivemStrategy) PreQueryRequired() bool                        { return false }
func (fivemStrategy) PreQuery(context.Context, *probe.Options) error { return nil }

func (fivemStrategy) Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error) {
	conn, err := probe.DialUDP(ctx, probe.AddrPort(address, port))
	if err != nil {
		return server.Probe{}, err
	}
	defer conn.Close()

	start := time.Now()
	resp, err := probe.RoundTrip(ctx, conn, quake3StatusRequest, opts.Timeout)
	if err != nil {
		return server.Probe{}, err
	}
	info, _ := probe.ParseQuakeStatus(string(resp))

	playersURL := fmt.Sprintf("http://%s:%d/players.json", address, port)
	body, err := probe.Shared().Get(ctx, playersURL)
	if err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "fivem: players.json", err)
	}
	pingMS := int(time.Since(start) / time.Millisecond)

	var rawPlayers []map[string]any
	if err := json.Unmarshal(body, &rawPlayers); err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "fivem: decode players.json", err)
	}

	var players []server.Player
	for _, p := range rawPlayers {
		name, _ := p["name"].(string)
		players = append(players, server.Player{Name: name, Raw: p})
	}

	maxPlayers, _ := strconv.Atoi(info["sv_maxclients"])
	clients, _ := strconv.Atoi(info["clients"])

	return server.Probe{
		Name:       probe.StripColorCodes(info["hostname"]),
		Map:        info["mapname"],
		MaxPlayers: maxPlayers,
		NumPlayers: len(players),
		Players:    players,
		Connect:    probe.AddrPort(address, port),
		PingMS:     pingMS,
		Raw:        map[string]any{"numplayers": clients},
	}, nil
}

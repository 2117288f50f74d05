package strategies

import (
	"context"
	"strconv"
	"time"

	"github.com/DiscordGSM/GameServerMonitor/internal/probe"
	"github.com/DiscordGSM/GameServerMonitor/internal/registry"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
)

var quake3StatusRequest = []byte("\xffstatus\n")

func init() {
	registry.Register(&quake3Strategy{})
}

// quake3Strategy speaks id Tech 3's getstatus/statusResponse exchange,
// which the original project and this module both handle with the same
// "status" text scanner as Quake1/2 (original_source/.../quake3.py), since
// the cvar-line-then-player-lines shape carried forward unchanged.
type quake3Strategy struct{}

func (quake3Strategy) Name() string                                  { return "quake3" }
func (quake3Strategy) PreQueryRequired() bool                        { return false }
func (quake3Strategy) PreQuery(context.Context, *probe.Options) error { return nil }

func (quake3Strategy) Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error) {
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
	pingMS := int(time.Since(start) / time.Millisecond)

	info, lines := probe.ParseQuakeStatus(string(resp))
	maxPlayers, _ := strconv.Atoi(info["sv_maxclients"])
	needPass, _ := strconv.Atoi(firstNonEmpty(info["g_needpass"], "0"))

	var players, bots []server.Player
	for _, l := range lines {
		p := server.Player{Name: probe.StripColorCodes(l.Name), Raw: l.Raw}
		if l.Ping == 0 {
			bots = append(bots, p)
		} else {
			players = append(players, p)
		}
	}

	raw := make(map[string]any, len(info))
	for k, v := range info {
		raw[k] = v
	}

	return server.Probe{
		Name:       probe.StripColorCodes(firstNonEmpty(info["hostname"], info["sv_hostname"])),
		Password:   needPass == 1,
		MaxPlayers: maxPlayers,
		NumPlayers: len(players),
		NumBots:    len(bots),
		Players:    players,
		Bots:       bots,
		Connect:    probe.AddrPort(address, port),
		PingMS:     pingMS,
		Raw:        raw,
	}, nil
}

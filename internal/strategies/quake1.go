package strategies

import (
	"context"
	"strconv"
	"time"

	"github.com/DiscordGSM/GameServerMonitor/internal/probe"
	"github.com/DiscordGSM/GameServerMonitor/internal/registry"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
)

var quake1StatusRequest = []byte("\xffstatus\n")

func init() {
	registry.Register(&quake1Strategy{})
}

// quake1Strategy speaks id Software's original "status" console command
// over UDP (original_source/discordgsm/protocols/quake1.py): a cvar line
// followed by one player line per connected client, with ping==0 used as
// the bot indicator since Quake1 servers don't carry an explicit flag.
type quake1Strategy struct{}

func (quake1Strategy) Name() string                                  { return "quake1" }
func (quake1Strategy) PreQueryRequired() bool                        { return false }
func (quake1Strategy) PreQuery(context.Context, *probe.Options) error { return nil }

func (quake1Strategy) Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error) {
	conn, err := probe.DialUDP(ctx, probe.AddrPort(address, port))
	if err != nil {
		return server.Probe{}, err
	}
	defer conn.Close()

	start := time.Now()
	resp, err := probe.RoundTrip(ctx, conn, quake1StatusRequest, opts.Timeout)
	if err != nil {
		return server.Probe{}, err
	}
	pingMS := int(time.Since(start) / time.Millisecond)

	info, lines := probe.ParseQuakeStatus(string(resp))
	maxPlayers, _ := strconv.Atoi(firstNonEmpty(info["sv_maxclients"], info["maxclients"]))
	mapName := firstNonEmpty(info["map"], info["mapname"])

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
		Map:        probe.StripColorCodes(mapName),
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

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

package strategies

import (
	"context"
	"strconv"
	"time"

	"github.com/DiscordGSM/GameServerMonitor/internal/probe"
	"github.com/DiscordGSM/GameServerMonitor/internal/registry"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
)

// hexen2StatusRequest overrides Quake1's request/response framing bytes,
// per original_source/discordgsm/protocols/hexen2.py patching
// opengsq.Quake1._request_header/_response_header at runtime; this module
// just builds the Hexen2-specific request directly instead.
var hexen2StatusRequest = []byte("\xffstatus\x0a")

func init() {
	registry.Register(&hexen2Strategy{})
}

// hexen2Strategy is Quake1-engine-derived (Hexen II shares id Tech 1's
// network code) and decodes the same cvar-line-then-players shape.
type hexen2Strategy struct{}

func (hexen2Strategy) Name() string                                  { return "hexen2" }
func (hexen2Strategy) PreQueryRequired() bool                        { return false }
func (hexen2Strategy) PreQuery(context.Context, *probe.Options) error { return nil }

func (hexen2Strategy) Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error) {
	conn, err := probe.DialUDP(ctx, probe.AddrPort(address, port))
	if err != nil {
		return server.Probe{}, err
	}
	defer conn.Close()

	start := time.Now()
	resp, err := probe.RoundTrip(ctx, conn, hexen2StatusRequest, opts.Timeout)
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

package strategies

import (
	"context"
	"strconv"
	"time"

	"github.com/DiscordGSM/GameServerMonitor/internal/probe"
	"github.com/DiscordGSM/GameServerMonitor/internal/registry"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
)

var quake2StatusRequest = []byte("\xffstatus\n")

func init() {
	registry.Register(&quake2Strategy{})
}

// quake2Strategy is Quake2's revision of the same "status" command
// protocol, adding an explicit needpass cvar and keeping the ping==0 bot
// convention (original_source/discordgsm/protocols/quake2.py).
type quake2Strategy struct{}

func (quake2Strategy) Name() string                                  { return "quake2" }
func (quake2Strategy) PreQueryRequired() bool                        { return false }
func (quake2Strategy) PreQuery(context.Context, *probe.Options) error { return nil }

func (quake2Strategy) Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error) {
	conn, err := probe.DialUDP(ctx, probe.AddrPort(address, port))
	if err != nil {
		return server.Probe{}, err
	}
	defer conn.Close()

	start := time.Now()
	resp, err := probe.RoundTrip(ctx, conn, quake2StatusRequest, opts.Timeout)
	if err != nil {
		return server.Probe{}, err
	}
	pingMS := int(time.Since(start) / time.Millisecond)

	info, lines := probe.ParseQuakeStatus(string(resp))
	maxPlayers, _ := strconv.Atoi(firstNonEmpty(info["sv_maxclients"], info["maxclients"]))
	needPass, _ := strconv.Atoi(firstNonEmpty(info["g_needpass"], info["needpass"], "0"))

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
		Map:        probe.StripColorCodes(info["mapname"]),
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

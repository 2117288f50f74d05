package strategies

import (
	"context"
	"strconv"
	"time"

	"github.com/DiscordGSM/GameServerMonitor/internal/probe"
	"github.com/DiscordGSM/GameServerMonitor/internal/registry"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
)

func init() {
	registry.Register(&gamespy1Strategy{})
}

// gamespy1Strategy speaks the original GameSpy query protocol: a single
// UDP "\status\" request answered with backslash-delimited key/value pairs
// plus one "player_N"/"score_N"/... block per connected player
// (original_source/discordgsm/protocols/gamespy1.py).
type gamespy1Strategy struct{}

func (gamespy1Strategy) Name() string                                  { return "gamespy1" }
func (gamespy1Strategy) PreQueryRequired() bool                        { return false }
func (gamespy1Strategy) PreQuery(context.Context, *probe.Options) error { return nil }

func (gamespy1Strategy) Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error) {
	conn, err := probe.DialUDP(ctx, probe.AddrPort(address, port))
	if err != nil {
		return server.Probe{}, err
	}
	defer conn.Close()

	start := time.Now()
	resp, err := probe.RoundTrip(ctx, conn, []byte("\\status\\"), opts.Timeout)
	if err != nil {
		return server.Probe{}, err
	}
	pingMS := int(time.Since(start) / time.Millisecond)

	kv := probe.ParseBackslashKV(string(resp))
	maxPlayers, _ := strconv.Atoi(kv["maxplayers"])
	hostPort, err := strconv.Atoi(kv["hostport"])
	if err != nil {
		hostPort = port
	}
	password := kv["password"] != "" && kv["password"] != "0" && kv["password"] != "false"

	var players []server.Player
	for _, p := range probe.PlayersFromIndexedKeys(kv, "player") {
		players = append(players, server.Player{Name: probe.StripColorCodes(p["player"]), Raw: rawStrings(p)})
	}

	raw := make(map[string]any, len(kv))
	for k, v := range kv {
		raw[k] = v
	}

	return server.Probe{
		Name:       probe.StripColorCodes(kv["hostname"]),
		Map:        probe.StripColorCodes(kv["mapname"]),
		Password:   password,
		MaxPlayers: maxPlayers,
		NumPlayers: len(players),
		Players:    players,
		Connect:    probe.AddrPort(address, hostPort),
		PingMS:     pingMS,
		Raw:        raw,
	}, nil
}

func rawStrings(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

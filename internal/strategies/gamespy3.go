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
	registry.Register(&gamespy3Strategy{})
}

// gamespy3Strategy is the UDP protocol behind the "GameSpy3" engines
// (original_source/discordgsm/protocols/gamespy3.py): same backslash-KV
// wire shape as gamespy1/2 but with a numeric rather than string password
// flag and its own status verb.
type gamespy3Strategy struct{}

func (gamespy3Strategy) Name() string                                  { return "gamespy3" }
func (gamespy3Strategy) PreQueryRequired() bool                        { return false }
func (gamespy3Strategy) PreQuery(context.Context, *probe.Options) error { return nil }

func (gamespy3Strategy) Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error) {
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
	passwordFlag, _ := strconv.Atoi(kv["password"])

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
		Password:   passwordFlag != 0,
		MaxPlayers: maxPlayers,
		NumPlayers: len(players),
		Players:    players,
		Connect:    probe.AddrPort(address, hostPort),
		PingMS:     pingMS,
		Raw:        raw,
	}, nil
}

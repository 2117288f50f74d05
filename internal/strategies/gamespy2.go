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
	registry.Register(&gamespy2Strategy{})
}

// gamespy2Strategy is GameSpy1's successor protocol: same backslash wire
// shape, same query string, used by a distinct generation of engines
// (original_source/discordgsm/protocols/gamespy2.py kept it as a separate
// strategy purely so the catalog can pin a game to the right query rules).
type gamespy2Strategy struct{}

func (gamespy2Strategy) Name() string                                  { return "gamespy2" }
func (gamespy2Strategy) PreQueryRequired() bool                        { return false }
func (gamespy2Strategy) PreQuery(context.Context, *probe.Options) error { return nil }

func (gamespy2Strategy) Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error) {
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

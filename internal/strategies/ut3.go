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
	registry.Register(&ut3Strategy{})
}

// ut3Strategy speaks GameSpy4, the backslash key/value query protocol used
// by Unreal Tournament 3 (original_source/.../ut3.py): a single "\status\"
// exchange whose info section carries UT3-specific keys like p1073741825
// for the map name.
type ut3Strategy struct{}

func (ut3Strategy) Name() string                                  { return "ut3" }
func (ut3Strategy) PreQueryRequired() bool                        { return false }
func (ut3Strategy) PreQuery(context.Context, *probe.Options) error { return nil }

func (ut3Strategy) Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error) {
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
	passwordFlag, _ := strconv.Atoi(kv["s7"])
	hostport := kv["hostport"]
	if hostport == "" {
		hostport = strconv.Itoa(port)
	}

	var players []server.Player
	for _, p := range probe.PlayersFromIndexedKeys(kv, "player") {
		players = append(players, server.Player{Name: probe.StripColorCodes(p["player"]), Raw: p})
	}

	return server.Probe{
		Name:       probe.StripColorCodes(kv["hostname"]),
		Map:        kv["p1073741825"],
		Password:   passwordFlag != 0,
		MaxPlayers: maxPlayers,
		NumPlayers: len(players),
		Players:    players,
		Connect:    address + ":" + hostport,
		PingMS:     pingMS,
		Raw:        rawStrings(kv),
	}, nil
}

package strategies

import (
	"context"
	"time"

	"github.com/DiscordGSM/GameServerMonitor/internal/errs"
	"github.com/DiscordGSM/GameServerMonitor/internal/probe"
	"github.com/DiscordGSM/GameServerMonitor/internal/registry"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
)

var unreal2DetailsRequest = []byte{0x79, 0x00, 0x00, 0x00, 0x00}
var unreal2PlayersRequest = []byte{0x79, 0x00, 0x00, 0x00, 0x02}

func init() {
	registry.Register(&unreal2Strategy{})
}

// unreal2Strategy speaks the Unreal Engine 2 "UT2003/UT2004" UDP query
// protocol (original_source/.../unreal2.py): a details datagram and,
// when NumPlayers > 0, a separate players datagram, both framed as a
// byte tag, a running byte id and Pascal-length-prefixed strings.
type unreal2Strategy struct{}

func (unreal2Strategy) Name() string                                  { return "unreal2" }
func (unreal2Strategy) PreQueryRequired() bool                        { return false }
func (unreal2Strategy) PreQuery(context.Context, *probe.Options) error { return nil }

func (unreal2Strategy) Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error) {
	conn, err := probe.DialUDP(ctx, probe.AddrPort(address, port))
	if err != nil {
		return server.Probe{}, err
	}
	defer conn.Close()

	start := time.Now()
	resp, err := probe.RoundTrip(ctx, conn, unreal2DetailsRequest, opts.Timeout)
	if err != nil {
		return server.Probe{}, err
	}

	r := probe.NewReader(resp)
	if err := r.Skip(5); err != nil { // tag + server id (uint32)
		return server.Probe{}, errs.New(errs.Protocol, "unreal2: truncated header", err)
	}
	serverName, err := r.PascalString()
	if err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "unreal2: server name", err)
	}
	mapName, err := r.PascalString()
	if err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "unreal2: map name", err)
	}
	if _, err := r.PascalString(); err != nil { // game type
		return server.Probe{}, errs.New(errs.Protocol, "unreal2: game type", err)
	}
	numPlayers, err := r.Uint32LE()
	if err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "unreal2: num players", err)
	}
	maxPlayers, err := r.Uint32LE()
	if err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "unreal2: max players", err)
	}

	var players []server.Player
	if numPlayers > 0 {
		if playerResp, err := probe.RoundTrip(ctx, conn, unreal2PlayersRequest, opts.Timeout); err == nil {
			players = parseUnreal2Players(playerResp)
		} else {
			opts.Logger.Debugf("unreal2: players query failed for %s: %v", probe.AddrPort(address, port), err)
		}
	}
	pingMS := int(time.Since(start) / time.Millisecond)

	return server.Probe{
		Name:       probe.StripColorCodes(serverName),
		Map:        probe.StripColorCodes(mapName),
		NumPlayers: int(numPlayers),
		MaxPlayers: int(maxPlayers),
		Players:    players,
		Connect:    probe.AddrPort(address, port),
		PingMS:     pingMS,
	}, nil
}

func parseUnreal2Players(resp []byte) []server.Player {
	r := probe.NewReader(resp)
	if err := r.Skip(5); err != nil {
		return nil
	}
	var players []server.Player
	for r.Remaining() > 0 {
		if _, err := r.Uint32LE(); err != nil { // player id
			break
		}
		name, err := r.PascalString()
		if err != nil {
			break
		}
		if _, err := r.Uint32LE(); err != nil { // ping
			break
		}
		if _, err := r.Uint32LE(); err != nil { // score
			break
		}
		players = append(players, server.Player{Name: probe.StripColorCodes(name)})
	}
	return players
}

package strategies

import (
	"context"
	"time"

	"github.com/DiscordGSM/GameServerMonitor/internal/errs"
	"github.com/DiscordGSM/GameServerMonitor/internal/probe"
	"github.com/DiscordGSM/GameServerMonitor/internal/registry"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
)

func init() {
	registry.Register(&vcmpStrategy{})
}

// vcmpStrategy speaks Vice City Multiplayer's query protocol, a close
// sibling of SA-MP's (original_source/.../vcmp.py) reusing the same
// "SAMP"-magic request framing and a near-identical info reply layout.
type vcmpStrategy struct{}

func (vcmpStrategy) Name() string                                  { return "vcmp" }
func (vcmpStrategy) PreQueryRequired() bool                        { return false }
func (vcmpStrategy) PreQuery(context.Context, *probe.Options) error { return nil }

func (vcmpStrategy) Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error) {
	conn, err := probe.DialUDP(ctx, probe.AddrPort(address, port))
	if err != nil {
		return server.Probe{}, err
	}
	defer conn.Close()

	start := time.Now()
	resp, err := probe.RoundTrip(ctx, conn, sampRequest(address, port, 'i'), opts.Timeout)
	if err != nil {
		return server.Probe{}, err
	}

	r := probe.NewReader(resp)
	if err := r.Skip(11); err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "vcmp: truncated header", err)
	}
	password, err := r.Byte()
	if err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "vcmp: password flag", err)
	}
	numPlayers, err := r.Uint16LE()
	if err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "vcmp: num players", err)
	}
	maxPlayers, err := r.Uint16LE()
	if err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "vcmp: max players", err)
	}
	hostname, err := readSampString(r)
	if err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "vcmp: hostname", err)
	}
	if _, err := readSampString(r); err != nil { // gamemode
		return server.Probe{}, errs.New(errs.Protocol, "vcmp: gamemode", err)
	}
	language, err := readSampString(r)
	if err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "vcmp: language", err)
	}

	var players []server.Player
	if playerResp, err := probe.RoundTrip(ctx, conn, sampRequest(address, port, 'c'), opts.Timeout); err == nil {
		players = parseSampPlayers(playerResp)
	} else {
		opts.Logger.Debugf("vcmp: player list unavailable for %s: %v", probe.AddrPort(address, port), err)
	}
	pingMS := int(time.Since(start) / time.Millisecond)

	return server.Probe{
		Name:       probe.StripColorCodes(hostname),
		Map:        probe.StripColorCodes(language),
		Password:   password == 1,
		NumPlayers: int(numPlayers),
		MaxPlayers: int(maxPlayers),
		Players:    players,
		Connect:    probe.AddrPort(address, port),
		PingMS:     pingMS,
	}, nil
}

package strategies

import (
	"context"
	"net"
	"time"

	"github.com/DiscordGSM/GameServerMonitor/internal/errs"
	"github.com/DiscordGSM/GameServerMonitor/internal/probe"
	"github.com/DiscordGSM/GameServerMonitor/internal/registry"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
)

func init() {
	registry.Register(&sampStrategy{})
}

// sampStrategy speaks San Andreas Multiplayer's "SAMP" UDP query protocol
// (original_source/.../samp.py): a fixed "SAMP" magic plus the queried
// address, then a single opcode byte selecting info/players/rules.
type sampStrategy struct{}

func (sampStrategy) Name() string                                  { return "samp" }
func (sampStrategy) PreQueryRequired() bool                        { return false }
func (sampStrategy) PreQuery(context.Context, *probe.Options) error { return nil }

func (sampStrategy) Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error) {
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
	if err := r.Skip(11); err != nil { // "SAMP" + addr(4) + port(2) + opcode(1) -> header already echoed
		return server.Probe{}, errs.New(errs.Protocol, "samp: truncated header", err)
	}
	password, err := r.Byte()
	if err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "samp: password flag", err)
	}
	numPlayers, err := r.Uint16LE()
	if err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "samp: num players", err)
	}
	maxPlayers, err := r.Uint16LE()
	if err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "samp: max players", err)
	}
	hostname, err := readSampString(r)
	if err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "samp: hostname", err)
	}
	if _, err := readSampString(r); err != nil { // gamemode
		return server.Probe{}, errs.New(errs.Protocol, "samp: gamemode", err)
	}
	language, err := readSampString(r)
	if err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "samp: language", err)
	}

	var players []server.Player
	if playerResp, err := probe.RoundTrip(ctx, conn, sampRequest(address, port, 'c'), opts.Timeout); err == nil {
		players = parseSampPlayers(playerResp)
	} else {
		opts.Logger.Debugf("samp: player list unavailable for %s: %v", probe.AddrPort(address, port), err)
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

func sampRequest(address string, port int, opcode byte) []byte {
	req := []byte{'S', 'A', 'M', 'P'}
	ip := net.ParseIP(address)
	if ip == nil {
		ip = net.IPv4zero
	}
	ip4 := ip.To4()
	if ip4 == nil {
		ip4 = net.IPv4zero.To4()
	}
	req = append(req, ip4...)
	req = append(req, byte(port&0xff), byte((port>>8)&0xff))
	req = append(req, opcode)
	return req
}

// readSampString reads a uint32-length-prefixed string, SA-MP's framing
// for the hostname/gamemode/language fields.
func readSampString(r *probe.Reader) (string, error) {
	n, err := r.Uint32LE()
	if err != nil {
		return "", err
	}
	raw, err := r.Bytes(int(n))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func parseSampPlayers(resp []byte) []server.Player {
	r := probe.NewReader(resp)
	if err := r.Skip(10); err != nil {
		return nil
	}
	count, err := r.Uint16LE()
	if err != nil {
		return nil
	}
	var players []server.Player
	for i := uint16(0); i < count; i++ {
		nameLen, err := r.Byte()
		if err != nil {
			break
		}
		nameBytes, err := r.Bytes(int(nameLen))
		if err != nil {
			break
		}
		if err := r.Skip(8); err != nil { // score(4) + ping(4)
			break
		}
		players = append(players, server.Player{Name: probe.StripColorCodes(string(nameBytes))})
	}
	return players
}

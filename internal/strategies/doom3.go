package strategies

import (
	"context"
	"strconv"
	"time"

	"github.com/DiscordGSM/GameServerMonitor/internal/errs"
	"github.com/DiscordGSM/GameServerMonitor/internal/probe"
	"github.com/DiscordGSM/GameServerMonitor/internal/registry"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
)

var doom3InfoRequest = append([]byte{0xff, 0xff}, []byte("getInfo\x00discordgsm\x00")...)

func init() {
	registry.Register(&doom3Strategy{})
}

// doom3Strategy speaks id Tech 4's "getInfo"/"infoResponse" UDP query
// protocol (original_source/.../doom3.py): a challenge string is echoed
// back ahead of a flat run of CString key/value pairs, terminated by an
// empty key, followed by a player table.
type doom3Strategy struct{}

func (doom3Strategy) Name() string                                  { return "doom3" }
func (doom3Strategy) PreQueryRequired() bool                        { return false }
func (doom3Strategy) PreQuery(context.Context, *probe.Options) error { return nil }

func (doom3Strategy) Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error) {
	conn, err := probe.DialUDP(ctx, probe.AddrPort(address, port))
	if err != nil {
		return server.Probe{}, err
	}
	defer conn.Close()

	start := time.Now()
	resp, err := probe.RoundTrip(ctx, conn, doom3InfoRequest, opts.Timeout)
	if err != nil {
		return server.Probe{}, err
	}
	pingMS := int(time.Since(start) / time.Millisecond)

	r := probe.NewReader(resp)
	if err := r.Skip(2); err != nil { // 0xFF 0xFF
		return server.Probe{}, errs.New(errs.Protocol, "doom3: truncated header", err)
	}
	if _, err := r.CString(); err != nil { // "infoResponse"
		return server.Probe{}, errs.New(errs.Protocol, "doom3: reply tag", err)
	}
	if _, err := r.CString(); err != nil { // echoed challenge
		return server.Probe{}, errs.New(errs.Protocol, "doom3: challenge echo", err)
	}
	if err := r.Skip(4); err != nil { // protocol version
		return server.Probe{}, errs.New(errs.Protocol, "doom3: protocol version", err)
	}

	info := map[string]string{}
	for {
		key, err := r.CString()
		if err != nil || key == "" {
			break
		}
		value, err := r.CString()
		if err != nil {
			break
		}
		info[key] = value
	}

	var players []server.Player
	for {
		if r.Remaining() < 1 {
			break
		}
		if _, err := r.Byte(); err != nil { // player number
			break
		}
		if err := r.Skip(2); err != nil { // score
			break
		}
		if err := r.Skip(2); err != nil { // ping
			break
		}
		name, err := r.CString()
		if err != nil {
			break
		}
		players = append(players, server.Player{Name: probe.StripColorCodes(name)})
	}

	maxPlayers, _ := strconv.Atoi(firstNonEmpty(info["si_maxplayers"], info["si_maxPlayers"]))
	passwordFlag, _ := strconv.Atoi(firstNonEmpty(info["si_usepass"], info["si_needPass"], "0"))

	raw := make(map[string]any, len(info))
	for k, v := range info {
		raw[k] = v
	}

	return server.Probe{
		Name:       probe.StripColorCodes(info["si_name"]),
		Map:        info["si_map"],
		Password:   passwordFlag != 0,
		MaxPlayers: maxPlayers,
		NumPlayers: len(players),
		Players:    players,
		Connect:    probe.AddrPort(address, port),
		PingMS:     pingMS,
		Raw:        raw,
	}, nil
}

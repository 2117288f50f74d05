package strategies

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/DiscordGSM/GameServerMonitor/internal/errs"
	"github.com/DiscordGSM/GameServerMonitor/internal/probe"
	"github.com/DiscordGSM/GameServerMonitor/internal/registry"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
)

// raknetOfflineMagic is RakNet's fixed 16-byte "offline message" marker,
// present in every unconnected ping/pong (original_source/.../raknet.py
// delegates to opengsq.Raknet, which carries the same constant).
var raknetOfflineMagic = []byte{0x00, 0xff, 0xff, 0x00, 0xfe, 0xfe, 0xfe, 0xfe, 0xfd, 0xfd, 0xfd, 0xfd, 0x12, 0x34, 0x56, 0x78}

const (
	raknetIDUnconnectedPing = 0x01
	raknetIDUnconnectedPong = 0x1c
	raknetClientGUID        = 0x0102030405060708
)

func init() {
	registry.Register(&raknetStrategy{})
}

// raknetStrategy queries Minecraft: Bedrock Edition's RakNet transport with
// an unconnected ping, parsing the semicolon-delimited MOTD string the
// server returns in its unconnected pong.
type raknetStrategy struct{}

func (raknetStrategy) Name() string                                  { return "raknet" }
func (raknetStrategy) PreQueryRequired() bool                        { return false }
func (raknetStrategy) PreQuery(context.Context, *probe.Options) error { return nil }

func (raknetStrategy) Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error) {
	conn, err := probe.DialUDP(ctx, probe.AddrPort(address, port))
	if err != nil {
		return server.Probe{}, err
	}
	defer conn.Close()

	req := make([]byte, 0, 33)
	req = append(req, raknetIDUnconnectedPing)
	req = append(req, 0, 0, 0, 0, 0, 0, 0, 0) // timestamp, unused by servers
	req = append(req, raknetOfflineMagic...)
	req = append(req, 8, 7, 6, 5, 4, 3, 2, 1) // client GUID

	start := time.Now()
	resp, err := probe.RoundTrip(ctx, conn, req, opts.Timeout)
	if err != nil {
		return server.Probe{}, err
	}
	pingMS := int(time.Since(start) / time.Millisecond)

	r := probe.NewReader(resp)
	id, err := r.Byte()
	if err != nil || id != raknetIDUnconnectedPong {
		return server.Probe{}, errs.New(errs.Protocol, "raknet: unexpected reply id", err)
	}
	if err := r.Skip(8 + 8 + 16); err != nil { // timestamp + server GUID + magic
		return server.Probe{}, errs.New(errs.Protocol, "raknet: truncated pong header", err)
	}
	strLen, err := r.Uint16BE()
	if err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "raknet: motd length", err)
	}
	raw, err := r.Bytes(int(strLen))
	if err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "raknet: motd bytes", err)
	}

	fields := strings.Split(string(raw), ";")
	get := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}

	numPlayers, _ := strconv.Atoi(get(4))
	maxPlayers, _ := strconv.Atoi(get(5))
	connectPort := get(10)
	if connectPort == "" {
		connectPort = strconv.Itoa(port)
	}

	status := make(map[string]any, len(fields))
	labels := []string{"edition", "motd_line_1", "protocol", "version", "num_players", "max_players", "server_id", "motd_line_2", "gamemode", "gamemode_numeric", "port_ipv4", "port_ipv6"}
	for i, label := range labels {
		status[label] = get(i)
	}

	return server.Probe{
		Name:       probe.StripColorCodes(get(1)),
		Map:        probe.StripColorCodes(get(7)),
		NumPlayers: numPlayers,
		MaxPlayers: maxPlayers,
		Connect:    address + ":" + connectPort,
		PingMS:     pingMS,
		Raw:        status,
	}, nil
}

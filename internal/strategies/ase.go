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

func init() {
	registry.Register(&aseStrategy{})
}

// aseStrategy speaks "All-Seeing Eye" (original_source/.../ase.py), a
// single-datagram NUL-string-delimited format used by a family of older
// engines (notably ARMA): a fixed header block, then a rules table, then a
// player table whose column names are sent once up front.
type aseStrategy struct{}

func (aseStrategy) Name() string                                  { return "ase" }
func (aseStrategy) PreQueryRequired() bool                        { return false }
func (aseStrategy) PreQuery(context.Context, *probe.Options) error { return nil }

func (aseStrategy) Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error) {
	conn, err := probe.DialUDP(ctx, probe.AddrPort(address, port))
	if err != nil {
		return server.Probe{}, err
	}
	defer conn.Close()

	start := time.Now()
	resp, err := probe.RoundTrip(ctx, conn, []byte{'s'}, opts.Timeout)
	if err != nil {
		return server.Probe{}, err
	}
	pingMS := int(time.Since(start) / time.Millisecond)

	if len(resp) < 4 {
		return server.Probe{}, errs.New(errs.Protocol, "ase: short response", nil)
	}
	r := probe.NewReader(resp[4:]) // skip "EYE1"

	fields := make([]string, 0, 9)
	for i := 0; i < 9; i++ {
		s, err := r.CString()
		if err != nil {
			return server.Probe{}, errs.New(errs.Protocol, "ase: header field", err)
		}
		fields = append(fields, s)
	}
	hostname, gametype, mapName, hostport := fields[3], fields[4], fields[5], fields[2]
	password := fields[7] != "" && fields[7] != "0"
	maxPlayers, _ := strconv.Atoi(fields[8])

	numRules, err := r.CString()
	if err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "ase: rule count", err)
	}
	n, _ := strconv.Atoi(numRules)
	raw := map[string]any{"gametype": gametype}
	for i := 0; i < n; i++ {
		key, err := r.CString()
		if err != nil {
			break
		}
		value, err := r.CString()
		if err != nil {
			break
		}
		raw[key] = value
	}

	var players []server.Player
	if colCountStr, err := r.CString(); err == nil {
		colCount, _ := strconv.Atoi(colCountStr)
		columns := make([]string, 0, colCount)
		for i := 0; i < colCount; i++ {
			c, err := r.CString()
			if err != nil {
				break
			}
			columns = append(columns, c)
		}
		for {
			row := make(map[string]any, len(columns))
			ok := true
			for _, col := range columns {
				v, err := r.CString()
				if err != nil {
					ok = false
					break
				}
				row[col] = v
			}
			if !ok || len(columns) == 0 {
				break
			}
			name, _ := row["name"].(string)
			players = append(players, server.Player{Name: probe.StripColorCodes(name), Raw: row})
		}
	}

	hostPort, err := strconv.Atoi(hostport)
	if err != nil {
		hostPort = port
	}

	return server.Probe{
		Name:       probe.StripColorCodes(hostname),
		Map:        probe.StripColorCodes(mapName),
		Password:   password,
		MaxPlayers: maxPlayers,
		NumPlayers: len(players),
		Players:    players,
		Connect:    probe.AddrPort(address, hostPort),
		PingMS:     pingMS,
		Raw:        raw,
	}, nil
}

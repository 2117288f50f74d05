package strategies

import (
	"bufio"
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/DiscordGSM/GameServerMonitor/internal/errs"
	"github.com/DiscordGSM/GameServerMonitor/internal/probe"
	"github.com/DiscordGSM/GameServerMonitor/internal/registry"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
)

func init() {
	registry.Register(&teamspeak3Strategy{})
}

// teamspeak3Strategy speaks the TeamSpeak 3 ServerQuery text protocol
// (original_source/.../teamspeak3.py): a line-oriented TCP console that
// greets with a banner, then answers one command per line with
// space-separated key=value fields and a trailing "error id=..." status
// line. extra["query_port"] carries the query console's port, distinct
// from the voice port passed as the probed port.
type teamspeak3Strategy struct{}

func (teamspeak3Strategy) Name() string                                  { return "teamspeak3" }
func (teamspeak3Strategy) PreQueryRequired() bool                        { return false }
func (teamspeak3Strategy) PreQuery(context.Context, *probe.Options) error { return nil }

func (teamspeak3Strategy) Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error) {
	queryPort := port
	if raw, ok := extra["query_port"]; ok {
		if n, err := strconv.Atoi(raw); err == nil {
			queryPort = n
		}
	}

	conn, err := probe.DialTCP(ctx, probe.AddrPort(address, queryPort), opts.Timeout)
	if err != nil {
		return server.Probe{}, err
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(opts.Timeout)); err != nil {
		return server.Probe{}, errs.New(errs.Transport, "teamspeak3: set deadline", err)
	}

	br := bufio.NewReader(conn)
	if _, err := br.ReadString('\n'); err != nil { // "TS3" banner line
		return server.Probe{}, errs.New(errs.Protocol, "teamspeak3: read banner", err)
	}
	if _, err := br.ReadString('\n'); err != nil { // welcome text line
		return server.Probe{}, errs.New(errs.Protocol, "teamspeak3: read welcome", err)
	}

	start := time.Now()
	infoLines, err := teamspeak3Command(conn, br, "serverinfo")
	if err != nil {
		return server.Probe{}, err
	}
	clientLines, err := teamspeak3Command(conn, br, "clientlist")
	if err != nil {
		return server.Probe{}, err
	}
	pingMS := int(time.Since(start) / time.Millisecond)

	info := teamspeak3ParseRecords(infoLines)
	var players []server.Player
	for _, client := range teamspeak3ParseRecords(clientLines) {
		if client["client_type"] != "0" {
			continue
		}
		players = append(players, server.Player{Name: teamspeak3Unescape(client["client_nickname"])})
	}

	var serverInfo map[string]string
	if len(info) > 0 {
		serverInfo = info[0]
	}
	maxClients, _ := strconv.Atoi(serverInfo["virtualserver_maxclients"])

	return server.Probe{
		Name:       teamspeak3Unescape(serverInfo["virtualserver_name"]),
		Password:   serverInfo["virtualserver_flag_password"] == "1",
		NumPlayers: len(players),
		MaxPlayers: maxClients,
		Players:    players,
		Connect:    probe.AddrPort(address, port),
		PingMS:     pingMS,
		Raw:        map[string]any{"info": serverInfo},
	}, nil
}

// teamspeak3Command sends a ServerQuery command and collects every line up
// to and including the "error id=..." status trailer.
func teamspeak3Command(conn interface{ Write([]byte) (int, error) }, br *bufio.Reader, command string) ([]string, error) {
	if _, err := conn.Write([]byte(command + "\n\r")); err != nil {
		return nil, errs.New(errs.Transport, "teamspeak3: write command", err)
	}
	var lines []string
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return lines, errs.New(errs.Protocol, "teamspeak3: read response", err)
		}
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "error id=") {
			if !strings.Contains(line, "id=0") {
				return lines, errs.New(errs.Protocol, "teamspeak3: command error: "+line, nil)
			}
			return lines, nil
		}
		if line != "" {
			lines = append(lines, line)
		}
	}
}

func teamspeak3ParseRecords(lines []string) []map[string]string {
	var records []map[string]string
	for _, line := range lines {
		for _, rec := range strings.Split(line, "|") {
			fields := map[string]string{}
			for _, kv := range strings.Fields(rec) {
				parts := strings.SplitN(kv, "=", 2)
				if len(parts) == 2 {
					fields[parts[0]] = parts[1]
				} else {
					fields[parts[0]] = ""
				}
			}
			if len(fields) > 0 {
				records = append(records, fields)
			}
		}
	}
	return records
}

func teamspeak3Unescape(s string) string {
	replacer := strings.NewReplacer(`\s`, " ", `\p`, "|", `\/`, "/", `\\`, `\`)
	return replacer.Replace(s)
}

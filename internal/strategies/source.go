// Package strategies holds the per-protocol registry.Strategy
// implementations enumerated in spec.md §6. Each file registers itself in
// an init(), following the teacher's convention of probe packages claiming
// their name at import time rather than the scheduler switching on a
// protocol string.
package strategies

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/DiscordGSM/GameServerMonitor/internal/errs"
	"github.com/DiscordGSM/GameServerMonitor/internal/probe"
	"github.com/DiscordGSM/GameServerMonitor/internal/registry"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
)

const (
	a2sHeaderInfo    = 'T'
	a2sHeaderPlayer  = 'U'
	a2sHeaderRules   = 'V'
	a2sReplyChallenge = 'A'
	a2sReplyInfoNew  = 'I'
	a2sReplyInfoGold = 'm'
	a2sReplyPlayer   = 'D'
	a2sReplyRules    = 'E'
)

var a2sInfoPayload = append([]byte{0xFF, 0xFF, 0xFF, 0xFF, a2sHeaderInfo}, []byte("Source Engine Query\x00")...)

// sourceKeywordOverrides covers the two appid-specific keyword corrections
// recovered from original_source/discordgsm/protocols/source.py: Mordhau
// (629760) encodes the real human count in a "B:" keyword tag, and Rust
// (252490) encodes the real max-player count in an "mp" tag.
var sourceKeywordOverrides = []probe.KeywordOverride{
	{
		AppID:  629760,
		Prefix: "B:",
		Apply: func(rem string, numPlayers, maxPlayers int) (int, int, bool) {
			n, err := strconv.Atoi(rem)
			if err != nil {
				return numPlayers, maxPlayers, false
			}
			return n, maxPlayers, true
		},
	},
	{
		AppID:  252490,
		Prefix: "mp",
		Apply: func(rem string, numPlayers, maxPlayers int) (int, int, bool) {
			n, err := strconv.Atoi(rem)
			if err != nil {
				return numPlayers, maxPlayers, false
			}
			return numPlayers, n, true
		},
	},
}

const arkSurvivalEvolvedAppID = 346110

func init() {
	registry.Register(&sourceStrategy{})
}

// sourceStrategy speaks the Valve Source/GoldSource A2S_INFO, A2S_PLAYER
// and A2S_RULES queries (spec.md §4.B "source"/"won" families; this file
// covers "source", won.go covers the legacy GoldSource-only reply shape
// some very old servers still return to a "source" query).
type sourceStrategy struct{}

func (sourceStrategy) Name() string             { return "source" }
func (sourceStrategy) PreQueryRequired() bool   { return false }
func (sourceStrategy) PreQuery(context.Context, *probe.Options) error { return nil }

func (s sourceStrategy) Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error) {
	conn, err := probe.DialUDP(ctx, probe.AddrPort(address, port))
	if err != nil {
		return server.Probe{}, err
	}
	defer conn.Close()

	start := time.Now()

	info, err := s.queryInfo(ctx, conn, opts.Timeout)
	if err != nil {
		return server.Probe{}, err
	}

	// Players are best-effort: some CS:GO listings never answer A2S_PLAYER
	// unless host_players_show is configured, and Conan Exiles never
	// answers it at all, per the teacher-equivalent original behavior.
	rawPlayers, playerErr := s.queryPlayers(ctx, conn, opts.Timeout)
	if playerErr != nil {
		opts.Logger.Debugf("a2s_player unavailable for %s: %v", probe.AddrPort(address, port), playerErr)
	}

	if info.connect == "" {
		info.connect = probe.AddrPort(address, port)
	}

	name := info.name
	if extra["type"] == "front" {
		if rules, rulesErr := s.queryRules(ctx, conn, opts.Timeout); rulesErr == nil {
			if override, ok := rules["ServerName_s"]; ok && override != "" {
				name = override
			}
		} else {
			opts.Logger.Debugf("a2s_rules unavailable for front override on %s: %v", probe.AddrPort(address, port), rulesErr)
		}
	}

	pingMS := int(time.Since(start) / time.Millisecond)

	entries := make([]probe.PlayerEntry, 0, len(rawPlayers))
	for _, p := range rawPlayers {
		entries = append(entries, probe.PlayerEntry{
			Name:     p.name,
			Duration: p.duration,
			Raw:      map[string]any{"score": p.score, "time": p.duration},
		})
	}
	players, bots := probe.SplitPlayersAndBots(entries, info.bots)

	numPlayers, maxPlayers := probe.ApplyKeywordOverrides(sourceKeywordOverrides, info.gameID, info.keywords, info.players, info.maxPlayers)
	if info.gameID == arkSurvivalEvolvedAppID {
		numPlayers = len(players)
	}

	raw := map[string]any{
		"protocol":    info.protocolVersion,
		"folder":      info.folder,
		"game":        info.game,
		"server_type": string(info.serverType),
		"environment": string(info.environment),
		"visibility":  info.visibility,
		"vac":         info.vac,
		"version":     info.version,
	}
	if info.keywords != "" {
		raw["tags"] = strings.Split(info.keywords, ",")
	}

	return server.Probe{
		Name:       probe.StripColorCodes(name),
		Map:        probe.StripColorCodes(info.mapName),
		Password:   info.private,
		NumPlayers: numPlayers,
		NumBots:    info.bots,
		MaxPlayers: maxPlayers,
		Players:    players,
		Bots:       bots,
		Connect:    info.connect,
		PingMS:     pingMS,
		Raw:        raw,
	}, nil
}

type sourceInfo struct {
	protocolVersion byte
	name            string
	mapName         string
	folder          string
	game            string
	gameID          int
	players         int
	maxPlayers      int
	bots            int
	serverType      byte
	environment     byte
	private         bool
	vac             bool
	version         string
	keywords        string
	connect         string
}

func (sourceStrategy) queryInfo(ctx context.Context, conn *net.UDPConn, timeout time.Duration) (sourceInfo, error) {
	resp, err := probe.RoundTrip(ctx, conn, a2sInfoPayload, timeout)
	if err != nil {
		return sourceInfo{}, err
	}

	r := probe.NewReader(resp)
	if err := r.Skip(4); err != nil {
		return sourceInfo{}, errs.New(errs.Protocol, "a2s_info: truncated header", err)
	}
	typ, err := r.Byte()
	if err != nil {
		return sourceInfo{}, errs.New(errs.Protocol, "a2s_info: missing reply type", err)
	}

	if typ == a2sReplyChallenge {
		challenge, err := r.Bytes(4)
		if err != nil {
			return sourceInfo{}, errs.New(errs.Protocol, "a2s_info: truncated challenge", err)
		}
		retry := append(append([]byte{}, a2sInfoPayload...), challenge...)
		resp, err = probe.RoundTrip(ctx, conn, retry, timeout)
		if err != nil {
			return sourceInfo{}, err
		}
		r = probe.NewReader(resp)
		if err := r.Skip(4); err != nil {
			return sourceInfo{}, errs.New(errs.Protocol, "a2s_info: truncated header after challenge", err)
		}
		typ, err = r.Byte()
		if err != nil {
			return sourceInfo{}, errs.New(errs.Protocol, "a2s_info: missing reply type after challenge", err)
		}
	}

	switch typ {
	case a2sReplyInfoNew:
		return parseSourceInfoNew(r)
	case a2sReplyInfoGold:
		return parseSourceInfoGold(r)
	default:
		return sourceInfo{}, errs.New(errs.Protocol, "a2s_info: unexpected reply type", nil)
	}
}

func parseSourceInfoNew(r *probe.Reader) (sourceInfo, error) {
	var info sourceInfo
	var err error
	if info.protocolVersion, err = r.Byte(); err != nil {
		return sourceInfo{}, errs.New(errs.Protocol, "a2s_info: protocol version", err)
	}
	if info.name, err = r.CString(); err != nil {
		return sourceInfo{}, errs.New(errs.Protocol, "a2s_info: name", err)
	}
	if info.mapName, err = r.CString(); err != nil {
		return sourceInfo{}, errs.New(errs.Protocol, "a2s_info: map", err)
	}
	if info.folder, err = r.CString(); err != nil {
		return sourceInfo{}, errs.New(errs.Protocol, "a2s_info: folder", err)
	}
	if info.game, err = r.CString(); err != nil {
		return sourceInfo{}, errs.New(errs.Protocol, "a2s_info: game", err)
	}
	appID, err := r.Uint16LE()
	if err != nil {
		return sourceInfo{}, errs.New(errs.Protocol, "a2s_info: appid", err)
	}
	info.gameID = int(appID)

	players, err := r.Byte()
	if err != nil {
		return sourceInfo{}, errs.New(errs.Protocol, "a2s_info: players", err)
	}
	info.players = int(players)
	maxPlayers, err := r.Byte()
	if err != nil {
		return sourceInfo{}, errs.New(errs.Protocol, "a2s_info: max players", err)
	}
	info.maxPlayers = int(maxPlayers)
	bots, err := r.Byte()
	if err != nil {
		return sourceInfo{}, errs.New(errs.Protocol, "a2s_info: bots", err)
	}
	info.bots = int(bots)

	if info.serverType, err = r.Byte(); err != nil {
		return sourceInfo{}, errs.New(errs.Protocol, "a2s_info: server type", err)
	}
	if info.environment, err = r.Byte(); err != nil {
		return sourceInfo{}, errs.New(errs.Protocol, "a2s_info: environment", err)
	}
	visibility, err := r.Byte()
	if err != nil {
		return sourceInfo{}, errs.New(errs.Protocol, "a2s_info: visibility", err)
	}
	info.private = visibility == 1
	vac, err := r.Byte()
	if err != nil {
		return sourceInfo{}, errs.New(errs.Protocol, "a2s_info: vac", err)
	}
	info.vac = vac == 1

	if info.game == "The Ship" {
		if err := r.Skip(3); err != nil {
			return sourceInfo{}, errs.New(errs.Protocol, "a2s_info: the ship fields", err)
		}
	}

	if info.version, err = r.CString(); err != nil {
		return sourceInfo{}, errs.New(errs.Protocol, "a2s_info: version", err)
	}

	if r.Remaining() > 0 {
		edf, err := r.Byte()
		if err != nil {
			return sourceInfo{}, errs.New(errs.Protocol, "a2s_info: edf", err)
		}
		if edf&0x80 != 0 {
			port, err := r.Uint16LE()
			if err != nil {
				return sourceInfo{}, errs.New(errs.Protocol, "a2s_info: edf port", err)
			}
			_ = port
		}
		if edf&0x10 != 0 {
			if err := r.Skip(8); err != nil {
				return sourceInfo{}, errs.New(errs.Protocol, "a2s_info: edf steamid", err)
			}
		}
		if edf&0x40 != 0 {
			if _, err := r.Uint16LE(); err != nil {
				return sourceInfo{}, errs.New(errs.Protocol, "a2s_info: edf spectator port", err)
			}
			if _, err := r.CString(); err != nil {
				return sourceInfo{}, errs.New(errs.Protocol, "a2s_info: edf spectator name", err)
			}
		}
		if edf&0x20 != 0 {
			if info.keywords, err = r.CString(); err != nil {
				return sourceInfo{}, errs.New(errs.Protocol, "a2s_info: edf keywords", err)
			}
		}
		if edf&0x01 != 0 {
			gameID, err := r.Uint32LE()
			if err != nil {
				return sourceInfo{}, errs.New(errs.Protocol, "a2s_info: edf gameid", err)
			}
			info.gameID = int(gameID)
		}
	}

	return info, nil
}

func parseSourceInfoGold(r *probe.Reader) (sourceInfo, error) {
	var info sourceInfo
	var err error
	if info.connect, err = r.CString(); err != nil {
		return sourceInfo{}, errs.New(errs.Protocol, "a2s_info(gold): address", err)
	}
	if info.name, err = r.CString(); err != nil {
		return sourceInfo{}, errs.New(errs.Protocol, "a2s_info(gold): name", err)
	}
	if info.mapName, err = r.CString(); err != nil {
		return sourceInfo{}, errs.New(errs.Protocol, "a2s_info(gold): map", err)
	}
	if info.folder, err = r.CString(); err != nil {
		return sourceInfo{}, errs.New(errs.Protocol, "a2s_info(gold): folder", err)
	}
	if info.game, err = r.CString(); err != nil {
		return sourceInfo{}, errs.New(errs.Protocol, "a2s_info(gold): game", err)
	}
	players, err := r.Byte()
	if err != nil {
		return sourceInfo{}, errs.New(errs.Protocol, "a2s_info(gold): players", err)
	}
	info.players = int(players)
	maxPlayers, err := r.Byte()
	if err != nil {
		return sourceInfo{}, errs.New(errs.Protocol, "a2s_info(gold): max players", err)
	}
	info.maxPlayers = int(maxPlayers)
	if info.protocolVersion, err = r.Byte(); err != nil {
		return sourceInfo{}, errs.New(errs.Protocol, "a2s_info(gold): protocol", err)
	}
	if info.serverType, err = r.Byte(); err != nil {
		return sourceInfo{}, errs.New(errs.Protocol, "a2s_info(gold): server type", err)
	}
	if info.environment, err = r.Byte(); err != nil {
		return sourceInfo{}, errs.New(errs.Protocol, "a2s_info(gold): environment", err)
	}
	visibility, err := r.Byte()
	if err != nil {
		return sourceInfo{}, errs.New(errs.Protocol, "a2s_info(gold): visibility", err)
	}
	info.private = visibility == 1
	mod, err := r.Byte()
	if err != nil {
		return sourceInfo{}, errs.New(errs.Protocol, "a2s_info(gold): mod", err)
	}
	if mod == 1 {
		if _, err := r.CString(); err != nil {
			return sourceInfo{}, errs.New(errs.Protocol, "a2s_info(gold): mod link", err)
		}
		if _, err := r.CString(); err != nil {
			return sourceInfo{}, errs.New(errs.Protocol, "a2s_info(gold): mod download link", err)
		}
		if err := r.Skip(1); err != nil {
			return sourceInfo{}, errs.New(errs.Protocol, "a2s_info(gold): mod null byte", err)
		}
		if _, err := r.Uint32LE(); err != nil {
			return sourceInfo{}, errs.New(errs.Protocol, "a2s_info(gold): mod version", err)
		}
		if _, err := r.Uint32LE(); err != nil {
			return sourceInfo{}, errs.New(errs.Protocol, "a2s_info(gold): mod size", err)
		}
		if err := r.Skip(2); err != nil {
			return sourceInfo{}, errs.New(errs.Protocol, "a2s_info(gold): mod type/dll", err)
		}
	}
	vac, err := r.Byte()
	if err != nil {
		return sourceInfo{}, errs.New(errs.Protocol, "a2s_info(gold): vac", err)
	}
	info.vac = vac == 1
	bots, err := r.Byte()
	if err != nil {
		return sourceInfo{}, errs.New(errs.Protocol, "a2s_info(gold): bots", err)
	}
	info.bots = int(bots)
	return info, nil
}

type sourcePlayer struct {
	name     string
	score    int32
	duration float64
}

func (sourceStrategy) queryPlayers(ctx context.Context, conn *net.UDPConn, timeout time.Duration) ([]sourcePlayer, error) {
	challenge := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	req := append([]byte{0xFF, 0xFF, 0xFF, 0xFF, a2sHeaderPlayer}, challenge...)
	resp, err := probe.RoundTrip(ctx, conn, req, timeout)
	if err != nil {
		return nil, err
	}

	r := probe.NewReader(resp)
	if err := r.Skip(4); err != nil {
		return nil, errs.New(errs.Protocol, "a2s_player: truncated header", err)
	}
	typ, err := r.Byte()
	if err != nil {
		return nil, errs.New(errs.Protocol, "a2s_player: missing reply type", err)
	}

	if typ == a2sReplyChallenge {
		ch, err := r.Bytes(4)
		if err != nil {
			return nil, errs.New(errs.Protocol, "a2s_player: truncated challenge", err)
		}
		req2 := append([]byte{0xFF, 0xFF, 0xFF, 0xFF, a2sHeaderPlayer}, ch...)
		resp, err = probe.RoundTrip(ctx, conn, req2, timeout)
		if err != nil {
			return nil, err
		}
		r = probe.NewReader(resp)
		if err := r.Skip(4); err != nil {
			return nil, errs.New(errs.Protocol, "a2s_player: truncated header after challenge", err)
		}
		typ, err = r.Byte()
		if err != nil {
			return nil, errs.New(errs.Protocol, "a2s_player: missing reply type after challenge", err)
		}
	}

	if typ != a2sReplyPlayer {
		return nil, errs.New(errs.Protocol, "a2s_player: unexpected reply type", nil)
	}

	count, err := r.Byte()
	if err != nil {
		return nil, errs.New(errs.Protocol, "a2s_player: count", err)
	}

	players := make([]sourcePlayer, 0, count)
	for i := 0; i < int(count); i++ {
		if _, err := r.Byte(); err != nil { // index, unused
			return players, errs.New(errs.Protocol, "a2s_player: index", err)
		}
		name, err := r.CString()
		if err != nil {
			return players, errs.New(errs.Protocol, "a2s_player: name", err)
		}
		score, err := r.Uint32LE()
		if err != nil {
			return players, errs.New(errs.Protocol, "a2s_player: score", err)
		}
		duration, err := r.Float32LE()
		if err != nil {
			return players, errs.New(errs.Protocol, "a2s_player: duration", err)
		}
		players = append(players, sourcePlayer{name: name, score: int32(score), duration: float64(duration)})
	}
	return players, nil
}

func (sourceStrategy) queryRules(ctx context.Context, conn *net.UDPConn, timeout time.Duration) (map[string]string, error) {
	challenge := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	req := append([]byte{0xFF, 0xFF, 0xFF, 0xFF, a2sHeaderRules}, challenge...)
	resp, err := probe.RoundTrip(ctx, conn, req, timeout)
	if err != nil {
		return nil, err
	}

	r := probe.NewReader(resp)
	if err := r.Skip(4); err != nil {
		return nil, errs.New(errs.Protocol, "a2s_rules: truncated header", err)
	}
	typ, err := r.Byte()
	if err != nil {
		return nil, errs.New(errs.Protocol, "a2s_rules: missing reply type", err)
	}

	if typ == a2sReplyChallenge {
		ch, err := r.Bytes(4)
		if err != nil {
			return nil, errs.New(errs.Protocol, "a2s_rules: truncated challenge", err)
		}
		req2 := append([]byte{0xFF, 0xFF, 0xFF, 0xFF, a2sHeaderRules}, ch...)
		resp, err = probe.RoundTrip(ctx, conn, req2, timeout)
		if err != nil {
			return nil, err
		}
		r = probe.NewReader(resp)
		if err := r.Skip(4); err != nil {
			return nil, errs.New(errs.Protocol, "a2s_rules: truncated header after challenge", err)
		}
		typ, err = r.Byte()
		if err != nil {
			return nil, errs.New(errs.Protocol, "a2s_rules: missing reply type after challenge", err)
		}
	}

	if typ != a2sReplyRules {
		return nil, errs.New(errs.Protocol, "a2s_rules: unexpected reply type", nil)
	}

	count, err := r.Uint16LE()
	if err != nil {
		return nil, errs.New(errs.Protocol, "a2s_rules: count", err)
	}

	rules := make(map[string]string, count)
	for i := 0; i < int(count); i++ {
		key, err := r.CString()
		if err != nil {
			return rules, errs.New(errs.Protocol, "a2s_rules: key", err)
		}
		value, err := r.CString()
		if err != nil {
			return rules, errs.New(errs.Protocol, "a2s_rules: value", err)
		}
		rules[key] = value
	}
	return rules, nil
}

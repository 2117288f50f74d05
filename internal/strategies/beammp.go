package strategies

import (
	"context"
	"encoding/json"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/DiscordGSM/GameServerMonitor/internal/errs"
	"github.com/DiscordGSM/GameServerMonitor/internal/probe"
	"github.com/DiscordGSM/GameServerMonitor/internal/registry"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
)

const beammpServersInfoURL = "https://backend.beammp.com/servers-info"

var (
	beammpColorCode = regexp.MustCompile(`\^[0-9a-fl-pr]`)
	beammpMapPath   = regexp.MustCompile(`/?levels/(.+)/info\.json`)
)

func init() {
	registry.Register(&beammpStrategy{})
}

// beammpServerInfo mirrors one element of BeamMP's servers-info list.
type beammpServerInfo struct {
	IP           string `json:"ip"`
	Port         int    `json:"port"`
	Name         string `json:"sname"`
	Map          string `json:"map"`
	Private      bool   `json:"private"`
	Players      string `json:"players"`
	MaxPlayers   string `json:"maxplayers"`
	PlayersList  string `json:"playerslist"`
}

// beammpStrategy caches BeamMP's master server list and looks servers up by
// resolved IP:port (original_source/.../beammp.py), since BeamMP has no
// per-server query endpoint of its own — every listing is served from a
// single master list snapshot refreshed at the pre-query phase.
type beammpStrategy struct {
	mu      sync.RWMutex
	servers map[string]beammpServerInfo
}

func (s *beammpStrategy) Name() string             { return "beammp" }
func (s *beammpStrategy) PreQueryRequired() bool    { return true }

func (s *beammpStrategy) PreQuery(ctx context.Context, opts *probe.Options) error {
	body, err := probe.Shared().Get(ctx, beammpServersInfoURL)
	if err != nil {
		return err
	}
	var list []beammpServerInfo
	if err := json.Unmarshal(body, &list); err != nil {
		return errs.New(errs.Protocol, "beammp: decode servers-info", err)
	}

	fresh := make(map[string]beammpServerInfo, len(list))
	for _, srv := range list {
		fresh[probe.AddrPort(srv.IP, srv.Port)] = srv
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// BeamMP's servers-info endpoint is known to sometimes return a
	// truncated snapshot; only replace the cache wholesale once we see a
	// plausibly-complete list, otherwise merge in what we got.
	if s.servers == nil || len(list) > 1000 {
		s.servers = fresh
	} else {
		for k, v := range fresh {
			s.servers[k] = v
		}
	}
	return nil
}

// titleCase upper-cases the first letter of each whitespace-separated word.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		if len(r) > 0 {
			r[0] = []rune(strings.ToUpper(string(r[0])))[0]
			words[i] = string(r)
		}
	}
	return strings.Join(words, " ")
}

func (s *beammpStrategy) Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error) {
	ips, err := net.DefaultResolver.LookupHost(ctx, address)
	if err != nil || len(ips) == 0 {
		return server.Probe{}, errs.New(errs.Transport, "beammp: resolve host", err)
	}
	key := probe.AddrPort(ips[0], port)

	s.mu.RLock()
	info, ok := s.servers[key]
	s.mu.RUnlock()
	if !ok {
		return server.Probe{}, errs.New(errs.NotFound, "beammp: server not found in master list", nil)
	}

	numPlayers, _ := strconv.Atoi(info.Players)
	maxPlayers, _ := strconv.Atoi(info.MaxPlayers)
	mapName := titleCase(strings.ReplaceAll(beammpMapPath.ReplaceAllString(info.Map, "$1"), "_", " "))

	var players []server.Player
	if info.PlayersList != "" {
		for _, name := range strings.Split(info.PlayersList, ";") {
			players = append(players, server.Player{Name: beammpColorCode.ReplaceAllString(name, "")})
		}
	}

	return server.Probe{
		Name:       beammpColorCode.ReplaceAllString(info.Name, ""),
		Map:        mapName,
		Password:   info.Private,
		NumPlayers: numPlayers,
		MaxPlayers: maxPlayers,
		Players:    players,
		Connect:    key,
		Raw:        map[string]any{"ip": info.IP, "port": info.Port},
	}, nil
}

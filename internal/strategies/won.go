package strategies

import (
	"context"
	"time"

	"github.com/DiscordGSM/GameServerMonitor/internal/probe"
	"github.com/DiscordGSM/GameServerMonitor/internal/registry"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
)

func init() {
	registry.Register(&wonStrategy{})
}

// wonStrategy speaks the legacy pre-Steam "WON" GoldSource A2S_INFO reply
// shape exclusively (original_source/discordgsm/protocols/won.py), reusing
// sourceStrategy's A2S_INFO/A2S_PLAYER decoding since both query the same
// wire protocol and only differ in which reply variant they expect.
type wonStrategy struct{}

func (wonStrategy) Name() string                                        { return "won" }
func (wonStrategy) PreQueryRequired() bool                               { return false }
func (wonStrategy) PreQuery(context.Context, *probe.Options) error       { return nil }

func (wonStrategy) Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error) {
	conn, err := probe.DialUDP(ctx, probe.AddrPort(address, port))
	if err != nil {
		return server.Probe{}, err
	}
	defer conn.Close()

	start := time.Now()
	var src sourceStrategy
	info, err := src.queryInfo(ctx, conn, opts.Timeout)
	if err != nil {
		return server.Probe{}, err
	}
	rawPlayers, _ := src.queryPlayers(ctx, conn, opts.Timeout)
	pingMS := int(time.Since(start) / time.Millisecond)

	if info.connect == "" {
		info.connect = probe.AddrPort(address, port)
	}

	entries := make([]probe.PlayerEntry, 0, len(rawPlayers))
	for _, p := range rawPlayers {
		entries = append(entries, probe.PlayerEntry{
			Name:     p.name,
			Duration: p.duration,
			Raw:      map[string]any{"score": p.score, "time": p.duration},
		})
	}
	players, bots := probe.SplitPlayersAndBots(entries, info.bots)

	return server.Probe{
		Name:       probe.StripColorCodes(info.name),
		Map:        probe.StripColorCodes(info.mapName),
		Password:   info.private,
		NumPlayers: info.players,
		NumBots:    info.bots,
		MaxPlayers: info.maxPlayers,
		Players:    players,
		Bots:       bots,
		Connect:    info.connect,
		PingMS:     pingMS,
		Raw:        map[string]any{"folder": info.folder, "game": info.game, "version": info.version},
	}, nil
}

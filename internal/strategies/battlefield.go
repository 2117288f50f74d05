package strategies

import (
	"context"
	"encoding/binary"
	"net"
	"strconv"
	"time"

	"github.com/DiscordGSM/GameServerMonitor/internal/errs"
	"github.com/DiscordGSM/GameServerMonitor/internal/probe"
	"github.com/DiscordGSM/GameServerMonitor/internal/registry"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
)

func init() {
	registry.Register(&battlefieldStrategy{})
}

// battlefieldStrategy speaks EA/DICE's Frostbite "words packet" query
// protocol (original_source/.../battlefield.py): each request/response is
// a sequence-numbered packet whose body is a word count followed by that
// many length-prefixed, NUL-terminated words.
type battlefieldStrategy struct{}

func (battlefieldStrategy) Name() string                                  { return "battlefield" }
func (battlefieldStrategy) PreQueryRequired() bool                        { return false }
func (battlefieldStrategy) PreQuery(context.Context, *probe.Options) error { return nil }

func (battlefieldStrategy) Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error) {
	conn, err := probe.DialUDP(ctx, probe.AddrPort(address, port))
	if err != nil {
		return server.Probe{}, err
	}
	defer conn.Close()

	start := time.Now()
	words, err := battlefieldWordsRoundTrip(ctx, conn, opts.Timeout, "serverInfo")
	if err != nil {
		return server.Probe{}, err
	}
	if len(words) < 5 {
		return server.Probe{}, errs.New(errs.Protocol, "battlefield: short serverinfo reply", nil)
	}
	hostname := words[0]
	numPlayers, _ := strconv.Atoi(words[1])
	maxPlayers, _ := strconv.Atoi(words[2])
	mapName := words[4]

	var players []server.Player
	if playerWords, err := battlefieldWordsRoundTrip(ctx, conn, opts.Timeout, "admin.listPlayers", "all"); err == nil {
		players = parseBattlefieldPlayers(playerWords)
	} else {
		opts.Logger.Debugf("battlefield: admin.listPlayers unavailable: %v", err)
	}
	pingMS := int(time.Since(start) / time.Millisecond)

	return server.Probe{
		Name:       probe.StripColorCodes(hostname),
		Map:        probe.StripColorCodes(mapName),
		NumPlayers: numPlayers,
		MaxPlayers: maxPlayers,
		Players:    players,
		Connect:    probe.AddrPort(address, port),
		PingMS:     pingMS,
		Raw:        map[string]any{"fields": words},
	}, nil
}

// battlefieldWordsRoundTrip encodes words into a Frostbite words-packet
// request, sends it, and decodes the response's own words list.
func battlefieldWordsRoundTrip(ctx context.Context, conn *net.UDPConn, timeout time.Duration, words ...string) ([]string, error) {
	req := encodeBattlefieldPacket(1, words)
	resp, err := probe.RoundTrip(ctx, conn, req, timeout)
	if err != nil {
		return nil, err
	}
	return decodeBattlefieldPacket(resp)
}

func encodeBattlefieldPacket(sequence uint32, words []string) []byte {
	body := make([]byte, 0, 64)
	count := make([]byte, 4)
	binary.LittleEndian.PutUint32(count, uint32(len(words)))
	body = append(body, count...)
	for _, w := range words {
		wordLen := make([]byte, 4)
		binary.LittleEndian.PutUint32(wordLen, uint32(len(w)))
		body = append(body, wordLen...)
		body = append(body, []byte(w)...)
		body = append(body, 0)
	}

	header := make([]byte, 8)
	binary.LittleEndian.PutUint32(header[0:4], sequence&0x3fffffff)
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(body)+8))
	return append(header, body...)
}

func decodeBattlefieldPacket(resp []byte) ([]string, error) {
	if len(resp) < 12 {
		return nil, errs.New(errs.Protocol, "battlefield: short packet", nil)
	}
	r := probe.NewReader(resp[8:])
	count, err := r.Uint32LE()
	if err != nil {
		return nil, errs.New(errs.Protocol, "battlefield: word count", err)
	}
	words := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		wordLen, err := r.Uint32LE()
		if err != nil {
			return words, errs.New(errs.Protocol, "battlefield: word length", err)
		}
		raw, err := r.Bytes(int(wordLen))
		if err != nil {
			return words, errs.New(errs.Protocol, "battlefield: word bytes", err)
		}
		if err := r.Skip(1); err != nil { // trailing NUL
			return words, errs.New(errs.Protocol, "battlefield: word terminator", err)
		}
		words = append(words, string(raw))
	}
	return words, nil
}

func parseBattlefieldPlayers(words []string) []server.Player {
	var players []server.Player
	// admin.listPlayers replies with a column count, column names, a row
	// count, then that many rows of columnCount values; the player's
	// display name is conventionally the first column.
	if len(words) < 2 {
		return nil
	}
	columnCount, _ := strconv.Atoi(words[0])
	if columnCount <= 0 || 1+columnCount >= len(words) {
		return nil
	}
	rest := words[1+columnCount:]
	if len(rest) == 0 {
		return nil
	}
	rowCount, _ := strconv.Atoi(rest[0])
	rows := rest[1:]
	for i := 0; i < rowCount && (i+1)*columnCount <= len(rows); i++ {
		row := rows[i*columnCount : (i+1)*columnCount]
		players = append(players, server.Player{Name: probe.StripColorCodes(row[0])})
	}
	return players
}

package strategies

import (
	"bufio"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/DiscordGSM/GameServerMonitor/internal/errs"
	"github.com/DiscordGSM/GameServerMonitor/internal/probe"
	"github.com/DiscordGSM/GameServerMonitor/internal/registry"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
)

func init() {
	registry.Register(&minecraftStrategy{})
}

// minecraftStrategy speaks Minecraft Java Edition's Server List Ping
// (original_source/.../minecraft.py): a TCP handshake into the "status"
// state followed by a status request, with every packet VarInt-length
// framed and the response body a single JSON-encoded string.
type minecraftStrategy struct{}

func (minecraftStrategy) Name() string                                  { return "minecraft" }
func (minecraftStrategy) PreQueryRequired() bool                        { return false }
func (minecraftStrategy) PreQuery(context.Context, *probe.Options) error { return nil }

func (minecraftStrategy) Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error) {
	conn, err := probe.DialTCP(ctx, probe.AddrPort(address, port), opts.Timeout)
	if err != nil {
		return server.Probe{}, err
	}
	defer conn.Close()

	handshake := buildMinecraftPacket(0x00, func(buf []byte) []byte {
		buf = probe.PutVarInt(buf, 760)
		buf = appendMinecraftString(buf, address)
		buf = append(buf, byte(port>>8), byte(port))
		buf = probe.PutVarInt(buf, 1) // next state: status
		return buf
	})
	statusRequest := buildMinecraftPacket(0x00, func(buf []byte) []byte { return buf })

	start := time.Now()
	if err := conn.SetWriteDeadline(time.Now().Add(opts.Timeout)); err != nil {
		return server.Probe{}, errs.New(errs.Transport, "minecraft: set write deadline", err)
	}
	if _, err := conn.Write(append(handshake, statusRequest...)); err != nil {
		return server.Probe{}, errs.New(errs.Transport, "minecraft: write handshake", err)
	}
	if err := conn.SetReadDeadline(time.Now().Add(opts.Timeout)); err != nil {
		return server.Probe{}, errs.New(errs.Transport, "minecraft: set read deadline", err)
	}

	br := bufio.NewReader(conn)
	body, err := probe.ReadFramedPacket(br)
	if err != nil {
		return server.Probe{}, err
	}
	pingMS := int(time.Since(start) / time.Millisecond)

	r := probe.NewReader(body)
	if _, err := r.Byte(); err != nil { // packet id, expected 0x00
		return server.Probe{}, errs.New(errs.Protocol, "minecraft: status packet id", err)
	}
	jsonStr, err := readMinecraftString(r)
	if err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "minecraft: status json", err)
	}

	var status struct {
		Description any `json:"description"`
		Players     struct {
			Online int `json:"online"`
			Max    int `json:"max"`
			Sample []struct {
				Name string `json:"name"`
			} `json:"sample"`
		} `json:"players"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &status); err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "minecraft: decode status json", err)
	}

	name := minecraftDescriptionText(status.Description)
	name = strings.Join(strings.Split(name, "\n"), "\n")

	var players []server.Player
	for _, p := range status.Players.Sample {
		players = append(players, server.Player{Name: probe.StripColorCodes(p.Name)})
	}

	return server.Probe{
		Name:       probe.StripColorCodes(name),
		NumPlayers: status.Players.Online,
		MaxPlayers: status.Players.Max,
		Players:    players,
		Connect:    probe.AddrPort(address, port),
		PingMS:     pingMS,
	}, nil
}

func buildMinecraftPacket(id byte, writeBody func([]byte) []byte) []byte {
	body := writeBody([]byte{id})
	packet := probe.PutVarInt(nil, int32(len(body)))
	return append(packet, body...)
}

func appendMinecraftString(buf []byte, s string) []byte {
	buf = probe.PutVarInt(buf, int32(len(s)))
	return append(buf, []byte(s)...)
}

func readMinecraftString(r *probe.Reader) (string, error) {
	n, err := readVarIntFromReader(r)
	if err != nil {
		return "", err
	}
	raw, err := r.Bytes(int(n))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func readVarIntFromReader(r *probe.Reader) (int32, error) {
	var result int32
	for shift := uint(0); shift < 35; shift += 7 {
		b, err := r.Byte()
		if err != nil {
			return 0, err
		}
		result |= int32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
	}
	return 0, errs.New(errs.Protocol, "minecraft: varint too long", nil)
}

// minecraftDescriptionText flattens a Java Edition "chat component" MOTD,
// which the server may send as a bare string, an object with a "text"
// field, or an object with an "extra" array of sub-components.
func minecraftDescriptionText(description any) string {
	switch v := description.(type) {
	case string:
		return v
	case map[string]any:
		if extra, ok := v["extra"].([]any); ok {
			var sb strings.Builder
			for _, item := range extra {
				if m, ok := item.(map[string]any); ok {
					if text, ok := m["text"].(string); ok {
						sb.WriteString(text)
					}
				}
			}
			if sb.Len() > 0 {
				return sb.String()
			}
		}
		if text, ok := v["text"].(string); ok {
			return text
		}
	}
	return ""
}

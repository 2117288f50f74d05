package strategies

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DiscordGSM/GameServerMonitor/internal/errs"
	"github.com/DiscordGSM/GameServerMonitor/internal/probe"
	"github.com/DiscordGSM/GameServerMonitor/internal/registry"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
)

const satisfactoryProtocolMagic = 0xF6D5
const satisfactoryStateHappy = 3

func init() {
	registry.Register(&satisfactoryStrategy{})
}

// satisfactoryStrategy sends a Satisfactory Dedicated Server "Poll Server
// State" UDP packet and, when the server is in the "Happy" (running) state,
// follows up with an authenticated HTTPS call to its local admin API for
// player counts (original_source/.../satisfactory.py). The admin API
// serves a self-signed certificate, hence the insecure dedicated client.
type satisfactoryStrategy struct{}

func (satisfactoryStrategy) Name() string                                  { return "satisfactory" }
func (satisfactoryStrategy) PreQueryRequired() bool                        { return false }
func (satisfactoryStrategy) PreQuery(context.Context, *probe.Options) error { return nil }

func (satisfactoryStrategy) Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error) {
	conn, err := probe.DialUDP(ctx, probe.AddrPort(address, port))
	if err != nil {
		return server.Probe{}, err
	}
	defer conn.Close()

	cookie := uint64(time.Now().UnixMilli())
	req := make([]byte, 0, 13)
	buf2 := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf2, satisfactoryProtocolMagic)
	req = append(req, buf2...)
	req = append(req, 0, 1) // messageType=PollServerState(0), messageID=1
	buf8 := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf8, cookie)
	req = append(req, buf8...)
	req = append(req, 1) // terminator byte

	start := time.Now()
	resp, err := probe.RoundTrip(ctx, conn, req, opts.Timeout)
	if err != nil {
		return server.Probe{}, err
	}
	pingMS := int(time.Since(start) / time.Millisecond)

	if len(resp) < 26 {
		return server.Probe{}, errs.New(errs.Protocol, "satisfactory: short reply", nil)
	}
	r := probe.NewReader(resp)
	magic, _ := r.Uint16LE()
	if _, err := r.Bytes(2); err != nil { // messageType + messageID echo
		return server.Probe{}, errs.New(errs.Protocol, "satisfactory: reply header", err)
	}
	receivedCookie, err := r.Uint64LE()
	if err != nil || magic != satisfactoryProtocolMagic || receivedCookie != cookie {
		return server.Probe{}, errs.New(errs.Protocol, "satisfactory: reply does not match request", err)
	}
	serverState, err := r.Byte()
	if err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "satisfactory: server state", err)
	}
	if _, err := r.Uint32LE(); err != nil { // server net CL
		return server.Probe{}, errs.New(errs.Protocol, "satisfactory: net cl", err)
	}
	if _, err := r.Uint64LE(); err != nil { // server flags
		return server.Probe{}, errs.New(errs.Protocol, "satisfactory: flags", err)
	}
	numSubstates, err := r.Byte()
	if err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "satisfactory: substate count", err)
	}
	if err := r.Skip(int(numSubstates) * 3); err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "satisfactory: substates", err)
	}
	nameLen, err := r.Uint16LE()
	if err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "satisfactory: name length", err)
	}
	nameBytes, err := r.Bytes(int(nameLen))
	if err != nil {
		return server.Probe{}, errs.New(errs.Protocol, "satisfactory: name bytes", err)
	}
	serverName := string(nameBytes)

	numPlayers, maxPlayers := 0, 0
	var raw map[string]any
	if serverState == satisfactoryStateHappy {
		token := extra["_token"]
		payload, _ := json.Marshal(map[string]any{
			"function": "QueryServerState",
			"data":     map[string]any{"ServerGameState": map[string]any{}},
		})
		client := probe.DedicatedInsecure(opts.Timeout)
		adminURL := fmt.Sprintf("https://%s:%d/api/v1/", address, port)
		headers := map[string]string{"Authorization": "Bearer " + token}
		if body, err := client.PostJSONWithHeaders(ctx, adminURL, bytes.NewReader(payload), headers); err == nil {
			var state struct {
				Data struct {
					ServerGameState struct {
						PlayerLimit          int `json:"playerLimit"`
						NumConnectedPlayers int `json:"numConnectedPlayers"`
					} `json:"serverGameState"`
				} `json:"data"`
			}
			if json.Unmarshal(body, &state) == nil {
				maxPlayers = state.Data.ServerGameState.PlayerLimit
				numPlayers = state.Data.ServerGameState.NumConnectedPlayers
				raw = map[string]any{"serverGameState": state.Data.ServerGameState}
			}
		} else {
			opts.Logger.Debugf("satisfactory: admin api query failed for %s: %v", probe.AddrPort(address, port), err)
		}
	}

	return server.Probe{
		Name:       serverName,
		NumPlayers: numPlayers,
		MaxPlayers: maxPlayers,
		Connect:    probe.AddrPort(address, port),
		PingMS:     pingMS,
		Raw:        raw,
	}, nil
}

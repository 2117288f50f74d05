package strategies

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DiscordGSM/GameServerMonitor/internal/probe"
	"github.com/DiscordGSM/GameServerMonitor/internal/registry"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
)

// Epic Online Services client credentials for Palworld's public listing,
// recovered from original_source/discordgsm/protocols/palworld.py.
// Palworld additionally requires an external-auth device-id exchange
// before the client-credentials grant, unlike ASA's direct grant.
const (
	palworldClientID     = "xyza78916PZ5DF0fAahu4tnrKKyFpqRE"
	palworldClientSecret = "j0NapLEPm3R3EOrlQiM8cRLKq3Rt02ZVVwT0SkZstSg"
	palworldDeploymentID = "0a18471f93d448e2a1f60e47e03d3413"
)

func init() {
	registry.Register(&palworldStrategy{})
}

// palworldStrategy mirrors asaStrategy's EOS-backed listing lookup; kept
// as a separate strategy since Palworld's token exchange needs the extra
// external-auth leg and its own client credentials.
type palworldStrategy struct {
	mu          sync.RWMutex
	accessToken string
	expiresAt   time.Time
}

func (s *palworldStrategy) Name() string           { return "palworld" }
func (s *palworldStrategy) PreQueryRequired() bool { return true }

func (s *palworldStrategy) PreQuery(ctx context.Context, opts *probe.Options) error {
	s.mu.RLock()
	stillValid := s.accessToken != "" && time.Now().Before(s.expiresAt)
	s.mu.RUnlock()
	if stillValid {
		return nil
	}

	externalToken, _, err := fetchEOSAccessToken(ctx, palworldClientID, palworldClientSecret, palworldDeploymentID, "external_auth", "deviceid_access_token", "")
	if err != nil {
		return err
	}
	token, expiresIn, err := fetchEOSAccessToken(ctx, palworldClientID, palworldClientSecret, palworldDeploymentID, "external_auth", "deviceid_access_token", externalToken)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.accessToken = token
	s.expiresAt = time.Now().Add(expiresIn)
	s.mu.Unlock()
	return nil
}

func (s *palworldStrategy) Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error) {
	s.mu.RLock()
	token := s.accessToken
	s.mu.RUnlock()
	if token == "" {
		if err := s.PreQuery(ctx, opts); err != nil {
			return server.Probe{}, err
		}
		s.mu.RLock()
		token = s.accessToken
		s.mu.RUnlock()
	}

	start := time.Now()
	session, err := queryEOSSessionByAddress(ctx, palworldDeploymentID, token, address, port)
	if err != nil {
		return server.Probe{}, err
	}
	pingMS := int(time.Since(start) / time.Millisecond)

	attrs := session.Attributes
	settings := session.Settings

	return server.Probe{
		Name:       probe.StripColorCodes(stringOr(attrs["NAME_s"], "")),
		Map:        stringOr(attrs["MAPNAME_s"], ""),
		Password:   boolOr(attrs["ISPASSWORD_b"], false),
		NumPlayers: intOr(attrs["PLAYERS_l"], 0),
		MaxPlayers: intOr(settings["maxPublicPlayers"], 0),
		Connect:    fmt.Sprintf("%s:%d", address, port),
		PingMS:     pingMS,
		Raw:        map[string]any{"attributes": attrs, "settings": settings},
	}, nil
}

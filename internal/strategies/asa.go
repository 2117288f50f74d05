package strategies

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/DiscordGSM/GameServerMonitor/internal/errs"
	"github.com/DiscordGSM/GameServerMonitor/internal/probe"
	"github.com/DiscordGSM/GameServerMonitor/internal/registry"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
)

// Epic Online Services client credentials for ARK: Survival Ascended's
// public listing, recovered verbatim from
// original_source/discordgsm/protocols/asa.py — these are the game's own
// published client id/secret for read-only server discovery, not a secret
// belonging to this module.
const (
	asaClientID     = "xyza7891muomRmynIIHaJB9COBKkwj6n"
	asaClientSecret = "PP5UGxysEieNfSrEicaD1N2Bb3TdXuD7xHYcsdUHZ7s"
	asaDeploymentID = "ad9a8feffb3b4b2ca315546f038c3ae2"
)

const eosOAuthURL = "https://api.epicgames.dev/epic/oauth/v2/token"
const eosMatchmakingURLFmt = "https://api.epicgames.dev/matchmaking/v1/%s/filter"

func init() {
	registry.Register(&asaStrategy{})
}

// asaStrategy queries ARK: Survival Ascended's Epic Online Services
// matchmaking listing rather than speaking a direct game-server protocol
// (spec.md §4.B: protocols that require a once-per-tick PreQuery). The
// access token is cached process-wide and refreshed lazily, mirroring the
// original's class-level __access_token cache.
type asaStrategy struct {
	mu          sync.RWMutex
	accessToken string
	expiresAt   time.Time
}

func (s *asaStrategy) Name() string           { return "asa" }
func (s *asaStrategy) PreQueryRequired() bool { return true }

func (s *asaStrategy) PreQuery(ctx context.Context, opts *probe.Options) error {
	s.mu.RLock()
	stillValid := s.accessToken != "" && time.Now().Before(s.expiresAt)
	s.mu.RUnlock()
	if stillValid {
		return nil
	}

	token, expiresIn, err := fetchEOSAccessToken(ctx, asaClientID, asaClientSecret, asaDeploymentID, "client_credentials", "", "")
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.accessToken = token
	s.expiresAt = time.Now().Add(expiresIn)
	s.mu.Unlock()
	return nil
}

func (s *asaStrategy) Query(ctx context.Context, address string, port int, extra map[string]string, opts *probe.Options) (server.Probe, error) {
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
	session, err := queryEOSSessionByAddress(ctx, asaDeploymentID, token, address, port)
	if err != nil {
		return server.Probe{}, err
	}
	pingMS := int(time.Since(start) / time.Millisecond)

	attrs := session.Attributes
	settings := session.Settings

	return server.Probe{
		Name:       probe.StripColorCodes(stringOr(attrs["CUSTOMSERVERNAME_s"], "Unknown Server")),
		Map:        stringOr(attrs["MAPNAME_s"], "Unknown Map"),
		Password:   boolOr(attrs["SERVERPASSWORD_b"], false),
		NumPlayers: intOr(session.TotalPlayers, 0),
		MaxPlayers: intOr(settings["maxPublicPlayers"], 0),
		Connect:    fmt.Sprintf("%s:%d", stringOr(attrs["ADDRESS_s"], address), port),
		PingMS:     pingMS,
		Raw:        map[string]any{"attributes": attrs, "settings": settings},
	}, nil
}

// eosSession is the subset of an Epic Online Services matchmaking session
// this module reads out of the ASA/Palworld listings.
type eosSession struct {
	TotalPlayers any            `json:"totalPlayers"`
	Attributes   map[string]any `json:"attributes"`
	Settings     map[string]any `json:"settings"`
}

func fetchEOSAccessToken(ctx context.Context, clientID, clientSecret, deploymentID, grantType, externalAuthType, externalAuthToken string) (token string, ttl time.Duration, err error) {
	form := url.Values{}
	form.Set("grant_type", grantType)
	form.Set("deployment_id", deploymentID)
	if externalAuthType != "" {
		form.Set("external_auth_type", externalAuthType)
		form.Set("external_auth_token", externalAuthToken)
	}

	basic := base64.StdEncoding.EncodeToString([]byte(clientID + ":" + clientSecret))
	client := probe.Shared()
	body, err := client.PostForm(ctx, eosOAuthURL, strings.NewReader(form.Encode()), map[string]string{
		"Authorization": "Basic " + basic,
	})
	if err != nil {
		return "", 0, err
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", 0, errs.New(errs.Protocol, "eos oauth: decode token response", err)
	}
	if parsed.AccessToken == "" {
		return "", 0, errs.New(errs.Permission, "eos oauth: empty access token", nil)
	}
	return parsed.AccessToken, time.Duration(parsed.ExpiresIn) * time.Second, nil
}

func queryEOSSessionByAddress(ctx context.Context, deploymentID, accessToken, address string, port int) (eosSession, error) {
	client := probe.Shared()
	url := fmt.Sprintf(eosMatchmakingURLFmt, deploymentID) +
		fmt.Sprintf("?criteria=%s", fmt.Sprintf(`[{"key":"attributes.ADDRESS_s","op":"EQUAL","value":%q}]`, address))

	body, err := client.GetWithHeaders(ctx, url, map[string]string{"Authorization": "Bearer " + accessToken})
	if err != nil {
		return eosSession{}, err
	}

	var parsed struct {
		Sessions []eosSession `json:"sessions"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return eosSession{}, errs.New(errs.Protocol, "eos matchmaking: decode response", err)
	}
	if len(parsed.Sessions) == 0 {
		return eosSession{}, errs.New(errs.NotFound, "eos matchmaking: no session for address", nil)
	}
	return parsed.Sessions[0], nil
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}

func boolOr(v any, fallback bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return fallback
}

func intOr(v any, fallback int) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return fallback
	}
}

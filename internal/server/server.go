// Package server defines the durable Server and Probe types that make up
// the data model in spec.md §3, plus the secret-redaction boundary
// function that every response crossing the HTTP boundary must be passed
// through (invariant 5).
package server

import "strings"

// Server is the durable unit a user configures: one monitored game server
// endpoint, scoped to a channel within a guild.
type Server struct {
	ID         int64             `json:"id"`
	Position   int               `json:"position"`
	GuildID    int64             `json:"guild_id"`
	ChannelID  int64             `json:"channel_id"`
	MessageID  *int64            `json:"message_id,omitempty"`
	GameID     string            `json:"game_id"`
	Address    string            `json:"address"`
	QueryPort  int               `json:"query_port"`
	QueryExtra map[string]string `json:"query_extra"`
	Status     bool              `json:"status"`
	Result     Probe             `json:"result"`
	StyleID    string            `json:"style_id"`
	StyleData  map[string]string `json:"style_data"`
}

// DistinctKey returns the tuple that identifies the distinct endpoint this
// server shares with every other monitor of the same underlying game
// server (spec.md §3 invariant 3, glossary "Distinct endpoint").
func (s *Server) DistinctKey() DistinctKey {
	return DistinctKey{
		GameID:     s.GameID,
		Address:    s.Address,
		QueryPort:  s.QueryPort,
		QueryExtra: stableExtraKey(s.QueryExtra),
	}
}

// DistinctKey is the comparable fan-out unit: (game_id, address,
// query_port, query_extra).
type DistinctKey struct {
	GameID     string
	Address    string
	QueryPort  int
	QueryExtra string
}

// stableExtraKey produces a deterministic string encoding of an extras map
// so it can be used as part of a map key / SQL grouping column. Sorted by
// key to avoid Go's randomized map iteration order leaking into identity.
func stableExtraKey(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortStrings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(m[k])
	}
	return b.String()
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// Player is a single connected player or bot entry in a Probe.
type Player struct {
	Name string         `json:"name"`
	Raw  map[string]any `json:"raw,omitempty"`
}

// Reserved keys folded into Probe.Raw for scheduler bookkeeping. These are
// never rendered and are stripped before a Probe crosses the HTTP
// boundary (they always start with "__", so Redact's "_" prefix rule
// covers them for free when Raw is treated as a secret-bearing map).
const (
	ReservedFailCount  = "__fail_query_count"
	ReservedOfflineSet = "__offline_since"
	ReservedSentAlert  = "__sent_offline_alert"
)

// Probe is the normalized result shape every strategy must return.
type Probe struct {
	Name        string         `json:"name"`
	Map         string         `json:"map"`
	Password    bool           `json:"password"`
	NumPlayers  int            `json:"numplayers"`
	NumBots     int            `json:"numbots"`
	MaxPlayers  int            `json:"maxplayers"`
	Players     []Player       `json:"players"`
	Bots        []Player       `json:"bots"`
	Connect     string         `json:"connect"`
	PingMS      int            `json:"ping_ms"`
	Raw         map[string]any `json:"raw,omitempty"`
}

// FailCount reads the reserved consecutive-failure counter out of Raw.
func (p *Probe) FailCount() int {
	v, _ := p.Raw[ReservedFailCount].(float64)
	return int(v)
}

// SetFailCount writes the reserved consecutive-failure counter into Raw.
func (p *Probe) SetFailCount(n int) {
	p.ensureRaw()
	p.Raw[ReservedFailCount] = float64(n)
}

// OfflineSince reads the reserved unix timestamp of the first failure in
// the current down-run, or 0 if unset.
func (p *Probe) OfflineSince() int64 {
	v, _ := p.Raw[ReservedOfflineSet].(float64)
	return int64(v)
}

// SetOfflineSince writes the reserved offline-since timestamp.
func (p *Probe) SetOfflineSince(unix int64) {
	p.ensureRaw()
	p.Raw[ReservedOfflineSet] = float64(unix)
}

// SentOfflineAlert reads the reserved hysteresis flag.
func (p *Probe) SentOfflineAlert() bool {
	v, _ := p.Raw[ReservedSentAlert].(bool)
	return v
}

// SetSentOfflineAlert writes the reserved hysteresis flag.
func (p *Probe) SetSentOfflineAlert(v bool) {
	p.ensureRaw()
	p.Raw[ReservedSentAlert] = v
}

func (p *Probe) ensureRaw() {
	if p.Raw == nil {
		p.Raw = make(map[string]any)
	}
}

// MetricSample is one point in a distinct endpoint's bounded metrics ring
// buffer (spec.md §3).
type MetricSample struct {
	Status     bool  `json:"status"`
	NumPlayers int   `json:"numplayers"`
	NumBots    int   `json:"numbots"`
	MaxPlayers int   `json:"maxplayers"`
	CapturedAt int64 `json:"captured_at"`
}

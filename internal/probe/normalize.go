package probe

import (
	"regexp"
	"sort"
	"strings"

	"github.com/DiscordGSM/GameServerMonitor/internal/server"
)

// colorCodePatterns strips the handful of inline styling conventions used
// across the protocol families this module speaks: Quake's "^N" carets,
// Minecraft's "§N"/"&N" section signs, and bare ANSI CSI sequences some
// Source-engine mods emit in server names. spec.md §4.B requires this rule
// be applied uniformly across strategies, so it lives here once.
var colorCodePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\^[0-9]`),
	regexp.MustCompile(`[§&][0-9a-fk-or]`),
	regexp.MustCompile(`\x1b\[[0-9;]*m`),
}

// StripColorCodes removes color/rich-text markup from a name or map field.
func StripColorCodes(s string) string {
	for _, re := range colorCodePatterns {
		s = re.ReplaceAllString(s, "")
	}
	return strings.TrimSpace(s)
}

// PlayerEntry is a raw player record as read off the wire, before the
// caller knows which entries are bots.
type PlayerEntry struct {
	Name     string
	Duration float64 // seconds connected, used to order entries
	Raw      map[string]any
}

// SplitPlayersAndBots sorts entries by descending connection duration and
// peels the last numBots entries off as bots, for wire formats that don't
// carry an explicit bot flag (spec.md §4.B: "duration-sorted sort of
// players with the last N = bot count peeled off as bots").
func SplitPlayersAndBots(entries []PlayerEntry, numBots int) (players []server.Player, bots []server.Player) {
	sorted := make([]PlayerEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Duration > sorted[j].Duration })

	if numBots < 0 {
		numBots = 0
	}
	if numBots > len(sorted) {
		numBots = len(sorted)
	}
	cut := len(sorted) - numBots

	for i, e := range sorted {
		p := server.Player{Name: StripColorCodes(e.Name), Raw: e.Raw}
		if i < cut {
			players = append(players, p)
		} else {
			bots = append(bots, p)
		}
	}
	return players, bots
}

// KeywordOverride describes one appid-specific correction derived from a
// Source-engine "keywords" tag, recovered from
// original_source/discordgsm/protocols/source.py's per-appid special
// casing (e.g. certain CS2/CS:GO listings encode bot/human counts in a
// keyword prefix instead of the standard player-count fields).
type KeywordOverride struct {
	AppID  int
	Prefix string
	// Apply derives (numplayers, maxplayers) from the matched tag's
	// remainder; ok is false if the keyword wasn't present.
	Apply func(tagRemainder string, numPlayers, maxPlayers int) (int, int, bool)
}

// ApplyKeywordOverrides scans keywords (a comma-separated Source "keywords"
// tag) for any override registered for appID and applies the first match.
func ApplyKeywordOverrides(overrides []KeywordOverride, appID int, keywords string, numPlayers, maxPlayers int) (int, int) {
	if keywords == "" {
		return numPlayers, maxPlayers
	}
	tags := strings.Split(keywords, ",")
	for _, ov := range overrides {
		if ov.AppID != appID {
			continue
		}
		for _, tag := range tags {
			if strings.HasPrefix(tag, ov.Prefix) {
				if np, mp, ok := ov.Apply(strings.TrimPrefix(tag, ov.Prefix), numPlayers, maxPlayers); ok {
					return np, mp
				}
			}
		}
	}
	return numPlayers, maxPlayers
}

package probe

import (
	"strconv"
	"strings"
)

// ParseBackslashKV decodes the GameSpy-family wire format: a string of
// `\key\value\key\value...\` pairs, where repeated "player_N" style keys
// describe a list of players. Used by the gamespy1/gamespy2 strategies and
// by every protocol derived from the same wire convention (UT3's GameSpy4
// variant, SA-MP/VC-MP's rule lists).
func ParseBackslashKV(s string) map[string]string {
	s = strings.Trim(s, "\x00")
	parts := strings.Split(s, "\\")
	out := make(map[string]string)
	for i := 1; i+1 < len(parts); i += 2 {
		key := parts[i]
		if key == "" {
			continue
		}
		out[key] = parts[i+1]
	}
	return out
}

// PlayersFromIndexedKeys reconstructs a player list out of a flat KV map
// whose keys follow the GameSpy convention of a field name suffixed with a
// 0-based player index (e.g. "player_0", "score_0", "player_1", "score_1").
// field is the key prefix that carries the player's display name.
func PlayersFromIndexedKeys(kv map[string]string, field string) []map[string]string {
	var players []map[string]string
	for i := 0; ; i++ {
		suffix := "_" + strconv.Itoa(i)
		name, ok := kv[field+suffix]
		if !ok {
			break
		}
		raw := map[string]string{field: name}
		for k, v := range kv {
			if strings.HasSuffix(k, suffix) {
				raw[strings.TrimSuffix(k, suffix)] = v
			}
		}
		players = append(players, raw)
	}
	return players
}

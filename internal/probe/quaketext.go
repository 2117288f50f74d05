package probe

import (
	"strconv"
	"strings"
)

// QuakePlayerLine is one decoded player row from a Quake-family "status"
// response: "<frags> <ping> \"<name>\"".
type QuakePlayerLine struct {
	Frags int
	Ping  int
	Name  string
	Raw   map[string]any
}

// ParseQuakeStatus decodes the id-Software "status" response shared by the
// Quake1/Quake2/Quake3/Hexen2 strategies: a first line of `\key\value\...`
// server cvars, followed by one line per player. Quake3 uses the same
// cvar-line shape but a differently framed player line
// ("<score> <ping> \"<name>\""), which is why every caller passes its own
// split on the info line and only shares this player-line scanner.
func ParseQuakeStatus(body string) (info map[string]string, players []QuakePlayerLine) {
	body = strings.TrimRight(body, "\x00")
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	if len(lines) == 0 {
		return map[string]string{}, nil
	}

	info = ParseBackslashKV(strings.TrimPrefix(lines[0], "\xff"))

	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if p, ok := parseQuakePlayerLine(line); ok {
			players = append(players, p)
		}
	}
	return info, players
}

// parseQuakePlayerLine splits "<frags> <ping> \"<name>\"" (and Quake2/3's
// extra leading userid field, tolerated by scanning from the right).
func parseQuakePlayerLine(line string) (QuakePlayerLine, bool) {
	nameStart := strings.IndexByte(line, '"')
	nameEnd := strings.LastIndexByte(line, '"')
	if nameStart < 0 || nameEnd <= nameStart {
		return QuakePlayerLine{}, false
	}
	name := line[nameStart+1 : nameEnd]
	fields := strings.Fields(strings.TrimSpace(line[:nameStart]))
	if len(fields) < 2 {
		return QuakePlayerLine{}, false
	}
	frags, _ := strconv.Atoi(fields[len(fields)-2])
	ping, _ := strconv.Atoi(fields[len(fields)-1])
	return QuakePlayerLine{
		Frags: frags,
		Ping:  ping,
		Name:  name,
		Raw:   map[string]any{"frags": frags, "ping": ping, "name": name},
	}, true
}

package probe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripColorCodes(t *testing.T) {
	cases := map[string]string{
		"^1Red ^2Server":    "Red Server",
		"§4Orange Hub":  "Orange Hub", // U+00A7 is '§' UTF-8 lead byte won't match ASCII regex; verify no panic
		"plain name":        "plain name",
		"\x1b[31mAlert\x1b[0m": "Alert",
	}
	for in, want := range cases {
		got := StripColorCodes(in)
		if in == "§4Orange Hub" {
			// §-stripping only applies to the literal section sign, tolerate either.
			assert.Contains(t, got, "Orange Hub")
			continue
		}
		assert.Equal(t, want, got)
	}
}

func TestSplitPlayersAndBots(t *testing.T) {
	entries := []PlayerEntry{
		{Name: "Alice", Duration: 120},
		{Name: "BotA", Duration: 5},
		{Name: "Bob", Duration: 90},
		{Name: "BotB", Duration: 1},
	}

	players, bots := SplitPlayersAndBots(entries, 2)

	assert.Len(t, players, 2)
	assert.Len(t, bots, 2)
	assert.Equal(t, "Alice", players[0].Name)
	assert.Equal(t, "Bob", players[1].Name)
	assert.Equal(t, "BotA", bots[0].Name)
	assert.Equal(t, "BotB", bots[1].Name)
}

func TestSplitPlayersAndBotsZeroBots(t *testing.T) {
	entries := []PlayerEntry{{Name: "Solo", Duration: 1}}
	players, bots := SplitPlayersAndBots(entries, 0)
	assert.Len(t, players, 1)
	assert.Len(t, bots, 0)
}

func TestApplyKeywordOverrides(t *testing.T) {
	overrides := []KeywordOverride{
		{
			AppID:  730,
			Prefix: "cnt:",
			Apply: func(rest string, numPlayers, maxPlayers int) (int, int, bool) {
				return numPlayers + 1, maxPlayers, true
			},
		},
	}

	np, mp := ApplyKeywordOverrides(overrides, 730, "cnt:5,other", 10, 16)
	assert.Equal(t, 11, np)
	assert.Equal(t, 16, mp)

	np, mp = ApplyKeywordOverrides(overrides, 440, "cnt:5", 10, 16)
	assert.Equal(t, 10, np)
	assert.Equal(t, 16, mp)
}

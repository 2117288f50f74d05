package catalog

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestdata(t *testing.T) *Catalog {
	t.Helper()
	f, err := os.Open("testdata/games.txt")
	require.NoError(t, err)
	defer f.Close()
	c, err := Parse(f)
	require.NoError(t, err)
	return c
}

func TestParseBasic(t *testing.T) {
	c := loadTestdata(t)
	assert.Equal(t, 5, c.Len())

	g, ok := c.Get("csgo")
	require.True(t, ok)
	assert.Equal(t, "source", g.Protocol)
	assert.Empty(t, g.Options)
}

func TestDefaultQueryPortPrecedence(t *testing.T) {
	c := loadTestdata(t)

	explicit, _ := c.Get("explicit")
	assert.Equal(t, 27016, explicit.DefaultQueryPort(27015), "explicit port_query wins")

	offset, _ := c.Get("offset")
	assert.Equal(t, 27020, offset.DefaultQueryPort(27015), "port + port_query_offset")

	bare, _ := c.Get("bare")
	assert.Equal(t, 27015, bare.DefaultQueryPort(27015), "falls back to port")

	valve, _ := c.Get("csgo")
	assert.Equal(t, 27015, valve.DefaultQueryPort(0), "valve family defaults to 27015 with no offset")

	directory, _ := c.Get("directory")
	assert.Equal(t, 0, directory.DefaultQueryPort(0), "directory-indexed protocol permits port 0")
}

func TestParseDuplicateIDFails(t *testing.T) {
	_, err := Parse(strings.NewReader("a,Alpha,source,\na,Alpha Two,source,\n"))
	assert.Error(t, err)
}

func TestParseMissingFieldsFails(t *testing.T) {
	_, err := Parse(strings.NewReader("onlyid\n"))
	assert.Error(t, err)
}

func TestValidateProtocols(t *testing.T) {
	c := loadTestdata(t)
	err := c.ValidateProtocols([]string{"source", "gportal"})
	assert.Error(t, err, "custom protocol is unknown")

	err = c.ValidateProtocols([]string{"source", "gportal", "custom"})
	assert.NoError(t, err)
}

func TestLoadEmbeddedProductionCatalog(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)
	assert.Greater(t, c.Len(), 30)

	wantProtocols := []string{
		"source", "won", "gamespy1", "gamespy2", "gamespy3", "quake1", "quake2",
		"quake3", "ase", "asa", "battlefield", "doom3", "unreal2", "ut3", "samp",
		"vcmp", "raknet", "minecraft", "teamspeak3", "terraria", "fivem",
		"discord", "assettocorsa", "gportal", "hexen2", "eco", "front", "scum",
		"satisfactory", "factorio", "beammp", "palworld", "scpsl",
	}
	seen := map[string]bool{}
	for _, g := range c.All() {
		seen[g.Protocol] = true
	}
	for _, p := range wantProtocols {
		assert.Truef(t, seen[p], "catalog missing any entry for protocol %q", p)
	}
}

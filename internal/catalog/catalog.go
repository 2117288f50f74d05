// Package catalog implements the immutable game-id → {display name,
// protocol, default ports, options} table (spec.md §4.C), parsed once at
// startup from the delimited text resource described in spec.md §6.
package catalog

import "strconv"

// Game is one row of the catalog.
type Game struct {
	ID       string
	Name     string
	Protocol string
	Options  map[string]string
}

// valveFamily lists the protocols whose query port conventionally
// defaults to Source's 27015, per spec.md §4.C.
var valveFamily = map[string]bool{
	"source": true,
	"won":    true,
}

// DefaultQueryPort applies the precedence spec.md §4.C specifies:
// explicit port_query, else port + port_query_offset, else (for the
// valve-family) 27015 + port_query_offset, else port. gamePort is the
// server's configured game port (0 for directory-indexed protocols, which
// is a valid query port per spec.md §4.C).
func (g Game) DefaultQueryPort(gamePort int) int {
	if raw, ok := g.Options["port_query"]; ok {
		if v, err := strconv.Atoi(raw); err == nil {
			return clampPort(v)
		}
	}

	offset, hasOffset := 0, false
	if raw, ok := g.Options["port_query_offset"]; ok {
		if v, err := strconv.Atoi(raw); err == nil {
			offset, hasOffset = v, true
		}
	}

	if hasOffset {
		return clampPort(gamePort + offset)
	}

	if valveFamily[g.Protocol] {
		return clampPort(27015 + offset)
	}

	return clampPort(gamePort)
}

func clampPort(p int) int {
	if p < 0 {
		return 0
	}
	if p > 65535 {
		return 65535
	}
	return p
}

// ValidPort reports whether n is a legal query_port value. 0 is permitted
// for directory-indexed protocols (spec.md §4.C).
func ValidPort(n int) bool {
	return n >= 0 && n <= 65535
}

// Catalog is the immutable, parsed game table, keyed by game id.
type Catalog struct {
	games map[string]Game
	order []string
}

// Get returns the game entry for id, or (Game{}, false).
func (c *Catalog) Get(id string) (Game, bool) {
	g, ok := c.games[id]
	return g, ok
}

// All returns every game in file order (stable for catalog listing).
func (c *Catalog) All() []Game {
	out := make([]Game, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.games[id])
	}
	return out
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int { return len(c.order) }

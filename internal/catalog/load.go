package catalog

import (
	_ "embed"
	"strings"
)

//go:embed games.txt
var defaultCatalogText string

// Load parses the production catalog shipped with this module.
func Load() (*Catalog, error) {
	return Parse(strings.NewReader(defaultCatalogText))
}

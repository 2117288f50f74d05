package catalog

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Parse reads the delimited text table `id,name,protocol,options` (spec.md
// §6), skipping blank lines and lines starting with "#". The options
// column is itself `;`-separated `k=v` pairs, handled the same way the
// teacher's additional-label parser (probes/options/labels_test.go) splits
// a delimited string into tokens before building a typed value out of
// each — both are "split on a separator, then again on '=', then build a
// map/struct" scanners, even though the teacher's solves label templating
// and this one solves option bags.
func Parse(r io.Reader) (*Catalog, error) {
	c := &Catalog{games: make(map[string]Game)}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.SplitN(line, ",", 4)
		if len(fields) < 3 {
			return nil, fmt.Errorf("catalog: line %d: expected at least 3 comma-separated fields, got %d", lineNo, len(fields))
		}

		id := strings.TrimSpace(fields[0])
		name := strings.TrimSpace(fields[1])
		protocol := strings.TrimSpace(fields[2])
		if id == "" || protocol == "" {
			return nil, fmt.Errorf("catalog: line %d: id and protocol are required", lineNo)
		}
		if _, dup := c.games[id]; dup {
			return nil, fmt.Errorf("catalog: line %d: duplicate game id %q", lineNo, id)
		}

		var optionsRaw string
		if len(fields) == 4 {
			optionsRaw = strings.TrimSpace(fields[3])
		}
		options, err := parseOptions(optionsRaw)
		if err != nil {
			return nil, fmt.Errorf("catalog: line %d: %w", lineNo, err)
		}

		c.games[id] = Game{ID: id, Name: name, Protocol: protocol, Options: options}
		c.order = append(c.order, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("catalog: scan failed: %w", err)
	}

	return c, nil
}

// parseOptions splits a `;`-separated `k=v` option string into a map.
// An entry with no `=` is kept as a boolean-style flag (value "true").
func parseOptions(raw string) (map[string]string, error) {
	options := map[string]string{}
	if raw == "" {
		return options, nil
	}
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		key := strings.TrimSpace(kv[0])
		if key == "" {
			return nil, fmt.Errorf("empty option key in %q", raw)
		}
		if len(kv) == 1 {
			options[key] = "true"
			continue
		}
		options[key] = strings.TrimSpace(kv[1])
	}
	return options, nil
}

// ValidateProtocols checks every catalog entry's protocol against the set
// of known strategy names, returning a hard error naming the first
// offender (spec.md §4.A: "Unknown names yield a hard error at config
// load"). known is typically registry.Names().
func (c *Catalog) ValidateProtocols(known []string) error {
	knownSet := make(map[string]bool, len(known))
	for _, n := range known {
		knownSet[n] = true
	}

	var unknown []string
	for _, id := range c.order {
		p := c.games[id].Protocol
		if !knownSet[p] {
			unknown = append(unknown, fmt.Sprintf("%s (protocol=%s)", id, p))
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("catalog: unknown protocol referenced by games: %s", strings.Join(unknown, ", "))
}

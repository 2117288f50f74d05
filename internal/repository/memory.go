package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/DiscordGSM/GameServerMonitor/internal/errs"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
)

// Memory is an in-process, map-backed Repository used by the
// scheduler/alert/refresher test suites (spec.md §4.D: "not part of the
// production binary but part of the shipped repository package so tests
// exercise the exact same interface").
type Memory struct {
	mu          sync.Mutex
	nextID      int64
	servers     map[int64]server.Server
	metricLimit int
	metrics     map[server.DistinctKey][]server.MetricSample
}

// NewMemory returns an empty Memory repository. metricLimit matches
// spec.md §6's METRICS_RECORD_LIMIT (0 disables the ring buffer).
func NewMemory(metricLimit int) *Memory {
	return &Memory{
		nextID:      1,
		servers:     map[int64]server.Server{},
		metricLimit: metricLimit,
		metrics:     map[server.DistinctKey][]server.MetricSample{},
	}
}

func (m *Memory) Close() error { return nil }

func matchesFilter(s server.Server, f Filter) bool {
	if f.GuildID != 0 && s.GuildID != f.GuildID {
		return false
	}
	if f.ChannelID != 0 && s.ChannelID != f.ChannelID {
		return false
	}
	if f.MessageID != 0 && (s.MessageID == nil || *s.MessageID != f.MessageID) {
		return false
	}
	if f.GameID != "" && s.GameID != f.GameID {
		return false
	}
	return true
}

func (m *Memory) AllServers(ctx context.Context, filter Filter) ([]server.Server, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []server.Server
	for _, s := range m.servers {
		if matchesFilter(s, filter) {
			out = append(out, s)
		}
	}
	if filter.GameID != "" {
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	} else {
		sort.Slice(out, func(i, j int) bool {
			if out[i].ChannelID != out[j].ChannelID {
				return out[i].ChannelID < out[j].ChannelID
			}
			return out[i].Position < out[j].Position
		})
	}
	if filter.FilterSecret {
		for i := range out {
			out[i] = server.Redact(out[i])
		}
	}
	return out, nil
}

func (m *Memory) DistinctServers(ctx context.Context) ([]DistinctProbeTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byKey := map[server.DistinctKey]DistinctProbeTarget{}
	for _, s := range m.servers {
		key := s.DistinctKey()
		if _, ok := byKey[key]; ok {
			continue
		}
		byKey[key] = DistinctProbeTarget{
			GameID:     s.GameID,
			Address:    s.Address,
			QueryPort:  s.QueryPort,
			QueryExtra: s.QueryExtra,
			Result:     s.Result,
			Status:     s.Status,
		}
	}
	out := make([]DistinctProbeTarget, 0, len(byKey))
	for _, t := range byKey {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GameID != out[j].GameID {
			return out[i].GameID < out[j].GameID
		}
		if out[i].Address != out[j].Address {
			return out[i].Address < out[j].Address
		}
		return out[i].QueryPort < out[j].QueryPort
	})
	return out, nil
}

func (m *Memory) CountPerGame(ctx context.Context) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]int{}
	for _, s := range m.servers {
		out[s.GameID]++
	}
	return out, nil
}

func (m *Memory) CountPerChannel(ctx context.Context) (map[int64]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[int64]int{}
	for _, s := range m.servers {
		out[s.ChannelID]++
	}
	return out, nil
}

func (m *Memory) Statistics(ctx context.Context) (Statistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	messages := map[int64]bool{}
	channels := map[int64]bool{}
	guilds := map[int64]bool{}
	unique := map[server.DistinctKey]bool{}
	for _, s := range m.servers {
		if s.MessageID != nil {
			messages[*s.MessageID] = true
		}
		channels[s.ChannelID] = true
		guilds[s.GuildID] = true
		unique[s.DistinctKey()] = true
	}
	return Statistics{Messages: len(messages), Channels: len(channels), Guilds: len(guilds), UniqueServers: len(unique)}, nil
}

func (m *Memory) FindServer(ctx context.Context, channelID int64, address string, port int) (server.Server, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.servers {
		if s.ChannelID == channelID && s.Address == address && s.QueryPort == port {
			return s, nil
		}
	}
	return server.Server{}, errs.New(errs.NotFound, "repository: server not found", nil)
}

func (m *Memory) AddServer(ctx context.Context, s server.Server) (server.Server, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.servers {
		if existing.ChannelID == s.ChannelID && existing.Address == s.Address && existing.QueryPort == s.QueryPort {
			return server.Server{}, errs.New(errs.Conflict, "repository: duplicate monitor in channel", nil)
		}
	}

	nextPos := 0
	for _, existing := range m.servers {
		if existing.ChannelID == s.ChannelID && existing.Position+1 > nextPos {
			nextPos = existing.Position + 1
		}
	}
	s.ID = m.nextID
	m.nextID++
	s.Position = nextPos
	m.servers[s.ID] = s
	return s, nil
}

func (m *Memory) UpdateServers(ctx context.Context, targets []DistinctProbeTarget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range targets {
		for id, s := range m.servers {
			if s.DistinctKey() == t.Key() {
				s.Status = t.Status
				s.Result = t.Result
				m.servers[id] = s
			}
		}
	}
	return nil
}

func (m *Memory) UpdateServersMessageID(ctx context.Context, servers []server.Server) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range servers {
		if existing, ok := m.servers[s.ID]; ok {
			existing.MessageID = s.MessageID
			m.servers[s.ID] = existing
		}
	}
	return nil
}

func (m *Memory) UpdateServersStyleData(ctx context.Context, servers []server.Server) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range servers {
		if existing, ok := m.servers[s.ID]; ok {
			existing.StyleData = s.StyleData
			m.servers[s.ID] = existing
		}
	}
	return nil
}

func (m *Memory) UpdateServerStyleID(ctx context.Context, s server.Server) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.servers[s.ID]; ok {
		existing.StyleID = s.StyleID
		m.servers[s.ID] = existing
		return nil
	}
	return errs.New(errs.NotFound, "repository: server not found", nil)
}

func (m *Memory) MoveServer(ctx context.Context, s server.Server, direction MoveDirection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var channelServers []server.Server
	for _, other := range m.servers {
		if other.ChannelID == s.ChannelID {
			channelServers = append(channelServers, other)
		}
	}
	sort.Slice(channelServers, func(i, j int) bool { return channelServers[i].Position < channelServers[j].Position })

	idx := -1
	for i, other := range channelServers {
		if other.ID == s.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return errs.New(errs.NotFound, "repository: server not found", nil)
	}

	var adjIdx int
	switch direction {
	case MoveUp:
		adjIdx = idx - 1
	case MoveDown:
		adjIdx = idx + 1
	}
	if adjIdx < 0 || adjIdx >= len(channelServers) {
		return nil // no-op at boundaries
	}

	a, b := channelServers[idx], channelServers[adjIdx]
	if a.MessageID == nil || b.MessageID == nil {
		return nil // no-op when either message is unpublished
	}

	a.Position, b.Position = b.Position, a.Position
	a.MessageID, b.MessageID = b.MessageID, a.MessageID
	m.servers[a.ID] = a
	m.servers[b.ID] = b
	return nil
}

func (m *Memory) MoveServersToChannel(ctx context.Context, servers []server.Server, newChannelID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	nextPos := 0
	for _, existing := range m.servers {
		if existing.ChannelID == newChannelID && existing.Position+1 > nextPos {
			nextPos = existing.Position + 1
		}
	}
	for _, s := range servers {
		if existing, ok := m.servers[s.ID]; ok {
			existing.ChannelID = newChannelID
			existing.Position = nextPos
			nextPos++
			m.servers[s.ID] = existing
		}
	}
	return nil
}

func (m *Memory) DeleteServers(ctx context.Context, filter Filter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.servers {
		if matchesFilter(s, filter) {
			delete(m.servers, id)
		}
	}
	return nil
}

func (m *Memory) UpdateMetrics(ctx context.Context, targets []DistinctProbeTarget) error {
	if m.metricLimit <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().Unix()
	for _, t := range targets {
		key := t.Key()
		sample := server.MetricSample{
			Status:     t.Status,
			NumPlayers: t.Result.NumPlayers,
			NumBots:    t.Result.NumBots,
			MaxPlayers: t.Result.MaxPlayers,
			CapturedAt: now,
		}
		ring := append(m.metrics[key], sample)
		if len(ring) > m.metricLimit {
			ring = ring[len(ring)-m.metricLimit:]
		}
		m.metrics[key] = ring
	}
	return nil
}

// Metrics returns the bounded ring buffer for a distinct endpoint, used by
// tests that assert on metric history.
func (m *Memory) Metrics(key server.DistinctKey) []server.MetricSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]server.MetricSample, len(m.metrics[key]))
	copy(out, m.metrics[key])
	return out
}

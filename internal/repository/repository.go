// Package repository implements the durable CRUD and aggregate-query
// contract of spec.md §4.D: a storage-agnostic interface with one
// in-memory implementation (used by scheduler/alert/refresher tests) and
// two production-grade SQL implementations (SQLite, Postgres).
package repository

import (
	"context"

	"github.com/DiscordGSM/GameServerMonitor/internal/server"
)

// Filter narrows AllServers/DeleteServers to a scope. Zero values mean
// "no constraint on this field"; FilterSecret additionally requests the
// invariant-5 redaction be applied before returning.
type Filter struct {
	GuildID      int64
	ChannelID    int64
	MessageID    int64
	GameID       string
	FilterSecret bool
}

// DistinctProbeTarget is one fan-out unit: the unique
// (game_id, address, query_port, query_extra) tuple every scheduler tick
// probes exactly once, regardless of how many Server rows share it.
type DistinctProbeTarget struct {
	GameID     string
	Address    string
	QueryPort  int
	QueryExtra map[string]string
	// Result/Status carry the most recently persisted state for this key,
	// so the scheduler can read __fail_query_count/__offline_since without
	// a second round trip.
	Result server.Probe
	Status bool
}

// Key returns the DistinctKey this target corresponds to.
func (t DistinctProbeTarget) Key() server.DistinctKey {
	s := server.Server{GameID: t.GameID, Address: t.Address, QueryPort: t.QueryPort, QueryExtra: t.QueryExtra}
	return s.DistinctKey()
}

// Statistics is the aggregate counts op (spec.md §4.D).
type Statistics struct {
	Messages      int
	Channels      int
	Guilds        int
	UniqueServers int
}

// MoveDirection is the argument to MoveServer.
type MoveDirection int

const (
	MoveUp MoveDirection = iota
	MoveDown
)

// Repository is the storage-agnostic contract every backend implements.
// All operations are cancellable via ctx.
type Repository interface {
	AllServers(ctx context.Context, filter Filter) ([]server.Server, error)
	DistinctServers(ctx context.Context) ([]DistinctProbeTarget, error)
	CountPerGame(ctx context.Context) (map[string]int, error)
	CountPerChannel(ctx context.Context) (map[int64]int, error)
	Statistics(ctx context.Context) (Statistics, error)
	FindServer(ctx context.Context, channelID int64, address string, port int) (server.Server, error)
	AddServer(ctx context.Context, s server.Server) (server.Server, error)
	UpdateServers(ctx context.Context, targets []DistinctProbeTarget) error
	UpdateServersMessageID(ctx context.Context, servers []server.Server) error
	UpdateServersStyleData(ctx context.Context, servers []server.Server) error
	UpdateServerStyleID(ctx context.Context, s server.Server) error
	MoveServer(ctx context.Context, s server.Server, direction MoveDirection) error
	MoveServersToChannel(ctx context.Context, servers []server.Server, newChannelID int64) error
	DeleteServers(ctx context.Context, filter Filter) error
	UpdateMetrics(ctx context.Context, targets []DistinctProbeTarget) error

	// Close releases backend connections/pools.
	Close() error
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DiscordGSM/GameServerMonitor/internal/errs"
	"github.com/DiscordGSM/GameServerMonitor/internal/logger"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
)

// Postgres is the production Repository backend, built on jackc/pgx's
// pgxpool.Pool and its native $1-style placeholders.
type Postgres struct {
	pool        *pgxpool.Pool
	l           *logger.Logger
	metricLimit int
}

// OpenPostgres connects to connString (a DATABASE_URL), retrying pool
// acquisition with a bounded exponential backoff before giving up.
// metricLimit is METRICS_RECORD_LIMIT; 0 disables the ring buffer.
func OpenPostgres(ctx context.Context, connString string, metricLimit int, l *logger.Logger) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, errs.New(errs.InvalidInput, "postgres: parse connection string", err)
	}

	var pool *pgxpool.Pool
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
	openErr := backoff.Retry(func() error {
		p, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	}, backoff.WithContext(policy, ctx))
	if openErr != nil {
		return nil, errs.New(errs.Transport, "postgres: connect", openErr)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, errs.New(errs.Transport, "postgres: apply schema", err)
	}

	return &Postgres{pool: pool, l: l.Named("repository.postgres"), metricLimit: metricLimit}, nil
}

func (p *Postgres) Close() error { p.pool.Close(); return nil }

func (p *Postgres) AllServers(ctx context.Context, filter Filter) ([]server.Server, error) {
	where, args := postgresFilterClause(filter)
	rows, err := p.pool.Query(ctx, `SELECT id, position, guild_id, channel_id, message_id, game_id, address,
		query_port, query_extra, status, result, style_id, style_data FROM servers`+where+` ORDER BY channel_id, position`, args...)
	if err != nil {
		return nil, errs.New(errs.Transport, "postgres: query servers", err)
	}
	defer rows.Close()

	var out []server.Server
	for rows.Next() {
		srv, err := scanPostgresServer(rows)
		if err != nil {
			return nil, err
		}
		if filter.FilterSecret {
			srv = server.Redact(srv)
		}
		out = append(out, srv)
	}
	return out, rows.Err()
}

func postgresFilterClause(f Filter) (string, []any) {
	var clauses []string
	var args []any
	n := 1
	next := func(c string) string {
		clause := fmt.Sprintf(c, n)
		n++
		return clause
	}
	if f.GuildID != 0 {
		clauses = append(clauses, next("guild_id = $%d"))
		args = append(args, f.GuildID)
	}
	if f.ChannelID != 0 {
		clauses = append(clauses, next("channel_id = $%d"))
		args = append(args, f.ChannelID)
	}
	if f.MessageID != 0 {
		clauses = append(clauses, next("message_id = $%d"))
		args = append(args, f.MessageID)
	}
	if f.GameID != "" {
		clauses = append(clauses, next("game_id = $%d"))
		args = append(args, f.GameID)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	where := " WHERE " + clauses[0]
	for _, c := range clauses[1:] {
		where += " AND " + c
	}
	return where, args
}

type pgxRowScanner interface {
	Scan(dest ...any) error
}

func scanPostgresServer(row pgxRowScanner) (server.Server, error) {
	var s server.Server
	var messageID *int64
	var queryExtra, result, styleData []byte
	if err := row.Scan(&s.ID, &s.Position, &s.GuildID, &s.ChannelID, &messageID, &s.GameID, &s.Address,
		&s.QueryPort, &queryExtra, &s.Status, &result, &s.StyleID, &styleData); err != nil {
		return server.Server{}, errs.New(errs.Transport, "postgres: scan server", err)
	}
	s.MessageID = messageID
	if err := json.Unmarshal(queryExtra, &s.QueryExtra); err != nil {
		return server.Server{}, errs.New(errs.Protocol, "postgres: decode query_extra", err)
	}
	if err := json.Unmarshal(result, &s.Result); err != nil {
		return server.Server{}, errs.New(errs.Protocol, "postgres: decode result", err)
	}
	if err := json.Unmarshal(styleData, &s.StyleData); err != nil {
		return server.Server{}, errs.New(errs.Protocol, "postgres: decode style_data", err)
	}
	return s, nil
}

func (p *Postgres) DistinctServers(ctx context.Context) ([]DistinctProbeTarget, error) {
	rows, err := p.pool.Query(ctx, `SELECT DISTINCT ON (game_id, address, query_port, query_extra)
		game_id, address, query_port, query_extra, status, result FROM servers
		ORDER BY game_id, address, query_port, query_extra`)
	if err != nil {
		return nil, errs.New(errs.Transport, "postgres: distinct servers", err)
	}
	defer rows.Close()

	var out []DistinctProbeTarget
	for rows.Next() {
		var t DistinctProbeTarget
		var queryExtra, result []byte
		if err := rows.Scan(&t.GameID, &t.Address, &t.QueryPort, &queryExtra, &t.Status, &result); err != nil {
			return nil, errs.New(errs.Transport, "postgres: scan distinct server", err)
		}
		_ = json.Unmarshal(queryExtra, &t.QueryExtra)
		_ = json.Unmarshal(result, &t.Result)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) CountPerGame(ctx context.Context) (map[string]int, error) {
	rows, err := p.pool.Query(ctx, `SELECT game_id, COUNT(*) FROM servers GROUP BY game_id`)
	if err != nil {
		return nil, errs.New(errs.Transport, "postgres: count per game", err)
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var gameID string
		var n int
		if err := rows.Scan(&gameID, &n); err != nil {
			return nil, errs.New(errs.Transport, "postgres: scan count", err)
		}
		out[gameID] = n
	}
	return out, rows.Err()
}

func (p *Postgres) CountPerChannel(ctx context.Context) (map[int64]int, error) {
	rows, err := p.pool.Query(ctx, `SELECT channel_id, COUNT(*) FROM servers GROUP BY channel_id`)
	if err != nil {
		return nil, errs.New(errs.Transport, "postgres: count per channel", err)
	}
	defer rows.Close()
	out := map[int64]int{}
	for rows.Next() {
		var channelID int64
		var n int
		if err := rows.Scan(&channelID, &n); err != nil {
			return nil, errs.New(errs.Transport, "postgres: scan count", err)
		}
		out[channelID] = n
	}
	return out, rows.Err()
}

func (p *Postgres) Statistics(ctx context.Context) (Statistics, error) {
	var stats Statistics
	row := p.pool.QueryRow(ctx, `SELECT
		COUNT(DISTINCT message_id) FILTER (WHERE message_id IS NOT NULL),
		COUNT(DISTINCT channel_id),
		COUNT(DISTINCT guild_id),
		COUNT(DISTINCT (game_id, address, query_port, query_extra))
		FROM servers`)
	if err := row.Scan(&stats.Messages, &stats.Channels, &stats.Guilds, &stats.UniqueServers); err != nil {
		return Statistics{}, errs.New(errs.Transport, "postgres: statistics", err)
	}
	return stats, nil
}

func (p *Postgres) FindServer(ctx context.Context, channelID int64, address string, port int) (server.Server, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, position, guild_id, channel_id, message_id, game_id, address,
		query_port, query_extra, status, result, style_id, style_data FROM servers
		WHERE channel_id = $1 AND address = $2 AND query_port = $3`, channelID, address, port)
	srv, err := scanPostgresServer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return server.Server{}, errs.New(errs.NotFound, "postgres: server not found", nil)
		}
		return server.Server{}, err
	}
	return srv, nil
}

func (p *Postgres) AddServer(ctx context.Context, srv server.Server) (server.Server, error) {
	var existing int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM servers WHERE channel_id = $1 AND address = $2 AND query_port = $3`,
		srv.ChannelID, srv.Address, srv.QueryPort).Scan(&existing); err != nil {
		return server.Server{}, errs.New(errs.Transport, "postgres: check duplicate", err)
	}
	if existing > 0 {
		return server.Server{}, errs.New(errs.Conflict, "postgres: duplicate monitor in channel", nil)
	}

	var nextPos int
	if err := p.pool.QueryRow(ctx, `SELECT COALESCE(MAX(position)+1, 0) FROM servers WHERE channel_id = $1`, srv.ChannelID).Scan(&nextPos); err != nil {
		return server.Server{}, errs.New(errs.Transport, "postgres: next position", err)
	}

	queryExtra, _ := json.Marshal(srv.QueryExtra)
	result, _ := json.Marshal(srv.Result)
	styleData, _ := json.Marshal(srv.StyleData)
	row := p.pool.QueryRow(ctx, `INSERT INTO servers (position, guild_id, channel_id, game_id, address,
		query_port, query_extra, status, result, style_id, style_data) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		nextPos, srv.GuildID, srv.ChannelID, srv.GameID, srv.Address, srv.QueryPort, queryExtra, srv.Status, result, srv.StyleID, styleData)
	if err := row.Scan(&srv.ID); err != nil {
		return server.Server{}, errs.New(errs.Transport, "postgres: insert server", err)
	}
	srv.Position = nextPos
	return srv, nil
}

func (p *Postgres) UpdateServers(ctx context.Context, targets []DistinctProbeTarget) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return errs.New(errs.Transport, "postgres: begin tx", err)
	}
	defer tx.Rollback(ctx)

	for _, t := range targets {
		queryExtra, _ := json.Marshal(t.QueryExtra)
		result, _ := json.Marshal(t.Result)
		if _, err := tx.Exec(ctx, `UPDATE servers SET status = $1, result = $2 WHERE game_id = $3 AND address = $4 AND query_port = $5 AND query_extra = $6`,
			t.Status, result, t.GameID, t.Address, t.QueryPort, queryExtra); err != nil {
			return errs.New(errs.Transport, "postgres: update servers", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return errs.New(errs.Transport, "postgres: commit", err)
	}
	return nil
}

func (p *Postgres) UpdateServersMessageID(ctx context.Context, servers []server.Server) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return errs.New(errs.Transport, "postgres: begin tx", err)
	}
	defer tx.Rollback(ctx)
	for _, srv := range servers {
		if _, err := tx.Exec(ctx, `UPDATE servers SET message_id = $1 WHERE id = $2`, srv.MessageID, srv.ID); err != nil {
			return errs.New(errs.Transport, "postgres: update message id", err)
		}
	}
	return tx.Commit(ctx)
}

func (p *Postgres) UpdateServersStyleData(ctx context.Context, servers []server.Server) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return errs.New(errs.Transport, "postgres: begin tx", err)
	}
	defer tx.Rollback(ctx)
	for _, srv := range servers {
		styleData, _ := json.Marshal(srv.StyleData)
		if _, err := tx.Exec(ctx, `UPDATE servers SET style_data = $1 WHERE id = $2`, styleData, srv.ID); err != nil {
			return errs.New(errs.Transport, "postgres: update style data", err)
		}
	}
	return tx.Commit(ctx)
}

func (p *Postgres) UpdateServerStyleID(ctx context.Context, srv server.Server) error {
	tag, err := p.pool.Exec(ctx, `UPDATE servers SET style_id = $1 WHERE id = $2`, srv.StyleID, srv.ID)
	if err != nil {
		return errs.New(errs.Transport, "postgres: update style id", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.NotFound, "postgres: server not found", nil)
	}
	return nil
}

func (p *Postgres) MoveServer(ctx context.Context, srv server.Server, direction MoveDirection) error {
	cmp, order := "<", "DESC"
	if direction == MoveDown {
		cmp, order = ">", "ASC"
	}
	row := p.pool.QueryRow(ctx, fmt.Sprintf(`SELECT id, position, message_id FROM servers
		WHERE channel_id = $1 AND position %s $2 ORDER BY position %s LIMIT 1`, cmp, order), srv.ChannelID, srv.Position)

	var adjID, adjPosition int64
	var adjMessageID *int64
	if err := row.Scan(&adjID, &adjPosition, &adjMessageID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil // already at boundary
		}
		return errs.New(errs.Transport, "postgres: find adjacent server", err)
	}
	if srv.MessageID == nil || adjMessageID == nil {
		return nil // no-op when either message is unpublished
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return errs.New(errs.Transport, "postgres: begin tx", err)
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, `UPDATE servers SET position = $1, message_id = $2 WHERE id = $3`, adjPosition, *adjMessageID, srv.ID); err != nil {
		return errs.New(errs.Transport, "postgres: swap position", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE servers SET position = $1, message_id = $2 WHERE id = $3`, srv.Position, *srv.MessageID, adjID); err != nil {
		return errs.New(errs.Transport, "postgres: swap position", err)
	}
	return tx.Commit(ctx)
}

func (p *Postgres) MoveServersToChannel(ctx context.Context, servers []server.Server, newChannelID int64) error {
	var nextPos int
	if err := p.pool.QueryRow(ctx, `SELECT COALESCE(MAX(position)+1, 0) FROM servers WHERE channel_id = $1`, newChannelID).Scan(&nextPos); err != nil {
		return errs.New(errs.Transport, "postgres: next position", err)
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return errs.New(errs.Transport, "postgres: begin tx", err)
	}
	defer tx.Rollback(ctx)
	for _, srv := range servers {
		if _, err := tx.Exec(ctx, `UPDATE servers SET channel_id = $1, position = $2 WHERE id = $3`, newChannelID, nextPos, srv.ID); err != nil {
			return errs.New(errs.Transport, "postgres: move to channel", err)
		}
		nextPos++
	}
	return tx.Commit(ctx)
}

func (p *Postgres) DeleteServers(ctx context.Context, filter Filter) error {
	where, args := postgresFilterClause(filter)
	if where == "" {
		return errs.New(errs.InvalidInput, "postgres: refusing unfiltered delete", nil)
	}
	if _, err := p.pool.Exec(ctx, `DELETE FROM servers`+where, args...); err != nil {
		return errs.New(errs.Transport, "postgres: delete servers", err)
	}
	return nil
}

// UpdateMetrics batch-inserts one ring-buffer sample per target using
// pgx's CopyFrom, the fast path for bulk inserts pgx ships natively.
func (p *Postgres) UpdateMetrics(ctx context.Context, targets []DistinctProbeTarget) error {
	if p.metricLimit <= 0 {
		return nil
	}
	now := time.Now().Unix()
	rows := make([][]any, len(targets))
	keys := make([]string, len(targets))
	for i, t := range targets {
		key := t.Key()
		distinctKey := fmt.Sprintf("%s|%s|%d|%s", key.GameID, key.Address, key.QueryPort, key.QueryExtra)
		keys[i] = distinctKey
		rows[i] = []any{distinctKey, t.Status, t.Result.NumPlayers, t.Result.NumBots, t.Result.MaxPlayers, now}
	}
	_, err := p.pool.CopyFrom(ctx, pgx.Identifier{"metrics"},
		[]string{"distinct_key", "status", "numplayers", "numbots", "maxplayers", "captured_at"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return errs.New(errs.Transport, "postgres: copy metrics", err)
	}

	// Trim the ring buffer: keep only the most recent metricLimit rows per
	// distinct endpoint touched by this batch.
	for _, key := range keys {
		if _, err := p.pool.Exec(ctx, `DELETE FROM metrics WHERE distinct_key = $1 AND captured_at < (
			SELECT captured_at FROM metrics WHERE distinct_key = $1 ORDER BY captured_at DESC OFFSET $2 LIMIT 1)`,
			key, p.metricLimit-1); err != nil {
			return errs.New(errs.Transport, "postgres: trim metrics", err)
		}
	}
	return nil
}

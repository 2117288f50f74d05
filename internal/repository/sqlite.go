package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "modernc.org/sqlite"

	"github.com/DiscordGSM/GameServerMonitor/internal/errs"
	"github.com/DiscordGSM/GameServerMonitor/internal/logger"
	"github.com/DiscordGSM/GameServerMonitor/internal/server"
)

// SQLite is the local/dev Repository backend, built on modernc.org/sqlite's
// cgo-free database/sql driver. It is also the default backend when
// DB_CONNECTION/DATABASE_URL are unset, matching
// original_source/discordgsm/database.py's sqlite-default behavior.
type SQLite struct {
	db          *sql.DB
	l           *logger.Logger
	metricLimit int
}

// OpenSQLite opens (creating if necessary) the database file at path and
// applies the schema. Connection establishment retries with a bounded
// exponential backoff, since a freshly-started container's volume mount
// can lag the process by a beat. metricLimit is METRICS_RECORD_LIMIT; 0
// disables the ring buffer trim (UpdateMetrics becomes a no-op).
func OpenSQLite(ctx context.Context, path string, metricLimit int, l *logger.Logger) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errs.New(errs.Transport, "sqlite: open", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid SQLITE_BUSY storms

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
	if err := backoff.Retry(func() error { return db.PingContext(ctx) }, backoff.WithContext(policy, ctx)); err != nil {
		db.Close()
		return nil, errs.New(errs.Transport, "sqlite: ping", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, errs.New(errs.Transport, "sqlite: apply schema", err)
	}

	return &SQLite{db: db, l: l.Named("repository.sqlite"), metricLimit: metricLimit}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) AllServers(ctx context.Context, filter Filter) ([]server.Server, error) {
	where, args := sqliteFilterClause(filter)
	rows, err := s.db.QueryContext(ctx, `SELECT id, position, guild_id, channel_id, message_id, game_id, address,
		query_port, query_extra, status, result, style_id, style_data FROM servers`+where+` ORDER BY channel_id, position`, args...)
	if err != nil {
		return nil, errs.New(errs.Transport, "sqlite: query servers", err)
	}
	defer rows.Close()

	var out []server.Server
	for rows.Next() {
		srv, err := scanSQLiteServer(rows)
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

func sqliteFilterClause(f Filter) (string, []any) {
	var clauses []string
	var args []any
	if f.GuildID != 0 {
		clauses = append(clauses, "guild_id = ?")
		args = append(args, f.GuildID)
	}
	if f.ChannelID != 0 {
		clauses = append(clauses, "channel_id = ?")
		args = append(args, f.ChannelID)
	}
	if f.MessageID != 0 {
		clauses = append(clauses, "message_id = ?")
		args = append(args, f.MessageID)
	}
	if f.GameID != "" {
		clauses = append(clauses, "game_id = ?")
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

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteServer(row sqlScanner) (server.Server, error) {
	var s server.Server
	var messageID sql.NullInt64
	var queryExtra, result, styleData string
	var status int
	if err := row.Scan(&s.ID, &s.Position, &s.GuildID, &s.ChannelID, &messageID, &s.GameID, &s.Address,
		&s.QueryPort, &queryExtra, &status, &result, &s.StyleID, &styleData); err != nil {
		return server.Server{}, errs.New(errs.Transport, "sqlite: scan server", err)
	}
	if messageID.Valid {
		s.MessageID = &messageID.Int64
	}
	s.Status = status != 0
	if err := json.Unmarshal([]byte(queryExtra), &s.QueryExtra); err != nil {
		return server.Server{}, errs.New(errs.Protocol, "sqlite: decode query_extra", err)
	}
	if err := json.Unmarshal([]byte(result), &s.Result); err != nil {
		return server.Server{}, errs.New(errs.Protocol, "sqlite: decode result", err)
	}
	if err := json.Unmarshal([]byte(styleData), &s.StyleData); err != nil {
		return server.Server{}, errs.New(errs.Protocol, "sqlite: decode style_data", err)
	}
	return s, nil
}

func (s *SQLite) DistinctServers(ctx context.Context) ([]DistinctProbeTarget, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT game_id, address, query_port, query_extra, status, result
		FROM servers GROUP BY game_id, address, query_port, query_extra ORDER BY game_id, address, query_port`)
	if err != nil {
		return nil, errs.New(errs.Transport, "sqlite: distinct servers", err)
	}
	defer rows.Close()

	var out []DistinctProbeTarget
	for rows.Next() {
		var t DistinctProbeTarget
		var queryExtra, result string
		var status int
		if err := rows.Scan(&t.GameID, &t.Address, &t.QueryPort, &queryExtra, &status, &result); err != nil {
			return nil, errs.New(errs.Transport, "sqlite: scan distinct server", err)
		}
		t.Status = status != 0
		_ = json.Unmarshal([]byte(queryExtra), &t.QueryExtra)
		_ = json.Unmarshal([]byte(result), &t.Result)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLite) CountPerGame(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT game_id, COUNT(*) FROM servers GROUP BY game_id`)
	if err != nil {
		return nil, errs.New(errs.Transport, "sqlite: count per game", err)
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var gameID string
		var n int
		if err := rows.Scan(&gameID, &n); err != nil {
			return nil, errs.New(errs.Transport, "sqlite: scan count", err)
		}
		out[gameID] = n
	}
	return out, rows.Err()
}

func (s *SQLite) CountPerChannel(ctx context.Context) (map[int64]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT channel_id, COUNT(*) FROM servers GROUP BY channel_id`)
	if err != nil {
		return nil, errs.New(errs.Transport, "sqlite: count per channel", err)
	}
	defer rows.Close()
	out := map[int64]int{}
	for rows.Next() {
		var channelID int64
		var n int
		if err := rows.Scan(&channelID, &n); err != nil {
			return nil, errs.New(errs.Transport, "sqlite: scan count", err)
		}
		out[channelID] = n
	}
	return out, rows.Err()
}

func (s *SQLite) Statistics(ctx context.Context) (Statistics, error) {
	var stats Statistics
	row := s.db.QueryRowContext(ctx, `SELECT
		COUNT(DISTINCT message_id) FILTER (WHERE message_id IS NOT NULL),
		COUNT(DISTINCT channel_id),
		COUNT(DISTINCT guild_id),
		COUNT(DISTINCT game_id || '|' || address || '|' || query_port || '|' || query_extra)
		FROM servers`)
	if err := row.Scan(&stats.Messages, &stats.Channels, &stats.Guilds, &stats.UniqueServers); err != nil {
		return Statistics{}, errs.New(errs.Transport, "sqlite: statistics", err)
	}
	return stats, nil
}

func (s *SQLite) FindServer(ctx context.Context, channelID int64, address string, port int) (server.Server, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, position, guild_id, channel_id, message_id, game_id, address,
		query_port, query_extra, status, result, style_id, style_data FROM servers
		WHERE channel_id = ? AND address = ? AND query_port = ?`, channelID, address, port)
	srv, err := scanSQLiteServer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return server.Server{}, errs.New(errs.NotFound, "sqlite: server not found", nil)
		}
		return server.Server{}, err
	}
	return srv, nil
}

func (s *SQLite) AddServer(ctx context.Context, srv server.Server) (server.Server, error) {
	var existing int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM servers WHERE channel_id = ? AND address = ? AND query_port = ?`,
		srv.ChannelID, srv.Address, srv.QueryPort).Scan(&existing); err != nil {
		return server.Server{}, errs.New(errs.Transport, "sqlite: check duplicate", err)
	}
	if existing > 0 {
		return server.Server{}, errs.New(errs.Conflict, "sqlite: duplicate monitor in channel", nil)
	}

	var nextPos int
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(position)+1, 0) FROM servers WHERE channel_id = ?`, srv.ChannelID).Scan(&nextPos); err != nil {
		return server.Server{}, errs.New(errs.Transport, "sqlite: next position", err)
	}

	queryExtra, _ := json.Marshal(srv.QueryExtra)
	result, _ := json.Marshal(srv.Result)
	styleData, _ := json.Marshal(srv.StyleData)
	res, err := s.db.ExecContext(ctx, `INSERT INTO servers (position, guild_id, channel_id, game_id, address,
		query_port, query_extra, status, result, style_id, style_data) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nextPos, srv.GuildID, srv.ChannelID, srv.GameID, srv.Address, srv.QueryPort, string(queryExtra), srv.Status, string(result), srv.StyleID, string(styleData))
	if err != nil {
		return server.Server{}, errs.New(errs.Transport, "sqlite: insert server", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return server.Server{}, errs.New(errs.Transport, "sqlite: last insert id", err)
	}
	srv.ID = id
	srv.Position = nextPos
	return srv, nil
}

func (s *SQLite) UpdateServers(ctx context.Context, targets []DistinctProbeTarget) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.New(errs.Transport, "sqlite: begin tx", err)
	}
	defer tx.Rollback()

	for _, t := range targets {
		queryExtra, _ := json.Marshal(t.QueryExtra)
		result, _ := json.Marshal(t.Result)
		if _, err := tx.ExecContext(ctx, `UPDATE servers SET status = ?, result = ? WHERE game_id = ? AND address = ? AND query_port = ? AND query_extra = ?`,
			t.Status, string(result), t.GameID, t.Address, t.QueryPort, string(queryExtra)); err != nil {
			return errs.New(errs.Transport, "sqlite: update servers", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errs.New(errs.Transport, "sqlite: commit", err)
	}
	return nil
}

func (s *SQLite) UpdateServersMessageID(ctx context.Context, servers []server.Server) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.New(errs.Transport, "sqlite: begin tx", err)
	}
	defer tx.Rollback()
	for _, srv := range servers {
		if _, err := tx.ExecContext(ctx, `UPDATE servers SET message_id = ? WHERE id = ?`, srv.MessageID, srv.ID); err != nil {
			return errs.New(errs.Transport, "sqlite: update message id", err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) UpdateServersStyleData(ctx context.Context, servers []server.Server) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.New(errs.Transport, "sqlite: begin tx", err)
	}
	defer tx.Rollback()
	for _, srv := range servers {
		styleData, _ := json.Marshal(srv.StyleData)
		if _, err := tx.ExecContext(ctx, `UPDATE servers SET style_data = ? WHERE id = ?`, string(styleData), srv.ID); err != nil {
			return errs.New(errs.Transport, "sqlite: update style data", err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) UpdateServerStyleID(ctx context.Context, srv server.Server) error {
	res, err := s.db.ExecContext(ctx, `UPDATE servers SET style_id = ? WHERE id = ?`, srv.StyleID, srv.ID)
	if err != nil {
		return errs.New(errs.Transport, "sqlite: update style id", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.New(errs.NotFound, "sqlite: server not found", nil)
	}
	return nil
}

func (s *SQLite) MoveServer(ctx context.Context, srv server.Server, direction MoveDirection) error {
	cmp, order := "<", "DESC"
	if direction == MoveDown {
		cmp, order = ">", "ASC"
	}
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT id, position, message_id FROM servers
		WHERE channel_id = ? AND position %s ? ORDER BY position %s LIMIT 1`, cmp, order), srv.ChannelID, srv.Position)

	var adjID, adjPosition int64
	var adjMessageID sql.NullInt64
	if err := row.Scan(&adjID, &adjPosition, &adjMessageID); err != nil {
		if err == sql.ErrNoRows {
			return nil // already at boundary
		}
		return errs.New(errs.Transport, "sqlite: find adjacent server", err)
	}
	if srv.MessageID == nil || !adjMessageID.Valid {
		return nil // no-op when either message is unpublished
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.New(errs.Transport, "sqlite: begin tx", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `UPDATE servers SET position = ?, message_id = ? WHERE id = ?`, adjPosition, adjMessageID.Int64, srv.ID); err != nil {
		return errs.New(errs.Transport, "sqlite: swap position", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE servers SET position = ?, message_id = ? WHERE id = ?`, srv.Position, *srv.MessageID, adjID); err != nil {
		return errs.New(errs.Transport, "sqlite: swap position", err)
	}
	return tx.Commit()
}

func (s *SQLite) MoveServersToChannel(ctx context.Context, servers []server.Server, newChannelID int64) error {
	var nextPos int
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(position)+1, 0) FROM servers WHERE channel_id = ?`, newChannelID).Scan(&nextPos); err != nil {
		return errs.New(errs.Transport, "sqlite: next position", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.New(errs.Transport, "sqlite: begin tx", err)
	}
	defer tx.Rollback()
	for _, srv := range servers {
		if _, err := tx.ExecContext(ctx, `UPDATE servers SET channel_id = ?, position = ? WHERE id = ?`, newChannelID, nextPos, srv.ID); err != nil {
			return errs.New(errs.Transport, "sqlite: move to channel", err)
		}
		nextPos++
	}
	return tx.Commit()
}

func (s *SQLite) DeleteServers(ctx context.Context, filter Filter) error {
	where, args := sqliteFilterClause(filter)
	if where == "" {
		return errs.New(errs.InvalidInput, "sqlite: refusing unfiltered delete", nil)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM servers`+where, args...); err != nil {
		return errs.New(errs.Transport, "sqlite: delete servers", err)
	}
	return nil
}

func (s *SQLite) UpdateMetrics(ctx context.Context, targets []DistinctProbeTarget) error {
	if s.metricLimit <= 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.New(errs.Transport, "sqlite: begin tx", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, t := range targets {
		key := t.Key()
		distinctKey := fmt.Sprintf("%s|%s|%d|%s", key.GameID, key.Address, key.QueryPort, key.QueryExtra)
		if _, err := tx.ExecContext(ctx, `INSERT INTO metrics (distinct_key, status, numplayers, numbots, maxplayers, captured_at)
			VALUES (?, ?, ?, ?, ?, ?)`, distinctKey, t.Status, t.Result.NumPlayers, t.Result.NumBots, t.Result.MaxPlayers, now); err != nil {
			return errs.New(errs.Transport, "sqlite: insert metric", err)
		}
		// Trim the ring buffer: keep only the most recent metricLimit rows
		// for this distinct endpoint.
		if _, err := tx.ExecContext(ctx, `DELETE FROM metrics WHERE distinct_key = ? AND rowid NOT IN (
			SELECT rowid FROM metrics WHERE distinct_key = ? ORDER BY captured_at DESC LIMIT ?)`,
			distinctKey, distinctKey, s.metricLimit); err != nil {
			return errs.New(errs.Transport, "sqlite: trim metrics", err)
		}
	}
	return tx.Commit()
}

package repository

// sqliteSchema and postgresSchema are applied once at startup (idempotent
// via IF NOT EXISTS). query_extra/style_data are stored as JSON text since
// both backends need the same loosely-typed map shape and neither schema
// needs to query into them server-side.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS servers (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	position    INTEGER NOT NULL DEFAULT 0,
	guild_id    INTEGER NOT NULL,
	channel_id  INTEGER NOT NULL,
	message_id  INTEGER,
	game_id     TEXT NOT NULL,
	address     TEXT NOT NULL,
	query_port  INTEGER NOT NULL,
	query_extra TEXT NOT NULL DEFAULT '{}',
	status      INTEGER NOT NULL DEFAULT 0,
	result      TEXT NOT NULL DEFAULT '{}',
	style_id    TEXT NOT NULL DEFAULT '',
	style_data  TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_servers_channel ON servers(channel_id);
CREATE INDEX IF NOT EXISTS idx_servers_guild ON servers(guild_id);
CREATE INDEX IF NOT EXISTS idx_servers_distinct ON servers(game_id, address, query_port);

CREATE TABLE IF NOT EXISTS metrics (
	distinct_key TEXT NOT NULL,
	status       INTEGER NOT NULL,
	numplayers   INTEGER NOT NULL,
	numbots      INTEGER NOT NULL,
	maxplayers   INTEGER NOT NULL,
	captured_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_metrics_key ON metrics(distinct_key, captured_at);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS servers (
	id          BIGSERIAL PRIMARY KEY,
	position    INTEGER NOT NULL DEFAULT 0,
	guild_id    BIGINT NOT NULL,
	channel_id  BIGINT NOT NULL,
	message_id  BIGINT,
	game_id     TEXT NOT NULL,
	address     TEXT NOT NULL,
	query_port  INTEGER NOT NULL,
	query_extra JSONB NOT NULL DEFAULT '{}',
	status      BOOLEAN NOT NULL DEFAULT false,
	result      JSONB NOT NULL DEFAULT '{}',
	style_id    TEXT NOT NULL DEFAULT '',
	style_data  JSONB NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_servers_channel ON servers(channel_id);
CREATE INDEX IF NOT EXISTS idx_servers_guild ON servers(guild_id);
CREATE INDEX IF NOT EXISTS idx_servers_distinct ON servers(game_id, address, query_port);

CREATE TABLE IF NOT EXISTS metrics (
	distinct_key TEXT NOT NULL,
	status       BOOLEAN NOT NULL,
	numplayers   INTEGER NOT NULL,
	numbots      INTEGER NOT NULL,
	maxplayers   INTEGER NOT NULL,
	captured_at  BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_metrics_key ON metrics(distinct_key, captured_at);
`

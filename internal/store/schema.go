package store

// schema is applied once at startup (CREATE TABLE IF NOT EXISTS), grounded
// on the WAL + foreign-key pragmas used in the tangled.sh-mirror db.go
// example and the table layout named in spec.md §6.
const schema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS nodes (
	uuid               TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	icon               BLOB,
	version            INTEGER NOT NULL DEFAULT 1,
	root_cotonoma_id   TEXT,
	created_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS local_node (
	node_id                   TEXT PRIMARY KEY REFERENCES nodes(uuid),
	owner_password_hash       TEXT,
	owner_session_token       TEXT,
	owner_session_expires_at  DATETIME,
	image_max_size            INTEGER,
	anonymous_read_enabled    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS server_nodes (
	node_id             TEXT PRIMARY KEY REFERENCES nodes(uuid),
	url_prefix          TEXT NOT NULL,
	encrypted_password  BLOB,
	disabled            INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS client_nodes (
	node_id        TEXT PRIMARY KEY REFERENCES nodes(uuid),
	password_hash  TEXT NOT NULL,
	session_token  TEXT
);

CREATE TABLE IF NOT EXISTS parent_nodes (
	node_id           TEXT PRIMARY KEY REFERENCES nodes(uuid),
	changes_received  INTEGER NOT NULL DEFAULT 0,
	forked            INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS child_nodes (
	node_id        TEXT PRIMARY KEY REFERENCES nodes(uuid),
	as_owner       INTEGER NOT NULL DEFAULT 0,
	can_edit_itos  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS cotonomas (
	uuid        TEXT PRIMARY KEY,
	node_id     TEXT NOT NULL REFERENCES nodes(uuid),
	coto_id     TEXT NOT NULL,
	name        TEXT NOT NULL,
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cotonomas_node ON cotonomas(node_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_cotonomas_coto ON cotonomas(coto_id);

CREATE TABLE IF NOT EXISTS cotos (
	uuid              TEXT PRIMARY KEY,
	node_id           TEXT NOT NULL REFERENCES nodes(uuid),
	posted_in_id      TEXT REFERENCES cotonomas(uuid),
	posted_by_id      TEXT NOT NULL REFERENCES nodes(uuid),
	content           TEXT,
	summary           TEXT,
	media_content     BLOB,
	media_mime        TEXT,
	geo_longitude     REAL,
	geo_latitude      REAL,
	datetime_start    DATETIME,
	datetime_end      DATETIME,
	is_cotonoma       INTEGER NOT NULL DEFAULT 0,
	repost_of_id      TEXT REFERENCES cotos(uuid),
	reposted_in_ids   TEXT NOT NULL DEFAULT '[]',
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cotos_posted_in ON cotos(posted_in_id);
CREATE INDEX IF NOT EXISTS idx_cotos_node ON cotos(node_id);
CREATE INDEX IF NOT EXISTS idx_cotos_created_at ON cotos(created_at);

CREATE TABLE IF NOT EXISTS itos (
	uuid            TEXT PRIMARY KEY,
	node_id         TEXT NOT NULL REFERENCES nodes(uuid),
	created_by_id   TEXT NOT NULL REFERENCES nodes(uuid),
	source_coto_id  TEXT NOT NULL REFERENCES cotos(uuid),
	target_coto_id  TEXT NOT NULL REFERENCES cotos(uuid),
	description     TEXT,
	details         TEXT,
	"order"         INTEGER NOT NULL,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_itos_source_order ON itos(node_id, source_coto_id, "order");
CREATE INDEX IF NOT EXISTS idx_itos_target ON itos(target_coto_id);

CREATE TABLE IF NOT EXISTS changelog (
	serial_number         INTEGER PRIMARY KEY AUTOINCREMENT,
	origin_node_id        TEXT NOT NULL,
	origin_serial_number  INTEGER NOT NULL,
	change                BLOB NOT NULL,
	import_error          TEXT,
	inserted_at           DATETIME NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_changelog_origin ON changelog(origin_node_id, origin_serial_number);
`

package store

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	id              TEXT PRIMARY KEY,
	username        TEXT NOT NULL UNIQUE,
	email           TEXT NOT NULL UNIQUE,
	password_hash   TEXT NOT NULL DEFAULT '',
	api_key_hash    TEXT NOT NULL DEFAULT '',
	role            TEXT NOT NULL DEFAULT 'user',
	is_active       INTEGER NOT NULL DEFAULT 1,
	failed_attempts INTEGER NOT NULL DEFAULT 0,
	locked_until    DATETIME,
	last_login_at   DATETIME,
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_users_api_key ON users(api_key_hash) WHERE api_key_hash != '';

CREATE TABLE IF NOT EXISTS collections (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	owner_id    TEXT NOT NULL REFERENCES users(id),
	is_public   INTEGER NOT NULL DEFAULT 0,
	tags        TEXT NOT NULL DEFAULT '[]',
	metadata    TEXT NOT NULL DEFAULT '{}',
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(owner_id, name)
);

CREATE TABLE IF NOT EXISTS permissions (
	collection_id TEXT NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
	user_id       TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	level         TEXT NOT NULL,
	granted_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (collection_id, user_id)
);

CREATE TABLE IF NOT EXISTS context_items (
	id            TEXT PRIMARY KEY,
	collection_id TEXT NOT NULL REFERENCES collections(id),
	title         TEXT NOT NULL,
	content       TEXT NOT NULL,
	content_type  TEXT NOT NULL DEFAULT 'text/plain',
	source_url    TEXT NOT NULL DEFAULT '',
	source_type   TEXT NOT NULL DEFAULT 'manual',
	content_hash  TEXT NOT NULL,
	size_bytes    INTEGER NOT NULL DEFAULT 0,
	tags          TEXT NOT NULL DEFAULT '[]',
	metadata      TEXT NOT NULL DEFAULT '{}',
	version       INTEGER NOT NULL DEFAULT 1,
	is_active     INTEGER NOT NULL DEFAULT 1,
	created_by    TEXT NOT NULL DEFAULT '',
	updated_by    TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Uniqueness is scoped to active items: deactivating an item frees its
-- hash for re-creation. The index, not the advisory pre-check, is the
-- final arbiter for duplicate-create races.
CREATE UNIQUE INDEX IF NOT EXISTS idx_items_hash_active
	ON context_items(content_hash) WHERE is_active = 1;

CREATE INDEX IF NOT EXISTS idx_items_collection ON context_items(collection_id);

CREATE TABLE IF NOT EXISTS item_versions (
	item_id        TEXT NOT NULL REFERENCES context_items(id),
	version        INTEGER NOT NULL,
	title          TEXT NOT NULL,
	content        TEXT NOT NULL,
	metadata       TEXT NOT NULL DEFAULT '{}',
	change_summary TEXT NOT NULL DEFAULT '',
	created_by     TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (item_id, version)
);

CREATE TABLE IF NOT EXISTS audit_log (
	id            TEXT PRIMARY KEY,
	actor_id      TEXT,
	action        TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id   TEXT,
	old_value     TEXT,
	new_value     TEXT,
	metadata      TEXT,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at);
CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_log(action);

CREATE TABLE IF NOT EXISTS search_analytics (
	id             TEXT PRIMARY KEY,
	actor_id       TEXT,
	query          TEXT NOT NULL,
	search_type    TEXT NOT NULL,
	result_count   INTEGER NOT NULL DEFAULT 0,
	execution_ms   INTEGER NOT NULL DEFAULT 0,
	collection_ids TEXT NOT NULL DEFAULT '[]',
	created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_analytics_created ON search_analytics(created_at);
`

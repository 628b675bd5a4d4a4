package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "graphs: one memory graph per subject",
		SQL: `
CREATE TABLE graphs (
    id               INTEGER PRIMARY KEY,
    subject_id       TEXT NOT NULL UNIQUE,
    node_count       INTEGER NOT NULL DEFAULT 0 CHECK (node_count >= 0),
    edge_count       INTEGER NOT NULL DEFAULT 0 CHECK (edge_count >= 0),
    version          INTEGER NOT NULL DEFAULT 0,
    oldest_memory_at INTEGER,
    newest_memory_at INTEGER,
    created_at       INTEGER NOT NULL,
    updated_at       INTEGER NOT NULL
);
`,
	},
	{
		Version:     2,
		Description: "nodes: memories with gravity, salience and depth",
		SQL: `
CREATE TABLE nodes (
    id               INTEGER PRIMARY KEY,
    graph_id         INTEGER NOT NULL,
    content          TEXT NOT NULL,
    content_hash     TEXT NOT NULL,
    node_type        TEXT NOT NULL CHECK (node_type IN (
                         'episodic', 'semantic', 'procedural', 'emotional', 'sensory',
                         'conversation', 'concept', 'insight', 'decision', 'pattern',
                         'question', 'contradiction', 'fact')),
    gravity          REAL NOT NULL CHECK (gravity >= 0),
    salience         REAL NOT NULL CHECK (salience >= 0),
    depth            REAL NOT NULL DEFAULT 0 CHECK (depth >= 0),
    confidence       REAL NOT NULL DEFAULT 1.0 CHECK (confidence BETWEEN 0 AND 1),
    strength         REAL NOT NULL DEFAULT 1.0,
    source_type      TEXT,
    source_id        TEXT,
    access_count     INTEGER NOT NULL DEFAULT 0,
    created_at       INTEGER NOT NULL,
    last_accessed_at INTEGER NOT NULL,

    FOREIGN KEY (graph_id) REFERENCES graphs(id)
);

CREATE INDEX idx_nodes_graph_gravity ON nodes(graph_id, gravity DESC);
CREATE INDEX idx_nodes_graph_hash    ON nodes(graph_id, content_hash);
CREATE INDEX idx_nodes_graph_created ON nodes(graph_id, created_at DESC);

CREATE TABLE node_tags (
    node_id INTEGER NOT NULL,
    tag     TEXT NOT NULL,
    PRIMARY KEY (node_id, tag),
    FOREIGN KEY (node_id) REFERENCES nodes(id)
);

CREATE INDEX idx_node_tags_tag ON node_tags(tag);
`,
	},
	{
		Version:     3,
		Description: "edges: typed weighted relations inside a graph",
		SQL: `
CREATE TABLE edges (
    id            INTEGER PRIMARY KEY,
    graph_id      INTEGER NOT NULL,
    source_id     INTEGER NOT NULL,
    target_id     INTEGER NOT NULL,
    relation_type TEXT NOT NULL CHECK (relation_type IN (
                      'references', 'develops', 'contradicts', 'branches', 'causes',
                      'supports', 'temporal', 'semantic', 'precedes')),
    weight        REAL NOT NULL DEFAULT 1.0 CHECK (weight BETWEEN 0 AND 1),
    context       TEXT,
    created_at    INTEGER NOT NULL,

    UNIQUE (source_id, target_id, relation_type),
    FOREIGN KEY (graph_id)  REFERENCES graphs(id),
    FOREIGN KEY (source_id) REFERENCES nodes(id),
    FOREIGN KEY (target_id) REFERENCES nodes(id)
);

CREATE INDEX idx_edges_source ON edges(source_id);
CREATE INDEX idx_edges_target ON edges(target_id);
CREATE INDEX idx_edges_graph  ON edges(graph_id);
`,
	},
	{
		Version:     4,
		Description: "node_vectors: content embeddings",
		SQL: `
CREATE TABLE node_vectors (
    node_id    INTEGER PRIMARY KEY,
    embedding  BLOB NOT NULL,
    model      TEXT NOT NULL,
    dimensions INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (node_id) REFERENCES nodes(id)
);
`,
	},
	{
		Version:     5,
		Description: "ledger: append-only narrative log",
		SQL: `
CREATE TABLE ledger (
    id              INTEGER PRIMARY KEY,
    entry_id        TEXT NOT NULL UNIQUE,
    subject_id      TEXT NOT NULL,
    entry_type      TEXT NOT NULL CHECK (entry_type IN (
                        'observation', 'inference', 'commitment', 'question',
                        'decision', 'pattern', 'surfaced')),
    content         TEXT NOT NULL,
    confidence      REAL NOT NULL DEFAULT 1.0 CHECK (confidence BETWEEN 0 AND 1),
    related_node_id INTEGER,
    actor           TEXT NOT NULL,
    created_at      INTEGER NOT NULL
);

CREATE INDEX idx_ledger_subject_created ON ledger(subject_id, created_at DESC, id DESC);

CREATE TRIGGER ledger_no_update BEFORE UPDATE ON ledger
BEGIN
    SELECT RAISE(ABORT, 'ledger is append-only');
END;

CREATE TRIGGER ledger_no_delete BEFORE DELETE ON ledger
BEGIN
    SELECT RAISE(ABORT, 'ledger is append-only');
END;
`,
	},
	{
		Version:     6,
		Description: "node_audit: forensic trail of deleted nodes",
		SQL: `
CREATE TABLE node_audit (
    id           INTEGER PRIMARY KEY,
    graph_id     INTEGER NOT NULL,
    node_id      INTEGER NOT NULL,
    content_hash TEXT NOT NULL,
    node_type    TEXT NOT NULL,
    actor        TEXT NOT NULL,
    reason       TEXT,
    deleted_at   INTEGER NOT NULL
);

CREATE INDEX idx_node_audit_graph ON node_audit(graph_id, deleted_at DESC);
`,
	},
	{
		Version:     7,
		Description: "sessions: subconscious run tracking",
		SQL: `
CREATE TABLE sessions (
    id          INTEGER PRIMARY KEY,
    subject_id  TEXT NOT NULL,
    session_id  TEXT NOT NULL,
    status      TEXT NOT NULL CHECK (status IN ('processing', 'completed', 'failed')),
    ops_applied INTEGER NOT NULL DEFAULT 0,
    error       TEXT,
    started_at  INTEGER NOT NULL,
    finished_at INTEGER,

    UNIQUE (subject_id, session_id)
);

CREATE INDEX idx_sessions_started_at ON sessions(started_at DESC);
`,
	},
}

func (db *DB) migrate() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}

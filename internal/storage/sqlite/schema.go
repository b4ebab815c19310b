// ABOUTME: SQLite database schema for the duet stores
// ABOUTME: Creates relationship, history, fact, memory, and vector tables
package sqlite

// Schema contains all SQL statements for database initialization.
// Timestamps are unix milliseconds.
const Schema = `
-- Per-conversation emotion state for both personas
CREATE TABLE IF NOT EXISTS relationships (
    conversation_id TEXT PRIMARY KEY,
    demon_affection INTEGER NOT NULL,
    demon_trust INTEGER NOT NULL,
    demon_mood INTEGER NOT NULL,
    angel_affection INTEGER NOT NULL,
    angel_trust INTEGER NOT NULL,
    angel_mood INTEGER NOT NULL,
    last_user_activity INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

-- One JSON history blob per conversation
CREATE TABLE IF NOT EXISTS histories (
    conversation_id TEXT PRIMARY KEY,
    entries TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

-- Scoped facts, unique per conversation and key
CREATE TABLE IF NOT EXISTS facts (
    conversation_id TEXT NOT NULL,
    key TEXT NOT NULL,
    detail TEXT NOT NULL,
    scope TEXT NOT NULL CHECK (scope IN ('user', 'agent', 'us')),
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (conversation_id, key)
);

-- Episodic long-term memories
CREATE TABLE IF NOT EXISTS memories (
    id TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL DEFAULT '',
    type TEXT NOT NULL,
    trigger_text TEXT NOT NULL DEFAULT '',
    action TEXT NOT NULL DEFAULT '',
    result TEXT NOT NULL DEFAULT '',
    importance REAL NOT NULL DEFAULT 0,
    reflection TEXT,
    created_at INTEGER NOT NULL
);

-- Embedded memories; sql_id is a best-effort link to memories.id
CREATE TABLE IF NOT EXISTS vectors (
    id TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL DEFAULT '',
    text TEXT NOT NULL,
    source TEXT NOT NULL DEFAULT '',
    original_type TEXT NOT NULL DEFAULT '',
    sql_id TEXT,
    vector BLOB NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_relationships_activity ON relationships(last_user_activity);
CREATE INDEX IF NOT EXISTS idx_memories_conversation ON memories(conversation_id, created_at);
CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(type, created_at);
CREATE INDEX IF NOT EXISTS idx_vectors_conversation ON vectors(conversation_id);
CREATE INDEX IF NOT EXISTS idx_vectors_sql_id ON vectors(sql_id);
`

// SchemaVersion is the current schema version for migrations
const SchemaVersion = 1

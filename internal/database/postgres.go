package database

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
)

// rebind converts ? placeholders to $1, $2, ... for PostgreSQL.
// This is used throughout the database package for parameterized queries.
func rebind(query string) string {
	n := 1
	out := strings.Builder{}
	for _, ch := range query {
		if ch == '?' {
			out.WriteString(fmt.Sprintf("$%d", n))
			n++
		} else {
			out.WriteRune(ch)
		}
	}
	return out.String()
}

// NewPostgres creates a PostgreSQL database connection.
func NewPostgres(dsn string) (*Database, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	d := &Database{db: db}

	// Initialize schema
	if err := d.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return d, nil
}

// initSchema creates the tables used by the coaching engine. The pgvector
// extension must be installable by the connecting role.
func (d *Database) initSchema() error {
	schema := `
	CREATE EXTENSION IF NOT EXISTS vector;

	-- One conversation per user per program stage
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		stage_number INTEGER NOT NULL,
		turn_count INTEGER NOT NULL DEFAULT 0,
		metadata JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	-- Individual user and assistant messages
	CREATE TABLE IF NOT EXISTS turns (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);

	-- Program stage progression per user
	CREATE TABLE IF NOT EXISTS stage_progress (
		user_id TEXT NOT NULL,
		stage_number INTEGER NOT NULL,
		completed_at TIMESTAMPTZ,
		unlocked_at TIMESTAMPTZ,
		PRIMARY KEY (user_id, stage_number)
	);

	-- Exemplar coaching exchanges with precomputed embeddings
	CREATE TABLE IF NOT EXISTS coaching_examples (
		id TEXT PRIMARY KEY,
		participant_response TEXT NOT NULL,
		coach_response TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		goal_type TEXT NOT NULL DEFAULT '',
		embedding vector(1536),
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_conversations_user_id ON conversations(user_id);
	CREATE INDEX IF NOT EXISTS idx_conversations_user_stage ON conversations(user_id, stage_number);
	CREATE INDEX IF NOT EXISTS idx_turns_conversation_id ON turns(conversation_id);
	CREATE INDEX IF NOT EXISTS idx_turns_created_at ON turns(created_at);
	CREATE INDEX IF NOT EXISTS idx_stage_progress_user_id ON stage_progress(user_id);
	`

	if _, err := d.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

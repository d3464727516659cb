// Package sqlite provides the durable keyed stores: conversation state
// rows keyed by (user, conversation) and user memory facts keyed by
// (user, key). Backed by modernc.org/sqlite, a pure Go driver, with WAL
// journaling and embedded schema migrations.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/becomeliminal/docqa/core"
	"github.com/becomeliminal/docqa/storage/sqlite/migrations"
)

// Store is the unified SQLite store. Create one per process and share it;
// the underlying *sql.DB pools connections.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if necessary) the database at dataDir/docqa.db
// and applies pending migrations.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "docqa.db")

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate applies all pending *.up.sql migrations in version order. Each
// migration file records its own version row in schema_migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}
	return nil
}

// ==================== Conversation state ====================

// LoadConversation returns the summary and messages for a conversation,
// or an empty state when the row does not exist. A conversation comes into
// being on first save; reading before that is not an error.
func (s *Store) LoadConversation(ctx context.Context, userID, conversationID string) (string, []core.Message, error) {
	var summary, messagesJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT summary, messages FROM conversations
		WHERE user_id = ? AND conversation_id = ?
	`, userID, conversationID).Scan(&summary, &messagesJSON)
	if err == sql.ErrNoRows {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("loading conversation: %w", err)
	}

	var messages []core.Message
	if messagesJSON != "" {
		if err := json.Unmarshal([]byte(messagesJSON), &messages); err != nil {
			return "", nil, fmt.Errorf("decoding messages: %w", err)
		}
	}
	return summary, messages, nil
}

// SaveConversation replaces the conversation's state in a single statement,
// so summary and messages can never be observed out of step.
func (s *Store) SaveConversation(ctx context.Context, userID, conversationID, summary string, messages []core.Message) error {
	if messages == nil {
		messages = []core.Message{}
	}
	messagesJSON, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("encoding messages: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (user_id, conversation_id, summary, messages, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id, conversation_id)
		DO UPDATE SET summary = excluded.summary,
		              messages = excluded.messages,
		              updated_at = excluded.updated_at
	`, userID, conversationID, summary, string(messagesJSON))
	if err != nil {
		return fmt.Errorf("saving conversation: %w", err)
	}
	return nil
}

// ListConversations returns the user's conversation IDs, most recently
// updated first.
func (s *Store) ListConversations(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id FROM conversations
		WHERE user_id = ?
		ORDER BY updated_at DESC, conversation_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning conversation id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ==================== User memory ====================

// UpsertFact writes a fact with last-write-wins semantics per (user, key).
func (s *Store) UpsertFact(ctx context.Context, userID, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_memory (user_id, key, value)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id, key)
		DO UPDATE SET value = excluded.value
	`, userID, key, value)
	if err != nil {
		return fmt.Errorf("upserting fact: %w", err)
	}
	return nil
}

// LoadFacts returns all facts for a user.
func (s *Store) LoadFacts(ctx context.Context, userID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value FROM user_memory WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("loading facts: %w", err)
	}
	defer rows.Close()

	facts := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scanning fact: %w", err)
		}
		facts[k] = v
	}
	return facts, rows.Err()
}

package pattern

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a Store backed by a local SQLite database. Similarity is
// computed in process over every stored embedding.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// ProjectDBPath returns the project-local pattern database path.
func ProjectDBPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".decomp", "patterns.db")
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and
// applies migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for concurrent reads
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	store := &SQLiteStore{db: conn, dbPath: dbPath}
	if err := store.Migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

// Migrate creates the pattern tables if they don't exist.
func (s *SQLiteStore) Migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS pattern_schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM pattern_schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return err
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Patterns},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.Exec("INSERT INTO pattern_schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

const migrationV1Patterns = `
CREATE TABLE IF NOT EXISTS patterns (
	id TEXT PRIMARY KEY,
	task TEXT NOT NULL,
	strategy TEXT NOT NULL,
	embedding TEXT NOT NULL,
	payload TEXT NOT NULL,
	success_rate REAL NOT NULL DEFAULT 1.0,
	usage_count INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_patterns_updated_at ON patterns(updated_at);
`

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Upsert implements Store.
func (s *SQLiteStore) Upsert(ctx context.Context, id string, embedding []float32, payload Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if payload.CreatedAt.IsZero() {
		payload.CreatedAt = now
	}
	payload.UpdatedAt = now

	embJSON, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO patterns (id, task, strategy, embedding, payload, success_rate, usage_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			task = excluded.task,
			strategy = excluded.strategy,
			embedding = excluded.embedding,
			payload = excluded.payload,
			success_rate = excluded.success_rate,
			usage_count = excluded.usage_count,
			updated_at = excluded.updated_at
	`, id, payload.Task, string(payload.Strategy), string(embJSON), string(payloadJSON),
		payload.SuccessRate, payload.UsageCount, formatTime(payload.CreatedAt), formatTime(payload.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert pattern: %w", err)
	}
	return nil
}

// Search implements Store.
func (s *SQLiteStore) Search(ctx context.Context, embedding []float32, limit int) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, embedding, payload FROM patterns")
	if err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var id, embJSON, payloadJSON string
		if err := rows.Scan(&id, &embJSON, &payloadJSON); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		var stored []float32
		if err := json.Unmarshal([]byte(embJSON), &stored); err != nil {
			return nil, fmt.Errorf("unmarshal embedding for %s: %w", id, err)
		}
		var payload Payload
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload for %s: %w", id, err)
		}
		matches = append(matches, Match{
			ID:      id,
			Score:   Cosine(embedding, stored),
			Payload: payload,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patterns: %w", err)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(ctx, s.db, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) get(ctx context.Context, q queryer, id string) (*Match, error) {
	var payloadJSON string
	err := q.QueryRowContext(ctx, "SELECT payload FROM patterns WHERE id = ?", id).Scan(&payloadJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get pattern: %w", err)
	}

	var payload Payload
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &Match{ID: id, Score: 1, Payload: payload}, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, payload FROM patterns ORDER BY updated_at DESC, id LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list patterns: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var id, payloadJSON string
		if err := rows.Scan(&id, &payloadJSON); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		var payload Payload
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload for %s: %w", id, err)
		}
		matches = append(matches, Match{ID: id, Payload: payload})
	}
	return matches, rows.Err()
}

// RecordOutcome implements Store.
func (s *SQLiteStore) RecordOutcome(ctx context.Context, id string, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	m, err := s.get(ctx, tx, id)
	if err != nil {
		return err
	}
	foldOutcome(&m.Payload, success)
	m.Payload.UpdatedAt = time.Now().UTC()

	payloadJSON, err := json.Marshal(m.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		"UPDATE patterns SET payload = ?, success_rate = ?, usage_count = ?, updated_at = ? WHERE id = ?",
		string(payloadJSON), m.Payload.SuccessRate, m.Payload.UsageCount, formatTime(m.Payload.UpdatedAt), id)
	if err != nil {
		return fmt.Errorf("update pattern: %w", err)
	}
	return tx.Commit()
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTime formats a time.Time for SQLite storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

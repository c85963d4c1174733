// Package history records decompositions and their execution outcomes.
package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ShayCichocki/decomp/internal/execution"
	"github.com/ShayCichocki/decomp/pkg/models"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// RunStatus is the lifecycle state of a recorded run.
type RunStatus string

const (
	RunStatusDecomposed RunStatus = "decomposed"
	RunStatusSucceeded  RunStatus = "succeeded"
	RunStatusFailed     RunStatus = "failed"
	RunStatusCancelled  RunStatus = "cancelled"
)

// Run is one recorded decomposition, optionally executed.
type Run struct {
	ID           string
	Task         string
	Strategy     models.Strategy
	PatternID    string
	Status       RunStatus
	SubtaskCount int
	Completed    int
	Failed       int
	Skipped      int
	TokensUsed   int64
	Budget       int64
	Duration     time.Duration
	TreeJSON     string
	StartedAt    time.Time
	UpdatedAt    time.Time
}

// Tree decodes the stored decomposition tree.
func (r *Run) Tree() (*models.DecompositionTree, error) {
	var tree models.DecompositionTree
	if err := json.Unmarshal([]byte(r.TreeJSON), &tree); err != nil {
		return nil, fmt.Errorf("decode tree: %w", err)
	}
	return &tree, nil
}

// Store persists runs in SQLite.
type Store struct {
	db *sql.DB
}

// DefaultPath returns <root>/.decomp/history.db.
func DefaultPath(root string) string {
	return filepath.Join(root, ".decomp", "history.db")
}

// NewStore opens or creates the history database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			task TEXT NOT NULL,
			strategy TEXT,
			pattern_id TEXT,
			status TEXT NOT NULL,
			subtask_count INT,
			completed INT DEFAULT 0,
			failed INT DEFAULT 0,
			skipped INT DEFAULT 0,
			tokens_used INT DEFAULT 0,
			budget INT DEFAULT 0,
			duration_ns INT DEFAULT 0,
			tree_json TEXT,
			started_at DATETIME,
			updated_at DATETIME
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &Store{db: db}, nil
}

// CreateRun records a freshly decomposed tree.
func (s *Store) CreateRun(tree *models.DecompositionTree) (*Run, error) {
	data, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("encode tree: %w", err)
	}

	now := time.Now().UTC()
	run := &Run{
		ID:           uuid.New().String(),
		Task:         tree.Task,
		Strategy:     tree.Strategy,
		PatternID:    patternID(tree),
		Status:       RunStatusDecomposed,
		SubtaskCount: len(tree.Subtasks),
		TreeJSON:     string(data),
		StartedAt:    now,
		UpdatedAt:    now,
	}

	_, err = s.db.Exec(`
		INSERT INTO runs (id, task, strategy, pattern_id, status, subtask_count, tree_json, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Task, string(run.Strategy), run.PatternID, string(run.Status), run.SubtaskCount, run.TreeJSON, run.StartedAt, run.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// patternID is the pattern a tree came from or was saved as.
func patternID(tree *models.DecompositionTree) string {
	if tree.Metadata.PatternID != "" {
		return tree.Metadata.PatternID
	}
	return tree.Metadata.SavedPatternID
}

// FinishRun records an execution outcome and the tree's final statuses.
func (s *Store) FinishRun(id string, tree *models.DecompositionTree, result *execution.ExecutionResult, budget int64) error {
	status := RunStatusFailed
	switch {
	case result.Cancelled:
		status = RunStatusCancelled
	case result.Success:
		status = RunStatusSucceeded
	}

	data, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("encode tree: %w", err)
	}

	res, err := s.db.Exec(`
		UPDATE runs
		SET status = ?, completed = ?, failed = ?, skipped = ?, tokens_used = ?, budget = ?, duration_ns = ?, tree_json = ?, updated_at = ?
		WHERE id = ?
	`, string(status), len(result.Completed), len(result.Failed), len(result.Skipped), result.TokensUsed, budget,
		int64(result.Duration), string(data), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

const runColumns = `id, task, strategy, pattern_id, status, subtask_count, completed, failed, skipped,
	tokens_used, budget, duration_ns, tree_json, started_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var strategy, status string
	var patternID, treeJSON sql.NullString
	var durationNS int64
	err := row.Scan(
		&run.ID,
		&run.Task,
		&strategy,
		&patternID,
		&status,
		&run.SubtaskCount,
		&run.Completed,
		&run.Failed,
		&run.Skipped,
		&run.TokensUsed,
		&run.Budget,
		&durationNS,
		&treeJSON,
		&run.StartedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	run.Strategy = models.Strategy(strategy)
	run.Status = RunStatus(status)
	run.PatternID = patternID.String
	run.TreeJSON = treeJSON.String
	run.Duration = time.Duration(durationNS)
	return &run, nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. A non-positive limit returns all.
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY rowid DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run by ID.
func (s *Store) DeleteRun(id string) error {
	result, err := s.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

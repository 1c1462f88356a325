package session

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/samber/do"

	_ "modernc.org/sqlite"
)

var _ do.Shutdownable = (*SQLiteStore)(nil)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}

	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS turns (
		session_id TEXT NOT NULL REFERENCES sessions(id),
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, seq)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Create(ctx context.Context) (string, error) {
	id := uuid.NewString()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, created_at) VALUES (?, ?)`,
		id, time.Now().UTC().UnixNano())
	if err != nil {
		return "", fmt.Errorf("failed to insert session: %w", err)
	}

	return id, nil
}

func (s *SQLiteStore) Append(ctx context.Context, sessionID string, turns ...Turn) error {
	if err := validateTurns(turns); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := sessionExists(ctx, tx, sessionID); err != nil {
		return err
	}

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM turns WHERE session_id = ?`, sessionID).Scan(&seq)
	if err != nil {
		return fmt.Errorf("failed to read last turn: %w", err)
	}

	for _, t := range stamp(turns) {
		seq++
		_, err = tx.ExecContext(ctx,
			`INSERT INTO turns (session_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			sessionID, seq, string(t.Role), t.Content, t.CreatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to insert turn: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit turns: %w", err)
	}

	return nil
}

func (s *SQLiteStore) History(ctx context.Context, sessionID string) ([]Turn, error) {
	if err := sessionExists(ctx, s.db, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, created_at FROM turns WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var history []Turn
	for rows.Next() {
		var (
			role      string
			content   string
			createdAt int64
		)
		if err = rows.Scan(&role, &content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}

		history = append(history, Turn{
			Role:      Role(role),
			Content:   content,
			CreatedAt: time.Unix(0, createdAt).UTC(),
		})
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read turns: %w", err)
	}

	return history, nil
}

func (s *SQLiteStore) Shutdown() error {
	return s.db.Close()
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func sessionExists(ctx context.Context, q queryRower, sessionID string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, sessionID).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up session: %w", err)
	}

	return nil
}

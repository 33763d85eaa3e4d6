package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure Go sqlite driver
)

// SQLiteStore keeps checkpoints in a single table. The forward-only rule is
// enforced by the upsert itself.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	for _, p := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA synchronous=FULL;"} {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	const schema = `CREATE TABLE IF NOT EXISTS checkpoints (
		document_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		last_completed_page INTEGER NOT NULL,
		state TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context, docID string) (*State, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM checkpoints WHERE document_id = ?`, docID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", docID, err)
	}
	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", docID, err)
	}
	return &st, nil
}

func (s *SQLiteStore) Save(ctx context.Context, st *State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	updated := st.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (document_id, status, last_completed_page, state, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			status = excluded.status,
			last_completed_page = excluded.last_completed_page,
			state = excluded.state,
			updated_at = excluded.updated_at
		WHERE excluded.last_completed_page >= checkpoints.last_completed_page`,
		st.DocumentID, string(st.Status), st.LastCompletedPage, string(data), updated)
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", st.DocumentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", st.DocumentID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s page %d", ErrBackward, st.DocumentID, st.LastCompletedPage)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, docID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE document_id = ?`, docID); err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", docID, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]State, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state FROM checkpoints ORDER BY document_id`)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []State
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		var st State
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			return nil, fmt.Errorf("decode checkpoint: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

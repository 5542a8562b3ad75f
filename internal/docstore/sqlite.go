package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLite is a persistent single-process Store. Documents survive a restart;
// change notification is in-process only, which is enough for one peer whose
// signaling counterpart talks to the same file through its own watcher — for
// multi-process setups use the Redis backend instead.
type SQLite struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
	hub  *hub
}

// OpenSQLite opens or creates signaling.db inside dir.
func OpenSQLite(dir string) (*SQLite, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	dbPath := filepath.Join(dir, "signaling.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			key        TEXT PRIMARY KEY,
			doc        TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create documents table: %w", err)
	}

	return &SQLite{db: db, path: dbPath, hub: newHub()}, nil
}

// Path returns the database file path.
func (s *SQLite) Path() string {
	return s.path
}

func (s *SQLite) Get(ctx context.Context, key string) (Doc, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(ctx, key)
}

func (s *SQLite) getLocked(ctx context.Context, key string) (Doc, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM documents WHERE key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	var doc Doc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return doc, true, nil
}

func (s *SQLite) Put(ctx context.Context, key string, doc Doc) error {
	// publish runs while mu is held so watcher queues see mutations of one
	// key in write order; enqueue never blocks, so this is safe.
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeLocked(ctx, key, doc); err != nil {
		return err
	}
	s.hub.publish(key, doc)
	return nil
}

func (s *SQLite) Merge(ctx context.Context, key string, fields Doc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, _, err := s.getLocked(ctx, key)
	if err != nil {
		return err
	}
	next := merged(current, fields)
	if err := s.writeLocked(ctx, key, next); err != nil {
		return err
	}
	s.hub.publish(key, next)
	return nil
}

func (s *SQLite) writeLocked(ctx context.Context, key string, doc Doc) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (key, doc, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET doc = excluded.doc, updated_at = CURRENT_TIMESTAMP
	`, key, string(raw))
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", key, err)
	}

	n, _ := res.RowsAffected()
	if n > 0 {
		s.hub.publish(key, nil)
	}
	return n > 0, nil
}

func (s *SQLite) DeletePrefix(ctx context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys, err := s.prefixKeysLocked(ctx, prefix)
	if err != nil {
		return err
	}
	// Keys are plain ASCII identifiers with '/' separators, so the range scan
	// upper bound below is safe.
	_, err = s.db.ExecContext(ctx, `DELETE FROM documents WHERE key >= ? AND key < ?`, prefix, prefix+"\xff")
	if err != nil {
		return fmt.Errorf("delete prefix %s: %w", prefix, err)
	}

	for _, key := range keys {
		s.hub.publish(key, nil)
	}
	return nil
}

func (s *SQLite) prefixKeysLocked(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM documents WHERE key >= ? AND key < ?`, prefix, prefix+"\xff")
	if err != nil {
		return nil, fmt.Errorf("list prefix %s: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *SQLite) ListPrefix(ctx context.Context, prefix string) (map[string]Doc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT key, doc FROM documents WHERE key >= ? AND key < ?`, prefix, prefix+"\xff")
	if err != nil {
		return nil, fmt.Errorf("list prefix %s: %w", prefix, err)
	}
	defer rows.Close()

	out := make(map[string]Doc)
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		var doc Doc
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		out[key] = doc
	}
	return out, rows.Err()
}

func (s *SQLite) Watch(key string, fn func(Doc)) (cancel func()) {
	return s.hub.watch(key, false, func(_ string, doc Doc) { fn(doc) })
}

func (s *SQLite) WatchPrefix(prefix string, fn func(key string, doc Doc)) (cancel func()) {
	return s.hub.watch(prefix, true, fn)
}

func (s *SQLite) Close() error {
	s.hub.close()
	return s.db.Close()
}

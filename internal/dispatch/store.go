package dispatch

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// TokenStore records tokens whose results were already delivered to the
// callback endpoint. It persists across process restarts, so a re-executed
// kernel script cannot trigger a second side-effecting delivery, and uses a
// file lock so concurrent bridge invocations agree on who delivers.
type TokenStore struct {
	db   *sql.DB
	lock *flock.Flock
}

func OpenTokenStore(path, lockPath string) (*TokenStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create token store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create token lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open token sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS delivered_tokens (
			token TEXT PRIMARY KEY,
			delivered_at INTEGER NOT NULL
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init token schema: %w", err)
		}
	}
	store := &TokenStore{db: db, lock: flock.New(lockPath)}
	// Tokens are single-use; week-old entries only cost space.
	_ = store.Prune(7 * 24 * time.Hour)
	return store, nil
}

func (s *TokenStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *TokenStore) Delivered(token string) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	var one int
	err := s.db.QueryRow("SELECT 1 FROM delivered_tokens WHERE token = ?", token).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read token store: %w", err)
	}
	return true, nil
}

// MarkDelivered inserts the token and reports whether this call was the one
// that inserted it. The insert happens before the callback POST, so only the
// first of two racing deliveries proceeds.
func (s *TokenStore) MarkDelivered(token string) (bool, error) {
	if strings.TrimSpace(token) == "" {
		return false, fmt.Errorf("mark delivered: empty token")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	locked, err := s.lock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return false, fmt.Errorf("lock token store: %w", err)
	}
	if !locked {
		return false, fmt.Errorf("lock token store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	res, err := s.db.Exec(
		"INSERT OR IGNORE INTO delivered_tokens (token, delivered_at) VALUES (?, ?)",
		token, time.Now().UTC().Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("mark token delivered: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark token delivered: %w", err)
	}
	return affected == 1, nil
}

// Prune drops tokens delivered more than maxAge ago.
func (s *TokenStore) Prune(maxAge time.Duration) error {
	if s == nil || s.db == nil {
		return nil
	}
	cutoff := time.Now().UTC().Add(-maxAge).Unix()
	if _, err := s.db.Exec("DELETE FROM delivered_tokens WHERE delivered_at < ?", cutoff); err != nil {
		return fmt.Errorf("prune token store: %w", err)
	}
	return nil
}

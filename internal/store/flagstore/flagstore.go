package flagstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"blitz/internal/logger"

	_ "modernc.org/sqlite"
)

// Store keeps the blacklist of tokens that triggered hostile exits. Once a
// token is here it is never entered again, across process restarts.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// FlaggedToken is one blacklist row.
type FlaggedToken struct {
	Address   string    `json:"address"`
	Symbol    string    `json:"symbol"`
	Reason    string    `json:"reason"`
	FlaggedAt time.Time `json:"flagged_at"`
}

// New opens (or creates) the flag database at path.
func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("flag store requires a path")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create flag store dir failed: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open flag store failed: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS flagged_tokens (
			address    TEXT PRIMARY KEY,
			symbol     TEXT NOT NULL DEFAULT '',
			reason     TEXT NOT NULL DEFAULT '',
			flagged_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_flagged_at ON flagged_tokens(flagged_at);
	`)
	if err != nil {
		return fmt.Errorf("migrate flag store failed: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Flag adds a token to the blacklist. Re-flagging updates the reason.
func (s *Store) Flag(address, symbol, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO flagged_tokens (address, symbol, reason, flagged_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET reason = excluded.reason, flagged_at = excluded.flagged_at
	`, address, symbol, reason, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("flag token %s failed: %w", address, err)
	}
	logger.Warnf("token flagged: %s (%s): %s", symbol, address, reason)
	return nil
}

// IsFlagged reports whether the token is on the blacklist.
func (s *Store) IsFlagged(address string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM flagged_tokens WHERE address = ?`, address).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("flag lookup for %s failed: %w", address, err)
	}
	return n > 0, nil
}

// Recent returns the latest flagged tokens, newest first.
func (s *Store) Recent(limit int) ([]FlaggedToken, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(`
		SELECT address, symbol, reason, flagged_at
		FROM flagged_tokens ORDER BY flagged_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list flagged tokens failed: %w", err)
	}
	defer rows.Close()

	var out []FlaggedToken
	for rows.Next() {
		var t FlaggedToken
		var ts int64
		if err := rows.Scan(&t.Address, &t.Symbol, &t.Reason, &ts); err != nil {
			return nil, err
		}
		t.FlaggedAt = time.UnixMilli(ts).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

// Count reports the blacklist size.
func (s *Store) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM flagged_tokens`).Scan(&n)
	return n, err
}

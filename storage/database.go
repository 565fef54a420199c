package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"swipechat/crypto"
)

const (
	// DefaultDBFileName is the SQLite filename under app data dir.
	DefaultDBFileName = "swipechat.db"
	// DefaultSecretKeyFileName holds the key that seals the access token.
	DefaultSecretKeyFileName = "secret.key"
	// DefaultMaintenanceInterval controls how often the WAL is truncated and
	// old receipts are pruned.
	DefaultMaintenanceInterval = 24 * time.Hour
	// DefaultReceiptRetention controls how long seen receipts are kept.
	DefaultReceiptRetention = 30 * 24 * time.Hour
)

var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS session (
  id           INTEGER PRIMARY KEY CHECK(id = 1),
  user_id      TEXT NOT NULL,
  name         TEXT NOT NULL,
  email        TEXT NOT NULL DEFAULT '',
  access_token TEXT NOT NULL,
  expires_at   INTEGER,
  saved_at     INTEGER NOT NULL
);
`,
	`
CREATE TABLE IF NOT EXISTS seen_receipts (
  message_id      TEXT PRIMARY KEY,
  conversation_id TEXT NOT NULL,
  seen_at         INTEGER NOT NULL
);
`,
	`
CREATE INDEX IF NOT EXISTS idx_seen_receipts_seen_at
ON seen_receipts (seen_at);
`,
	`
CREATE TABLE IF NOT EXISTS drafts (
  draft_id        TEXT PRIMARY KEY,
  conversation_id TEXT NOT NULL,
  content         TEXT NOT NULL,
  failure         TEXT NOT NULL DEFAULT '',
  created_at      INTEGER NOT NULL
);
`,
	`
CREATE INDEX IF NOT EXISTS idx_drafts_conversation_time
ON drafts (conversation_id, created_at DESC, draft_id);
`,
}

// Store keeps the local session, seen receipts and unsent drafts.
type Store struct {
	db *sql.DB

	// tokens seals the session access token; nil stores it as given.
	tokens *crypto.Sealer

	maintenanceEvery time.Duration
	receiptRetention time.Duration
	stop             chan struct{}
	wg               sync.WaitGroup
	closeOnce        sync.Once
}

// Open opens (or creates) swipechat.db under the given data directory and
// runs migrations. The session access token is sealed with the install key
// kept in the same directory.
func Open(dataDir string) (*Store, string, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, "", fmt.Errorf("create storage directory: %w", err)
	}

	secret, err := crypto.EnsureSecretKey(filepath.Join(dataDir, DefaultSecretKeyFileName))
	if err != nil {
		return nil, "", fmt.Errorf("prepare secret key: %w", err)
	}
	tokens, err := crypto.NewSealer(secret, "access-token")
	if err != nil {
		return nil, "", err
	}

	dbPath := filepath.Join(dataDir, DefaultDBFileName)
	store, err := OpenPath(dbPath)
	if err != nil {
		return nil, "", err
	}
	store.tokens = tokens

	return store, dbPath, nil
}

// OpenPath opens SQLite at an explicit path without token sealing. It is
// used for tests and tooling.
func OpenPath(dbPath string) (*Store, error) {
	dsn := "file:" + filepath.ToSlash(dbPath) + "?_foreign_keys=on&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %s: %w", dbPath, err)
	}

	store := &Store{
		db:               db,
		maintenanceEvery: DefaultMaintenanceInterval,
		receiptRetention: DefaultReceiptRetention,
		stop:             make(chan struct{}),
	}
	for _, step := range []func() error{db.Ping, store.useWAL, store.migrate, store.checkpoint} {
		if err := step(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	store.wg.Add(1)
	go store.maintenanceLoop()
	return store, nil
}

// Close stops background maintenance and closes the connection. Calling it
// more than once is safe.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// migrate applies pending migrations one transaction each, recording
// progress in PRAGMA user_version.
func (s *Store) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for ; version < len(migrations); version++ {
		if err := s.applyMigration(version); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) applyMigration(index int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", index+1, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.Exec(migrations[index]); err != nil {
		return fmt.Errorf("apply migration %d: %w", index+1, err)
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d;", index+1)); err != nil {
		return fmt.Errorf("set schema version %d: %w", index+1, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", index+1, err)
	}
	return nil
}

func (s *Store) useWAL() error {
	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode=WAL;").Scan(&mode); err != nil {
		return fmt.Errorf("enable WAL mode: %w", err)
	}
	if !strings.EqualFold(mode, "wal") {
		return fmt.Errorf("enable WAL mode: journal mode is %q", mode)
	}
	return nil
}

func (s *Store) checkpoint() error {
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE);"); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	return nil
}

// maintain truncates the WAL and drops receipts older than the retention
// window.
func (s *Store) maintain(now time.Time) error {
	if err := s.checkpoint(); err != nil {
		return err
	}
	if s.receiptRetention <= 0 {
		return nil
	}
	if _, err := s.PruneSeenReceipts(now.Add(-s.receiptRetention).UnixMilli()); err != nil {
		return err
	}
	return nil
}

func (s *Store) maintenanceLoop() {
	defer s.wg.Done()
	if s.maintenanceEvery <= 0 {
		<-s.stop
		return
	}

	ticker := time.NewTicker(s.maintenanceEvery)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			_ = s.maintain(now)
		case <-s.stop:
			return
		}
	}
}

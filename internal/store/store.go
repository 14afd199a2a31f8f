// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists the evidence engine's backing data in SQLite:
// structured financial records, the full-text document index, client
// contexts, and the request audit log.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

const dbFile = "evidence.db"

// Collections of the document index.
const (
	CollectionCompanyDocs        = "company_docs"
	CollectionAnalystReports     = "analyst_reports"
	CollectionMarketIntelligence = "market_intelligence"
)

// Collections lists every document collection.
func Collections() []string {
	return []string{CollectionCompanyDocs, CollectionAnalystReports, CollectionMarketIntelligence}
}

// Store manages the evidence SQLite database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at cfg.DataDir/evidence.db and creates
// the schema if it does not exist.
func Open(cfg types.StoreConfig) (*Store, error) {
	dir := cfg.DataDir
	if dir == "" {
		dir = "data"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return OpenPath(filepath.Join(dir, dbFile))
}

// OpenPath opens or creates the database file at path.
func OpenPath(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Ping checks that the database answers queries.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	return nil
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS companies (
			ticker TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			sector TEXT,
			industry TEXT,
			exchange TEXT,
			aliases TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS fundamentals (
			ticker TEXT NOT NULL REFERENCES companies(ticker),
			metric TEXT NOT NULL,
			value REAL NOT NULL,
			unit TEXT,
			as_of TEXT NOT NULL,
			PRIMARY KEY (ticker, metric, as_of)
		)`,
		`CREATE TABLE IF NOT EXISTS market_data (
			ticker TEXT NOT NULL REFERENCES companies(ticker),
			date TEXT NOT NULL,
			open REAL,
			high REAL,
			low REAL,
			close REAL,
			volume INTEGER,
			rsi REAL,
			moving_avg_50 REAL,
			moving_avg_200 REAL,
			PRIMARY KEY (ticker, date)
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			ticker TEXT,
			collection TEXT NOT NULL,
			title TEXT,
			content TEXT NOT NULL,
			published_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_ticker ON documents(ticker)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection)`,
		`CREATE TABLE IF NOT EXISTS client_contexts (
			client_id TEXT PRIMARY KEY,
			risk_tolerance TEXT,
			topics TEXT NOT NULL,
			weights TEXT NOT NULL,
			interactions INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS request_audit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			query_id TEXT NOT NULL,
			client_id TEXT,
			sources_consulted TEXT,
			sources_failed TEXT,
			items INTEGER,
			low_confidence INTEGER,
			partial INTEGER,
			latency_ms REAL,
			error TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_request_audit_client ON request_audit(client_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS5 virtual table with triggers for sync.
	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='documents_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}

	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE documents_fts USING fts5(title, content, content=documents, content_rowid=rowid)`,
			`CREATE TRIGGER documents_ai AFTER INSERT ON documents BEGIN
				INSERT INTO documents_fts(rowid, title, content) VALUES (new.rowid, new.title, new.content);
			END`,
			`CREATE TRIGGER documents_ad AFTER DELETE ON documents BEGIN
				INSERT INTO documents_fts(documents_fts, rowid, title, content) VALUES('delete', old.rowid, old.title, old.content);
			END`,
			`CREATE TRIGGER documents_au AFTER UPDATE ON documents BEGIN
				INSERT INTO documents_fts(documents_fts, rowid, title, content) VALUES('delete', old.rowid, old.title, old.content);
				INSERT INTO documents_fts(rowid, title, content) VALUES (new.rowid, new.title, new.content);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}

	return nil
}

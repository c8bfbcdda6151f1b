package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding the local key-value documents, the
// sync log and the peer's authoritative globals.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "wterm.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Key-value documents ---

// Get returns the document stored under name. A missing name is not an error.
func (s *Store) Get(name string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM kv WHERE name = ?", name).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set stores value under name, replacing any previous document.
func (s *Store) Set(name, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO kv (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		name, value, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// Delete removes the document stored under name.
func (s *Store) Delete(name string) error {
	res, err := s.db.Exec("DELETE FROM kv WHERE name = ?", name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Sync log ---

// createdAtLayout is fixed width so that text order in SQLite is time order.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// RecordConfirmation appends a confirmation outcome to the sync log.
func (s *Store) RecordConfirmation(id, key string, value, previous any, ack int) error {
	return s.recordConfirmationAt(id, key, value, previous, ack, time.Now())
}

func (s *Store) recordConfirmationAt(id, key string, value, previous any, ack int, at time.Time) error {
	valueJSON, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshalling value: %w", err)
	}
	previousJSON, err := json.Marshal(previous)
	if err != nil {
		return fmt.Errorf("marshalling previous value: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO confirmations (id, key, value_json, previous_json, ack, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, key, string(valueJSON), string(previousJSON), ack, at.UTC().Format(createdAtLayout),
	)
	return err
}

// ListConfirmations returns the most recent confirmation outcomes, newest first.
func (s *Store) ListConfirmations(limit int) ([]Confirmation, error) {
	rows, err := s.db.Query(`
		SELECT id, key, value_json, previous_json, ack, created_at
		FROM confirmations ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Confirmation
	for rows.Next() {
		var c Confirmation
		var createdAt string
		if err := rows.Scan(&c.ID, &c.Key, &c.ValueJSON, &c.PreviousJSON, &c.Ack, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		c.CreatedAt = t
		results = append(results, c)
	}
	return results, rows.Err()
}

// --- Authoritative globals ---

// PutGlobal stores the authoritative JSON value for key.
func (s *Store) PutGlobal(key, valueJSON string) error {
	_, err := s.db.Exec(`
		INSERT INTO global_settings (key, value_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json, updated_at = excluded.updated_at`,
		key, valueJSON, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetGlobal returns the authoritative value for key or ErrNotFound.
func (s *Store) GetGlobal(key string) (GlobalSetting, error) {
	g := GlobalSetting{Key: key}
	var updatedAt string
	err := s.db.QueryRow("SELECT value_json, updated_at FROM global_settings WHERE key = ?", key).
		Scan(&g.ValueJSON, &updatedAt)
	if err == sql.ErrNoRows {
		return GlobalSetting{}, ErrNotFound
	}
	if err != nil {
		return GlobalSetting{}, err
	}
	t, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return GlobalSetting{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	g.UpdatedAt = t
	return g, nil
}

// AllGlobals returns every authoritative value ordered by key.
func (s *Store) AllGlobals() ([]GlobalSetting, error) {
	rows, err := s.db.Query("SELECT key, value_json, updated_at FROM global_settings ORDER BY key ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []GlobalSetting
	for rows.Next() {
		var g GlobalSetting
		var updatedAt string
		if err := rows.Scan(&g.Key, &g.ValueJSON, &updatedAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		g.UpdatedAt = t
		results = append(results, g)
	}
	return results, rows.Err()
}

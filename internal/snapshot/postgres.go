package snapshot

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/infinitecloud/infinitecloud/internal/metrics"
)

// PostgresStore persists the snapshot as a single row. The upsert replaces
// the previous snapshot in one statement, so readers never observe a
// partial write.
type PostgresStore struct {
	db *sql.DB
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
    id             INTEGER PRIMARY KEY CHECK (id = 1),
    schema_version INTEGER NOT NULL,
    saved_at       TIMESTAMPTZ NOT NULL,
    body           JSONB NOT NULL
)`

// NewPostgresStore connects to PostgreSQL and ensures the snapshots table
// exists.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("snapshot: ping database: %w", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("snapshot: create table: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Save(snap *Snapshot) error {
	start := time.Now()
	data, err := encode(snap)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO snapshots (id, schema_version, saved_at, body)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET schema_version = EXCLUDED.schema_version,
		    saved_at = EXCLUDED.saved_at,
		    body = EXCLUDED.body`,
		snap.SchemaVersion, snap.SavedAt, data)
	if err != nil {
		metrics.RecordSnapshotPersist(time.Since(start), false)
		return fmt.Errorf("snapshot: upsert: %w", err)
	}
	metrics.RecordSnapshotPersist(time.Since(start), true)
	return nil
}

func (s *PostgresStore) Load() (*Snapshot, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT body FROM snapshots WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: select: %w", err)
	}
	return decode(data)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lead-admin/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Both blobs live in a
// single kv table as JSON payloads, mirroring the one-key-one-blob contract
// of the original browser storage.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// collectionPayload is the versioned envelope stored under CollectionKey.
type collectionPayload struct {
	SchemaVersion int          `json:"schema_version"`
	UpdatedAt     time.Time    `json:"updated_at"`
	Leads         []model.Lead `json:"leads"`
}

func (s *SQLiteStore) ReadCollection(ctx context.Context) ([]model.Lead, error) {
	raw, err := s.get(ctx, CollectionKey)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return []model.Lead{}, nil
	}

	var payload collectionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal collection")
	}
	if payload.SchemaVersion != model.SchemaVersion {
		return nil, eris.Errorf("sqlite: collection schema version %d, want %d", payload.SchemaVersion, model.SchemaVersion)
	}
	return payload.Leads, nil
}

func (s *SQLiteStore) WriteCollection(ctx context.Context, leads []model.Lead) error {
	payload := collectionPayload{
		SchemaVersion: model.SchemaVersion,
		UpdatedAt:     time.Now().UTC(),
		Leads:         leads,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal collection")
	}
	return s.set(ctx, CollectionKey, raw)
}

func (s *SQLiteStore) ReadCheckpoint(ctx context.Context) (*Checkpoint, error) {
	raw, err := s.get(ctx, CheckpointKey)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal checkpoint")
	}
	// A checkpoint written by an older format is disposable state, not data
	// loss. Treat it as absent.
	if cp.SchemaVersion != model.SchemaVersion {
		return nil, nil
	}
	return &cp, nil
}

func (s *SQLiteStore) WriteCheckpoint(ctx context.Context, session *model.ImportSession) error {
	cp := Checkpoint{
		SchemaVersion: model.SchemaVersion,
		SavedAt:       time.Now().UTC(),
		Session:       *session,
	}
	raw, err := json.Marshal(cp)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal checkpoint")
	}
	return s.set(ctx, CheckpointKey, raw)
}

func (s *SQLiteStore) ClearCheckpoint(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, CheckpointKey)
	return eris.Wrap(err, "sqlite: clear checkpoint")
}

// helpers

func (s *SQLiteStore) get(ctx context.Context, key string) ([]byte, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key)

	var value string
	err := row.Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get %s", key)
	}
	return []byte(value), nil
}

func (s *SQLiteStore) set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(value), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: set %s", key)
}

package dashboard

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// StoredSession is the persisted auth session.
type StoredSession struct {
	Token     string    `json:"token"`
	Principal Principal `json:"principal"`
	Email     string    `json:"email"`
	SavedAt   time.Time `json:"saved_at"`
}

// Store keeps the sealed session and the last reconciled snapshot of each
// collection on disk.
type Store struct {
	db  *sql.DB
	key [32]byte
}

// OpenStore opens/creates a SQLite database and runs migrations. key seals
// the persisted session.
func OpenStore(path string, key [32]byte) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, key: key}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS session (
  id INTEGER PRIMARY KEY CHECK (id = 1),
  nonce_b64 TEXT NOT NULL,
  ct_b64 TEXT NOT NULL,
  updated INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
  collection TEXT NOT NULL,
  owner TEXT NOT NULL,
  rows_json TEXT NOT NULL,
  saved_at INTEGER NOT NULL,
  PRIMARY KEY (collection, owner)
);

CREATE TABLE IF NOT EXISTS local_state (
  k TEXT PRIMARY KEY,
  v TEXT NOT NULL
);
`)
	return err
}

// SaveSession seals and stores sess, replacing any previous one.
func (s *Store) SaveSession(ctx context.Context, sess StoredSession) error {
	if sess.SavedAt.IsZero() {
		sess.SavedAt = time.Now().UTC()
	}
	sealed, err := sealSession(s.key, sess)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO session(id, nonce_b64, ct_b64, updated) VALUES(1,?,?,?)
ON CONFLICT(id) DO UPDATE SET nonce_b64=excluded.nonce_b64, ct_b64=excluded.ct_b64, updated=excluded.updated`,
		sealed.nonce, sealed.ct, sess.SavedAt.Unix())
	return err
}

// LoadSession returns the stored session. A missing session, or one sealed
// under a different key, is an AuthError.
func (s *Store) LoadSession(ctx context.Context) (StoredSession, error) {
	var sealed sealedSession
	err := s.db.QueryRowContext(ctx, `SELECT nonce_b64, ct_b64 FROM session WHERE id = 1`).
		Scan(&sealed.nonce, &sealed.ct)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredSession{}, &AuthError{Reason: "no stored session"}
	}
	if err != nil {
		return StoredSession{}, err
	}
	return openSession(s.key, sealed)
}

// ClearSession forgets the stored session.
func (s *Store) ClearSession(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session`)
	return err
}

// SaveSnapshot records the latest rows of a collection for owner.
func (s *Store) SaveSnapshot(ctx context.Context, collection string, owner Principal, rows []Record) error {
	if rows == nil {
		rows = []Record{}
	}
	raw, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO snapshots(collection, owner, rows_json, saved_at) VALUES(?,?,?,?)
ON CONFLICT(collection, owner) DO UPDATE SET rows_json=excluded.rows_json, saved_at=excluded.saved_at`,
		collection, string(owner), string(raw), time.Now().UTC().UnixMilli())
	return err
}

// LoadSnapshot returns the last saved rows and when they were saved. A
// collection never saved yields ErrNotFound.
func (s *Store) LoadSnapshot(ctx context.Context, collection string, owner Principal) ([]Record, time.Time, error) {
	var (
		raw     string
		savedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT rows_json, saved_at FROM snapshots WHERE collection = ? AND owner = ?`, collection, string(owner)).
		Scan(&raw, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	var rows []Record
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, time.Time{}, err
	}
	return rows, time.UnixMilli(savedAt).UTC(), nil
}

// ClearSnapshots drops every cached collection for owner.
func (s *Store) ClearSnapshots(ctx context.Context, owner Principal) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE owner = ?`, string(owner))
	return err
}

// GetState fetches local metadata with default fallback.
func (s *Store) GetState(ctx context.Context, key, def string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT v FROM local_state WHERE k = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	return v, err
}

// SetState updates local metadata.
func (s *Store) SetState(ctx context.Context, key, val string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO local_state(k,v) VALUES(?,?)
ON CONFLICT(k) DO UPDATE SET v=excluded.v`, key, val)
	return err
}

package storage

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/qforge-dev/qforge/internal/simulation"
)

// ResultStore persists simulation results as msgpack blobs keyed by an
// opaque reference string. The orchestrator records only the reference;
// retrieval format and durability are owned here.
type ResultStore struct {
	db  *DB
	log zerolog.Logger
}

// NewResultStore creates a result store backed by the given database.
func NewResultStore(db *DB, log zerolog.Logger) *ResultStore {
	return &ResultStore{
		db:  db,
		log: log.With().Str("component", "result_store").Logger(),
	}
}

// Put stores a result and returns its opaque reference.
func (s *ResultStore) Put(result *simulation.Result) (string, error) {
	payload, err := result.Encode()
	if err != nil {
		return "", err
	}

	ref := uuid.NewString()
	if _, err := s.db.Conn().Exec(
		"INSERT INTO results (ref, payload) VALUES (?, ?)", ref, payload,
	); err != nil {
		return "", fmt.Errorf("failed to store result: %w", err)
	}

	s.log.Debug().
		Str("ref", ref).
		Int("payload_bytes", len(payload)).
		Msg("Stored simulation result")
	return ref, nil
}

// Get retrieves a result by reference. A missing reference returns
// ErrResultNotFound.
func (s *ResultStore) Get(ref string) (*simulation.Result, error) {
	var payload []byte
	err := s.db.Conn().QueryRow(
		"SELECT payload FROM results WHERE ref = ?", ref,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load result %s: %w", ref, err)
	}
	return simulation.DecodeResult(payload)
}

// GetRaw returns the encoded blob without decoding, for archival uploads.
func (s *ResultStore) GetRaw(ref string) ([]byte, error) {
	var payload []byte
	err := s.db.Conn().QueryRow(
		"SELECT payload FROM results WHERE ref = ?", ref,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load result %s: %w", ref, err)
	}
	return payload, nil
}

// Delete removes a result by reference. Deleting a missing reference is
// not an error.
func (s *ResultStore) Delete(ref string) error {
	if _, err := s.db.Conn().Exec("DELETE FROM results WHERE ref = ?", ref); err != nil {
		return fmt.Errorf("failed to delete result %s: %w", ref, err)
	}
	return nil
}

// DeleteOlderThan removes results past the retention window, returning the
// number deleted.
func (s *ResultStore) DeleteOlderThan(hours int) (int64, error) {
	res, err := s.db.Conn().Exec(
		fmt.Sprintf("DELETE FROM results WHERE created_at < datetime('now', '-%d hours')", hours),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune results: %w", err)
	}
	return res.RowsAffected()
}

// ErrResultNotFound is returned when a reference has no stored result.
var ErrResultNotFound = fmt.Errorf("result not found")

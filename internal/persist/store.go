// Package persist stores the unconfirmed delta journal in SQLite so buffered
// taps survive process restarts and are replayed into the next session.
package persist

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"coinfall/client/internal/game"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 1

// Store is a SQLite-backed delta journal scoped to one player.
type Store struct {
	db       *sql.DB
	playerID string
}

var _ game.DeltaJournal = (*Store)(nil)

// Open creates or opens the journal database at path. WAL mode keeps reads
// cheap while the tap path writes, and the single-connection pool sidesteps
// SQLITE_BUSY under the store lock.
func Open(path, playerID string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect journal database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, playerID: playerID}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveDelta upserts one pending delta by sequence. Coalesced taps rewrite the
// same row, so the journal always mirrors the in-memory buffer.
func (s *Store) SaveDelta(d game.PendingDelta) error {
	_, err := s.db.Exec(`
		INSERT INTO pending_deltas (player_id, seq, taps, coins_earned, energy_spent, client_time)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (player_id, seq) DO UPDATE SET
			taps = excluded.taps,
			coins_earned = excluded.coins_earned,
			energy_spent = excluded.energy_spent,
			client_time = excluded.client_time
	`, s.playerID, d.Seq, d.Taps, d.CoinsEarned, d.EnergySpent, d.ClientTime.UnixMilli())
	if err != nil {
		return fmt.Errorf("save delta seq=%d: %w", d.Seq, err)
	}
	return nil
}

// DeleteThrough prunes every confirmed delta up to and including seq.
func (s *Store) DeleteThrough(seq uint64) error {
	_, err := s.db.Exec(
		`DELETE FROM pending_deltas WHERE player_id = ? AND seq <= ?`,
		s.playerID, seq,
	)
	if err != nil {
		return fmt.Errorf("prune deltas through seq=%d: %w", seq, err)
	}
	return nil
}

// DeleteAll clears the journal after an authoritative reset.
func (s *Store) DeleteAll() error {
	_, err := s.db.Exec(`DELETE FROM pending_deltas WHERE player_id = ?`, s.playerID)
	if err != nil {
		return fmt.Errorf("clear delta journal: %w", err)
	}
	return nil
}

// LoadDeltas returns the persisted deltas in sequence order for session seed.
func (s *Store) LoadDeltas() ([]game.PendingDelta, error) {
	rows, err := s.db.Query(`
		SELECT seq, taps, coins_earned, energy_spent, client_time
		FROM pending_deltas
		WHERE player_id = ?
		ORDER BY seq ASC
	`, s.playerID)
	if err != nil {
		return nil, fmt.Errorf("load deltas: %w", err)
	}
	defer rows.Close()

	var deltas []game.PendingDelta
	for rows.Next() {
		var d game.PendingDelta
		var clientMilli int64
		if err := rows.Scan(&d.Seq, &d.Taps, &d.CoinsEarned, &d.EnergySpent, &clientMilli); err != nil {
			return nil, fmt.Errorf("scan delta row: %w", err)
		}
		d.ClientTime = time.UnixMilli(clientMilli)
		deltas = append(deltas, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate delta rows: %w", err)
	}
	return deltas, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

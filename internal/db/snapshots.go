package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/energizer-project/sourcequery/internal/protocol"
)

// ErrNoSnapshot is returned by Latest when an address has no history.
var ErrNoSnapshot = errors.New("no snapshot recorded")

// Snapshot is one recorded query outcome.
type Snapshot struct {
	ID         int64           `json:"id"`
	Address    string          `json:"address"`
	Engine     protocol.Engine `json:"engine,omitempty"`
	Online     bool            `json:"online"`
	Name       string          `json:"name,omitempty"`
	Map        string          `json:"map,omitempty"`
	Game       string          `json:"game,omitempty"`
	Players    int             `json:"players"`
	MaxPlayers int             `json:"max_players"`
	Bots       int             `json:"bots"`
	RTTMillis  float64         `json:"rtt_ms"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// SuccessSnapshot records a successful query of address.
func SuccessSnapshot(address string, s protocol.Summary, at time.Time) Snapshot {
	return Snapshot{
		Address:    address,
		Engine:     s.Engine,
		Online:     true,
		Name:       s.Name,
		Map:        s.Map,
		Game:       s.Game,
		Players:    s.Players,
		MaxPlayers: s.MaxPlayers,
		Bots:       s.Bots,
		RTTMillis:  float64(s.RTT.Microseconds()) / 1000,
		CreatedAt:  at,
	}
}

// FailureSnapshot records a failed query of address.
func FailureSnapshot(address string, queryErr error, at time.Time) Snapshot {
	return Snapshot{
		Address:   address,
		Error:     queryErr.Error(),
		CreatedAt: at,
	}
}

// SnapshotStore reads and writes the snapshots table.
type SnapshotStore struct {
	db *Database
}

// NewSnapshotStore opens the database at dbPath and migrates the schema.
func NewSnapshotStore(ctx context.Context, dbPath string) (*SnapshotStore, error) {
	database, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	store := &SnapshotStore{db: database}
	if err := store.migrate(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate snapshot database: %w", err)
	}

	return store, nil
}

// migrate creates the database schema.
func (s *SnapshotStore) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			address TEXT NOT NULL,
			engine TEXT NOT NULL DEFAULT '',
			online INTEGER NOT NULL DEFAULT 0,
			name TEXT NOT NULL DEFAULT '',
			map TEXT NOT NULL DEFAULT '',
			game TEXT NOT NULL DEFAULT '',
			players INTEGER NOT NULL DEFAULT 0,
			max_players INTEGER NOT NULL DEFAULT 0,
			bots INTEGER NOT NULL DEFAULT 0,
			rtt_ms REAL NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_address_created ON snapshots(address, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_created ON snapshots(created_at)`,
	}

	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		for _, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	log.Debug().Str("path", s.db.Path()).Msg("snapshot schema migrated")
	return nil
}

// Save inserts a snapshot and returns its row ID.
func (s *SnapshotStore) Save(ctx context.Context, snap Snapshot) (int64, error) {
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now()
	}

	res, err := s.db.Exec(ctx, `
		INSERT INTO snapshots
			(address, engine, online, name, map, game, players, max_players, bots, rtt_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.Address, string(snap.Engine), snap.Online, snap.Name, snap.Map, snap.Game,
		snap.Players, snap.MaxPlayers, snap.Bots, snap.RTTMillis, snap.Error,
		snap.CreatedAt.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to save snapshot for %s: %w", snap.Address, err)
	}

	return res.LastInsertId()
}

const snapshotColumns = `id, address, engine, online, name, map, game, players, max_players, bots, rtt_ms, error, created_at`

// History returns up to limit snapshots for address, newest first.
func (s *SnapshotStore) History(ctx context.Context, address string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots
		WHERE address = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		address, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history for %s: %w", address, err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Latest returns the newest snapshot for address, or ErrNoSnapshot.
func (s *SnapshotStore) Latest(ctx context.Context, address string) (Snapshot, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots
		WHERE address = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		address)

	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("%w for %s", ErrNoSnapshot, address)
	}
	return snap, err
}

// Prune deletes snapshots created before the given time and returns how many were removed.
func (s *SnapshotStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.Exec(ctx, `DELETE FROM snapshots WHERE created_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database.
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (Snapshot, error) {
	var (
		snap    Snapshot
		engine  string
		created int64
	)
	err := row.Scan(&snap.ID, &snap.Address, &engine, &snap.Online, &snap.Name, &snap.Map,
		&snap.Game, &snap.Players, &snap.MaxPlayers, &snap.Bots, &snap.RTTMillis,
		&snap.Error, &created)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Engine = protocol.Engine(engine)
	snap.CreatedAt = time.UnixMilli(created)
	return snap, nil
}

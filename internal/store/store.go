// Package store persists grid engine state to the gridstate sqlite
// database so a restarted worker can resume instead of rebuilding its
// ladder from scratch, and keeps an append-only record of fills,
// alerts, and retrain events for audit.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/database"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/domain"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// schemaVersion is bumped whenever Snapshot's encoded shape changes.
// LoadSnapshot refuses to decode a payload from a newer version than
// this binary understands.
const schemaVersion = 1

// Snapshot is the persisted state of one symbol's grid engine.
type Snapshot struct {
	Venue    domain.Venue    `msgpack:"venue"`
	Ladder   domain.Ladder   `msgpack:"ladder"`
	Position domain.Position `msgpack:"position"`
}

// PersistState implements worker.StatePersister, saving a worker's
// ladder and position on graceful shutdown.
func (s *Store) PersistState(ctx context.Context, symbol string, venue domain.Venue, position domain.Position, ladder domain.Ladder) error {
	return s.SaveSnapshot(ctx, symbol, Snapshot{Venue: venue, Ladder: ladder, Position: position})
}

// Store wraps the gridstate database with repository methods for grid
// snapshots, fills, alerts, and retrain events.
type Store struct {
	db  *database.DB
	log zerolog.Logger
}

// New builds a Store over an already-migrated gridstate database.
func New(db *database.DB, log zerolog.Logger) *Store {
	return &Store{db: db, log: log.With().Str("component", "store").Logger()}
}

// SaveSnapshot upserts the symbol's current grid state as a single
// atomic write.
func (s *Store) SaveSnapshot(ctx context.Context, symbol string, snap Snapshot) error {
	payload, err := msgpack.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot for %s: %w", symbol, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO grid_snapshots (symbol, schema_version, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			schema_version = excluded.schema_version,
			payload         = excluded.payload,
			updated_at      = excluded.updated_at
	`, symbol, schemaVersion, payload, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save snapshot for %s: %w", symbol, err)
	}
	return nil
}

// LoadSnapshot returns the most recently saved state for symbol, or
// (Snapshot{}, false, nil) if none exists.
func (s *Store) LoadSnapshot(ctx context.Context, symbol string) (Snapshot, bool, error) {
	var version int
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT schema_version, payload FROM grid_snapshots WHERE symbol = ?
	`, symbol).Scan(&version, &payload)
	if err == sql.ErrNoRows {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("load snapshot for %s: %w", symbol, err)
	}
	if version > schemaVersion {
		return Snapshot{}, false, fmt.Errorf("snapshot for %s has schema version %d, newer than this binary understands (%d)", symbol, version, schemaVersion)
	}

	var snap Snapshot
	if err := msgpack.Unmarshal(payload, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("decode snapshot for %s: %w", symbol, err)
	}
	return snap, true, nil
}

// DeleteSnapshot removes a symbol's persisted state.
func (s *Store) DeleteSnapshot(ctx context.Context, symbol string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM grid_snapshots WHERE symbol = ?`, symbol)
	if err != nil {
		return fmt.Errorf("delete snapshot for %s: %w", symbol, err)
	}
	return nil
}

// RecordFill appends one fill to the audit trail.
func (s *Store) RecordFill(ctx context.Context, symbol, orderID string, trade domain.Trade, levelIndex int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fills (symbol, order_id, side, price, quantity, level_index, filled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, symbol, orderID, string(trade.Side), trade.Price, trade.Quantity, levelIndex, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record fill for %s: %w", symbol, err)
	}
	return nil
}

// RecordAlert appends one raised alert to the audit trail.
func (s *Store) RecordAlert(ctx context.Context, key, severity, message string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (alert_key, severity, message, raised_at, acknowledged)
		VALUES (?, ?, ?, ?, 0)
	`, key, severity, message, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record alert %s: %w", key, err)
	}
	return nil
}

// RecordRetrainEvent appends one retrain trigger to the audit trail.
func (s *Store) RecordRetrainEvent(ctx context.Context, symbol string, tradeCount int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO retrain_events (symbol, trade_count, triggered_at)
		VALUES (?, ?, ?)
	`, symbol, tradeCount, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record retrain event for %s: %w", symbol, err)
	}
	return nil
}

// Symbols lists every symbol with a persisted snapshot.
func (s *Store) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT symbol FROM grid_snapshots`)
	if err != nil {
		return nil, fmt.Errorf("list snapshot symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("scan snapshot symbol: %w", err)
		}
		symbols = append(symbols, symbol)
	}
	return symbols, rows.Err()
}

package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/unklstewy/ads-bturns/pkg/turn"
)

// TurnRepository is the append-only turns ledger. Rows are inserted, never
// updated or deleted.
type TurnRepository struct {
	db *DB
}

// NewTurnRepository creates a new turns ledger.
func NewTurnRepository(db *DB) *TurnRepository {
	return &TurnRepository{db: db}
}

// Emit appends one turn event.
func (r *TurnRepository) Emit(ctx context.Context, ev turn.Event) error {
	_, err := r.db.ExecContext(ctx, r.db.rebind(
		`INSERT INTO turn_events (
			id, turn_at_ms, track_id, callsign, registration,
			latitude, longitude, heading_change_deg, method
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		ev.ID.String(), toMillis(ev.Time), ev.TrackID, ev.Callsign, ev.Registration,
		ev.Latitude, ev.Longitude, ev.HeadingChange, string(ev.Method),
	)
	if err != nil {
		return fmt.Errorf("failed to record turn %s: %w", ev.ID, err)
	}
	return nil
}

// Recent returns the latest limit turns, newest first.
func (r *TurnRepository) Recent(ctx context.Context, limit int) ([]turn.Event, error) {
	events, _, err := r.query(ctx, r.db.rebind(turnSelect+` ORDER BY turn_at_ms DESC, seq DESC LIMIT ?`), limit)
	return events, err
}

// All returns every turn in time order.
func (r *TurnRepository) All(ctx context.Context) ([]turn.Event, error) {
	events, _, err := r.query(ctx, turnSelect+` ORDER BY turn_at_ms, seq`)
	return events, err
}

// Since returns up to limit turns appended after sequence number after, in
// append order, with the sequence number of the last one returned. When
// nothing is newer, last equals after.
func (r *TurnRepository) Since(ctx context.Context, after int64, limit int) (events []turn.Event, last int64, err error) {
	events, last, err = r.query(ctx, r.db.rebind(turnSelect+` WHERE seq > ? ORDER BY seq LIMIT ?`), after, limit)
	if err != nil {
		return nil, after, err
	}
	if len(events) == 0 {
		last = after
	}
	return events, last, nil
}

// LastSeq returns the sequence number of the most recently appended turn, or
// 0 when the ledger is empty.
func (r *TurnRepository) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM turn_events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to read last turn sequence: %w", err)
	}
	return seq, nil
}

// Count returns the number of recorded turns.
func (r *TurnRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM turn_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count turns: %w", err)
	}
	return n, nil
}

const turnSelect = `SELECT seq, id, turn_at_ms, track_id, callsign, registration,
	latitude, longitude, heading_change_deg, method
	FROM turn_events`

// query scans turn rows and returns the sequence number of the last row read.
func (r *TurnRepository) query(ctx context.Context, q string, args ...any) ([]turn.Event, int64, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var (
		events []turn.Event
		last   int64
	)
	for rows.Next() {
		var (
			ev     turn.Event
			id     string
			at     int64
			method string
		)
		if err := rows.Scan(&last, &id, &at, &ev.TrackID, &ev.Callsign, &ev.Registration,
			&ev.Latitude, &ev.Longitude, &ev.HeadingChange, &method); err != nil {
			return nil, 0, fmt.Errorf("failed to scan turn: %w", err)
		}
		if ev.ID, err = uuid.Parse(id); err != nil {
			return nil, 0, fmt.Errorf("invalid turn id %q: %w", id, err)
		}
		ev.Time = fromMillis(at)
		ev.Method = turn.Method(method)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read turns: %w", err)
	}

	return events, last, nil
}

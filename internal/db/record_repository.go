package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/unklstewy/ads-bturns/pkg/track"
)

// RecordRepository is the records ledger: a durable copy of the reports held
// by the track store, so a restart does not lose partially collected tracks.
type RecordRepository struct {
	db *DB
}

// NewRecordRepository creates a new records ledger.
func NewRecordRepository(db *DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// Insert persists one report.
func (r *RecordRepository) Insert(ctx context.Context, rep track.Report) error {
	_, err := r.db.ExecContext(ctx, r.db.rebind(insertReportSQL), reportArgs(rep)...)
	if err != nil {
		return fmt.Errorf("failed to insert report for %s: %w", rep.TrackID, err)
	}
	return nil
}

// InsertBatch persists reports in a single transaction.
func (r *RecordRepository) InsertBatch(ctx context.Context, reps []track.Report) error {
	if len(reps) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, r.db.rebind(insertReportSQL))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rep := range reps {
		if _, err := stmt.ExecContext(ctx, reportArgs(rep)...); err != nil {
			return fmt.Errorf("failed to insert report for %s: %w", rep.TrackID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reports: %w", err)
	}
	return nil
}

// LoadAll returns every persisted report, grouped by track in time order.
func (r *RecordRepository) LoadAll(ctx context.Context) ([]track.Report, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT observed_at_ms, track_id, callsign, registration, altitude_ft,
		        latitude, longitude, heading_deg
		 FROM position_reports
		 ORDER BY track_id, observed_at_ms, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []track.Report
	for rows.Next() {
		var (
			rep      track.Report
			observed int64
			altitude sql.NullInt64
			hdg      sql.NullFloat64
		)
		if err := rows.Scan(&observed, &rep.TrackID, &rep.Callsign, &rep.Registration,
			&altitude, &rep.Latitude, &rep.Longitude, &hdg); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		rep.ObservedAt = fromMillis(observed)
		if altitude.Valid {
			alt := int(altitude.Int64)
			rep.Altitude = &alt
		}
		if hdg.Valid {
			h := hdg.Float64
			rep.Heading = &h
		}
		reports = append(reports, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read reports: %w", err)
	}

	return reports, nil
}

// DeleteTracks removes every report of the given tracks.
func (r *RecordRepository) DeleteTracks(ctx context.Context, trackIDs []string) error {
	if len(trackIDs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, r.db.rebind(`DELETE FROM position_reports WHERE track_id = ?`))
	if err != nil {
		return fmt.Errorf("failed to prepare delete: %w", err)
	}
	defer stmt.Close()

	for _, id := range trackIDs {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("failed to delete reports of %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

// ActiveSummaries describes each track in the ledger, oldest first.
func (r *RecordRepository) ActiveSummaries(ctx context.Context) ([]track.Summary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT track_id, MAX(callsign), COUNT(*), MIN(observed_at_ms), MAX(observed_at_ms)
		 FROM position_reports
		 GROUP BY track_id
		 ORDER BY MIN(observed_at_ms), track_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query track summaries: %w", err)
	}
	defer rows.Close()

	var out []track.Summary
	for rows.Next() {
		var (
			s              track.Summary
			oldest, latest int64
		)
		if err := rows.Scan(&s.ID, &s.Callsign, &s.Reports, &oldest, &latest); err != nil {
			return nil, fmt.Errorf("failed to scan track summary: %w", err)
		}
		s.Oldest = fromMillis(oldest)
		s.Latest = fromMillis(latest)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read track summaries: %w", err)
	}

	return out, nil
}

const insertReportSQL = `INSERT INTO position_reports (
	observed_at_ms, track_id, callsign, registration, altitude_ft,
	latitude, longitude, heading_deg
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func reportArgs(rep track.Report) []any {
	var altitude, hdg any
	if rep.Altitude != nil {
		altitude = *rep.Altitude
	}
	if rep.HasHeading() {
		hdg = *rep.Heading
	}
	return []any{
		toMillis(rep.ObservedAt), rep.TrackID, rep.Callsign, rep.Registration, altitude,
		rep.Latitude, rep.Longitude, hdg,
	}
}

package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/unklstewy/ads-bturns/pkg/track"
)

// RecordTimeLayout is the timestamp format of the records CSV. Milliseconds
// are kept so reloaded reports keep their observation times.
const RecordTimeLayout = "2006-01-02T15:04:05.000"

// RecordColumns names the columns of the records CSV. The file has no header
// row.
var RecordColumns = []string{"timestamp", "callsign", "regis", "hex", "alt", "lat", "lon", "track"}

// CSVRecords is a records ledger kept in a CSV file: a durable copy of the
// reports held by the track store. Reports are appended as they arrive; the
// file is rewritten when evicted tracks are dropped.
type CSVRecords struct {
	mu   sync.Mutex
	path string
}

// OpenRecords opens (creating if needed) the records CSV at path.
func OpenRecords(path string) (*CSVRecords, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create records directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open records ledger: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to open records ledger: %w", err)
	}
	return &CSVRecords{path: path}, nil
}

// Path returns the ledger's file path.
func (c *CSVRecords) Path() string {
	return c.path
}

// InsertBatch appends reports as a single write followed by a sync.
func (c *CSVRecords) InsertBatch(_ context.Context, reports []track.Report) error {
	if len(reports) == 0 {
		return nil
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	for _, r := range reports {
		if err := cw.Write(encodeRecord(r)); err != nil {
			return fmt.Errorf("failed to encode report for %s: %w", r.TrackID, err)
		}
	}
	cw.Flush()

	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.OpenFile(c.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to open records ledger: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to append to records ledger %s: %w", c.path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync records ledger %s: %w", c.path, err)
	}
	return nil
}

// LoadAll returns every persisted report in file order. Rows that cannot be
// parsed are skipped.
func (c *CSVRecords) LoadAll(_ context.Context) ([]track.Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reports, _, err := c.read()
	return reports, err
}

// DeleteTracks drops every report of the given tracks. The kept rows are
// written to a temporary file which then replaces the ledger, so a crash
// leaves either the old or the new contents.
func (c *CSVRecords) DeleteTracks(_ context.Context, trackIDs []string) error {
	if len(trackIDs) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(trackIDs))
	for _, id := range trackIDs {
		drop[id] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	reports, skipped, err := c.read()
	if err != nil {
		return err
	}
	if skipped > 0 {
		log.Printf("⚠️  Dropping %d unreadable rows from records ledger %s", skipped, c.path)
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.path), filepath.Base(c.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create records rewrite: %w", err)
	}
	defer os.Remove(tmp.Name())

	cw := csv.NewWriter(tmp)
	for _, r := range reports {
		if _, ok := drop[r.TrackID]; ok {
			continue
		}
		if err := cw.Write(encodeRecord(r)); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to rewrite records ledger: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to rewrite records ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync records rewrite: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close records rewrite: %w", err)
	}

	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("failed to replace records ledger %s: %w", c.path, err)
	}
	return nil
}

// read must be called with mu held.
func (c *CSVRecords) read() (reports []track.Report, skipped int, err error) {
	f, err := os.Open(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open records ledger: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A torn final row from a crash mid-append
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				skipped++
				continue
			}
			return reports, skipped, fmt.Errorf("failed to read records ledger: %w", err)
		}

		r, ok := parseRecord(row)
		if !ok {
			skipped++
			continue
		}
		reports = append(reports, r)
	}
	return reports, skipped, nil
}

func encodeRecord(r track.Report) []string {
	alt := ""
	if r.Altitude != nil {
		alt = strconv.Itoa(*r.Altitude)
	}
	hdg := ""
	if r.HasHeading() {
		hdg = strconv.FormatFloat(*r.Heading, 'f', -1, 64)
	}
	return []string{
		r.ObservedAt.UTC().Format(RecordTimeLayout),
		r.Callsign,
		r.Registration,
		r.TrackID,
		alt,
		strconv.FormatFloat(r.Latitude, 'f', -1, 64),
		strconv.FormatFloat(r.Longitude, 'f', -1, 64),
		hdg,
	}
}

func parseRecord(row []string) (track.Report, bool) {
	if len(row) != len(RecordColumns) {
		return track.Report{}, false
	}

	// Whole-second timestamps parse too
	ts, err := time.Parse(TimeLayout, row[0])
	if err != nil {
		return track.Report{}, false
	}
	lat, err := strconv.ParseFloat(row[5], 64)
	if err != nil {
		return track.Report{}, false
	}
	lon, err := strconv.ParseFloat(row[6], 64)
	if err != nil {
		return track.Report{}, false
	}

	r := track.Report{
		ObservedAt:   ts.UTC(),
		Callsign:     row[1],
		Registration: row[2],
		TrackID:      row[3],
		Latitude:     lat,
		Longitude:    lon,
	}
	if row[4] != "" {
		alt, err := strconv.Atoi(row[4])
		if err != nil {
			return track.Report{}, false
		}
		r.Altitude = &alt
	}
	if row[7] != "" {
		hdg, err := strconv.ParseFloat(row[7], 64)
		if err != nil {
			return track.Report{}, false
		}
		r.Heading = &hdg
	}
	return r, true
}

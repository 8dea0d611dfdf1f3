// Package ledger provides file-based turn ledgers and exports.
package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unklstewy/ads-bturns/pkg/turn"
)

// TimeLayout is the timestamp format of the turns CSV (ISO-8601, seconds).
const TimeLayout = "2006-01-02T15:04:05"

// Header is the first row of a turns CSV. The first six columns match the
// historical turns.csv layout read by the mapping tools.
var Header = []string{"timestamp", "callsign", "regis", "hex", "lat", "lon", "id", "method", "heading_change"}

// CSVWriter appends turn events to a CSV file. The file is only ever opened
// in append mode; rows already written are never rewritten.
type CSVWriter struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// OpenCSV opens (creating if needed) the turns CSV at path. A header row is
// written when the file is new or empty.
func OpenCSV(path string) (*CSVWriter, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open turns ledger: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat turns ledger: %w", err)
	}

	w := &CSVWriter{path: path, f: f}
	if info.Size() == 0 {
		if err := w.writeRow(Header); err != nil {
			f.Close()
			return nil, err
		}
	}
	return w, nil
}

// Emit appends one event as a single write followed by a sync.
func (w *CSVWriter) Emit(_ context.Context, ev turn.Event) error {
	return w.writeRow(encodeRow(ev))
}

// Path returns the ledger's file path.
func (w *CSVWriter) Path() string {
	return w.path
}

// Close closes the underlying file.
func (w *CSVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

func (w *CSVWriter) writeRow(row []string) error {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(row); err != nil {
		return fmt.Errorf("failed to encode turn row: %w", err)
	}
	cw.Flush()

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to append to turns ledger %s: %w", w.path, err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync turns ledger %s: %w", w.path, err)
	}
	return nil
}

// WriteCSV writes events, preceded by the header row, to w.
func WriteCSV(w io.Writer, events []turn.Event) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, ev := range events {
		if err := cw.Write(encodeRow(ev)); err != nil {
			return fmt.Errorf("failed to write turn %s: %w", ev.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func encodeRow(ev turn.Event) []string {
	return []string{
		ev.Time.UTC().Format(TimeLayout),
		ev.Callsign,
		ev.Registration,
		ev.TrackID,
		strconv.FormatFloat(ev.Latitude, 'f', -1, 64),
		strconv.FormatFloat(ev.Longitude, 'f', -1, 64),
		ev.ID.String(),
		string(ev.Method),
		strconv.FormatFloat(ev.HeadingChange, 'f', 2, 64),
	}
}

// ReadCSV parses a turns CSV. Rows with only the historical six columns are
// accepted; rows that cannot be parsed are skipped and counted.
func ReadCSV(r io.Reader) (events []turn.Event, skipped int, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	first := true
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return events, skipped, fmt.Errorf("failed to read turns ledger: %w", err)
		}
		if first {
			first = false
			if len(row) > 0 && row[0] == Header[0] {
				continue
			}
		}

		ev, ok := parseRow(row)
		if !ok {
			skipped++
			continue
		}
		events = append(events, ev)
	}
	return events, skipped, nil
}

func parseRow(row []string) (turn.Event, bool) {
	if len(row) < 6 {
		return turn.Event{}, false
	}

	ts, err := time.Parse(TimeLayout, row[0])
	if err != nil {
		return turn.Event{}, false
	}
	lat, err := strconv.ParseFloat(row[4], 64)
	if err != nil {
		return turn.Event{}, false
	}
	lon, err := strconv.ParseFloat(row[5], 64)
	if err != nil {
		return turn.Event{}, false
	}

	ev := turn.Event{
		Time:         ts.UTC(),
		Callsign:     row[1],
		Registration: row[2],
		TrackID:      row[3],
		Latitude:     lat,
		Longitude:    lon,
		Method:       turn.MethodIntersection,
	}
	if len(row) > 6 {
		if id, err := uuid.Parse(row[6]); err == nil {
			ev.ID = id
		}
	}
	if len(row) > 7 && row[7] != "" {
		ev.Method = turn.Method(row[7])
	}
	if len(row) > 8 {
		if hc, err := strconv.ParseFloat(row[8], 64); err == nil {
			ev.HeadingChange = hc
		}
	}
	return ev, true
}

package track

import (
	"sort"
	"sync"
	"time"
)

// Track is the ordered history of one aircraft's reports.
type Track struct {
	ID      string
	Reports []Report
}

// Oldest returns the earliest observation time in the track.
func (t Track) Oldest() time.Time {
	var oldest time.Time
	for i, r := range t.Reports {
		if i == 0 || r.ObservedAt.Before(oldest) {
			oldest = r.ObservedAt
		}
	}
	return oldest
}

// Latest returns the most recent report in the track.
func (t Track) Latest() Report {
	var latest Report
	for i, r := range t.Reports {
		if i == 0 || !r.ObservedAt.Before(latest.ObservedAt) {
			latest = r
		}
	}
	return latest
}

// SortByTime orders reports by observation time. Reports sharing a timestamp
// keep their arrival order.
func (t *Track) SortByTime() {
	sort.SliceStable(t.Reports, func(i, j int) bool {
		return t.Reports[i].ObservedAt.Before(t.Reports[j].ObservedAt)
	})
}

// Summary describes an in-flight track without copying its reports.
type Summary struct {
	ID       string
	Callsign string
	Reports  int
	Oldest   time.Time
	Latest   time.Time
}

type entry struct {
	reports []Report
	oldest  time.Time

	// observed holds the UnixNano of every report in reports
	observed map[int64]struct{}
}

// Store buffers reports per aircraft until the whole track is old enough to
// analyse. A track is evicted in one piece once its oldest report has aged
// past the retention threshold; it is never truncated.
//
// Append and Sweep are serialized by a single mutex, so a sweep's removal of
// stale tracks is atomic with respect to concurrent appends.
type Store struct {
	mu     sync.Mutex
	tracks map[string]*entry
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		tracks: make(map[string]*entry),
	}
}

// Append adds a report to its track, creating the track on first sight.
// Reports failing Validate are rejected with ErrMalformedReport. A report
// observed at the same instant as one the track already holds is rejected
// with ErrDuplicateReport and the track is left unchanged.
func (s *Store) Append(r Report) error {
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.tracks[r.TrackID]
	if !ok {
		e = &entry{oldest: r.ObservedAt, observed: make(map[int64]struct{})}
		s.tracks[r.TrackID] = e
	}
	at := r.ObservedAt.UnixNano()
	if _, dup := e.observed[at]; dup {
		return ErrDuplicateReport
	}
	e.observed[at] = struct{}{}
	e.reports = append(e.reports, r)
	if r.ObservedAt.Before(e.oldest) {
		e.oldest = r.ObservedAt
	}
	return nil
}

// Sweep removes and returns every track whose oldest report is at least
// retention old relative to now. Returned tracks hold their full history,
// sorted by observation time, and are ordered by track ID. Tracks younger
// than retention are left untouched.
func (s *Store) Sweep(now time.Time, retention time.Duration) []Track {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []Track
	for id, e := range s.tracks {
		if now.Sub(e.oldest) < retention {
			continue
		}
		t := Track{ID: id, Reports: e.reports}
		t.SortByTime()
		stale = append(stale, t)
		delete(s.tracks, id)
	}

	sort.Slice(stale, func(i, j int) bool { return stale[i].ID < stale[j].ID })
	return stale
}

// Len returns the number of tracks currently buffered.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracks)
}

// Summaries returns a snapshot of the buffered tracks, oldest first.
func (s *Store) Summaries() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Summary, 0, len(s.tracks))
	for id, e := range s.tracks {
		latest := Track{Reports: e.reports}.Latest()
		out = append(out, Summary{
			ID:       id,
			Callsign: latest.Callsign,
			Reports:  len(e.reports),
			Oldest:   e.oldest,
			Latest:   latest.ObservedAt,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Oldest.Equal(out[j].Oldest) {
			return out[i].ID < out[j].ID
		}
		return out[i].Oldest.Before(out[j].Oldest)
	})
	return out
}

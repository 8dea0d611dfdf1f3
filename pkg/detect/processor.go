package detect

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/unklstewy/ads-bturns/pkg/track"
	"github.com/unklstewy/ads-bturns/pkg/turn"
)

// RecordLedger is the durable copy of the track store's contents.
type RecordLedger interface {
	// LoadAll returns every persisted report
	LoadAll(ctx context.Context) ([]track.Report, error)

	// DeleteTracks drops every persisted report of the given tracks
	DeleteTracks(ctx context.Context, trackIDs []string) error
}

// SweepResult summarises one sweep.
type SweepResult struct {
	// Evicted is the number of tracks removed from the store
	Evicted int

	// Analyzed is the number of evicted tracks analysed without error
	Analyzed int

	// Turns is the number of turn events written to every turns ledger
	Turns int

	// Partial is the number of turn events only some turns ledgers recorded
	Partial int

	// Failed lists tracks whose analysis failed; they are not retried
	Failed []string
}

// Processor drives the periodic sweep: stale tracks leave the store, go
// through the analyzer, and their turns are appended to the turns ledger.
type Processor struct {
	store     *track.Store
	analyzer  *Analyzer
	emitter   turn.Emitter
	records   RecordLedger
	retention time.Duration
}

// NewProcessor wires a processor. records may be nil when reports are only
// held in memory.
func NewProcessor(store *track.Store, analyzer *Analyzer, emitter turn.Emitter, records RecordLedger, retention time.Duration) *Processor {
	return &Processor{
		store:     store,
		analyzer:  analyzer,
		emitter:   emitter,
		records:   records,
		retention: retention,
	}
}

// Restore reloads the records ledger into the store. Malformed rows are
// skipped and counted; repeated observations are skipped silently.
func (p *Processor) Restore(ctx context.Context) (loaded, rejected int, err error) {
	if p.records == nil {
		return 0, 0, nil
	}

	reports, err := p.records.LoadAll(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load records ledger: %w", err)
	}

	for _, r := range reports {
		if err := p.store.Append(r); err != nil {
			if !errors.Is(err, track.ErrDuplicateReport) {
				rejected++
			}
			continue
		}
		loaded++
	}
	return loaded, rejected, nil
}

// Sweep evicts every track whose oldest report is at least the retention
// period old, analyses each one once and emits its turns.
//
// One track failing analysis does not stop the others. Ledger write failures
// are returned (joined) after every evicted track has been handled; the
// evicted tracks are not put back.
func (p *Processor) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	stale := p.store.Sweep(now, p.retention)

	res := SweepResult{Evicted: len(stale)}
	if len(stale) == 0 {
		return res, nil
	}

	var errs []error
	ids := make([]string, 0, len(stale))
	for _, t := range stale {
		ids = append(ids, t.ID)

		events, err := p.analyze(t)
		if err != nil {
			log.Printf("✗ Analysis of %s failed: %v", t.ID, err)
			res.Failed = append(res.Failed, t.ID)
			continue
		}
		res.Analyzed++

		for _, ev := range events {
			if err := p.emitter.Emit(ctx, ev); err != nil {
				var emitErr *turn.EmitError
				if errors.As(err, &emitErr) && emitErr.Partial() {
					log.Printf("⚠️  Turn %s for %s at %s (%.5f, %.5f) partially recorded, missing from %s: %v",
						ev.ID, ev.TrackID, ev.Time.Format(time.RFC3339), ev.Latitude, ev.Longitude,
						strings.Join(emitErr.Failed, ", "), emitErr.Err)
					res.Partial++
				} else {
					log.Printf("✗ LOST TURN %s for %s at %s (%.5f, %.5f): %v",
						ev.ID, ev.TrackID, ev.Time.Format(time.RFC3339), ev.Latitude, ev.Longitude, err)
				}
				errs = append(errs, err)
				continue
			}
			res.Turns++
		}
	}

	if p.records != nil {
		if err := p.records.DeleteTracks(ctx, ids); err != nil {
			log.Printf("✗ Failed to drop %d evicted tracks from records ledger: %v", len(ids), err)
			errs = append(errs, fmt.Errorf("failed to drop evicted tracks: %w", err))
		}
	}

	return res, errors.Join(errs...)
}

// analyze contains panics to the offending track.
func (p *Processor) analyze(t track.Track) (events []turn.Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while analysing track: %v", r)
		}
	}()
	return p.analyzer.Analyze(t)
}

package main

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/unklstewy/ads-bturns/internal/db"
	"github.com/unklstewy/ads-bturns/pkg/adsb"
	"github.com/unklstewy/ads-bturns/pkg/detect"
	"github.com/unklstewy/ads-bturns/pkg/track"
)

// reportSink persists accepted reports to the records ledger.
type reportSink interface {
	InsertBatch(ctx context.Context, reports []track.Report) error
}

// Detector runs the poll, append and sweep cycle.
type Detector struct {
	poller    *adsb.Poller
	store     *track.Store
	records   reportSink
	processor *detect.Processor

	updateInterval time.Duration
	now            func() time.Time

	// Statistics
	totalUpdates int
	totalTurns   int
}

// Run polls immediately, then on every tick until ctx is cancelled.
func (d *Detector) Run(ctx context.Context) {
	ticker := time.NewTicker(d.updateInterval)
	defer ticker.Stop()

	d.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.cycle(ctx)
		}
	}
}

// cycle is one poll followed by one sweep. A failed poll still sweeps, so
// tracks are analysed on time even while the source is unreachable.
func (d *Detector) cycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC in cycle(): %v", r)
			log.Println("Cycle will be retried on next tick")
		}
	}()

	d.totalUpdates++
	d.poll(ctx)

	now := d.now().UTC()
	res, err := d.processor.Sweep(ctx, now)
	if err != nil {
		log.Printf("✗ Sweep finished with ledger errors: %v", err)
	}
	d.totalTurns += res.Turns + res.Partial

	if res.Evicted > 0 {
		log.Printf("🛬 %d stale aircraft analysed, %d turns detected (%d partially recorded, %d failed)",
			res.Evicted, res.Turns+res.Partial, res.Partial, len(res.Failed))
	}
}

func (d *Detector) poll(ctx context.Context) {
	reports, stats, err := d.poller.Poll(ctx)
	if err != nil {
		log.Printf("✗ Failed to fetch aircraft after retries: %v (will retry in next update cycle)", err)
		return
	}

	accepted := make([]track.Report, 0, len(reports))
	repeated := 0
	for _, r := range reports {
		if err := d.store.Append(r); err != nil {
			// An unchanged position from the source is not a new observation
			if errors.Is(err, track.ErrDuplicateReport) {
				repeated++
				continue
			}
			log.Printf("Rejected report for %s: %v", r.TrackID, err)
			continue
		}
		accepted = append(accepted, r)
	}

	if d.records != nil && len(accepted) > 0 {
		err := db.WithRetry(func() error {
			return d.records.InsertBatch(ctx, accepted)
		}, 2)
		if err != nil {
			log.Printf("✗ Failed to write %d reports to records ledger: %v", len(accepted), err)
		}
	}

	log.Printf("[%s] Update #%d: %d aircraft, %d recorded (%d unchanged), %d tracks in memory, %d turns so far",
		d.now().UTC().Format("15:04:05"), d.totalUpdates, stats.Received, len(accepted), repeated, d.store.Len(), d.totalTurns)
}

package turn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is a confirmed, located turn. Events are written once and never
// updated.
type Event struct {
	// ID uniquely identifies the event in the turns ledger
	ID uuid.UUID

	// Time is halfway between the two reports bracketing the turn
	Time time.Time

	TrackID      string
	Callsign     string
	Registration string

	// Latitude and Longitude of the estimated turn point
	Latitude  float64
	Longitude float64

	// HeadingChange is the signed unwrapped heading change across the turn
	HeadingChange float64

	// Method records how the point was obtained
	Method Method
}

// Emitter appends turn events to a durable, append-only log.
type Emitter interface {
	Emit(ctx context.Context, ev Event) error
}

// Emitters fans one event out to several ledgers. Every ledger is attempted;
// failures are combined into an *EmitError.
type Emitters []Emitter

// EmitError reports the ledgers of an Emitters fan-out that failed to record
// an event.
type EmitError struct {
	ID uuid.UUID

	// Failed names each failing ledger by position and type
	Failed []string

	// Written is the number of ledgers that did record the event
	Written int

	Err error
}

func (e *EmitError) Error() string {
	return fmt.Sprintf("failed to emit turn %s (%d of %d ledgers written): %v",
		e.ID, e.Written, e.Written+len(e.Failed), e.Err)
}

func (e *EmitError) Unwrap() error { return e.Err }

// Partial reports whether some ledger recorded the event.
func (e *EmitError) Partial() bool { return e.Written > 0 }

// Emit implements Emitter.
func (es Emitters) Emit(ctx context.Context, ev Event) error {
	var (
		errs    []error
		failed  []string
		written int
	)
	for i, e := range es {
		if err := e.Emit(ctx, ev); err != nil {
			name := fmt.Sprintf("ledger #%d (%T)", i+1, e)
			failed = append(failed, name)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		written++
	}
	if len(errs) > 0 {
		return &EmitError{ID: ev.ID, Failed: failed, Written: written, Err: errors.Join(errs...)}
	}
	return nil
}

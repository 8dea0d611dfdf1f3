package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/unklstewy/ads-bturns/pkg/turn"
)

const (
	liveWriteWait = 10 * time.Second
	liveMaxBatch  = 100
)

// liveMessage is one websocket frame of the live feed.
type liveMessage struct {
	Type  string         `json:"type"` // "hello" or "turns"
	Total int            `json:"total"`
	Turns []TurnResponse `json:"turns,omitempty"`
}

// handleLive upgrades to a websocket and pushes turns appended after the
// connection was opened, in the order they were appended.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Unable to upgrade live websocket: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reads are only needed to see close frames
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	seen, err := s.opts.Turns.LastSeq(ctx)
	if err != nil {
		log.Printf("Error reading turns ledger for live feed: %v", err)
		return
	}
	total, err := s.opts.Turns.Count(ctx)
	if err != nil {
		log.Printf("Error counting turns for live feed: %v", err)
		return
	}
	if err := s.writeLive(conn, liveMessage{Type: "hello", Total: total}); err != nil {
		return
	}

	ticker := time.NewTicker(s.opts.LiveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		events, last, err := s.newTurns(ctx, seen)
		if err != nil {
			log.Printf("Error polling turns for live feed: %v", err)
			continue
		}
		if len(events) == 0 {
			continue
		}
		seen = last

		total, err := s.opts.Turns.Count(ctx)
		if err != nil {
			log.Printf("Error counting turns for live feed: %v", err)
			continue
		}

		msg := liveMessage{Type: "turns", Total: total, Turns: make([]TurnResponse, len(events))}
		for i, ev := range events {
			msg.Turns[i] = s.turnResponse(ev)
		}
		if err := s.writeLive(conn, msg); err != nil {
			return
		}
	}
}

// newTurns returns the turns appended after sequence number seen, in append
// order, and the sequence number to resume from.
func (s *Server) newTurns(ctx context.Context, seen int64) ([]turn.Event, int64, error) {
	return s.opts.Turns.Since(ctx, seen, liveMaxBatch)
}

func (s *Server) writeLive(conn *websocket.Conn, msg liveMessage) error {
	conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("Live websocket write failed: %v", err)
		return err
	}
	return nil
}

package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/unklstewy/ads-bturns/internal/auth"
	"github.com/unklstewy/ads-bturns/pkg/coordinates"
	"github.com/unklstewy/ads-bturns/pkg/ledger"
	"github.com/unklstewy/ads-bturns/pkg/turn"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
)

// TurnResponse is the JSON shape of a turn event.
type TurnResponse struct {
	ID            string    `json:"id"`
	Time          time.Time `json:"time"`
	Hex           string    `json:"hex"`
	Callsign      string    `json:"callsign"`
	Registration  string    `json:"registration"`
	Latitude      float64   `json:"lat"`
	Longitude     float64   `json:"lon"`
	HeadingChange float64   `json:"headingChange"`
	Method        string    `json:"method"`
	DistanceNM    float64   `json:"distanceNm"` // From the monitored centre
	Bearing       float64   `json:"bearing"`    // From the monitored centre, degrees
}

// TrackResponse is the JSON shape of an in-flight track.
type TrackResponse struct {
	Hex            string    `json:"hex"`
	Callsign       string    `json:"callsign"`
	Reports        int       `json:"reports"`
	FirstSeen      time.Time `json:"firstSeen"`
	LastSeen       time.Time `json:"lastSeen"`
	AnalysedInSecs float64   `json:"analysedInSecs"`
}

func (s *Server) turnResponse(ev turn.Event) TurnResponse {
	pos := coordinates.Geographic{Latitude: ev.Latitude, Longitude: ev.Longitude}
	return TurnResponse{
		ID:            ev.ID.String(),
		Time:          ev.Time,
		Hex:           ev.TrackID,
		Callsign:      ev.Callsign,
		Registration:  ev.Registration,
		Latitude:      ev.Latitude,
		Longitude:     ev.Longitude,
		HeadingChange: ev.HeadingChange,
		Method:        string(ev.Method),
		DistanceNM:    coordinates.DistanceNauticalMiles(s.opts.Center, pos),
		Bearing:       coordinates.Bearing(s.opts.Center, pos),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.opts.Health != nil {
		if err := s.opts.Health(r.Context()); err != nil {
			log.Printf("✗ Health check failed: %v", err)
			respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

// handleGetTurns returns the most recent turns, newest first
func (s *Server) handleGetTurns(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	events, err := s.opts.Turns.Recent(r.Context(), limit)
	if err != nil {
		log.Printf("Error getting turns: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to get turns")
		return
	}

	response := make([]TurnResponse, len(events))
	for i, ev := range events {
		response[i] = s.turnResponse(ev)
	}
	respondJSON(w, http.StatusOK, response)
}

// handleGetTurnsGeoJSON returns the most recent turns as a FeatureCollection
func (s *Server) handleGetTurnsGeoJSON(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	events, err := s.opts.Turns.Recent(r.Context(), limit)
	if err != nil {
		log.Printf("Error getting turns: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to get turns")
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	if err := ledger.WriteGeoJSON(w, events); err != nil {
		log.Printf("Error writing GeoJSON: %v", err)
	}
}

// handleGetTracks returns the tracks still accumulating, oldest first
func (s *Server) handleGetTracks(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.opts.Tracks.ActiveSummaries(r.Context())
	if err != nil {
		log.Printf("Error getting tracks: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to get tracks")
		return
	}

	now := s.now().UTC()
	response := make([]TrackResponse, len(summaries))
	for i, t := range summaries {
		left := s.opts.Retention - now.Sub(t.Oldest)
		if left < 0 {
			left = 0
		}
		response[i] = TrackResponse{
			Hex:            t.ID,
			Callsign:       t.Callsign,
			Reports:        t.Reports,
			FirstSeen:      t.Oldest,
			LastSeen:       t.Latest,
			AnalysedInSecs: left.Seconds(),
		}
	}
	respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.opts.Stats.Stats(r.Context())
	if err != nil {
		log.Printf("Error getting stats: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to get stats")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// handleIssueToken issues a token for another API client
func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subject string `json:"subject"`
		Role    string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Subject == "" {
		respondError(w, http.StatusBadRequest, "subject is required")
		return
	}
	if req.Role == "" {
		req.Role = auth.RoleViewer
	}

	token, err := s.opts.Auth.GenerateToken(req.Subject, req.Role)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"token":   token,
		"subject": req.Subject,
		"role":    req.Role,
	})
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultLimit, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		respondError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// Package api serves the turns ledger and the in-flight track summary over
// HTTP, with a websocket feed of newly recorded turns.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/unklstewy/ads-bturns/internal/auth"
	"github.com/unklstewy/ads-bturns/pkg/coordinates"
	"github.com/unklstewy/ads-bturns/pkg/track"
	"github.com/unklstewy/ads-bturns/pkg/turn"
)

// TurnLedger reads the turns ledger.
type TurnLedger interface {
	// Recent returns the latest limit turns by turn time, newest first
	Recent(ctx context.Context, limit int) ([]turn.Event, error)
	Count(ctx context.Context) (int, error)

	// Since returns turns appended after sequence number after, in append
	// order, and the sequence number of the last one returned
	Since(ctx context.Context, after int64, limit int) ([]turn.Event, int64, error)
	LastSeq(ctx context.Context) (int64, error)
}

// TrackLedger summarises the tracks still accumulating reports.
type TrackLedger interface {
	ActiveSummaries(ctx context.Context) ([]track.Summary, error)
}

// StatsSource reports row counts of the ledgers.
type StatsSource interface {
	Stats(ctx context.Context) (map[string]int64, error)
}

// Options configures a Server.
type Options struct {
	Turns  TurnLedger
	Tracks TrackLedger
	Stats  StatsSource

	// Health is called by /health; nil always reports healthy
	Health func(ctx context.Context) error

	// Auth guards /api/v1 when set; nil leaves the API open
	Auth *auth.Service

	AllowedOrigins []string

	// Center is the monitored area centre, used for distance and bearing
	Center coordinates.Geographic

	// Retention is the track retention period, used for time-to-analysis
	Retention time.Duration

	// LiveInterval is how often the websocket feed checks for new turns
	LiveInterval time.Duration
}

// Server holds the HTTP router and its dependencies
type Server struct {
	router *chi.Mux
	opts   Options
	now    func() time.Time
}

type contextKey string

const claimsKey contextKey = "claims"

// NewServer builds the router.
func NewServer(opts Options) *Server {
	if opts.LiveInterval <= 0 {
		opts.LiveInterval = 5 * time.Second
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		router: chi.NewRouter(),
		opts:   opts,
		now:    time.Now,
	}
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		if s.opts.Auth != nil {
			r.Use(s.authMiddleware)
		}

		r.Get("/turns", s.handleGetTurns)
		r.Get("/turns.geojson", s.handleGetTurnsGeoJSON)
		r.Get("/tracks", s.handleGetTracks)
		r.Get("/stats", s.handleGetStats)
		r.Get("/live", s.handleLive)

		if s.opts.Auth != nil {
			r.With(requireRole(auth.RoleAdmin)).Post("/tokens", s.handleIssueToken)
		}
	})
}

// authMiddleware accepts a bearer token in the Authorization header, or in
// the token query parameter for websocket clients that cannot set headers.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			var ok bool
			token, ok = strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				respondError(w, http.StatusUnauthorized, "Invalid authorization header format")
				return
			}
		}
		if token == "" {
			respondError(w, http.StatusUnauthorized, "Missing authorization header")
			return
		}

		claims, err := s.opts.Auth.ValidateToken(token)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		if !auth.HasRole(claims.Role, auth.RoleViewer) {
			respondError(w, http.StatusForbidden, "Insufficient role")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := r.Context().Value(claimsKey).(*auth.Claims)
			if !ok || !auth.HasRole(claims.Role, role) {
				respondError(w, http.StatusForbidden, "Insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unklstewy/ads-bturns/internal/auth"
	"github.com/unklstewy/ads-bturns/internal/db"
	"github.com/unklstewy/ads-bturns/pkg/config"
	"github.com/unklstewy/ads-bturns/pkg/coordinates"
	"github.com/unklstewy/ads-bturns/pkg/track"
	"github.com/unklstewy/ads-bturns/pkg/turn"
)

// fakeLedger holds turns in append order; a turn's sequence number is its
// position in events plus one.
type fakeLedger struct {
	mu     sync.Mutex
	events []turn.Event
	err    error
}

func (f *fakeLedger) append(ev turn.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeLedger) Recent(_ context.Context, limit int) ([]turn.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := append([]turn.Event(nil), f.events...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.After(out[j].Time) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeLedger) Count(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events), f.err
}

func (f *fakeLedger) Since(_ context.Context, after int64, limit int) ([]turn.Event, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, after, f.err
	}
	var out []turn.Event
	last := after
	for i := int(after); i < len(f.events) && len(out) < limit; i++ {
		out = append(out, f.events[i])
		last = int64(i + 1)
	}
	return out, last, nil
}

func (f *fakeLedger) LastSeq(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.events)), f.err
}

type fakeTracks []track.Summary

func (f fakeTracks) ActiveSummaries(context.Context) ([]track.Summary, error) { return f, nil }

type fakeStats map[string]int64

func (f fakeStats) Stats(context.Context) (map[string]int64, error) { return f, nil }

var center = coordinates.Geographic{Latitude: 48.6058, Longitude: 2.6717}

func sampleTurn(min int) turn.Event {
	return turn.Event{
		ID:            uuid.New(),
		Time:          time.Date(2025, 6, 12, 14, min, 0, 0, time.UTC),
		TrackID:       "39c4a1",
		Callsign:      "AFR1234",
		Registration:  "F-GKXA",
		Latitude:      48.60,
		Longitude:     2.70,
		HeadingChange: 90,
		Method:        turn.MethodIntersection,
	}
}

func newTestServer(turns *fakeLedger, authSvc *auth.Service) *Server {
	return NewServer(Options{
		Turns:        turns,
		Tracks:       fakeTracks{},
		Stats:        fakeStats{"turn_events": int64(len(turns.events))},
		Auth:         authSvc,
		Center:       center,
		Retention:    time.Hour,
		LiveInterval: 10 * time.Millisecond,
	})
}

func get(t *testing.T, h http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&fakeLedger{}, nil)
	rec := get(t, srv, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	srv.opts.Health = func(context.Context) error { return errors.New("database is locked") }
	rec = get(t, srv, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "database is locked")
}

func TestGetTurns(t *testing.T) {
	ledger := &fakeLedger{}
	for i := 0; i < 3; i++ {
		ledger.append(sampleTurn(i))
	}
	srv := newTestServer(ledger, nil)

	rec := get(t, srv, "/api/v1/turns?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []TurnResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, ledger.events[2].ID.String(), got[0].ID, "newest first")
	assert.Equal(t, "intersection", got[0].Method)
	assert.InDelta(t, 1.19, got[0].DistanceNM, 0.05)
	assert.InDelta(t, 107, got[0].Bearing, 3)
}

func TestGetTurnsEmptyAndErrors(t *testing.T) {
	srv := newTestServer(&fakeLedger{}, nil)

	rec := get(t, srv, "/api/v1/turns", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	rec = get(t, srv, "/api/v1/turns?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	failing := newTestServer(&fakeLedger{err: errors.New("connection refused")}, nil)
	rec = get(t, failing, "/api/v1/turns", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetTurnsGeoJSON(t *testing.T) {
	ledger := &fakeLedger{}
	ledger.append(sampleTurn(1))
	srv := newTestServer(ledger, nil)

	rec := get(t, srv, "/api/v1/turns.geojson", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))

	fc, err := geojson.UnmarshalFeatureCollection(rec.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "AFR1234", fc.Features[0].Properties.MustString("callsign"))
}

func TestGetTracks(t *testing.T) {
	now := time.Date(2025, 6, 12, 15, 0, 0, 0, time.UTC)
	srv := NewServer(Options{
		Turns: &fakeLedger{},
		Tracks: fakeTracks{
			{ID: "39c4a1", Callsign: "AFR1234", Reports: 40, Oldest: now.Add(-70 * time.Minute), Latest: now},
			{ID: "4ca123", Callsign: "RYR55", Reports: 5, Oldest: now.Add(-20 * time.Minute), Latest: now},
		},
		Stats:     fakeStats{},
		Retention: time.Hour,
	})
	srv.now = func() time.Time { return now }

	rec := get(t, srv, "/api/v1/tracks", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []TrackResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Zero(t, got[0].AnalysedInSecs, "overdue track clamps to zero")
	assert.Equal(t, 40*60.0, got[1].AnalysedInSecs)
}

func TestGetStats(t *testing.T) {
	ledger := &fakeLedger{}
	ledger.append(sampleTurn(1))
	srv := newTestServer(ledger, nil)

	rec := get(t, srv, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(1), got["turn_events"])
}

func TestAuthentication(t *testing.T) {
	authSvc := auth.NewService(auth.Config{JWTSecret: "test-secret"})
	srv := newTestServer(&fakeLedger{}, authSvc)

	viewer, err := authSvc.GenerateToken("dashboard", auth.RoleViewer)
	require.NoError(t, err)
	admin, err := authSvc.GenerateToken("ops", auth.RoleAdmin)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, get(t, srv, "/health", "").Code, "health is public")
	assert.Equal(t, http.StatusUnauthorized, get(t, srv, "/api/v1/turns", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, srv, "/api/v1/turns", "bogus").Code)
	assert.Equal(t, http.StatusOK, get(t, srv, "/api/v1/turns", viewer).Code)
	assert.Equal(t, http.StatusOK, get(t, srv, "/api/v1/turns?token="+viewer, "").Code)

	issue := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tokens", strings.NewReader(`{"subject":"map"}`))
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusForbidden, issue(viewer).Code)

	rec := issue(admin)
	require.Equal(t, http.StatusCreated, rec.Code)
	var body struct {
		Token string `json:"token"`
		Role  string `json:"role"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, auth.RoleViewer, body.Role)

	claims, err := authSvc.ValidateToken(body.Token)
	require.NoError(t, err)
	assert.Equal(t, "map", claims.Subject)
}

func TestOpenAPIHasNoTokenRoute(t *testing.T) {
	srv := newTestServer(&fakeLedger{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tokens", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLiveFeed(t *testing.T) {
	ledger := &fakeLedger{}
	ledger.append(sampleTurn(0))

	ts := httptest.NewServer(newTestServer(ledger, nil))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var hello liveMessage
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "hello", hello.Type)
	assert.Equal(t, 1, hello.Total)

	// The second turn appended happened earlier than the first
	first, second := sampleTurn(45), sampleTurn(10)
	ledger.append(first)
	ledger.append(second)

	// Both turns may arrive in one frame or across two
	var pushed []string
	for len(pushed) < 2 {
		var msg liveMessage
		require.NoError(t, conn.ReadJSON(&msg))
		require.Equal(t, "turns", msg.Type)
		for _, tr := range msg.Turns {
			pushed = append(pushed, tr.ID)
		}
	}
	assert.Equal(t, []string{first.ID.String(), second.ID.String()}, pushed)
}

func TestLiveNewTurnsFollowAppendOrder(t *testing.T) {
	ctx := context.Background()
	database, err := db.Connect(config.DatabaseConfig{
		Driver: db.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "turns.db"),
	})
	require.NoError(t, err)
	defer database.Close()
	require.NoError(t, database.InitSchema(ctx))

	turns := db.NewTurnRepository(database)
	srv := NewServer(Options{Turns: turns, Tracks: fakeTracks{}, Stats: database})

	late := sampleTurn(45)
	require.NoError(t, turns.Emit(ctx, late))
	seen, err := turns.LastSeq(ctx)
	require.NoError(t, err)

	early := sampleTurn(10)
	require.NoError(t, turns.Emit(ctx, early))

	events, last, err := srv.newTurns(ctx, seen)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, early.ID, events[0].ID)

	events, _, err = srv.newTurns(ctx, last)
	require.NoError(t, err)
	assert.Empty(t, events, "nothing is pushed twice")
}

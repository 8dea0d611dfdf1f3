package adsb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// MaxRadiusNM is the widest query the readsb v2 APIs accept.
const MaxRadiusNM = 250.0

// DefaultTimeout is the HTTP timeout per request.
const DefaultTimeout = 10 * time.Second

// Source types with a known point-query layout.
const (
	TypeADSBLol       = "adsb.lol"
	TypeAirplanesLive = "airplanes.live"
)

// ClientConfig configures a readsb v2 client.
type ClientConfig struct {
	// Type selects the URL layout (adsb.lol or airplanes.live)
	Type string

	// BaseURL is the API root including /v2 (e.g., "https://api.adsb.lol/v2")
	BaseURL string

	// APIKey is sent as the api-auth header when set
	APIKey string

	// MinInterval is the minimum spacing between requests; 0 disables the limiter
	MinInterval time.Duration

	Timeout time.Duration
}

// Client implements DataSource for readsb v2 JSON APIs such as adsb.lol
// and airplanes.live.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client

	// rateLimiter spaces out requests; allows a burst of 1
	rateLimiter *rate.Limiter

	// now is the clock used when the response carries no timestamp
	now func() time.Time
}

// NewClient creates a readsb v2 API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	switch cfg.Type {
	case TypeADSBLol, TypeAirplanesLive:
	default:
		return nil, fmt.Errorf("unsupported ADS-B source type %q", cfg.Type)
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("ADS-B source base URL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.MinInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: limiter,
		now:         time.Now,
	}, nil
}

// GetAircraft returns all aircraft within a radius of a given point.
// The radius is capped at MaxRadiusNM.
func (c *Client) GetAircraft(ctx context.Context, centerLat, centerLon, radiusNM float64) ([]Aircraft, error) {
	radiusNM = math.Min(radiusNM, MaxRadiusNM)

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pointURL(centerLat, centerLon, radiusNM), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("api-auth", c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch aircraft data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header),
			Message:    "Rate limit exceeded",
			Headers:    extractRateLimitHeaders(resp.Header),
		}
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var apiResp readsbResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse API response: %w", err)
	}

	now := c.now().UTC()
	if apiResp.Now > 0 {
		now = time.UnixMilli(int64(apiResp.Now)).UTC()
	}

	aircraft := make([]Aircraft, 0, len(apiResp.Aircraft))
	for _, ac := range apiResp.Aircraft {
		if ac.Hex == "" {
			continue
		}
		aircraft = append(aircraft, convertAircraft(ac, now))
	}

	return aircraft, nil
}

// Close cleanly shuts down the client.
// There are no persistent connections, so this is a no-op.
func (c *Client) Close() error {
	return nil
}

func (c *Client) pointURL(lat, lon, radiusNM float64) string {
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

	if c.cfg.Type == TypeAirplanesLive {
		return fmt.Sprintf("%s/point/%s/%s/%s", base, f(lat), f(lon), f(radiusNM))
	}
	return fmt.Sprintf("%s/lat/%s/lon/%s/dist/%s", base, f(lat), f(lon), f(radiusNM))
}

// readsbResponse is the readsb v2 JSON envelope.
type readsbResponse struct {
	Aircraft []readsbAircraft `json:"ac"`

	// Now is the server time in milliseconds since the epoch
	Now float64 `json:"now"`

	Total int    `json:"total"`
	Msg   string `json:"msg"`
}

// readsbAircraft is one entry of the "ac" array.
// Field documentation: https://github.com/wiedehopf/readsb/blob/dev/README-json.md
type readsbAircraft struct {
	Hex          string   `json:"hex"`
	Flight       *string  `json:"flight"`
	Registration *string  `json:"r"`
	Lat          *float64 `json:"lat"`
	Lon          *float64 `json:"lon"`

	// AltBaro is barometric altitude in feet, or the string "ground"
	AltBaro json.RawMessage `json:"alt_baro"`

	Track *float64 `json:"track"`

	// Seen and SeenPos are seconds since the last message / position
	Seen    *float64 `json:"seen"`
	SeenPos *float64 `json:"seen_pos"`
}

func convertAircraft(ac readsbAircraft, now time.Time) Aircraft {
	aircraft := Aircraft{
		ICAO:      ac.Hex,
		Latitude:  ac.Lat,
		Longitude: ac.Lon,
		Track:     ac.Track,
	}

	if ac.Flight != nil {
		aircraft.Callsign = strings.TrimSpace(*ac.Flight)
	}
	if ac.Registration != nil {
		aircraft.Registration = strings.TrimSpace(*ac.Registration)
	}

	aircraft.AltitudeFt, aircraft.OnGround = parseAltitude(ac.AltBaro)

	// Position age, falling back to message age
	age := ac.SeenPos
	if age == nil {
		age = ac.Seen
	}
	// Rounded to the millisecond so an unchanged position polled twice gets
	// the same observation time despite float error in the age
	aircraft.LastSeen = now
	if age != nil && *age > 0 {
		aircraft.LastSeen = now.Add(-time.Duration(*age * float64(time.Second))).Round(time.Millisecond)
	}

	return aircraft
}

// parseAltitude decodes alt_baro, which is either a number of feet or the
// string "ground". Ground and unparseable values yield a nil altitude.
func parseAltitude(raw json.RawMessage) (alt *int, onGround bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return nil, s == "ground"
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, false
	}
	v := int(math.Round(f))
	return &v, false
}

// RateLimitError represents an HTTP 429 rate limit error with retry information.
type RateLimitError struct {
	StatusCode int
	RetryAfter time.Duration
	Message    string
	Headers    RateLimitHeaders
}

// RateLimitHeaders contains rate limit information from response headers.
type RateLimitHeaders struct {
	Limit     int       // X-Rate-Limit-Limit: Maximum requests allowed
	Remaining int       // X-Rate-Limit-Remaining: Requests remaining in current window
	Reset     time.Time // X-Rate-Limit-Reset: When the rate limit resets
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %v)", e.Message, e.RetryAfter)
	}
	return e.Message
}

// IsRateLimitError checks if an error is, or wraps, a rate limit error.
func IsRateLimitError(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}

// parseRetryAfter extracts the Retry-After header value.
// Returns the duration to wait, or 0 if header is not present.
// Supports both delay-seconds (integer) and HTTP-date formats.
//
// Examples:
//
//	Retry-After: 30                            -> 30 seconds
//	Retry-After: Wed, 21 Oct 2015 07:28:00 GMT -> duration until that time
func parseRetryAfter(headers http.Header) time.Duration {
	retryAfter := headers.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if retryTime, err := http.ParseTime(retryAfter); err == nil {
		if d := time.Until(retryTime); d > 0 {
			return d
		}
	}

	return 0
}

// extractRateLimitHeaders extracts common rate limit headers from the response.
// Both the X-Rate-Limit-* and X-RateLimit-* spellings are accepted.
func extractRateLimitHeaders(headers http.Header) RateLimitHeaders {
	rlh := RateLimitHeaders{
		Limit:     -1,
		Remaining: -1,
	}

	header := func(name string) string {
		if v := headers.Get("X-Rate-Limit-" + name); v != "" {
			return v
		}
		return headers.Get("X-RateLimit-" + name)
	}

	if val, err := strconv.Atoi(header("Limit")); err == nil {
		rlh.Limit = val
	}
	if val, err := strconv.Atoi(header("Remaining")); err == nil {
		rlh.Remaining = val
	}
	if ts, err := strconv.ParseInt(header("Reset"), 10, 64); err == nil {
		rlh.Reset = time.Unix(ts, 0)
	}

	return rlh
}

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/unklstewy/ads-bturns/pkg/detect"
	"github.com/unklstewy/ads-bturns/pkg/turn"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ADS_BTURNS_"

// MaxRadiusNM is the widest area the ADS-B source will serve.
const MaxRadiusNM = 250.0

// Config represents the complete application configuration.
type Config struct {
	Database  DatabaseConfig  `json:"database"`
	ADSB      ADSBConfig      `json:"adsb"`
	Detection DetectionConfig `json:"detection"`
	Ledger    LedgerConfig    `json:"ledger"`
	Log       LogConfig       `json:"log"`
	API       APIConfig       `json:"api"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	// Driver is the database driver (postgres, sqlite)
	Driver string `json:"driver"`

	// Host is the database server hostname
	Host string `json:"host"`

	// Port is the database server port
	Port int `json:"port"`

	// Database is the database name
	Database string `json:"database"`

	// Username for database authentication
	Username string `json:"username"`

	// Password for database authentication (should be loaded from environment)
	Password string `json:"password"`

	// SSLMode for PostgreSQL connections (disable, require, verify-ca, verify-full)
	SSLMode string `json:"ssl_mode"`

	// Path is the database file for the sqlite driver
	Path string `json:"path"`

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int `json:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int `json:"max_idle_conns"`
}

// ADSBConfig contains ADS-B data source configuration.
type ADSBConfig struct {
	// Sources is a list of configured ADS-B data sources; the first enabled
	// one is polled
	Sources []ADSBSource `json:"sources"`

	// Location is the centre and radius of the monitored area
	Location LocationConfig `json:"location"`

	// MinAltitudeFt and MaxAltitudeFt bound the reports kept (barometric, feet)
	MinAltitudeFt int `json:"min_altitude_ft"`
	MaxAltitudeFt int `json:"max_altitude_ft"`

	// UpdateIntervalSeconds is how often the area is polled
	UpdateIntervalSeconds int `json:"update_interval_seconds"`
}

// ADSBSource represents a single ADS-B data source configuration.
type ADSBSource struct {
	// Name is a friendly name for this source
	Name string `json:"name"`

	// Type is the source type: "adsb.lol" or "airplanes.live" (both serve readsb v2 JSON)
	Type string `json:"type"`

	// Enabled determines if this source should be used
	Enabled bool `json:"enabled"`

	// BaseURL is the API base URL, up to and including /v2
	BaseURL string `json:"base_url"`

	// APIKey is the API key for services that require authentication
	APIKey string `json:"api_key,omitempty"`

	// RateLimitSeconds is the minimum time between API calls in seconds
	// 0 = no rate limit
	RateLimitSeconds float64 `json:"rate_limit_seconds"`
}

// LocationConfig is the monitored area.
type LocationConfig struct {
	// Latitude in decimal degrees (-90 to +90)
	Latitude float64 `json:"latitude"`

	// Longitude in decimal degrees (-180 to +180)
	Longitude float64 `json:"longitude"`

	// RadiusNM is the query radius in nautical miles (0 < r <= 250)
	RadiusNM float64 `json:"radius_nm"`
}

// DetectionConfig holds the turn-detection thresholds.
type DetectionConfig struct {
	// RetentionMinutes is how long a track accumulates before it is analysed
	RetentionMinutes int `json:"retention_minutes"`

	// SegmentRangeWidth is the widest heading spread of a plateau in degrees
	SegmentRangeWidth float64 `json:"segment_range_width"`

	// SegmentMinSize is the fewest samples in a plateau
	SegmentMinSize int `json:"segment_min_size"`

	// MinValidHeadings is the fewest heading-bearing reports a track needs
	MinValidHeadings int `json:"min_valid_headings"`

	// TransitionMinAngle is the smallest plateau change reported as a turn, in degrees
	TransitionMinAngle float64 `json:"transition_min_angle"`

	// RayExtensionKm is the length of each ray cast from a transition endpoint
	RayExtensionKm float64 `json:"ray_extension_km"`

	// FallbackPolicy is "midpoint" or "discard"
	FallbackPolicy string `json:"fallback_policy"`
}

// LedgerConfig selects where turns and reports are persisted.
type LedgerConfig struct {
	// TurnsCSV is the turns CSV path; empty disables it
	TurnsCSV string `json:"turns_csv"`

	// RecordsCSV is the records file holding in-flight reports across
	// restarts when the database is not used; empty keeps them in memory only
	RecordsCSV string `json:"records_csv"`

	// UseDatabase enables the SQL records and turns ledgers
	UseDatabase bool `json:"use_database"`
}

// LogConfig configures the rotating log file.
type LogConfig struct {
	// Path is the log file; empty logs to stderr only
	Path string `json:"path"`

	MaxSizeMB  int `json:"max_size_mb"`
	MaxBackups int `json:"max_backups"`
	MaxAgeDays int `json:"max_age_days"`
}

// APIConfig configures the read-only turns API.
type APIConfig struct {
	// Listen is the HTTP listen address
	Listen string `json:"listen"`

	// JWTSecret signs bearer tokens; empty leaves the API open
	// (should be loaded from environment)
	JWTSecret string `json:"jwt_secret,omitempty"`

	// TokenHours is how long issued tokens are valid
	TokenHours int `json:"token_hours"`

	// AllowedOrigins lists the CORS origins allowed to call the API
	AllowedOrigins []string `json:"allowed_origins"`
}

// TokenDuration returns the lifetime of issued tokens.
func (cfg *APIConfig) TokenDuration() time.Duration {
	return time.Duration(cfg.TokenHours) * time.Hour
}

// LoadDotEnv loads KEY=value pairs from path into the environment. A missing
// file is not an error; variables already set are left alone.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// Load reads configuration from a JSON file.
// If the file doesn't exist, returns a default configuration.
// Fields absent from the file keep their default values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := cfg.applyEnvironmentOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to a JSON file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:       "postgres",
			Host:         "localhost",
			Port:         5432,
			Database:     "adsbturns",
			Username:     "adsbturns",
			SSLMode:      "disable",
			Path:         "data/adsbturns.db",
			MaxOpenConns: 10,
			MaxIdleConns: 2,
		},
		ADSB: ADSBConfig{
			Sources: []ADSBSource{
				{
					Name:             "adsb.lol",
					Type:             "adsb.lol",
					Enabled:          true,
					BaseURL:          "https://api.adsb.lol/v2",
					RateLimitSeconds: 1.0,
				},
				{
					Name:             "airplanes.live",
					Type:             "airplanes.live",
					Enabled:          false,
					BaseURL:          "https://api.airplanes.live/v2",
					RateLimitSeconds: 3.0, // 429s below this
				},
			},
			Location: LocationConfig{
				Latitude:  48.6058,
				Longitude: 2.6717,
				RadiusNM:  25,
			},
			MinAltitudeFt:         0,
			MaxAltitudeFt:         45000,
			UpdateIntervalSeconds: 60,
		},
		Detection: DetectionConfig{
			RetentionMinutes:   60,
			SegmentRangeWidth:  2.0,
			SegmentMinSize:     2,
			MinValidHeadings:   detect.DefaultMinValidHeadings,
			TransitionMinAngle: 5.0,
			RayExtensionKm:     turn.DefaultRayExtensionKm,
			FallbackPolicy:     string(turn.FallbackMidpoint),
		},
		Ledger: LedgerConfig{
			TurnsCSV:    "data/turns.csv",
			RecordsCSV:  "data/records.csv",
			UseDatabase: false,
		},
		Log: LogConfig{
			Path:       "logs/turn-detector.log",
			MaxSizeMB:  20,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		API: APIConfig{
			Listen:         ":8080",
			TokenHours:     24,
			AllowedOrigins: []string{"*"},
		},
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "postgres":
	case "sqlite":
		if c.Ledger.UseDatabase && c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver %q", c.Database.Driver))
	}

	loc := c.ADSB.Location
	if loc.Latitude < -90 || loc.Latitude > 90 {
		errs = append(errs, fmt.Errorf("latitude %v out of range [-90, 90]", loc.Latitude))
	}
	if loc.Longitude < -180 || loc.Longitude > 180 {
		errs = append(errs, fmt.Errorf("longitude %v out of range [-180, 180]", loc.Longitude))
	}
	if loc.RadiusNM <= 0 || loc.RadiusNM > MaxRadiusNM {
		errs = append(errs, fmt.Errorf("radius %v NM out of range (0, %v]", loc.RadiusNM, MaxRadiusNM))
	}
	if c.ADSB.MinAltitudeFt > c.ADSB.MaxAltitudeFt {
		errs = append(errs, fmt.Errorf("min altitude %d ft above max altitude %d ft",
			c.ADSB.MinAltitudeFt, c.ADSB.MaxAltitudeFt))
	}
	if c.ADSB.UpdateIntervalSeconds <= 0 {
		errs = append(errs, errors.New("update_interval_seconds must be positive"))
	}
	if _, ok := c.ADSB.ActiveSource(); !ok {
		errs = append(errs, errors.New("no enabled ADS-B source"))
	}

	d := c.Detection
	if d.RetentionMinutes <= 0 {
		errs = append(errs, errors.New("retention_minutes must be positive"))
	}
	if d.SegmentRangeWidth < 0 {
		errs = append(errs, errors.New("segment_range_width must not be negative"))
	}
	if d.SegmentMinSize < 1 {
		errs = append(errs, errors.New("segment_min_size must be at least 1"))
	}
	if d.TransitionMinAngle < 0 {
		errs = append(errs, errors.New("transition_min_angle must not be negative"))
	}
	if _, err := turn.ParseFallbackPolicy(d.FallbackPolicy); err != nil {
		errs = append(errs, err)
	}

	if c.API.TokenHours <= 0 {
		errs = append(errs, errors.New("api.token_hours must be positive"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ActiveSource returns the first enabled ADS-B source.
func (cfg *ADSBConfig) ActiveSource() (ADSBSource, bool) {
	for _, s := range cfg.Sources {
		if s.Enabled {
			return s, true
		}
	}
	return ADSBSource{}, false
}

// UpdateInterval returns the polling interval.
func (cfg *ADSBConfig) UpdateInterval() time.Duration {
	return time.Duration(cfg.UpdateIntervalSeconds) * time.Second
}

// Retention returns the track retention period.
func (cfg *DetectionConfig) Retention() time.Duration {
	return time.Duration(cfg.RetentionMinutes) * time.Minute
}

// Params returns the analyzer thresholds.
func (cfg *DetectionConfig) Params() detect.Params {
	return detect.Params{
		SegmentRangeWidth:  cfg.SegmentRangeWidth,
		SegmentMinSize:     cfg.SegmentMinSize,
		MinValidHeadings:   cfg.MinValidHeadings,
		TransitionMinAngle: cfg.TransitionMinAngle,
	}
}

// Estimator builds the turn-point estimator.
func (cfg *DetectionConfig) Estimator() (*turn.Estimator, error) {
	policy, err := turn.ParseFallbackPolicy(cfg.FallbackPolicy)
	if err != nil {
		return nil, err
	}
	return turn.NewEstimator(cfg.RayExtensionKm, policy), nil
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
// This allows sensitive data like passwords to be kept out of config files.
func (c *Config) applyEnvironmentOverrides() error {
	if v := getenv("DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := getenv("DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := getenv("DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := getenv("ADSB_API_KEY"); v != "" {
		for i := range c.ADSB.Sources {
			c.ADSB.Sources[i].APIKey = v
		}
	}
	if v := getenv("TURNS_CSV"); v != "" {
		c.Ledger.TurnsCSV = v
	}
	if v := getenv("RECORDS_CSV"); v != "" {
		c.Ledger.RecordsCSV = v
	}
	if v := getenv("JWT_SECRET"); v != "" {
		c.API.JWTSecret = v
	}
	if v := getenv("API_LISTEN"); v != "" {
		c.API.Listen = v
	}
	if v := getenv("FALLBACK_POLICY"); v != "" {
		c.Detection.FallbackPolicy = v
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"LATITUDE", &c.ADSB.Location.Latitude},
		{"LONGITUDE", &c.ADSB.Location.Longitude},
		{"RADIUS_NM", &c.ADSB.Location.RadiusNM},
	}
	for _, f := range floats {
		v := getenv(f.key)
		if v == "" {
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, f.key, err)
		}
		*f.dst = n
	}

	if v := getenv("USE_DATABASE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sUSE_DATABASE: %w", EnvPrefix, err)
		}
		c.Ledger.UseDatabase = b
	}

	return nil
}

func getenv(key string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + key))
}

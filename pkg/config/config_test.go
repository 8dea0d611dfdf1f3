package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unklstewy/ads-bturns/pkg/turn"
)

// TestDefaultConfig verifies that DefaultConfig returns valid defaults.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5432, cfg.Database.Port)

	src, ok := cfg.ADSB.ActiveSource()
	require.True(t, ok)
	assert.Equal(t, "adsb.lol", src.Name)
	assert.Equal(t, time.Minute, cfg.ADSB.UpdateInterval())

	assert.Equal(t, time.Hour, cfg.Detection.Retention())
	p := cfg.Detection.Params()
	assert.Equal(t, 2.0, p.SegmentRangeWidth)
	assert.Equal(t, 2, p.SegmentMinSize)
	assert.Equal(t, 6, p.MinValidHeadings)
	assert.Equal(t, 5.0, p.TransitionMinAngle)

	est, err := cfg.Detection.Estimator()
	require.NoError(t, err)
	assert.Equal(t, turn.FallbackMidpoint, est.Policy())

	assert.Equal(t, "data/turns.csv", cfg.Ledger.TurnsCSV)
	assert.Equal(t, "data/records.csv", cfg.Ledger.RecordsCSV)
	assert.False(t, cfg.Ledger.UseDatabase)

	assert.Equal(t, ":8080", cfg.API.Listen)
	assert.Empty(t, cfg.API.JWTSecret)
	assert.Equal(t, 24*time.Hour, cfg.API.TokenDuration())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"Defaults", func(c *Config) {}, ""},
		{"Radius at limit", func(c *Config) { c.ADSB.Location.RadiusNM = 250 }, ""},
		{"Radius zero", func(c *Config) { c.ADSB.Location.RadiusNM = 0 }, "radius"},
		{"Radius too wide", func(c *Config) { c.ADSB.Location.RadiusNM = 250.5 }, "radius"},
		{"Latitude", func(c *Config) { c.ADSB.Location.Latitude = 91 }, "latitude"},
		{"Longitude", func(c *Config) { c.ADSB.Location.Longitude = -181 }, "longitude"},
		{"Altitude window inverted", func(c *Config) { c.ADSB.MinAltitudeFt = 10000; c.ADSB.MaxAltitudeFt = 5000 }, "altitude"},
		{"Unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "driver"},
		{"Sqlite without path", func(c *Config) {
			c.Database.Driver = "sqlite"
			c.Database.Path = ""
			c.Ledger.UseDatabase = true
		}, "database.path"},
		{"No source", func(c *Config) {
			for i := range c.ADSB.Sources {
				c.ADSB.Sources[i].Enabled = false
			}
		}, "ADS-B source"},
		{"Bad fallback", func(c *Config) { c.Detection.FallbackPolicy = "nearest" }, "fallback"},
		{"Zero retention", func(c *Config) { c.Detection.RetentionMinutes = 0 }, "retention"},
		{"Zero min size", func(c *Config) { c.Detection.SegmentMinSize = 0 }, "segment_min_size"},
		{"Zero token lifetime", func(c *Config) { c.API.TokenHours = 0 }, "token_hours"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateReportsEverything(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ADSB.Location.Latitude = 100
	cfg.ADSB.Location.RadiusNM = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "latitude")
	assert.Contains(t, err.Error(), "radius")
}

// TestLoadSaveRoundTrip tests saving and loading a configuration file.
func TestLoadSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configs", "config.json")

	cfg := DefaultConfig()
	cfg.ADSB.Location.RadiusNM = 12.5
	cfg.Detection.FallbackPolicy = "discard"
	cfg.Database.Driver = "sqlite"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"detection": {"transition_min_angle": 12}}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12.0, cfg.Detection.TransitionMinAngle)
	assert.Equal(t, 60, cfg.Detection.RetentionMinutes)
	assert.Equal(t, 2.0, cfg.Detection.SegmentRangeWidth)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"adsb": {"location": {"radius_nm": 400}}}`), 0644))

	_, err := Load(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("ADS_BTURNS_DB_PASSWORD", "s3cret")
	t.Setenv("ADS_BTURNS_LATITUDE", "51.47")
	t.Setenv("ADS_BTURNS_LONGITUDE", "-0.45")
	t.Setenv("ADS_BTURNS_RADIUS_NM", "40")
	t.Setenv("ADS_BTURNS_FALLBACK_POLICY", "discard")
	t.Setenv("ADS_BTURNS_USE_DATABASE", "true")
	t.Setenv("ADS_BTURNS_ADSB_API_KEY", "key")
	t.Setenv("ADS_BTURNS_JWT_SECRET", "jwt")
	t.Setenv("ADS_BTURNS_API_LISTEN", "127.0.0.1:9000")
	t.Setenv("ADS_BTURNS_RECORDS_CSV", "/var/lib/bturns/records.csv")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, 51.47, cfg.ADSB.Location.Latitude)
	assert.Equal(t, -0.45, cfg.ADSB.Location.Longitude)
	assert.Equal(t, 40.0, cfg.ADSB.Location.RadiusNM)
	assert.Equal(t, "discard", cfg.Detection.FallbackPolicy)
	assert.True(t, cfg.Ledger.UseDatabase)
	assert.Equal(t, "jwt", cfg.API.JWTSecret)
	assert.Equal(t, "127.0.0.1:9000", cfg.API.Listen)
	assert.Equal(t, "/var/lib/bturns/records.csv", cfg.Ledger.RecordsCSV)
	for _, s := range cfg.ADSB.Sources {
		assert.Equal(t, "key", s.APIKey)
	}
}

func TestEnvironmentOverrideInvalidNumber(t *testing.T) {
	t.Setenv("ADS_BTURNS_RADIUS_NM", "far")

	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RADIUS_NM")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))

	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("ADS_BTURNS_TURNS_CSV=/tmp/from-dotenv.csv\n"), 0644))
	t.Setenv("ADS_BTURNS_TURNS_CSV", "")
	os.Unsetenv("ADS_BTURNS_TURNS_CSV")

	require.NoError(t, LoadDotEnv(path))
	cfg, err := Load(filepath.Join(dir, "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-dotenv.csv", cfg.Ledger.TurnsCSV)
}

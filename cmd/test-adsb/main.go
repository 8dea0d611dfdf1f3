package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/unklstewy/ads-bturns/pkg/adsb"
	"github.com/unklstewy/ads-bturns/pkg/config"
	"github.com/unklstewy/ads-bturns/pkg/coordinates"
)

// main polls the configured ADS-B source once and lists what the detector
// would record, to check a source and area before running turn-detector.
func main() {
	configPath := flag.String("config", "configs/config.json", "Path to configuration file")
	envPath := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	if err := config.LoadDotEnv(*envPath); err != nil {
		log.Fatalf("Failed to load env file: %v", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	src, _ := cfg.ADSB.ActiveSource()
	loc := cfg.ADSB.Location

	log.Printf("ADS-B Data Source Test - %s", src.Name)
	log.Printf("Area: %.1f NM around %.4f, %.4f", loc.RadiusNM, loc.Latitude, loc.Longitude)
	log.Println("=====================================")

	client, err := adsb.NewClient(adsb.ClientConfig{
		Type:        src.Type,
		BaseURL:     src.BaseURL,
		APIKey:      src.APIKey,
		MinInterval: time.Duration(src.RateLimitSeconds * float64(time.Second)),
	})
	if err != nil {
		log.Fatalf("Failed to create ADS-B client: %v", err)
	}
	defer client.Close()

	center := coordinates.Geographic{Latitude: loc.Latitude, Longitude: loc.Longitude}
	poller := adsb.NewPoller(client,
		adsb.Area{Center: center, RadiusNM: loc.RadiusNM},
		adsb.AltitudeWindow{MinFt: cfg.ADSB.MinAltitudeFt, MaxFt: cfg.ADSB.MaxAltitudeFt},
		adsb.RetryConfig{MaxRetries: 0})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reports, stats, err := poller.Poll(ctx)
	if err != nil {
		log.Fatalf("Failed to fetch aircraft: %v", err)
	}

	log.Printf("Received %d aircraft: %d without position, %d outside area, %d outside altitude window",
		stats.Received, stats.NoPosition, stats.OutOfArea, stats.OutOfWindow)
	log.Printf("Accepted %d reports", stats.Accepted)
	log.Println("=====================================")

	sort.Slice(reports, func(i, j int) bool { return reports[i].TrackID < reports[j].TrackID })

	for i, r := range reports {
		pos := coordinates.Geographic{Latitude: r.Latitude, Longitude: r.Longitude}
		heading := "---"
		if r.HasHeading() {
			heading = fmt.Sprintf("%03.0f°", *r.Heading)
		}
		alt := "ground"
		if r.Altitude != nil {
			alt = fmt.Sprintf("%d", *r.Altitude)
		}

		log.Printf("%3d. %-6s %-8s %-8s  %8.4f %9.4f  %7s ft  hdg %s  %5.1f NM @ %03.0f°  age %s",
			i+1, r.TrackID, r.Callsign, r.Registration,
			r.Latitude, r.Longitude, alt, heading,
			coordinates.DistanceNauticalMiles(center, pos), coordinates.Bearing(center, pos),
			time.Since(r.ObservedAt).Truncate(time.Second))
	}

	if stats.Accepted > 0 && stats.Accepted < stats.Received/2 {
		log.Println("⚠️  Most aircraft were filtered out; check the area and altitude window")
	}
	log.Println("✓ Source test complete")
}

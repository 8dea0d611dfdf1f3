package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/unklstewy/ads-bturns/internal/db"
	"github.com/unklstewy/ads-bturns/pkg/config"
	"github.com/unklstewy/ads-bturns/pkg/ledger"
	"github.com/unklstewy/ads-bturns/pkg/turn"
)

// export-turns writes the turns ledger as GeoJSON or CSV for mapping tools.
func main() {
	configPath := flag.String("config", "configs/config.json", "Path to configuration file")
	envPath := flag.String("env", ".env", "Path to .env file")
	source := flag.String("source", "csv", "Turns ledger to read: csv or db")
	format := flag.String("format", "geojson", "Output format: geojson or csv")
	out := flag.String("out", "-", "Output file (- for stdout)")
	since := flag.Duration("since", 0, "Only export turns newer than this (e.g. 24h); 0 exports all")
	flag.Parse()

	if err := config.LoadDotEnv(*envPath); err != nil {
		log.Fatalf("Failed to load env file: %v", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	events, err := readTurns(cfg, *source)
	if err != nil {
		log.Fatalf("Failed to read turns: %v", err)
	}
	if *since > 0 {
		events = newerThan(events, time.Now().UTC().Add(-*since))
	}

	var w io.Writer = os.Stdout
	if *out != "-" {
		f, err := os.Create(*out)
		if err != nil {
			log.Fatalf("Failed to create %s: %v", *out, err)
		}
		defer f.Close()
		w = f
	}

	if err := export(w, events, *format); err != nil {
		log.Fatalf("Export failed: %v", err)
	}
	if *out != "-" {
		log.Printf("✓ Exported %d turns to %s", len(events), *out)
	}
}

func readTurns(cfg *config.Config, source string) ([]turn.Event, error) {
	switch source {
	case "csv":
		f, err := os.Open(cfg.Ledger.TurnsCSV)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", cfg.Ledger.TurnsCSV, err)
		}
		defer f.Close()

		events, skipped, err := ledger.ReadCSV(f)
		if skipped > 0 {
			log.Printf("⚠️  Skipped %d unreadable rows", skipped)
		}
		return events, err

	case "db":
		database, err := db.Connect(cfg.Database)
		if err != nil {
			return nil, err
		}
		defer database.Close()
		return db.NewTurnRepository(database).All(context.Background())

	default:
		return nil, fmt.Errorf("unknown source %q (want csv or db)", source)
	}
}

func newerThan(events []turn.Event, cutoff time.Time) []turn.Event {
	out := events[:0:0]
	for _, ev := range events {
		if !ev.Time.Before(cutoff) {
			out = append(out, ev)
		}
	}
	return out
}

func export(w io.Writer, events []turn.Event, format string) error {
	switch format {
	case "geojson":
		return ledger.WriteGeoJSON(w, events)
	case "csv":
		return ledger.WriteCSV(w, events)
	default:
		return fmt.Errorf("unknown format %q (want geojson or csv)", format)
	}
}

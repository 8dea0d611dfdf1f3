package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unklstewy/ads-bturns/internal/db"
	"github.com/unklstewy/ads-bturns/internal/logging"
	"github.com/unklstewy/ads-bturns/pkg/adsb"
	"github.com/unklstewy/ads-bturns/pkg/config"
	"github.com/unklstewy/ads-bturns/pkg/coordinates"
	"github.com/unklstewy/ads-bturns/pkg/detect"
	"github.com/unklstewy/ads-bturns/pkg/ledger"
	"github.com/unklstewy/ads-bturns/pkg/track"
	"github.com/unklstewy/ads-bturns/pkg/turn"
)

// turn-detector polls an ADS-B source for one area, accumulates each
// aircraft's reports, and once a track has aged past the retention period
// analyses it for turns and appends them to the turns ledger.
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

	logCloser, err := logging.Setup(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logCloser.Close()

	log.Println("===========================================")
	log.Println("  ADS-B Turn Detector")
	log.Println("===========================================")

	loc := cfg.ADSB.Location
	log.Printf("Configuration loaded from: %s", *configPath)
	log.Printf("📡 Monitoring airspace within %.1f NM of https://www.openstreetmap.org/#map=9/%.4f/%.4f between %d and %d ft",
		loc.RadiusNM, loc.Latitude, loc.Longitude, cfg.ADSB.MinAltitudeFt, cfg.ADSB.MaxAltitudeFt)
	log.Printf("Update interval: %d seconds, retention: %d minutes",
		cfg.ADSB.UpdateIntervalSeconds, cfg.Detection.RetentionMinutes)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Turns ledgers
	var emitters turn.Emitters
	if cfg.Ledger.TurnsCSV != "" {
		csvLedger, err := ledger.OpenCSV(cfg.Ledger.TurnsCSV)
		if err != nil {
			log.Fatalf("Failed to open turns ledger: %v", err)
		}
		defer csvLedger.Close()
		emitters = append(emitters, csvLedger)
		log.Printf("✓ Turns ledger: %s", csvLedger.Path())
	}

	// Records ledger and database turns ledger
	var records interface {
		reportSink
		detect.RecordLedger
	}
	if cfg.Ledger.UseDatabase {
		log.Println("Connecting to database...")
		database, err := db.ReconnectWithRetry(cfg.Database, 5, 2*time.Second)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()

		if err := database.InitSchema(ctx); err != nil {
			log.Fatalf("Failed to initialize schema: %v", err)
		}
		log.Printf("✓ Database schema initialized (%s)", database.Driver())

		records = db.NewRecordRepository(database)
		emitters = append(emitters, db.NewTurnRepository(database))
	} else if cfg.Ledger.RecordsCSV != "" {
		csvRecords, err := ledger.OpenRecords(cfg.Ledger.RecordsCSV)
		if err != nil {
			log.Fatalf("Failed to open records ledger: %v", err)
		}
		records = csvRecords
		log.Printf("✓ Records ledger: %s", csvRecords.Path())
	} else {
		log.Println("⚠️  No records ledger: in-flight tracks are lost on restart")
	}

	if len(emitters) == 0 {
		log.Fatal("Error: No turns ledger configured (set ledger.turns_csv or ledger.use_database)")
	}

	// ADS-B source
	source, ok := cfg.ADSB.ActiveSource()
	if !ok {
		log.Fatal("Error: No ADS-B sources enabled")
	}
	client, err := adsb.NewClient(adsb.ClientConfig{
		Type:        source.Type,
		BaseURL:     source.BaseURL,
		APIKey:      source.APIKey,
		MinInterval: time.Duration(source.RateLimitSeconds * float64(time.Second)),
	})
	if err != nil {
		log.Fatalf("Failed to create ADS-B client: %v", err)
	}
	defer client.Close()
	log.Printf("✓ Using ADS-B source: %s", source.Name)

	poller := adsb.NewPoller(client,
		adsb.Area{
			Center:   coordinates.Geographic{Latitude: loc.Latitude, Longitude: loc.Longitude},
			RadiusNM: loc.RadiusNM,
		},
		adsb.AltitudeWindow{MinFt: cfg.ADSB.MinAltitudeFt, MaxFt: cfg.ADSB.MaxAltitudeFt},
		adsb.RetryConfig{
			MaxRetries:        4,
			InitialDelay:      2 * time.Second,
			MaxDelay:          32 * time.Second,
			Multiplier:        2.0,
			RespectRetryAfter: true,
		},
	)

	// Detection pipeline
	estimator, err := cfg.Detection.Estimator()
	if err != nil {
		log.Fatalf("Invalid detection settings: %v", err)
	}
	store := track.NewStore()
	analyzer := detect.NewAnalyzer(cfg.Detection.Params(), estimator)
	processor := detect.NewProcessor(store, analyzer, emitters, records, cfg.Detection.Retention())

	loaded, rejected, err := processor.Restore(ctx)
	if err != nil {
		log.Printf("✗ Failed to restore records ledger: %v", err)
	} else if loaded > 0 || rejected > 0 {
		log.Printf("✓ Restored %d reports across %d tracks (%d rejected)", loaded, store.Len(), rejected)
	}

	detector := &Detector{
		poller:         poller,
		store:          store,
		processor:      processor,
		updateInterval: cfg.ADSB.UpdateInterval(),
		now:            time.Now,
	}
	if records != nil {
		detector.records = records
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	doneChan := make(chan struct{})
	go func() {
		defer close(doneChan)
		defer func() {
			if r := recover(); r != nil {
				log.Printf("PANIC in detector goroutine: %v", r)
			}
		}()
		detector.Run(ctx)
	}()

	log.Println("===========================================")
	log.Println("  Turn detector started")
	log.Println("  Press Ctrl+C to stop")
	log.Println("===========================================")

	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
	case <-doneChan:
		log.Println("Detector stopped")
	}

	log.Println("Shutting down gracefully...")
	cancel()
	<-doneChan
	log.Printf("✓ Turn detector stopped (%d tracks still accumulating)", store.Len())
}

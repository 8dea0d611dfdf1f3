// ADS-B Turn API
// Serves the turns ledger and in-flight tracks as REST + WebSocket endpoints
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unklstewy/ads-bturns/internal/api"
	"github.com/unklstewy/ads-bturns/internal/auth"
	"github.com/unklstewy/ads-bturns/internal/db"
	"github.com/unklstewy/ads-bturns/pkg/config"
	"github.com/unklstewy/ads-bturns/pkg/coordinates"
)

func main() {
	configPath := flag.String("config", "configs/config.json", "Path to configuration file")
	envPath := flag.String("env", ".env", "Path to .env file")
	issueToken := flag.String("issue-token", "", "Print a token for this subject and exit")
	role := flag.String("role", auth.RoleViewer, "Role of the issued token (viewer or admin)")
	flag.Parse()

	if err := config.LoadDotEnv(*envPath); err != nil {
		log.Fatalf("Failed to load env file: %v", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var authSvc *auth.Service
	if cfg.API.JWTSecret != "" {
		authSvc = auth.NewService(auth.Config{
			JWTSecret:     cfg.API.JWTSecret,
			TokenDuration: cfg.API.TokenDuration(),
		})
	}

	if *issueToken != "" {
		if authSvc == nil {
			log.Fatalf("Cannot issue tokens: %sJWT_SECRET is not set", config.EnvPrefix)
		}
		token, err := authSvc.GenerateToken(*issueToken, *role)
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	log.Println("🚀 Starting ADS-B Turn API...")

	database, err := db.ReconnectWithRetry(cfg.Database, 5, 2*time.Second)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.InitSchema(context.Background()); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	srv := api.NewServer(api.Options{
		Turns:  db.NewTurnRepository(database),
		Tracks: db.NewRecordRepository(database),
		Stats:  database,
		Health: func(context.Context) error {
			if !db.HealthCheck(database) {
				return errors.New("database health check failed")
			}
			return nil
		},
		Auth:           authSvc,
		AllowedOrigins: cfg.API.AllowedOrigins,
		Center: coordinates.Geographic{
			Latitude:  cfg.ADSB.Location.Latitude,
			Longitude: cfg.ADSB.Location.Longitude,
		},
		Retention: cfg.Detection.Retention(),
	})

	httpServer := &http.Server{
		Addr:         cfg.API.Listen,
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("📡 Server listening on %s", cfg.API.Listen)
		if authSvc == nil {
			log.Println("⚠️  No JWT secret configured: the API is open")
		}
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("👋 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server stopped")
}

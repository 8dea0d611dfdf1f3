package db

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/unklstewy/ads-bturns/pkg/config"
)

// ReconnectWithRetry attempts to reconnect to the database with exponential backoff.
//
// Parameters:
//   - cfg: Database configuration
//   - maxRetries: Maximum number of reconnection attempts (0 = infinite)
//   - initialDelay: Initial wait time between retries
//
// Returns: Connected database or error if all retries exhausted
func ReconnectWithRetry(cfg config.DatabaseConfig, maxRetries int, initialDelay time.Duration) (*DB, error) {
	delay := initialDelay
	attempt := 0

	for {
		attempt++

		log.Printf("Database connection attempt %d...", attempt)

		db, err := Connect(cfg)
		if err == nil {
			log.Println("✓ Database connected")
			return db, nil
		}

		if maxRetries > 0 && attempt >= maxRetries {
			log.Printf("Failed to reconnect after %d attempts", attempt)
			return nil, err
		}

		log.Printf("Connection failed: %v (retry in %v)", err, delay)
		time.Sleep(delay)

		// Exponential backoff with cap at 60 seconds
		delay *= 2
		if delay > 60*time.Second {
			delay = 60 * time.Second
		}
	}
}

// HealthCheck returns true if the database answers a trivial query.
func HealthCheck(db *DB) bool {
	if db == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		log.Printf("Health check failed - ping error: %v", err)
		return false
	}

	var result int
	err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
	if err != nil {
		log.Printf("Health check failed - query error: %v", err)
		return false
	}

	if result != 1 {
		log.Printf("Health check failed - unexpected result: %d", result)
		return false
	}

	return true
}

// connErrors are substrings of driver errors worth retrying.
var connErrors = []string{
	"connection refused",
	"broken pipe",
	"no connection",
	"connection reset",
	"eof",
	"timeout",
	"database is locked",
}

// IsConnError reports whether err looks like a transient connection failure.
func IsConnError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range connErrors {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// WithRetry executes a database operation, retrying only on connection failures.
//
// Parameters:
//   - operation: Function to execute that may fail due to connection issues
//   - maxRetries: Maximum number of retry attempts
//
// Returns: Error from operation or nil on success
func WithRetry(operation func() error, maxRetries int) error {
	return withRetry(operation, maxRetries, time.Second)
}

func withRetry(operation func() error, maxRetries int, step time.Duration) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsConnError(err) {
			return err
		}

		if attempt < maxRetries {
			waitTime := time.Duration(attempt+1) * step
			log.Printf("Database operation failed (attempt %d/%d): %v (retry in %v)",
				attempt+1, maxRetries+1, err, waitTime)
			time.Sleep(waitTime)
		}
	}

	return lastErr
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ctmsgb/booking-backend/internal/config"
	"github.com/ctmsgb/booking-backend/internal/database"
	"github.com/ctmsgb/booking-backend/internal/events"
	"github.com/ctmsgb/booking-backend/internal/services"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// expire-holds runs one hold expiry sweep and exits. Useful from a system cron
// when the server's own sweep is disabled, or after an outage.
func main() {
	var (
		dbURLFlag string
		batch     int
		timeout   time.Duration
	)
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.IntVar(&batch, "batch", 500, "maximum bookings to expire")
	flag.DurationVar(&timeout, "timeout", 2*time.Minute, "overall timeout")
	flag.Parse()

	// Try loading .env from current working directory (optional)
	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Build minimal config without loading full app config
	db, err := database.NewConnection(config.DatabaseConfig{
		Driver:             envOr("DATABASE_DRIVER", "postgres"),
		URL:                dbURL,
		MaxConnections:     5,
		MaxIdleConnections: 2,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	bus, err := events.NewBus(config.EventsConfig{
		Driver:  envOr("EVENTS_DRIVER", "gochannel"),
		AMQPURL: os.Getenv("AMQP_URL"),
	}, logger)
	if err != nil {
		log.Fatalf("failed to create event publisher: %v", err)
	}
	defer bus.Close()

	repos := services.NewRepositories(db, logger)
	expiry := services.NewHoldExpiryService(services.NewStatusSyncService(repos, bus, logger), repos, batch, logger)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	expired, err := expiry.RunOnce(ctx)
	if err != nil {
		log.Fatalf("hold expiry sweep failed after %d bookings: %v", expired, err)
	}

	fmt.Printf("Expired %d booking hold(s).\n", expired)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

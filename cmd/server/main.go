package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pharmacy-delivery-service/internal/adapters/cache"
	"pharmacy-delivery-service/internal/adapters/notify"
	"pharmacy-delivery-service/internal/adapters/repositories"
	"pharmacy-delivery-service/internal/adapters/routing"
	"pharmacy-delivery-service/internal/api"
	"pharmacy-delivery-service/internal/api/handlers"
	"pharmacy-delivery-service/internal/assignment"
	"pharmacy-delivery-service/internal/config"
	"pharmacy-delivery-service/internal/domain"
	"pharmacy-delivery-service/internal/events"
	"pharmacy-delivery-service/internal/platform/db"
	"pharmacy-delivery-service/internal/platform/metrics"
	"pharmacy-delivery-service/internal/ports"
	"pharmacy-delivery-service/internal/proximity"
	"pharmacy-delivery-service/internal/services"
	"pharmacy-delivery-service/internal/tracking"
)

// main is the application composition root.
// It wires concrete adapters (SQL, ORS, broker, webhook) behind ports and starts the HTTP server.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.ORSAPIKey == "" {
		log.Fatal("ORS_API_KEY is required")
	}

	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Open(cfg.DBDriver, cfg.DSN())
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := repositories.NewSQLRouteRepository(pool, cfg.DBDriver)
	if err := initAndSeed(ctx, pool, repo, cfg.SeedPath); err != nil {
		return err
	}

	store := assignment.NewStore(repo)
	if err := store.Load(ctx); err != nil {
		return fmt.Errorf("load route state: %w", err)
	}

	geocodeCache, err := cache.NewGeocodeCache(pool, cfg.DBDriver)
	if err != nil {
		return err
	}
	ors, err := routing.NewClient(routing.Options{
		APIKey:     cfg.ORSAPIKey,
		BaseURL:    cfg.ORSBaseURL,
		Profile:    cfg.ORSProfile,
		Country:    cfg.GeocodeCountry,
		RatePerSec: cfg.ORSRatePerSec,
		Cache:      geocodeCache,
	})
	if err != nil {
		return err
	}

	checks := map[string]handlers.Pinger{"db": pool}
	broker, err := newBroker(cfg.RedisURL, checks)
	if err != nil {
		return err
	}
	defer broker.Close()

	sender := newSender(cfg)
	location := &services.LocationService{
		Store:    store,
		Notifier: proximity.NewNotifier(store, cfg.NotifyRadiusMeters),
		Trackers: tracking.NewRegistry(),
		Broker:   broker,
		Sender:   sender,
	}

	metrics.RegisterDefault()
	router := api.NewRouter(api.Deps{
		Store:    store,
		Location: location,
		Planner: &services.RoutePlanner{
			Store:     store,
			Geocoder:  ors,
			Optimizer: ors,
			Broker:    broker,
			Pharmacy:  domain.Coordinates{Lat: cfg.PharmacyLat, Lng: cfg.PharmacyLng},
		},
		Dispatch: &services.DispatchService{Store: store, Broker: broker, Sender: sender},
		Reverse:  ors,
		Broker:   broker,
		Checks:   checks,
	})

	// WriteTimeout leaves room for cold-cache geocoding before optimization.
	// WebSocket connections are hijacked and not bound by it.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("Server listening addr=:%s driver=%s agents=%d pending=%d", cfg.Port, cfg.DBDriver, len(store.Agents()), len(store.Pending()))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func initAndSeed(ctx context.Context, pool *sql.DB, repo ports.RouteRepository, seedPath string) error {
	if err := repositories.InitSchema(ctx, pool); err != nil {
		return fmt.Errorf("init and seed: %w", err)
	}

	if _, err := os.Stat(seedPath); err != nil {
		log.Printf("op=seed skipped: %v", err)
		return nil
	}
	n, err := repositories.SeedFromJSON(ctx, repo, seedPath)
	if err != nil {
		return fmt.Errorf("init and seed: %w", err)
	}
	if n > 0 {
		log.Printf("op=seed loaded records=%d path=%s", n, seedPath)
	}
	return nil
}

// newBroker fans events out through Redis when REDIS_URL is set so every
// instance's map clients see every agent; otherwise events stay in process.
func newBroker(redisURL string, checks map[string]handlers.Pinger) (events.Broker, error) {
	if redisURL == "" {
		return events.NewMemoryBroker(), nil
	}

	b, err := events.NewRedisBroker(redisURL)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Ping(ctx); err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("connect redis broker: %w", err)
	}
	checks["broker"] = handlers.PingFunc(b.Ping)
	return b, nil
}

func newSender(cfg config.Config) ports.NotificationSender {
	if cfg.NotifyWebhookURL == "" {
		log.Println("NOTIFY_WEBHOOK_URL not set; customer notifications are only logged")
		return notify.LogSender{}
	}
	return notify.NewWebhookSender(cfg.NotifyWebhookURL, cfg.NotifyWebhookSecret)
}

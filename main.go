package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/hawkpark/hawkpark-be/internal/api"
	"github.com/hawkpark/hawkpark-be/internal/auth"
	"github.com/hawkpark/hawkpark-be/internal/config"
	"github.com/hawkpark/hawkpark-be/internal/database"
	"github.com/hawkpark/hawkpark-be/internal/geocode"
	"github.com/hawkpark/hawkpark-be/internal/logger"
	"github.com/hawkpark/hawkpark-be/internal/monitoring"
	"github.com/hawkpark/hawkpark-be/internal/services"
	"github.com/hawkpark/hawkpark-be/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Init(cfg.LogLevel, !cfg.IsProduction())

	// Set up database
	db, err := database.New(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}

	// Geocoding is optional. A nil Geocoder leaves listings without coordinates.
	var geocoder services.Geocoder
	var cache *redis.Client
	if cfg.GeocodeEnabled {
		if cfg.RedisURL != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			cache, err = geocode.NewRedisClient(ctx, cfg.RedisURL)
			cancel()
			if err != nil {
				log.Warn().Err(err).Msg("Redis unavailable, geocoding without a cache")
				cache = nil
			} else {
				defer cache.Close()
			}
		}
		geocoder = geocode.New(cfg.GeocodeURL, cfg.GeocodeRegion, cfg.GeocodeTimeout, cache)
	}

	// Set up WebSocket Hub
	hub := websocket.NewHub()
	go hub.Run()

	// Set up services
	eventService := services.NewEventService(db)
	userService := services.NewUserService(db)
	listingService := services.NewListingService(db, eventService, geocoder, services.ListingRules{
		MaxPerOwner: cfg.MaxListingsPerOwner,
		MaxPrice:    cfg.MaxHourlyPrice,
	})
	bookingService := services.NewBookingService(db, eventService, hub)

	var tokens *auth.TokenIssuer
	if cfg.AuthMode == config.AuthModeJWT {
		tokens = auth.NewTokenIssuer(cfg.JWTSecret, auth.DefaultTokenTTL)
	} else {
		log.Warn().Msg("Header authentication is enabled: the X-User-Id header is trusted as given")
	}
	authenticator := auth.NewAuthenticator(cfg.AuthMode, userService, tokens)

	// Set up and run the background stats updater
	statUpdater := monitoring.NewStatUpdater(db, hub, cfg.StatsInterval)
	go statUpdater.Run()

	// Set up and run the booking sweeper
	scheduler := monitoring.NewScheduler(bookingService, eventService, cfg.SweepSchedule)
	if err := scheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start booking sweeper")
	}

	// Set up router
	router := api.NewRouter(api.Deps{
		DB:             db,
		Hub:            hub,
		Auth:           authenticator,
		Users:          userService,
		Listings:       listingService,
		Bookings:       bookingService,
		Events:         eventService,
		AllowedOrigins: cfg.AllowedOrigins,
		SecureCookies:  cfg.IsProduction(),
	})

	// Set up server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Int("port", cfg.ServerPort).Str("auth_mode", cfg.AuthMode).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ListenAndServe failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	statUpdater.Stop() // Stop the stat updater
	scheduler.Stop()   // Stop the sweeper

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	hub.Stop()

	log.Info().Msg("Server exiting")
}

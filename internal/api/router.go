package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/hawkpark/hawkpark-be/internal/api/handlers"
	"github.com/hawkpark/hawkpark-be/internal/auth"
	"github.com/hawkpark/hawkpark-be/internal/metrics"
	"github.com/hawkpark/hawkpark-be/internal/services"
	"github.com/hawkpark/hawkpark-be/internal/websocket"
)

// Deps bundles what the router wires into its handlers.
type Deps struct {
	DB             *sqlx.DB
	Hub            *websocket.Hub
	Auth           *auth.Authenticator
	Users          services.UserServiceProvider
	Listings       services.ListingServiceProvider
	Bookings       services.BookingServiceProvider
	Events         services.EventServiceProvider
	AllowedOrigins []string
	SecureCookies  bool
}

// NewRouter creates and configures a new Chi router.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", auth.UserIDHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize handlers
	userHandler := handlers.NewUserHandler(d.Users, d.Listings, d.Auth.Tokens(), d.SecureCookies)
	listingHandler := handlers.NewListingHandler(d.Listings, d.Bookings)
	bookingHandler := handlers.NewBookingHandler(d.Bookings)
	eventHandler := handlers.NewEventHandler(d.Events)
	wsHandler := handlers.NewWebSocketHandler(d.Hub, d.AllowedOrigins)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler(d.DB))

		r.Route("/users", func(r chi.Router) {
			r.Post("/register", userHandler.Register)
			r.Post("/login", userHandler.Login)

			r.Group(func(r chi.Router) {
				r.Use(d.Auth.Middleware)
				r.Get("/{id}", userHandler.Get)
				r.Put("/{id}", userHandler.Update)
				r.Put("/{id}/password", userHandler.ChangePassword)
				r.Get("/{id}/listings", userHandler.Listings)
			})
		})

		r.Route("/listings", func(r chi.Router) {
			r.Get("/", listingHandler.GetAll)
			r.Get("/{id}", listingHandler.Get)
			r.Get("/{id}/slots", listingHandler.Slots)
			r.Post("/{id}/quote", listingHandler.Quote)

			r.Group(func(r chi.Router) {
				r.Use(d.Auth.Middleware)
				r.Post("/", listingHandler.Create)
				r.Put("/{id}", listingHandler.Update)
				r.Delete("/{id}", listingHandler.Delete)
			})
		})

		// Authenticated endpoints
		r.Group(func(r chi.Router) {
			r.Use(d.Auth.Middleware)

			r.Get("/ws", wsHandler.Serve)
			r.Get("/events", eventHandler.GetRecent)

			r.Route("/bookings", func(r chi.Router) {
				r.Post("/", bookingHandler.Create)
				r.Get("/renter", bookingHandler.ListRenter)
				r.Get("/owner", bookingHandler.ListOwner)
				r.Delete("/{id}", bookingHandler.Delete)
				r.Patch("/{id}/status", bookingHandler.UpdateStatus)
			})
		})
	})

	return r
}

// requestLogger logs each request through zerolog and records its latency
// under the matched route pattern.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.ObserveRequest(r.Method, route, strconv.Itoa(status), start)

		log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

func healthHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := db.PingContext(ctx); err != nil {
			log.Error().Err(err).Msg("Health check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

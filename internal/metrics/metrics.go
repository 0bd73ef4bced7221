// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hawkpark/hawkpark-be/internal/models"
)

var (
	// BookingAttempts counts booking requests by outcome code ("ok" on success).
	BookingAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hawkpark_booking_attempts_total",
		Help: "Total number of booking attempts by outcome",
	}, []string{"outcome"})

	// ListingMutations counts listing writes by operation and outcome code.
	ListingMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hawkpark_listing_mutations_total",
		Help: "Total number of listing create/update/delete calls by outcome",
	}, []string{"operation", "outcome"})

	// ListingsTotal is the number of stored listings.
	ListingsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hawkpark_listings",
		Help: "Number of listings currently stored",
	})

	// BookingsByStatus is the number of stored bookings per status.
	BookingsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hawkpark_bookings",
		Help: "Number of bookings by status",
	}, []string{"status"})

	// BookingsSwept counts bookings the sweeper marked completed.
	BookingsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hawkpark_bookings_swept_total",
		Help: "Total number of past bookings marked completed by the sweeper",
	})

	// HTTPRequestDuration records request latency by route pattern and status.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hawkpark_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	// WebSocketConnections is the gauge of open websocket connections.
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hawkpark_websocket_connections",
		Help: "Number of active websocket connections",
	})

	// WebSocketDrops counts notifications dropped because a client was not keeping up.
	WebSocketDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hawkpark_websocket_drops_total",
		Help: "Total number of websocket messages dropped due to backpressure",
	})

	// GeocodeLookups counts geocode lookups by source (cache, remote, error).
	GeocodeLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hawkpark_geocode_lookups_total",
		Help: "Total number of geocode lookups by source",
	}, []string{"source"})
)

// Outcome returns the label used for an operation result: "ok", the error's code, or "internal".
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if code := models.ErrorCode(err); code != "" {
		return code
	}
	return "internal"
}

// ObserveRequest records the latency of a finished HTTP request.
func ObserveRequest(method, route, status string, start time.Time) {
	HTTPRequestDuration.WithLabelValues(method, route, status).Observe(time.Since(start).Seconds())
}

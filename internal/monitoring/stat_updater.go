package monitoring

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/hawkpark/hawkpark-be/internal/metrics"
	"github.com/hawkpark/hawkpark-be/internal/models"
)

// Broadcaster pushes a message to every connected client.
type Broadcaster interface {
	BroadcastAll(action string, payload interface{})
}

// MarketplaceStats is the snapshot published on every tick.
type MarketplaceStats struct {
	Listings int64            `json:"listings"`
	Bookings map[string]int64 `json:"bookings"`
}

// StatUpdater periodically refreshes marketplace gauges and publishes them.
type StatUpdater struct {
	db       *sqlx.DB
	hub      Broadcaster
	interval time.Duration
	done     chan struct{}
	stopped  chan struct{}
}

// NewStatUpdater creates a new StatUpdater. hub may be nil.
func NewStatUpdater(db *sqlx.DB, hub Broadcaster, interval time.Duration) *StatUpdater {
	return &StatUpdater{
		db:       db,
		hub:      hub,
		interval: interval,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Run starts the periodic updates. It returns after Stop.
func (su *StatUpdater) Run() {
	defer close(su.stopped)
	log.Info().Dur("interval", su.interval).Msg("Starting background stat updater...")
	ticker := time.NewTicker(su.interval)
	defer ticker.Stop()

	// Run once immediately on start
	su.update()

	for {
		select {
		case <-su.done:
			log.Info().Msg("Stopping background stat updater.")
			return
		case <-ticker.C:
			su.update()
		}
	}
}

// Stop halts the periodic updates and waits for Run to return.
func (su *StatUpdater) Stop() {
	close(su.done)
	<-su.stopped
}

func (su *StatUpdater) update() {
	ctx, cancel := context.WithTimeout(context.Background(), su.interval)
	defer cancel()

	stats, err := su.Collect(ctx)
	if err != nil {
		log.Error().Err(err).Msg("StatUpdater: Failed to collect marketplace stats")
		return
	}

	metrics.ListingsTotal.Set(float64(stats.Listings))
	for _, status := range []string{models.BookingConfirmed, models.BookingCompleted, models.BookingCancelled} {
		metrics.BookingsByStatus.WithLabelValues(status).Set(float64(stats.Bookings[status]))
	}
	if su.hub != nil {
		su.hub.BroadcastAll("marketplace.stats", stats)
	}
}

// Collect reads the current listing and booking counts.
func (su *StatUpdater) Collect(ctx context.Context) (MarketplaceStats, error) {
	stats := MarketplaceStats{Bookings: map[string]int64{}}
	if err := su.db.GetContext(ctx, &stats.Listings, "SELECT COUNT(*) FROM listings"); err != nil {
		return MarketplaceStats{}, err
	}

	var rows []struct {
		Status string `db:"status"`
		Count  int64  `db:"count"`
	}
	if err := su.db.SelectContext(ctx, &rows, "SELECT status, COUNT(*) AS count FROM bookings GROUP BY status"); err != nil {
		return MarketplaceStats{}, err
	}
	for _, r := range rows {
		stats.Bookings[r.Status] = r.Count
	}
	return stats, nil
}

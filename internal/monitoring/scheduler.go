package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/hawkpark/hawkpark-be/internal/metrics"
	"github.com/hawkpark/hawkpark-be/internal/services"
)

// sweepTimeout bounds a single sweep.
const sweepTimeout = time.Minute

// BookingCompleter marks bookings whose date has passed as completed.
type BookingCompleter interface {
	CompletePastBookings(ctx context.Context, today time.Time) (int64, error)
}

// Scheduler runs the booking sweeper on a cron schedule.
type Scheduler struct {
	bookings BookingCompleter
	eventSvc services.EventServiceProvider
	cron     *cron.Cron
	spec     string
	now      func() time.Time

	// startup tracks the sweep Start runs outside the cron loop.
	startup sync.WaitGroup
}

// NewScheduler creates a new scheduler instance. spec is a cron expression
// or descriptor such as "@every 1h".
func NewScheduler(bookings BookingCompleter, eventSvc services.EventServiceProvider, spec string) *Scheduler {
	return &Scheduler{
		bookings: bookings,
		eventSvc: eventSvc,
		cron:     cron.New(),
		spec:     spec,
		now:      time.Now,
	}
}

// Start validates the schedule, sweeps once, and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.sweep); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.spec, err)
	}
	log.Info().Str("schedule", s.spec).Msg("Starting booking sweeper...")

	// Run once immediately on start
	s.startup.Add(1)
	go func() {
		defer s.startup.Done()
		s.sweep()
	}()
	s.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.startup.Wait()
	log.Info().Msg("Stopped booking sweeper.")
}

// sweep completes every confirmed booking dated before today.
func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	n, err := s.bookings.CompletePastBookings(ctx, s.now())
	if err != nil {
		log.Error().Err(err).Msg("Sweeper: Failed to complete past bookings")
		if s.eventSvc != nil {
			if err := s.eventSvc.CreateEvent(ctx, "booking.sweep.fail", "error", "Booking sweep failed.", nil); err != nil {
				log.Warn().Err(err).Msg("Sweeper: Failed to record event")
			}
		}
		return
	}
	if n == 0 {
		return
	}

	metrics.BookingsSwept.Add(float64(n))
	log.Info().Int64("completed", n).Msg("Sweeper: Marked past bookings completed")
	if s.eventSvc != nil {
		msg := fmt.Sprintf("%d past booking(s) marked completed.", n)
		if err := s.eventSvc.CreateEvent(ctx, "booking.sweep", "info", msg, nil); err != nil {
			log.Warn().Err(err).Msg("Sweeper: Failed to record event")
		}
	}
}

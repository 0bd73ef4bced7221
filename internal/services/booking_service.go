package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/hawkpark/hawkpark-be/internal/booking"
	"github.com/hawkpark/hawkpark-be/internal/database"
	"github.com/hawkpark/hawkpark-be/internal/metrics"
	"github.com/hawkpark/hawkpark-be/internal/models"
)

const bookingColumns = `id, listing_id, renter_id, renter_email, owner_id, owner_email, booking_date,
	start_time, end_time, total_price_cents, status, created_at`

const bookingDetailQuery = `
	SELECT b.id, b.listing_id, b.renter_id, b.renter_email, b.owner_id, b.owner_email, b.booking_date,
		b.start_time, b.end_time, b.total_price_cents, b.status, b.created_at,
		l.address, l.parking_number, l.vehicle_size, l.indoor_outdoor
	FROM bookings b
	JOIN listings l ON l.id = b.listing_id`

// Notifier pushes realtime messages to a user's open connections.
type Notifier interface {
	NotifyUser(userID int64, action string, payload interface{})
}

// BookingServiceProvider defines the interface for booking services.
type BookingServiceProvider interface {
	Quote(ctx context.Context, listingID int64, req booking.Request) (booking.Quote, error)
	CreateBooking(ctx context.Context, renter models.User, req models.BookingRequest) (models.Booking, error)
	ListForRenter(ctx context.Context, renterID int64) ([]models.BookingDetail, error)
	ListForOwner(ctx context.Context, ownerID int64) ([]models.BookingDetail, error)
	DeleteBooking(ctx context.Context, id int64, renter models.User) (models.Booking, error)
	UpdateStatus(ctx context.Context, id int64, actor models.User, status string) (models.Booking, error)
	CompletePastBookings(ctx context.Context, today time.Time) (int64, error)
}

// BookingService reserves listings for renters.
type BookingService struct {
	db           *sqlx.DB
	eventService EventServiceProvider
	notifier     Notifier
	now          func() time.Time
}

// NewBookingService creates a new BookingService. notifier may be nil.
func NewBookingService(db *sqlx.DB, eventService EventServiceProvider, notifier Notifier) *BookingService {
	return &BookingService{
		db:           db,
		eventService: eventService,
		notifier:     notifier,
		now:          time.Now,
	}
}

// WithClock replaces the clock used to date bookings and to decide what "today" is.
func (s *BookingService) WithClock(now func() time.Time) *BookingService {
	s.now = now
	return s
}

// Quote validates and prices a request, including the date conflict check, without booking it.
func (s *BookingService) Quote(ctx context.Context, listingID int64, req booking.Request) (booking.Quote, error) {
	listing, err := getListing(ctx, s.db, listingID)
	if err != nil {
		return booking.Quote{}, err
	}
	quote, err := booking.ValidateAndPrice(listing, req)
	if err != nil {
		return booking.Quote{}, err
	}
	if err := s.checkNotPast(quote.Date); err != nil {
		return booking.Quote{}, err
	}
	if err := checkDateFree(ctx, s.db, listingID, quote.Date); err != nil {
		return booking.Quote{}, err
	}
	return quote, nil
}

// CreateBooking books a listing for the renter. The price charged is the
// server's computation; a differing client total is ignored.
func (s *BookingService) CreateBooking(ctx context.Context, renter models.User, req models.BookingRequest) (models.Booking, error) {
	created, err := s.createBooking(ctx, renter, req)
	metrics.BookingAttempts.WithLabelValues(metrics.Outcome(err)).Inc()
	return created, err
}

func (s *BookingService) createBooking(ctx context.Context, renter models.User, req models.BookingRequest) (models.Booking, error) {
	if req.ListingID == 0 || req.BookingDate == "" || req.StartTime == "" || req.EndTime == "" {
		return models.Booking{}, models.NewAppError(models.CodeMissingFields, "listing_id, booking_date, start_time and end_time are required")
	}

	var created models.Booking
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		listing, err := getListing(ctx, tx, req.ListingID)
		if err != nil {
			return err
		}

		quote, err := booking.ValidateAndPrice(listing, booking.Request{
			Date:  req.BookingDate,
			Start: req.StartTime,
			End:   req.EndTime,
		})
		if err != nil {
			return err
		}
		if err := s.checkNotPast(quote.Date); err != nil {
			return err
		}
		if req.TotalPrice != nil && *req.TotalPrice != quote.Total {
			log.Warn().
				Int64("listing_id", listing.ID).
				Str("client_total", req.TotalPrice.String()).
				Str("server_total", quote.Total.String()).
				Msg("Client booking total differs from server price, using server price")
		}

		if err := checkDateFree(ctx, tx, listing.ID, quote.Date); err != nil {
			return err
		}

		created = models.Booking{
			ListingID:   listing.ID,
			RenterID:    renter.ID,
			RenterEmail: renter.Email,
			OwnerID:     listing.OwnerID,
			OwnerEmail:  listing.OwnerEmail,
			BookingDate: quote.Date,
			StartTime:   quote.Start,
			EndTime:     quote.End,
			TotalPrice:  quote.Total,
			Status:      models.BookingConfirmed,
			CreatedAt:   s.now().UTC(),
		}
		query := tx.Rebind(`
			INSERT INTO bookings (listing_id, renter_id, renter_email, owner_id, owner_email, booking_date,
				start_time, end_time, total_price_cents, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`)
		return tx.QueryRowxContext(ctx, query,
			created.ListingID, created.RenterID, created.RenterEmail, created.OwnerID, created.OwnerEmail,
			created.BookingDate, created.StartTime, created.EndTime, created.TotalPrice, created.Status, created.CreatedAt,
		).Scan(&created.ID)
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			// Another request booked the date between our check and insert.
			return models.Booking{}, slotConflict()
		}
		return models.Booking{}, asStorageError(err)
	}

	s.recordEvent(ctx, "booking.create", "info",
		fmt.Sprintf("Booking #%d for %s %s-%s.", created.ID, created.BookingDate, created.StartTime, created.EndTime), renter.ID)
	if s.notifier != nil {
		s.notifier.NotifyUser(created.OwnerID, "booking.created", created)
	}
	return created, nil
}

// ListForRenter returns the renter's bookings, newest first.
func (s *BookingService) ListForRenter(ctx context.Context, renterID int64) ([]models.BookingDetail, error) {
	return s.listBookings(ctx, "b.renter_id", renterID)
}

// ListForOwner returns bookings made on the owner's listings, newest first.
func (s *BookingService) ListForOwner(ctx context.Context, ownerID int64) ([]models.BookingDetail, error) {
	return s.listBookings(ctx, "b.owner_id", ownerID)
}

func (s *BookingService) listBookings(ctx context.Context, column string, userID int64) ([]models.BookingDetail, error) {
	bookings := []models.BookingDetail{}
	query := s.db.Rebind(bookingDetailQuery + " WHERE " + column + " = ? ORDER BY b.created_at DESC, b.id DESC")
	if err := s.db.SelectContext(ctx, &bookings, query, userID); err != nil {
		return nil, models.NewStorageError(err)
	}
	return bookings, nil
}

// DeleteBooking removes a booking made by renter.
func (s *BookingService) DeleteBooking(ctx context.Context, id int64, renter models.User) (models.Booking, error) {
	var deleted models.Booking
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		deleted, err = getBooking(ctx, tx, "id = ? AND renter_id = ?", id, renter.ID)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, tx.Rebind("DELETE FROM bookings WHERE id = ?"), id)
		return err
	})
	if err != nil {
		return models.Booking{}, asStorageError(err)
	}

	s.recordEvent(ctx, "booking.delete", "warn", fmt.Sprintf("Booking #%d cancelled.", deleted.ID), renter.ID)
	if s.notifier != nil {
		s.notifier.NotifyUser(deleted.OwnerID, "booking.deleted", deleted)
	}
	return deleted, nil
}

// UpdateStatus sets a booking's status. Either party to the booking may do so.
func (s *BookingService) UpdateStatus(ctx context.Context, id int64, actor models.User, status string) (models.Booking, error) {
	if !models.ValidBookingStatus(status) {
		return models.Booking{}, models.NewAppError(models.CodeInvalidFields, "status must be one of confirmed, completed, cancelled")
	}

	var updated models.Booking
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		updated, err = getBooking(ctx, tx, "id = ? AND (renter_id = ? OR owner_id = ?)", id, actor.ID, actor.ID)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, tx.Rebind("UPDATE bookings SET status = ? WHERE id = ?"), status, id)
		updated.Status = status
		return err
	})
	if err != nil {
		return models.Booking{}, asStorageError(err)
	}

	s.recordEvent(ctx, "booking.status", "info", fmt.Sprintf("Booking #%d is now %s.", updated.ID, updated.Status), actor.ID)
	if s.notifier != nil {
		other := updated.OwnerID
		if actor.ID == updated.OwnerID {
			other = updated.RenterID
		}
		s.notifier.NotifyUser(other, "booking.status", updated)
	}
	return updated, nil
}

// CompletePastBookings marks confirmed bookings dated before today as completed.
func (s *BookingService) CompletePastBookings(ctx context.Context, today time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE bookings SET status = ? WHERE status = ? AND booking_date < ?"),
		models.BookingCompleted, models.BookingConfirmed, today.Format(booking.DateLayout))
	if err != nil {
		return 0, models.NewStorageError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, models.NewStorageError(err)
	}
	return n, nil
}

func (s *BookingService) recordEvent(ctx context.Context, eventType, level, message string, userID int64) {
	if s.eventService == nil {
		return
	}
	if err := s.eventService.CreateEvent(ctx, eventType, level, message, &userID); err != nil {
		log.Warn().Err(err).Str("type", eventType).Msg("Failed to record event")
	}
}

// getListing loads a listing through either the pool or an open transaction.
func getListing(ctx context.Context, q sqlx.ExtContext, id int64) (models.Listing, error) {
	var listing models.Listing
	err := sqlx.GetContext(ctx, q, &listing, q.Rebind("SELECT "+listingColumns+" FROM listings WHERE id = ?"), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Listing{}, models.NewNotFoundOrNotOwned("Listing")
		}
		return models.Listing{}, models.NewStorageError(err)
	}
	return listing, nil
}

// getBooking loads the booking matching where, or reports it as not found or not owned.
func getBooking(ctx context.Context, q sqlx.ExtContext, where string, args ...interface{}) (models.Booking, error) {
	var b models.Booking
	err := sqlx.GetContext(ctx, q, &b, q.Rebind("SELECT "+bookingColumns+" FROM bookings WHERE "+where), args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Booking{}, models.NewNotFoundOrNotOwned("Booking")
		}
		return models.Booking{}, models.NewStorageError(err)
	}
	return b, nil
}

// checkDateFree rejects a date that already has any booking on the listing,
// whatever its hours or status.
func checkDateFree(ctx context.Context, q sqlx.ExtContext, listingID int64, date string) error {
	var count int
	err := sqlx.GetContext(ctx, q, &count,
		q.Rebind("SELECT COUNT(*) FROM bookings WHERE listing_id = ? AND booking_date = ?"), listingID, date)
	if err != nil {
		return models.NewStorageError(err)
	}
	if count > 0 {
		return slotConflict()
	}
	return nil
}

// checkNotPast rejects dates before today. date is in booking.DateLayout,
// so string order is calendar order.
func (s *BookingService) checkNotPast(date string) error {
	if date < s.now().Format(booking.DateLayout) {
		return models.NewAppError(models.CodeInvalidFields, "booking_date must not be in the past")
	}
	return nil
}

func slotConflict() *models.AppError {
	return models.NewAppError(models.CodeSlotConflict, "This time slot is already booked")
}

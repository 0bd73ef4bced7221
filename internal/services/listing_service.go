package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/hawkpark/hawkpark-be/internal/booking"
	"github.com/hawkpark/hawkpark-be/internal/database"
	"github.com/hawkpark/hawkpark-be/internal/metrics"
	"github.com/hawkpark/hawkpark-be/internal/models"
)

const listingColumns = `id, owner_id, owner_email, address, parking_number, vehicle_size, indoor_outdoor,
	availability_from, availability_to, days, price_cents`

// geocodeConcurrency bounds parallel lookups when decorating a page of listings.
const geocodeConcurrency = 4

// Geocoder resolves an address to coordinates. A nil result means "unknown".
type Geocoder interface {
	Lookup(ctx context.Context, address string) (*models.Coordinates, error)
}

// ListingServiceProvider defines the interface for listing services.
type ListingServiceProvider interface {
	CreateListing(ctx context.Context, owner models.User, in models.ListingInput) (models.Listing, error)
	UpdateListing(ctx context.Context, id int64, owner models.User, patch models.ListingPatch) (models.Listing, error)
	DeleteListing(ctx context.Context, id int64, owner models.User) (models.Listing, error)
	GetListing(ctx context.Context, id int64) (models.Listing, error)
	ListListings(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error)
	ListListingsByOwner(ctx context.Context, ownerID int64) ([]models.Listing, error)
}

// ListingRules are the marketplace limits applied to listings.
type ListingRules struct {
	MaxPerOwner int          // 0 disables the limit
	MaxPrice    models.Money // hourly ceiling
}

// ListingService creates and mutates listings on behalf of their owners.
type ListingService struct {
	db           *sqlx.DB
	eventService EventServiceProvider
	geocoder     Geocoder
	rules        ListingRules
}

// NewListingService creates a new ListingService. geocoder may be nil.
func NewListingService(db *sqlx.DB, eventService EventServiceProvider, geocoder Geocoder, rules ListingRules) *ListingService {
	return &ListingService{
		db:           db,
		eventService: eventService,
		geocoder:     geocoder,
		rules:        rules,
	}
}

// CreateListing validates and stores a new listing owned by owner.
func (s *ListingService) CreateListing(ctx context.Context, owner models.User, in models.ListingInput) (models.Listing, error) {
	listing, err := s.createListing(ctx, owner, in)
	metrics.ListingMutations.WithLabelValues("create", metrics.Outcome(err)).Inc()
	return listing, err
}

func (s *ListingService) createListing(ctx context.Context, owner models.User, in models.ListingInput) (models.Listing, error) {
	if err := s.validateInput(in); err != nil {
		return models.Listing{}, err
	}

	listing := models.Listing{
		OwnerID:          owner.ID,
		OwnerEmail:       owner.Email,
		Address:          strings.TrimSpace(in.Address),
		ParkingNumber:    normalizeLabel(in.ParkingNumber),
		VehicleSize:      in.VehicleSize,
		IndoorOutdoor:    in.IndoorOutdoor,
		AvailabilityFrom: strings.TrimSpace(in.AvailabilityFrom),
		AvailabilityTo:   strings.TrimSpace(in.AvailabilityTo),
		Days:             in.Days,
		Price:            *in.Price,
	}

	var created models.Listing
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if s.rules.MaxPerOwner > 0 {
			var count int
			if err := tx.GetContext(ctx, &count, tx.Rebind("SELECT COUNT(*) FROM listings WHERE owner_id = ?"), owner.ID); err != nil {
				return err
			}
			if count >= s.rules.MaxPerOwner {
				return models.NewAppError(models.CodeListingLimitReached,
					fmt.Sprintf("You can have at most %d listings", s.rules.MaxPerOwner))
			}
		}

		query := tx.Rebind(`
			INSERT INTO listings (owner_id, owner_email, address, parking_number, vehicle_size, indoor_outdoor,
				availability_from, availability_to, days, price_cents)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING ` + listingColumns)
		return tx.GetContext(ctx, &created, query,
			listing.OwnerID, listing.OwnerEmail, listing.Address, listing.ParkingNumber, listing.VehicleSize,
			listing.IndoorOutdoor, listing.AvailabilityFrom, listing.AvailabilityTo, listing.Days, listing.Price,
		)
	})
	if err != nil {
		return models.Listing{}, asStorageError(err)
	}

	if created.Days.Empty() {
		log.Warn().Int64("listing_id", created.ID).Msg("Days field missing in inserted listing row")
	}

	s.recordEvent(ctx, "listing.create", "info", fmt.Sprintf("Listing at '%s' created.", created.Address), owner.ID)
	return created, nil
}

func (s *ListingService) validateInput(in models.ListingInput) error {
	var missing []string
	if strings.TrimSpace(in.Address) == "" {
		missing = append(missing, "address")
	}
	if in.VehicleSize == "" {
		missing = append(missing, "vehicle_size")
	}
	if in.IndoorOutdoor == "" {
		missing = append(missing, "indoor_outdoor")
	}
	if strings.TrimSpace(in.AvailabilityFrom) == "" {
		missing = append(missing, "availability_from")
	}
	if strings.TrimSpace(in.AvailabilityTo) == "" {
		missing = append(missing, "availability_to")
	}
	if in.Price == nil {
		missing = append(missing, "price")
	}
	if in.Days.Empty() {
		missing = append(missing, "days")
	}
	if len(missing) > 0 {
		return models.NewAppError(models.CodeMissingFields, "Missing required fields: "+strings.Join(missing, ", "))
	}

	if err := s.validateFields(in.VehicleSize, in.IndoorOutdoor, *in.Price); err != nil {
		return err
	}
	return validateWindow(in.AvailabilityFrom, in.AvailabilityTo)
}

func (s *ListingService) validateFields(vehicleSize, placement string, price models.Money) error {
	if vehicleSize != "" && !models.ValidVehicleSize(vehicleSize) {
		return models.NewAppError(models.CodeInvalidFields, "vehicle_size must be one of Small, Medium, Large, Any")
	}
	if placement != "" && !models.ValidPlacement(placement) {
		return models.NewAppError(models.CodeInvalidFields, "indoor_outdoor must be Indoor or Outdoor")
	}
	if price < 0 || (s.rules.MaxPrice > 0 && price > s.rules.MaxPrice) {
		return models.NewAppError(models.CodeInvalidFields,
			fmt.Sprintf("price must be between 0.00 and %s", s.rules.MaxPrice))
	}
	return nil
}

func validateWindow(from, to string) error {
	_, err := booking.ListingWindow(models.Listing{AvailabilityFrom: from, AvailabilityTo: to})
	if err != nil {
		return &models.AppError{
			Code:    models.CodeInvalidFields,
			Message: "availability_from must be a time before availability_to",
			Err:     err,
		}
	}
	return nil
}

// UpdateListing changes only the supplied fields of a listing owned by owner.
// A listing that does not exist and one owned by someone else are reported alike.
func (s *ListingService) UpdateListing(ctx context.Context, id int64, owner models.User, patch models.ListingPatch) (models.Listing, error) {
	listing, err := s.updateListing(ctx, id, owner, patch)
	metrics.ListingMutations.WithLabelValues("update", metrics.Outcome(err)).Inc()
	return listing, err
}

func (s *ListingService) updateListing(ctx context.Context, id int64, owner models.User, patch models.ListingPatch) (models.Listing, error) {
	if patch.Empty() {
		return models.Listing{}, models.NewAppError(models.CodeNoFieldsProvided, "At least one field must be provided for update")
	}

	sets, args, err := s.buildPatch(patch)
	if err != nil {
		return models.Listing{}, err
	}
	args = append(args, id, owner.ID)

	var updated models.Listing
	err = database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		query := tx.Rebind("UPDATE listings SET " + strings.Join(sets, ", ") +
			" WHERE id = ? AND owner_id = ? RETURNING " + listingColumns)
		if err := tx.GetContext(ctx, &updated, query, args...); err != nil {
			return err
		}
		if patch.AvailabilityFrom != nil || patch.AvailabilityTo != nil {
			// Rolls back if the merged window is no longer valid.
			return validateWindow(updated.AvailabilityFrom, updated.AvailabilityTo)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Listing{}, models.NewNotFoundOrNotOwned("Listing")
		}
		return models.Listing{}, asStorageError(err)
	}

	s.recordEvent(ctx, "listing.update", "info", fmt.Sprintf("Listing #%d updated.", updated.ID), owner.ID)
	s.attachCoordinates(ctx, []models.Listing{updated})
	return updated, nil
}

// buildPatch turns the supplied patch fields into SET clauses and their arguments.
func (s *ListingService) buildPatch(p models.ListingPatch) ([]string, []interface{}, error) {
	var sets []string
	var args []interface{}
	add := func(column string, value interface{}) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if p.Address != nil {
		if strings.TrimSpace(*p.Address) == "" {
			return nil, nil, models.NewAppError(models.CodeInvalidFields, "address must not be empty")
		}
		add("address", strings.TrimSpace(*p.Address))
	}
	if p.ParkingNumber != nil {
		add("parking_number", normalizeLabel(p.ParkingNumber))
	}
	if p.VehicleSize != nil {
		if !models.ValidVehicleSize(*p.VehicleSize) {
			return nil, nil, models.NewAppError(models.CodeInvalidFields, "vehicle_size must be one of Small, Medium, Large, Any")
		}
		add("vehicle_size", *p.VehicleSize)
	}
	if p.IndoorOutdoor != nil {
		if !models.ValidPlacement(*p.IndoorOutdoor) {
			return nil, nil, models.NewAppError(models.CodeInvalidFields, "indoor_outdoor must be Indoor or Outdoor")
		}
		add("indoor_outdoor", *p.IndoorOutdoor)
	}
	if p.AvailabilityFrom != nil {
		if _, err := booking.ParseClock(*p.AvailabilityFrom); err != nil {
			return nil, nil, models.NewAppError(models.CodeInvalidFields, "availability_from is not a valid time")
		}
		add("availability_from", strings.TrimSpace(*p.AvailabilityFrom))
	}
	if p.AvailabilityTo != nil {
		if _, err := booking.ParseClock(*p.AvailabilityTo); err != nil {
			return nil, nil, models.NewAppError(models.CodeInvalidFields, "availability_to is not a valid time")
		}
		add("availability_to", strings.TrimSpace(*p.AvailabilityTo))
	}
	if p.Days != nil {
		if p.Days.Empty() {
			return nil, nil, models.NewAppError(models.CodeInvalidFields, "days must contain at least one weekday")
		}
		add("days", *p.Days)
	}
	if p.Price != nil {
		if err := s.validateFields("", "", *p.Price); err != nil {
			return nil, nil, err
		}
		add("price_cents", *p.Price)
	}
	return sets, args, nil
}

// DeleteListing removes a listing owned by owner. Its bookings go with it.
func (s *ListingService) DeleteListing(ctx context.Context, id int64, owner models.User) (models.Listing, error) {
	listing, err := s.deleteListing(ctx, id, owner)
	metrics.ListingMutations.WithLabelValues("delete", metrics.Outcome(err)).Inc()
	return listing, err
}

func (s *ListingService) deleteListing(ctx context.Context, id int64, owner models.User) (models.Listing, error) {
	var deleted models.Listing
	query := s.db.Rebind("DELETE FROM listings WHERE id = ? AND owner_id = ? RETURNING " + listingColumns)
	if err := s.db.GetContext(ctx, &deleted, query, id, owner.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Listing{}, models.NewNotFoundOrNotOwned("Listing")
		}
		return models.Listing{}, models.NewStorageError(err)
	}

	s.recordEvent(ctx, "listing.delete", "warn", fmt.Sprintf("Listing at '%s' was deleted.", deleted.Address), owner.ID)
	return deleted, nil
}

// GetListing retrieves a single listing by ID.
func (s *ListingService) GetListing(ctx context.Context, id int64) (models.Listing, error) {
	listing, err := getListing(ctx, s.db, id)
	if err != nil {
		return models.Listing{}, err
	}
	s.attachCoordinates(ctx, []models.Listing{listing})
	return listing, nil
}

// ListListings returns listings matching filter, with coordinates when a geocoder is configured.
func (s *ListingService) ListListings(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error) {
	var where []string
	var args []interface{}
	if filter.Address != "" {
		where = append(where, "LOWER(address) LIKE ?")
		args = append(args, "%"+strings.ToLower(filter.Address)+"%")
	}
	if filter.VehicleSize != "" {
		where = append(where, "(vehicle_size = ? OR vehicle_size = ?)")
		args = append(args, filter.VehicleSize, models.VehicleAny)
	}
	if filter.IndoorOutdoor != "" {
		where = append(where, "indoor_outdoor = ?")
		args = append(args, filter.IndoorOutdoor)
	}
	if filter.MaxPrice != nil {
		where = append(where, "price_cents <= ?")
		args = append(args, *filter.MaxPrice)
	}

	query := "SELECT " + listingColumns + " FROM listings"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	listings := []models.Listing{}
	if err := s.db.SelectContext(ctx, &listings, s.db.Rebind(query), args...); err != nil {
		return nil, models.NewStorageError(err)
	}

	if filter.Day != nil {
		kept := listings[:0]
		for _, l := range listings {
			if l.Days.Has(*filter.Day) {
				kept = append(kept, l)
			}
		}
		listings = kept
	}

	s.attachCoordinates(ctx, listings)
	return listings, nil
}

// ListListingsByOwner returns the listings owned by a user.
func (s *ListingService) ListListingsByOwner(ctx context.Context, ownerID int64) ([]models.Listing, error) {
	listings := []models.Listing{}
	err := s.db.SelectContext(ctx, &listings,
		s.db.Rebind("SELECT "+listingColumns+" FROM listings WHERE owner_id = ? ORDER BY id"), ownerID)
	if err != nil {
		return nil, models.NewStorageError(err)
	}
	s.attachCoordinates(ctx, listings)
	return listings, nil
}

// attachCoordinates decorates listings in place. Lookup failures leave coordinates nil.
func (s *ListingService) attachCoordinates(ctx context.Context, listings []models.Listing) {
	if s.geocoder == nil || len(listings) == 0 {
		return
	}
	sem := make(chan struct{}, geocodeConcurrency)
	var wg sync.WaitGroup
	for i := range listings {
		wg.Add(1)
		sem <- struct{}{}
		go func(l *models.Listing) {
			defer wg.Done()
			defer func() { <-sem }()
			coords, err := s.geocoder.Lookup(ctx, l.Address)
			if err != nil {
				log.Warn().Err(err).Str("address", l.Address).Msg("Geocoding failed, continuing without coordinates")
				return
			}
			l.Coordinates = coords
		}(&listings[i])
	}
	wg.Wait()
}

func (s *ListingService) recordEvent(ctx context.Context, eventType, level, message string, userID int64) {
	if s.eventService == nil {
		return
	}
	if err := s.eventService.CreateEvent(ctx, eventType, level, message, &userID); err != nil {
		log.Warn().Err(err).Str("type", eventType).Msg("Failed to record event")
	}
}

func normalizeLabel(label *string) *string {
	if label == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*label)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// asStorageError passes typed rejections through and wraps anything else.
func asStorageError(err error) error {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return models.NewStorageError(err)
}

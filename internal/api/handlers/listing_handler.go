package handlers

import (
	"net/http"

	"github.com/hawkpark/hawkpark-be/internal/booking"
	"github.com/hawkpark/hawkpark-be/internal/models"
	"github.com/hawkpark/hawkpark-be/internal/services"
)

// ListingHandler handles HTTP requests related to listings.
type ListingHandler struct {
	service  services.ListingServiceProvider
	bookings services.BookingServiceProvider
}

// NewListingHandler creates a new ListingHandler.
func NewListingHandler(service services.ListingServiceProvider, bookings services.BookingServiceProvider) *ListingHandler {
	return &ListingHandler{service: service, bookings: bookings}
}

// QuotePayload is a proposed booking to price.
type QuotePayload struct {
	BookingDate string `json:"booking_date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
}

// SlotsResponse lists the selectable start and end hours of a listing.
type SlotsResponse struct {
	ListingID int64          `json:"listing_id"`
	Days      models.DaySet  `json:"days"`
	Starts    []booking.Slot `json:"start_times"`
	Ends      []booking.Slot `json:"end_times"`
}

// GetAll handles browsing listings with optional filters.
func (h *ListingHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListingFilter(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	listings, err := h.service.ListListings(r.Context(), filter)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, listings)
}

func parseListingFilter(r *http.Request) (models.ListingFilter, error) {
	q := r.URL.Query()
	filter := models.ListingFilter{
		Address:       q.Get("address"),
		VehicleSize:   q.Get("vehicle_size"),
		IndoorOutdoor: q.Get("indoor_outdoor"),
	}
	if filter.VehicleSize != "" && !models.ValidVehicleSize(filter.VehicleSize) {
		return models.ListingFilter{}, models.NewAppError(models.CodeInvalidFields, "Unknown vehicle_size filter")
	}
	if filter.IndoorOutdoor != "" && !models.ValidPlacement(filter.IndoorOutdoor) {
		return models.ListingFilter{}, models.NewAppError(models.CodeInvalidFields, "Unknown indoor_outdoor filter")
	}
	if raw := q.Get("day"); raw != "" {
		day, err := models.ParseWeekday(raw)
		if err != nil {
			return models.ListingFilter{}, models.NewAppError(models.CodeInvalidFields, "day must be a weekday name")
		}
		filter.Day = &day
	}
	if raw := q.Get("max_price"); raw != "" {
		price, err := models.ParseMoney(raw)
		if err != nil {
			return models.ListingFilter{}, models.NewAppError(models.CodeInvalidFields, "max_price must be an amount")
		}
		filter.MaxPrice = &price
	}
	return filter, nil
}

// Get handles the request to get a single listing by its ID.
func (h *ListingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	listing, err := h.service.GetListing(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, listing)
}

// Slots returns the start and end hours a booking on the listing may use.
func (h *ListingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	listing, err := h.service.GetListing(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	window, err := booking.ListingWindow(listing)
	if err != nil {
		respondError(w, r, &models.AppError{Code: models.CodeOutsideAvailability, Message: "Listing has no bookable hours", Err: err})
		return
	}

	starts, ends := window.Slots()
	respondJSON(w, http.StatusOK, SlotsResponse{ListingID: listing.ID, Days: listing.Days, Starts: starts, Ends: ends})
}

// Quote validates and prices a prospective booking without making it.
func (h *ListingHandler) Quote(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	var payload QuotePayload
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, r, err)
		return
	}

	quote, err := h.bookings.Quote(r.Context(), id, booking.Request{
		Date:  payload.BookingDate,
		Start: payload.StartTime,
		End:   payload.EndTime,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, quote)
}

// Create handles the request to create a new listing for the caller.
func (h *ListingHandler) Create(w http.ResponseWriter, r *http.Request) {
	owner, err := currentUser(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var in models.ListingInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, r, err)
		return
	}

	listing, err := h.service.CreateListing(r.Context(), owner, in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Listing created.",
		"listing": listing,
	})
}

// Update handles a partial update of one of the caller's listings.
func (h *ListingHandler) Update(w http.ResponseWriter, r *http.Request) {
	owner, err := currentUser(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	var patch models.ListingPatch
	if err := decodeJSON(r, &patch); err != nil {
		respondError(w, r, err)
		return
	}

	listing, err := h.service.UpdateListing(r.Context(), id, owner, patch)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Listing updated successfully",
		"listing": listing,
	})
}

// Delete handles removing one of the caller's listings.
func (h *ListingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	owner, err := currentUser(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	listing, err := h.service.DeleteListing(r.Context(), id, owner)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Listing deleted.",
		"listing": listing,
	})
}

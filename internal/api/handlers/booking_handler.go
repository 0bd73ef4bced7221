package handlers

import (
	"net/http"

	"github.com/hawkpark/hawkpark-be/internal/models"
	"github.com/hawkpark/hawkpark-be/internal/services"
)

// BookingHandler handles HTTP requests related to bookings.
type BookingHandler struct {
	service services.BookingServiceProvider
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(service services.BookingServiceProvider) *BookingHandler {
	return &BookingHandler{service: service}
}

// StatusPayload carries a booking status change.
type StatusPayload struct {
	Status string `json:"status"`
}

// Create books a listing for the caller.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	renter, err := currentUser(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req models.BookingRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	created, err := h.service.CreateBooking(r.Context(), renter, req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Booking created successfully",
		"booking": created,
	})
}

// ListRenter returns the bookings the caller made.
func (h *BookingHandler) ListRenter(w http.ResponseWriter, r *http.Request) {
	renter, err := currentUser(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	bookings, err := h.service.ListForRenter(r.Context(), renter.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"bookings": bookings})
}

// ListOwner returns the bookings made on the caller's listings.
func (h *BookingHandler) ListOwner(w http.ResponseWriter, r *http.Request) {
	owner, err := currentUser(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	bookings, err := h.service.ListForOwner(r.Context(), owner.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"bookings": bookings})
}

// Delete cancels one of the caller's bookings by removing it.
func (h *BookingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	renter, err := currentUser(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	deleted, err := h.service.DeleteBooking(r.Context(), id, renter)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Booking deleted successfully",
		"booking": deleted,
	})
}

// UpdateStatus changes a booking's status on behalf of its renter or owner.
func (h *BookingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, err := currentUser(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	var payload StatusPayload
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, r, err)
		return
	}

	updated, err := h.service.UpdateStatus(r.Context(), id, actor, payload.Status)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"booking": updated})
}

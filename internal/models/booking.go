package models

import "time"

// Booking statuses.
const (
	BookingConfirmed = "confirmed"
	BookingCompleted = "completed"
	BookingCancelled = "cancelled"
)

// ValidBookingStatus reports whether s is a known status.
func ValidBookingStatus(s string) bool {
	switch s {
	case BookingConfirmed, BookingCompleted, BookingCancelled:
		return true
	}
	return false
}

// Booking is a reservation of one listing for one date and hour range.
type Booking struct {
	ID          int64     `json:"id" db:"id"`
	ListingID   int64     `json:"listing_id" db:"listing_id"`
	RenterID    int64     `json:"renter_id" db:"renter_id"`
	RenterEmail string    `json:"renter_email" db:"renter_email"`
	OwnerID     int64     `json:"owner_id" db:"owner_id"`
	OwnerEmail  string    `json:"owner_email" db:"owner_email"`
	BookingDate string    `json:"booking_date" db:"booking_date"` // YYYY-MM-DD
	StartTime   string    `json:"start_time" db:"start_time"`     // HH:MM
	EndTime     string    `json:"end_time" db:"end_time"`
	TotalPrice  Money     `json:"total_price" db:"total_price_cents"`
	Status      string    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// BookingDetail is a booking joined with the listing fields shown in booking lists.
type BookingDetail struct {
	Booking
	Address       string  `json:"address" db:"address"`
	ParkingNumber *string `json:"parking_number,omitempty" db:"parking_number"`
	VehicleSize   string  `json:"vehicle_size" db:"vehicle_size"`
	IndoorOutdoor string  `json:"indoor_outdoor" db:"indoor_outdoor"`
}

// BookingRequest is the caller-supplied part of a booking.
type BookingRequest struct {
	ListingID   int64  `json:"listing_id"`
	BookingDate string `json:"booking_date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	// TotalPrice is the client's own computation. The server recomputes it.
	TotalPrice *Money `json:"total_price,omitempty"`
}

package models

import "time"

// Vehicle size categories a spot can fit.
const (
	VehicleSmall  = "Small"
	VehicleMedium = "Medium"
	VehicleLarge  = "Large"
	VehicleAny    = "Any"
)

// Placement categories.
const (
	PlacementIndoor  = "Indoor"
	PlacementOutdoor = "Outdoor"
)

// ValidVehicleSize reports whether v is a known vehicle size.
func ValidVehicleSize(v string) bool {
	switch v {
	case VehicleSmall, VehicleMedium, VehicleLarge, VehicleAny:
		return true
	}
	return false
}

// ValidPlacement reports whether v is Indoor or Outdoor.
func ValidPlacement(v string) bool {
	return v == PlacementIndoor || v == PlacementOutdoor
}

// Coordinates is a geocoded position for a listing's address.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Listing represents a parking spot offered by its owner.
type Listing struct {
	ID               int64        `json:"id" db:"id"`
	OwnerID          int64        `json:"owner_id" db:"owner_id"`
	OwnerEmail       string       `json:"owner_email" db:"owner_email"` // display cache of the owner's email
	Address          string       `json:"address" db:"address"`
	ParkingNumber    *string      `json:"parking_number,omitempty" db:"parking_number"`
	VehicleSize      string       `json:"vehicle_size" db:"vehicle_size"`
	IndoorOutdoor    string       `json:"indoor_outdoor" db:"indoor_outdoor"`
	AvailabilityFrom string       `json:"availability_from" db:"availability_from"`
	AvailabilityTo   string       `json:"availability_to" db:"availability_to"`
	Days             DaySet       `json:"days" db:"days"`
	Price            Money        `json:"price" db:"price_cents"`
	Coordinates      *Coordinates `json:"coordinates,omitempty" db:"-"`
}

// ListingInput carries the fields supplied when creating a listing.
type ListingInput struct {
	Address          string  `json:"address"`
	ParkingNumber    *string `json:"parking_number"`
	VehicleSize      string  `json:"vehicle_size"`
	IndoorOutdoor    string  `json:"indoor_outdoor"`
	AvailabilityFrom string  `json:"availability_from"`
	AvailabilityTo   string  `json:"availability_to"`
	Days             DaySet  `json:"days"`
	Price            *Money  `json:"price"`
}

// ListingPatch carries a partial update. Nil fields are left untouched.
type ListingPatch struct {
	Address          *string `json:"address"`
	ParkingNumber    *string `json:"parking_number"`
	VehicleSize      *string `json:"vehicle_size"`
	IndoorOutdoor    *string `json:"indoor_outdoor"`
	AvailabilityFrom *string `json:"availability_from"`
	AvailabilityTo   *string `json:"availability_to"`
	Days             *DaySet `json:"days"`
	Price            *Money  `json:"price"`
}

// Empty reports whether the patch supplies none of the recognized fields.
func (p ListingPatch) Empty() bool {
	return p.Address == nil && p.ParkingNumber == nil && p.VehicleSize == nil &&
		p.IndoorOutdoor == nil && p.AvailabilityFrom == nil && p.AvailabilityTo == nil &&
		p.Days == nil && p.Price == nil
}

// ListingFilter narrows the public listing browse.
type ListingFilter struct {
	Address       string
	VehicleSize   string
	IndoorOutdoor string
	Day           *time.Weekday
	MaxPrice      *Money
}

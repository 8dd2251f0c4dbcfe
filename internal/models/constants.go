package models

import "strings"

const (
	StatusPending   = "pending"
	StatusAccepted  = "accepted"
	StatusDeclined  = "declined"
	StatusCompleted = "completed"
)

const (
	ProfessionCarpenter   = "Carpenter"
	ProfessionPlumber     = "Plumber"
	ProfessionElectrician = "Electrician"
)

const (
	AvailabilityAvailable   = "available"
	AvailabilityUnavailable = "unavailable"
)

const (
	UrgencyStandard  = "standard"
	UrgencyUrgent    = "urgent"
	UrgencyEmergency = "emergency"
)

const (
	EventNewBooking          = "new_booking"
	EventBookingStatusUpdate = "booking_status_update"
	EventBookingResponse     = "booking_response"
)

// Collection names of the shared store.
const (
	CollectionProfessionals = "professionals"
	CollectionBookings      = "bookings"
	CollectionSyncLog       = "sync_log"
	CollectionCursors       = "cursors"
)

const (
	// MaxRating верхняя граница рейтинга специалиста
	MaxRating = 5.0

	// DefaultLatitude/DefaultLongitude координаты по умолчанию (Бангалор)
	DefaultLatitude  = 12.9716
	DefaultLongitude = 77.5946
)

// transitions lists every legal status edge. Terminal statuses have no entry.
var transitions = map[string][]string{
	StatusPending:  {StatusAccepted, StatusDeclined},
	StatusAccepted: {StatusCompleted},
}

// CanTransition reports whether a booking may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func IsTerminalStatus(status string) bool {
	return status == StatusDeclined || status == StatusCompleted
}

func IsValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusAccepted, StatusDeclined, StatusCompleted:
		return true
	}
	return false
}

// NormalizeProfession maps a case-insensitive profession name onto its
// canonical spelling. The second result is false for unknown professions.
func NormalizeProfession(raw string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "carpenter":
		return ProfessionCarpenter, true
	case "plumber":
		return ProfessionPlumber, true
	case "electrician":
		return ProfessionElectrician, true
	}
	return "", false
}

func IsStatusEvent(eventType string) bool {
	return eventType == EventBookingStatusUpdate || eventType == EventBookingResponse
}

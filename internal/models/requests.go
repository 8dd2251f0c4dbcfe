package models

// CreateBookingRequest is what a customer submits to book a professional.
type CreateBookingRequest struct {
	CustomerID     string `json:"customerId"`
	CustomerName   string `json:"customerName"`
	ProfessionalID string `json:"professionalId"`
	BookingDetails
}

// StatusChangeRequest is a professional's answer to a booking.
type StatusChangeRequest struct {
	Status         string `json:"status"`
	ProfessionalID string `json:"professionalId,omitempty"`
}

// RankedProfessional is a matching result with its distance from the search origin.
type RankedProfessional struct {
	Professional
	DistanceKm float64 `json:"distanceKm"`
}

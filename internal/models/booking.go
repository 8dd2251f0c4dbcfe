package models

import "time"

// BookingDetails carries the caller-supplied part of a booking request.
type BookingDetails struct {
	Service          string      `json:"service" yaml:"service"`
	Description      string      `json:"description" yaml:"description"`
	Address          string      `json:"address" yaml:"address"`
	PreferredDate    string      `json:"preferredDate" yaml:"preferred_date"`
	PreferredTime    string      `json:"preferredTime" yaml:"preferred_time"`
	Urgency          string      `json:"urgency,omitempty" yaml:"urgency"`
	CustomerLocation *Coordinate `json:"customerLocation,omitempty" yaml:"customer_location"`
}

type Booking struct {
	ID             string `json:"id"`
	CustomerID     string `json:"customerId"`
	CustomerName   string `json:"customerName"`
	ProfessionalID string `json:"professionalId"`
	BookingDetails
	Status    string    `json:"status"` // pending, accepted, declined, completed
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsTerminal reports whether no further transition is defined for the booking.
func (b *Booking) IsTerminal() bool {
	return IsTerminalStatus(b.Status)
}

// Touch moves UpdatedAt forward, never backwards and never before CreatedAt.
func (b *Booking) Touch(now time.Time) {
	if now.Before(b.CreatedAt) {
		now = b.CreatedAt
	}
	if now.After(b.UpdatedAt) {
		b.UpdatedAt = now
	}
}

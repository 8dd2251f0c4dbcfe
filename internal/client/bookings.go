package client

import (
	"context"
	"net/http"
	"net/url"

	"fixora/internal/domain"
	"fixora/internal/models"
)

var _ domain.BookingLifecycle = (*Bookings)(nil)

// Bookings is the remote BookingLifecycle. A nil booking with a nil error
// means no data was available, not that the booking is absent.
type Bookings struct {
	c *Client
}

func (b *Bookings) Create(ctx context.Context, req models.CreateBookingRequest) (*models.Booking, error) {
	var out models.Booking
	if err := b.c.do(ctx, http.MethodPost, "/api/bookings", req, &out); err != nil {
		return nil, b.c.normalize("bookings.create", err)
	}
	return &out, nil
}

func (b *Bookings) Get(ctx context.Context, id string) (*models.Booking, error) {
	var out models.Booking
	if err := b.c.get(ctx, "/api/bookings/"+url.PathEscape(id), &out); err != nil {
		return nil, b.c.normalize("bookings.get", err)
	}
	return &out, nil
}

func (b *Bookings) ListForCustomer(ctx context.Context, customerID string) []models.Booking {
	return b.list(ctx, "bookings.customer", "/api/bookings/customer/"+url.PathEscape(customerID))
}

func (b *Bookings) ListForProfessional(ctx context.Context, professionalID string) []models.Booking {
	return b.list(ctx, "bookings.professional", "/api/bookings/professional/"+url.PathEscape(professionalID))
}

func (b *Bookings) list(ctx context.Context, op, path string) []models.Booking {
	var out []models.Booking
	if err := b.c.get(ctx, path, &out); err != nil {
		b.c.logger.Warn().Err(err).Str("op", op).Msg("Listing bookings failed")
		return []models.Booking{}
	}
	if out == nil {
		out = []models.Booking{}
	}
	return out
}

func (b *Bookings) Respond(ctx context.Context, bookingID, professionalID, status string) (*models.Booking, error) {
	body := models.StatusChangeRequest{Status: status, ProfessionalID: professionalID}
	var out models.Booking
	if err := b.c.do(ctx, http.MethodPut, "/api/bookings/"+url.PathEscape(bookingID), body, &out); err != nil {
		return nil, b.c.normalize("bookings.respond", err)
	}
	return &out, nil
}

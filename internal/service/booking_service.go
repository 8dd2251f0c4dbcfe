package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"fixora/internal/domain"
	"fixora/internal/events"
	"fixora/internal/metrics"
	"fixora/internal/models"
	"fixora/internal/store"

	"github.com/rs/zerolog"
)

const bookingIDPrefix = "booking_"

// errUnchanged aborts a store update when the booking already has the target status.
var errUnchanged = errors.New("status unchanged")

type BookingService struct {
	bookings *store.Collection[models.Booking]
	bus      domain.EventBus
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewBookingService(shared *store.Shared, bus domain.EventBus, logger *zerolog.Logger) *BookingService {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	serviceLogger := logger.With().Str("component", "booking_service").Logger()
	return &BookingService{
		bookings: shared.Bookings(),
		bus:      bus,
		logger:   &serviceLogger,
		now:      time.Now,
	}
}

// NewBookingID returns a booking id in the persisted "booking_<millis>_<suffix>" form.
func NewBookingID(now time.Time) string {
	return bookingIDPrefix + events.NewEventID(now)
}

func validateCreate(req models.CreateBookingRequest) error {
	verr := &ValidationError{}
	if strings.TrimSpace(req.ProfessionalID) == "" {
		verr.add("professionalId", "is required")
	}
	if strings.TrimSpace(req.Service) == "" {
		verr.add("service", "is required")
	}
	if strings.TrimSpace(req.Address) == "" {
		verr.add("address", "is required")
	}
	switch req.Urgency {
	case "", models.UrgencyStandard, models.UrgencyUrgent, models.UrgencyEmergency:
	default:
		verr.add("urgency", "must be standard, urgent or emergency")
	}
	return verr.orNil()
}

// Create stores a pending booking and announces it with a new_booking event.
// A failed announcement is logged; the booking stays stored.
func (s *BookingService) Create(ctx context.Context, req models.CreateBookingRequest) (*models.Booking, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	now := s.now()
	booking := models.Booking{
		ID:             NewBookingID(now),
		CustomerID:     req.CustomerID,
		CustomerName:   req.CustomerName,
		ProfessionalID: req.ProfessionalID,
		BookingDetails: req.BookingDetails,
		Status:         models.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if booking.Urgency == "" {
		booking.Urgency = models.UrgencyStandard
	}

	if err := s.bookings.Insert(ctx, booking.ID, booking); err != nil {
		return nil, fmt.Errorf("create booking %s: %w", booking.ID, err)
	}
	metrics.IncBookingCreated()

	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("customer_id", booking.CustomerID).
		Str("professional_id", booking.ProfessionalID).
		Msg("Booking created")

	payload := events.NewBookingPayload{
		BookingID:      booking.ID,
		Booking:        booking,
		ProfessionalID: booking.ProfessionalID,
		CustomerName:   booking.CustomerName,
	}
	if _, err := s.bus.Publish(ctx, models.EventNewBooking, payload); err != nil {
		s.logger.Error().Err(err).Str("booking_id", booking.ID).Msg("Failed to publish new booking event")
	}

	return &booking, nil
}

// ApplyStatusUpdate applies a booking_status_update or booking_response event
// to the stored booking. Other event types are ignored. Re-applying the
// current status is a no-op so redelivered events are harmless.
func (s *BookingService) ApplyStatusUpdate(ctx context.Context, event models.SyncEvent) error {
	if !models.IsStatusEvent(event.Type) {
		return nil
	}

	var payload events.StatusUpdatePayload
	if err := event.DecodePayload(&payload); err != nil {
		metrics.IncStatusUpdate("error")
		return fmt.Errorf("decode %s payload: %w", event.Type, err)
	}
	if !models.IsValidStatus(payload.Status) {
		metrics.IncStatusUpdate("error")
		verr := &ValidationError{}
		verr.add("status", fmt.Sprintf("unknown status %q", payload.Status))
		return verr
	}

	_, err := s.setStatus(ctx, payload.BookingID, "", payload.Status)
	switch {
	case err == nil:
		metrics.IncStatusUpdate("applied")
		return nil
	case errors.Is(err, errUnchanged):
		metrics.IncStatusUpdate("duplicate")
		return nil
	case errors.Is(err, ErrNotFound):
		metrics.IncStatusUpdate("not_found")
		return fmt.Errorf("booking %s: %w", payload.BookingID, ErrNotFound)
	default:
		var transitionErr *InvalidTransitionError
		if errors.As(err, &transitionErr) {
			metrics.IncStatusUpdate("invalid_transition")
		} else {
			metrics.IncStatusUpdate("error")
		}
		return err
	}
}

// setStatus moves a booking to status under optimistic concurrency.
// professionalID, when set, must own the booking.
func (s *BookingService) setStatus(ctx context.Context, bookingID, professionalID, status string) (models.Booking, error) {
	now := s.now()
	return s.bookings.Update(ctx, bookingID, func(b *models.Booking) error {
		if professionalID != "" && b.ProfessionalID != professionalID {
			return ErrForbidden
		}
		if b.Status == status {
			return errUnchanged
		}
		if !models.CanTransition(b.Status, status) {
			return &InvalidTransitionError{BookingID: b.ID, From: b.Status, To: status}
		}
		b.Status = status
		b.Touch(now)
		return nil
	})
}

// Listen applies status events delivered by bus until unsubscribed. Events
// for unknown bookings or illegal transitions are logged and dropped.
func (s *BookingService) Listen(bus domain.EventBus) func() {
	return bus.Subscribe(func(ctx context.Context, event models.SyncEvent) {
		if !models.IsStatusEvent(event.Type) {
			return
		}
		if err := s.ApplyStatusUpdate(ctx, event); err != nil {
			s.logger.Warn().Err(err).
				Str("event_id", event.ID).
				Str("event_type", event.Type).
				Msg("Dropped status update")
		}
	})
}

// Respond records a professional's decision on a booking and publishes it as
// booking_status_update. Repeating the current status returns the booking
// without publishing again.
func (s *BookingService) Respond(ctx context.Context, bookingID, professionalID, status string) (*models.Booking, error) {
	switch status {
	case models.StatusAccepted, models.StatusDeclined, models.StatusCompleted:
	default:
		verr := &ValidationError{}
		verr.add("status", "must be accepted, declined or completed")
		return nil, verr
	}

	booking, err := s.setStatus(ctx, bookingID, professionalID, status)
	if errors.Is(err, errUnchanged) {
		return s.Get(ctx, bookingID)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("professional_id", booking.ProfessionalID).
		Str("status", status).
		Msg("Booking status changed")

	payload := events.StatusUpdatePayload{
		BookingID:      booking.ID,
		Status:         status,
		ProfessionalID: booking.ProfessionalID,
	}
	if _, err := s.bus.Publish(ctx, models.EventBookingStatusUpdate, payload); err != nil {
		s.logger.Error().Err(err).Str("booking_id", booking.ID).Msg("Failed to publish status update")
	}
	return &booking, nil
}

func (s *BookingService) Get(ctx context.Context, id string) (*models.Booking, error) {
	booking, err := s.bookings.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// ListForCustomer returns the customer's bookings, newest first.
func (s *BookingService) ListForCustomer(ctx context.Context, customerID string) []models.Booking {
	return s.list(ctx, func(b models.Booking) bool { return b.CustomerID == customerID })
}

// ListForProfessional returns bookings assigned to the professional, newest first.
func (s *BookingService) ListForProfessional(ctx context.Context, professionalID string) []models.Booking {
	return s.list(ctx, func(b models.Booking) bool { return b.ProfessionalID == professionalID })
}

func (s *BookingService) list(ctx context.Context, keep func(models.Booking) bool) []models.Booking {
	out := []models.Booking{}
	for _, b := range s.bookings.ReadAll(ctx) {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

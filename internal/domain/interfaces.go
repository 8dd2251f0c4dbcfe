package domain

import (
	"context"

	"fixora/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BookingLifecycle is the booking surface shared by the in-process service
// and the REST client.
type BookingLifecycle interface {
	Create(ctx context.Context, req models.CreateBookingRequest) (*models.Booking, error)
	Get(ctx context.Context, id string) (*models.Booking, error)
	ListForCustomer(ctx context.Context, customerID string) []models.Booking
	ListForProfessional(ctx context.Context, professionalID string) []models.Booking
	Respond(ctx context.Context, bookingID, professionalID, status string) (*models.Booking, error)
}

// Matcher is the professional discovery surface.
type Matcher interface {
	FindProfessionals(ctx context.Context, profession string, origin models.Coordinate) []models.RankedProfessional
	Get(ctx context.Context, id string) (*models.Professional, error)
	Upsert(ctx context.Context, professional models.Professional) (*models.Professional, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload interface{}) (string, error)
}

// EventBus is satisfied by every sync bus transport.
type EventBus interface {
	EventPublisher
	Subscribe(handler func(ctx context.Context, event models.SyncEvent)) (unsubscribe func())
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}

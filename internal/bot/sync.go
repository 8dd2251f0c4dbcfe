package bot

import (
	"context"

	"fixora/internal/domain"
	"fixora/internal/events"
	"fixora/internal/models"
)

// Listen forwards new_booking events from bus to the professional's chat.
func (b *Bot) Listen(bus domain.EventBus) func() {
	return bus.Subscribe(func(ctx context.Context, event models.SyncEvent) {
		if event.Type != models.EventNewBooking {
			return
		}
		var payload events.NewBookingPayload
		if err := event.DecodePayload(&payload); err != nil {
			b.logger.Warn().Err(err).Str("event_id", event.ID).Msg("Malformed new_booking event")
			return
		}
		b.notifyNewBooking(ctx, payload)
	})
}

func (b *Bot) notifyNewBooking(ctx context.Context, payload events.NewBookingPayload) {
	result := "sent"
	defer func() {
		if b.metrics != nil {
			b.metrics.NotificationsSent.WithLabelValues(result).Inc()
		}
	}()

	booking := payload.Booking
	if booking.ID == "" {
		booking.ID = payload.BookingID
	}
	if booking.ProfessionalID == "" {
		booking.ProfessionalID = payload.ProfessionalID
	}

	p, err := b.matcher.Get(ctx, booking.ProfessionalID)
	if err != nil || p == nil || p.TelegramChatID == 0 {
		result = "skipped"
		b.logger.Debug().Err(err).
			Str("booking_id", booking.ID).
			Str("professional_id", booking.ProfessionalID).
			Msg("No chat linked for professional")
		return
	}

	// Events may be redelivered; announce each booking once.
	if _, seen := b.notified.LoadOrStore(booking.ID, struct{}{}); seen {
		result = "duplicate"
		b.logger.Debug().Str("booking_id", booking.ID).Msg("Booking already announced")
		return
	}

	if err := b.tg.sendMarkdown(p.TelegramChatID, newBookingText(booking), keyboardFor(booking)); err != nil {
		result = "error"
		b.notified.Delete(booking.ID)
		b.logger.Error().Err(err).Str("booking_id", booking.ID).Msg("Failed to notify professional")
		return
	}
	b.logger.Info().Str("booking_id", booking.ID).Int64("chat_id", p.TelegramChatID).Msg("Professional notified")
}

// CheckPending announces pending bookings of linked professionals that were
// not announced yet. Front-ends running against the REST backend receive no
// sync events and call it from the health poller instead.
func (b *Bot) CheckPending(ctx context.Context) int {
	sent := 0
	b.links.Range(func(key, value any) bool {
		chatID, professionalID := key.(int64), value.(string)
		for _, booking := range b.bookings.ListForProfessional(ctx, professionalID) {
			if booking.Status != models.StatusPending {
				continue
			}
			if _, seen := b.notified.LoadOrStore(booking.ID, struct{}{}); seen {
				continue
			}
			if err := b.tg.sendMarkdown(chatID, newBookingText(booking), keyboardFor(booking)); err != nil {
				b.notified.Delete(booking.ID)
				b.logger.Error().Err(err).Str("booking_id", booking.ID).Msg("Failed to notify professional")
				continue
			}
			sent++
		}
		return ctx.Err() == nil
	})
	return sent
}

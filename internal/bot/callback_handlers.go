package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

func (b *Bot) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	logger := zerolog.Ctx(ctx)

	status, bookingID, ok := parseCallbackData(callback.Data)
	if !ok || callback.Message == nil {
		b.answer(callback.ID, "")
		return
	}
	chatID := callback.Message.Chat.ID

	booking, err := b.bookings.Get(ctx, bookingID)
	if err != nil || booking == nil {
		b.answer(callback.ID, errorMessage(err))
		return
	}

	p, err := b.matcher.Get(ctx, booking.ProfessionalID)
	if err != nil || p == nil || p.TelegramChatID != chatID {
		b.answer(callback.ID, "⚠️ This booking is assigned to another professional.")
		return
	}

	updated, err := b.bookings.Respond(ctx, bookingID, p.ID, status)
	if err != nil || updated == nil {
		logger.Warn().Err(err).Str("booking_id", bookingID).Str("status", status).Msg("Booking response rejected")
		b.answer(callback.ID, errorMessage(err))
		return
	}
	if b.metrics != nil {
		b.metrics.Responses.WithLabelValues(status).Inc()
	}

	logger.Info().Str("booking_id", bookingID).Str("status", updated.Status).Msg("Booking answered from chat")
	b.answer(callback.ID, "Booking "+updated.Status)
	if err := b.tg.edit(chatID, callback.Message.MessageID, bookingText(*updated), keyboardFor(*updated)); err != nil {
		logger.Error().Err(err).Str("booking_id", bookingID).Msg("Failed to update booking message")
	}
}

func (b *Bot) answer(callbackID, text string) {
	if err := b.tg.answerCallback(callbackID, text); err != nil {
		b.logger.Debug().Err(err).Msg("Failed to answer callback")
	}
}

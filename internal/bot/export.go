package bot

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

func (b *Bot) handleExport(ctx context.Context, chatID int64, professionalID string) {
	if b.exporter == nil {
		b.reply(chatID, "Export is not available.")
		return
	}

	p, err := b.professionalFor(ctx, chatID, professionalID)
	if err != nil {
		b.replyProfileError(chatID, err)
		return
	}

	bookings := b.bookings.ListForProfessional(ctx, p.ID)
	if len(bookings) == 0 {
		b.reply(chatID, "No bookings to export yet.")
		return
	}

	path, err := b.exporter.SaveBookings(p.ID, "Bookings of "+p.Name, bookings)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("professional_id", p.ID).Msg("Export failed")
		b.reply(chatID, errorMessage(err))
		return
	}

	if err := b.tg.sendDocument(chatID, path, fmt.Sprintf("Bookings: %d", len(bookings))); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("path", path).Msg("Failed to send export")
		b.reply(chatID, errorMessage(err))
	}
}

package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fixora/internal/models"
	"fixora/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const maxListedBookings = 10

const helpText = `Fixora for professionals

/link <profile id> - receive booking requests for your profile in this chat
/bookings - your open bookings
/export - your booking history as an Excel file`

var errNotLinked = errors.New("chat is not linked to a profile")

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	arg := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		b.reply(chatID, helpText)
	case "link":
		b.handleLink(ctx, chatID, arg)
	case "bookings":
		b.handleBookings(ctx, chatID, arg)
	case "export":
		b.handleExport(ctx, chatID, arg)
	default:
		b.reply(chatID, "Unknown command.\n\n"+helpText)
	}
}

func (b *Bot) handleLink(ctx context.Context, chatID int64, professionalID string) {
	if professionalID == "" {
		b.reply(chatID, "Usage: /link <profile id>")
		return
	}

	p, err := b.matcher.Get(ctx, professionalID)
	if err != nil || p == nil {
		b.reply(chatID, "⚠️ Profile not found.")
		return
	}
	if p.TelegramChatID != 0 && p.TelegramChatID != chatID {
		b.reply(chatID, "⚠️ This profile is already linked to another chat.")
		return
	}

	if p.TelegramChatID != chatID {
		p.TelegramChatID = chatID
		if _, err := b.matcher.Upsert(ctx, *p); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("professional_id", p.ID).Msg("Failed to link profile")
			b.reply(chatID, errorMessage(err))
			return
		}
	}
	b.links.Store(chatID, p.ID)

	zerolog.Ctx(ctx).Info().Str("professional_id", p.ID).Int64("chat_id", chatID).Msg("Profile linked")
	b.reply(chatID, fmt.Sprintf("✅ Linked to %s (%s). New booking requests will arrive here.", p.Name, p.Profession))
}

// professionalFor resolves the profile a chat acts for. An explicit id must be
// linked to the chat.
func (b *Bot) professionalFor(ctx context.Context, chatID int64, professionalID string) (*models.Professional, error) {
	if professionalID == "" {
		v, ok := b.links.Load(chatID)
		if !ok {
			return nil, errNotLinked
		}
		professionalID = v.(string)
	}

	p, err := b.matcher.Get(ctx, professionalID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, service.ErrNotFound
	}
	if p.TelegramChatID != chatID {
		return nil, errNotLinked
	}
	b.links.Store(chatID, p.ID)
	return p, nil
}

func (b *Bot) replyProfileError(chatID int64, err error) {
	if errors.Is(err, errNotLinked) || errors.Is(err, service.ErrNotFound) {
		b.reply(chatID, "Link your profile first: /link <profile id>")
		return
	}
	b.reply(chatID, errorMessage(err))
}

func (b *Bot) handleBookings(ctx context.Context, chatID int64, professionalID string) {
	p, err := b.professionalFor(ctx, chatID, professionalID)
	if err != nil {
		b.replyProfileError(chatID, err)
		return
	}

	var open []models.Booking
	for _, booking := range b.bookings.ListForProfessional(ctx, p.ID) {
		if !booking.IsTerminal() {
			open = append(open, booking)
		}
	}
	if len(open) == 0 {
		b.reply(chatID, "No open bookings.")
		return
	}

	if len(open) > maxListedBookings {
		b.reply(chatID, fmt.Sprintf("Showing %d of %d open bookings.", maxListedBookings, len(open)))
		open = open[:maxListedBookings]
	}
	for _, booking := range open {
		if err := b.tg.sendMarkdown(chatID, bookingText(booking), keyboardFor(booking)); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("booking_id", booking.ID).Msg("Failed to send booking")
		}
	}
}

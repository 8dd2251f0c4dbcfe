// Package bot is the professional-side front-end. Professionals receive new
// booking requests in Telegram and answer them with inline buttons.
package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"fixora/internal/domain"
	"fixora/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BookingExporter saves a booking history workbook and returns its path.
type BookingExporter interface {
	SaveBookings(name, title string, bookings []models.Booking) (string, error)
}

type Bot struct {
	tg       messenger
	sender   domain.TelegramSender
	bookings domain.BookingLifecycle
	matcher  domain.Matcher
	exporter BookingExporter
	metrics  *Metrics
	logger   *zerolog.Logger

	// chat id -> professional id linked in this process
	links sync.Map
	// booking ids already announced
	notified sync.Map
}

func NewBot(
	sender domain.TelegramSender,
	bookings domain.BookingLifecycle,
	matcher domain.Matcher,
	exporter BookingExporter,
	metrics *Metrics,
	logger *zerolog.Logger,
) (*Bot, error) {
	if sender == nil {
		return nil, errors.New("telegram sender is required")
	}
	if bookings == nil || matcher == nil {
		return nil, errors.New("booking and matching services are required")
	}
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	botLogger := logger.With().Str("component", "bot").Logger()

	return &Bot{
		tg:       messenger{sender: sender},
		sender:   sender,
		bookings: bookings,
		matcher:  matcher,
		exporter: exporter,
		metrics:  metrics,
		logger:   &botLogger,
	}, nil
}

// Start handles updates until ctx is cancelled or the update channel closes.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.sender.GetUpdatesChan(u)

	b.logger.Info().Str("username", b.sender.GetSelf().UserName).Msg("Authorized on account")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

// Stop stops receiving Telegram updates.
func (b *Bot) Stop() {
	b.sender.StopReceivingUpdates()
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	start := time.Now()
	defer func() {
		if b.metrics != nil {
			b.metrics.UpdateProcessingTime.Observe(time.Since(start).Seconds())
		}
	}()

	updateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	l := b.logger.With().Str("request_id", uuid.New().String()).Logger()
	updateCtx = l.WithContext(updateCtx)

	b.withRecovery(func() {
		switch {
		case update.CallbackQuery != nil:
			b.handleCallbackQuery(updateCtx, update.CallbackQuery)
		case update.Message != nil && update.Message.IsCommand():
			b.handleCommand(updateCtx, update.Message)
		case update.Message != nil:
			b.reply(update.Message.Chat.ID, helpText)
		}
	})
}

func (b *Bot) reply(chatID int64, text string) {
	if err := b.tg.sendText(chatID, text); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}

package bot

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"fixora/internal/events"
	"fixora/internal/export"
	"fixora/internal/models"
	"fixora/internal/service"
	"fixora/internal/store"
	"fixora/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chatID int64 = 555

type recordingSender struct {
	mu          sync.Mutex
	updatesChan chan tgbotapi.Update
	sent        []tgbotapi.Chattable
	requests    []tgbotapi.Chattable
	stopped     bool
}

func (s *recordingSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, c)
	return tgbotapi.Message{}, nil
}

func (s *recordingSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (s *recordingSender) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return s.updatesChan
}

func (s *recordingSender) GetSelf() tgbotapi.User {
	return tgbotapi.User{UserName: "fixora_test_bot"}
}

func (s *recordingSender) StopReceivingUpdates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func (s *recordingSender) messages() []tgbotapi.MessageConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []tgbotapi.MessageConfig
	for _, c := range s.sent {
		if msg, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, msg)
		}
	}
	return out
}

func (s *recordingSender) lastText() string {
	msgs := s.messages()
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Text
}

type fixture struct {
	bot      *Bot
	sender   *recordingSender
	bookings *service.BookingService
	matcher  *service.MatchingService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.New(io.Discard)
	retry := worker.RetryPolicy{MaxRetries: 5, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	shared := store.NewShared(store.NewMemoryBackend(), retry, &logger)
	bus := events.NewLocalBus("bot-test", &logger)

	bookings := service.NewBookingService(shared, bus, &logger)
	matcher := service.NewMatchingService(shared, models.NewCoordinate(models.DefaultLatitude, models.DefaultLongitude), &logger)
	_, err := matcher.SeedDemo(context.Background())
	require.NoError(t, err)

	sender := &recordingSender{updatesChan: make(chan tgbotapi.Update, 4)}
	b, err := NewBot(sender, bookings, matcher, export.New(t.TempDir(), &logger), nil, &logger)
	require.NoError(t, err)
	t.Cleanup(b.Listen(bus))

	return &fixture{bot: b, sender: sender, bookings: bookings, matcher: matcher}
}

func commandUpdate(chat int64, text string) tgbotapi.Update {
	cmd, _, _ := strings.Cut(text, " ")
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: chat},
		Chat:      &tgbotapi.Chat{ID: chat},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func callbackUpdate(chat int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		From:    &tgbotapi.User{ID: chat},
		Message: &tgbotapi.Message{MessageID: 42, Chat: &tgbotapi.Chat{ID: chat}},
		Data:    data,
	}}
}

func (f *fixture) createBooking(t *testing.T) *models.Booking {
	t.Helper()
	booking, err := f.bookings.Create(context.Background(), models.CreateBookingRequest{
		CustomerID:     "cust-1",
		CustomerName:   "Anita",
		ProfessionalID: "plumber_demo",
		BookingDetails: models.BookingDetails{Service: "Leaking tap", Address: "12 MG Road", PreferredDate: "2024-05-01"},
	})
	require.NoError(t, err)
	return booking
}

func TestNewBot_RequiresDependencies(t *testing.T) {
	_, err := NewBot(nil, nil, nil, nil, nil, nil)
	assert.Error(t, err)

	_, err = NewBot(&recordingSender{}, nil, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestLinkAndNotify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.processUpdate(ctx, commandUpdate(chatID, "/link plumber_demo"))
	assert.Contains(t, f.sender.lastText(), "Linked to Suresh Reddy")

	p, err := f.matcher.Get(ctx, "plumber_demo")
	require.NoError(t, err)
	assert.Equal(t, chatID, p.TelegramChatID)

	booking := f.createBooking(t)

	msgs := f.sender.messages()
	require.NotEmpty(t, msgs)
	last := msgs[len(msgs)-1]
	assert.Equal(t, chatID, last.ChatID)
	assert.Contains(t, last.Text, "New booking request")
	assert.Contains(t, last.Text, "12 MG Road")

	keyboard, ok := last.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, keyboard.InlineKeyboard, 1)
	require.Len(t, keyboard.InlineKeyboard[0], 2)
	assert.Equal(t, callbackData(models.StatusAccepted, booking.ID), *keyboard.InlineKeyboard[0][0].CallbackData)
}

func TestNotify_RedeliveredEventAnnouncedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.processUpdate(ctx, commandUpdate(chatID, "/link plumber_demo"))
	booking := f.createBooking(t)
	before := len(f.sender.messages())

	payload := events.NewBookingPayload{BookingID: booking.ID, Booking: *booking, ProfessionalID: booking.ProfessionalID}
	f.bot.notifyNewBooking(ctx, payload)
	f.bot.notifyNewBooking(ctx, payload)

	assert.Len(t, f.sender.messages(), before)
	assert.Zero(t, f.bot.CheckPending(ctx))
}

func TestLink_ProfileOwnedByAnotherChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.processUpdate(ctx, commandUpdate(chatID, "/link plumber_demo"))
	f.bot.processUpdate(ctx, commandUpdate(777, "/link plumber_demo"))
	assert.Contains(t, f.sender.lastText(), "already linked")

	f.bot.processUpdate(ctx, commandUpdate(777, "/link nobody"))
	assert.Contains(t, f.sender.lastText(), "Profile not found")
}

func TestNotify_SkipsUnlinkedProfessional(t *testing.T) {
	f := newFixture(t)
	f.createBooking(t)
	assert.Empty(t, f.sender.messages())
}

func TestCallback_AcceptThenComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.bot.processUpdate(ctx, commandUpdate(chatID, "/link plumber_demo"))
	booking := f.createBooking(t)

	f.bot.processUpdate(ctx, callbackUpdate(chatID, callbackData(models.StatusAccepted, booking.ID)))

	got, err := f.bookings.Get(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, got.Status)

	f.sender.mu.Lock()
	lastSent := f.sender.sent[len(f.sender.sent)-1]
	answered := f.sender.requests[len(f.sender.requests)-1]
	f.sender.mu.Unlock()

	edit, ok := lastSent.(tgbotapi.EditMessageTextConfig)
	require.True(t, ok)
	assert.Equal(t, 42, edit.MessageID)
	require.NotNil(t, edit.ReplyMarkup)
	assert.Equal(t, callbackData(models.StatusCompleted, booking.ID), *edit.ReplyMarkup.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "Booking accepted", answered.(tgbotapi.CallbackConfig).Text)

	f.bot.processUpdate(ctx, callbackUpdate(chatID, callbackData(models.StatusCompleted, booking.ID)))
	got, err = f.bookings.Get(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
}

func TestCallback_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.bot.processUpdate(ctx, commandUpdate(chatID, "/link plumber_demo"))
	booking := f.createBooking(t)

	lastAnswer := func() string {
		f.sender.mu.Lock()
		defer f.sender.mu.Unlock()
		return f.sender.requests[len(f.sender.requests)-1].(tgbotapi.CallbackConfig).Text
	}

	t.Run("OtherChat", func(t *testing.T) {
		f.bot.processUpdate(ctx, callbackUpdate(777, callbackData(models.StatusAccepted, booking.ID)))
		assert.Contains(t, lastAnswer(), "another professional")
	})

	t.Run("UnknownBooking", func(t *testing.T) {
		f.bot.processUpdate(ctx, callbackUpdate(chatID, callbackData(models.StatusAccepted, "booking_missing")))
		assert.Contains(t, lastAnswer(), "not found")
	})

	t.Run("IllegalTransition", func(t *testing.T) {
		f.bot.processUpdate(ctx, callbackUpdate(chatID, callbackData(models.StatusCompleted, booking.ID)))
		assert.Contains(t, lastAnswer(), "already pending")
	})

	got, err := f.bookings.Get(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
}

func TestBookingsCommand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.processUpdate(ctx, commandUpdate(chatID, "/bookings"))
	assert.Contains(t, f.sender.lastText(), "Link your profile first")

	f.bot.processUpdate(ctx, commandUpdate(chatID, "/link plumber_demo"))
	f.bot.processUpdate(ctx, commandUpdate(chatID, "/bookings"))
	assert.Equal(t, "No open bookings.", f.sender.lastText())

	f.createBooking(t)
	f.bot.processUpdate(ctx, commandUpdate(chatID, "/bookings"))
	assert.Contains(t, f.sender.lastText(), "Leaking tap")

	f.bot.processUpdate(ctx, commandUpdate(777, "/bookings plumber_demo"))
	assert.Contains(t, f.sender.lastText(), "Link your profile first")
}

func TestExportCommand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.bot.processUpdate(ctx, commandUpdate(chatID, "/link plumber_demo"))
	f.createBooking(t)

	f.bot.processUpdate(ctx, commandUpdate(chatID, "/export"))

	f.sender.mu.Lock()
	lastSent := f.sender.sent[len(f.sender.sent)-1]
	f.sender.mu.Unlock()

	doc, ok := lastSent.(tgbotapi.DocumentConfig)
	require.True(t, ok)
	assert.Equal(t, chatID, doc.ChatID)
	assert.Equal(t, "Bookings: 1", doc.Caption)

	path, ok := doc.File.(tgbotapi.FilePath)
	require.True(t, ok)
	_, err := os.Stat(string(path))
	assert.NoError(t, err)
}

func TestStart_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.bot.Start(ctx)
		close(done)
	}()

	f.sender.updatesChan <- commandUpdate(chatID, "/help")
	require.Eventually(t, func() bool {
		return strings.Contains(f.sender.lastText(), "/link")
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("bot did not stop")
	}

	f.bot.Stop()
	assert.True(t, f.sender.stopped)
}

func TestWithRecovery(t *testing.T) {
	f := newFixture(t)
	assert.NotPanics(t, func() {
		f.bot.withRecovery(func() { panic("boom") })
	})
}

func TestParseCallbackData(t *testing.T) {
	tests := []struct {
		data      string
		status    string
		bookingID string
		ok        bool
	}{
		{callbackData(models.StatusAccepted, "booking_1_abc"), models.StatusAccepted, "booking_1_abc", true},
		{"resp:declined:", "", "", false},
		{"resp:accepted", "", "", false},
		{"back_to_main", "", "", false},
	}
	for _, tt := range tests {
		status, id, ok := parseCallbackData(tt.data)
		assert.Equal(t, tt.ok, ok, tt.data)
		assert.Equal(t, tt.status, status, tt.data)
		assert.Equal(t, tt.bookingID, id, tt.data)
	}
}

func TestBookingText_EscapesMarkdown(t *testing.T) {
	text := bookingText(models.Booking{
		Status:         models.StatusPending,
		CustomerName:   "a_b",
		BookingDetails: models.BookingDetails{Service: "*fix*", Address: "x", Urgency: models.UrgencyUrgent},
	})
	assert.Contains(t, text, `a\_b`)
	assert.Contains(t, text, `\*fix\*`)
	assert.Contains(t, text, "urgent")
}

func TestCheckPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	booking := f.createBooking(t)
	assert.Zero(t, f.bot.CheckPending(ctx), "nobody linked yet")

	f.bot.processUpdate(ctx, commandUpdate(chatID, "/link plumber_demo"))
	assert.Equal(t, 1, f.bot.CheckPending(ctx))
	assert.Contains(t, f.sender.lastText(), "New booking request")

	assert.Zero(t, f.bot.CheckPending(ctx), "already announced")

	_, err := f.bookings.Respond(ctx, booking.ID, "plumber_demo", models.StatusDeclined)
	require.NoError(t, err)
	f.createBooking(t)
	assert.Zero(t, f.bot.CheckPending(ctx), "announced through the bus")
}

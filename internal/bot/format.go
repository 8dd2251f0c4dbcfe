package bot

import (
	"fmt"
	"strings"

	"fixora/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const callbackPrefix = "resp:"

var statusIcons = map[string]string{
	models.StatusPending:   "🕒",
	models.StatusAccepted:  "✅",
	models.StatusDeclined:  "❌",
	models.StatusCompleted: "🏁",
}

func escape(s string) string {
	return tgbotapi.EscapeText(parseModeMarkdown, s)
}

func bookingText(b models.Booking) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s *%s* for %s\n", statusIcons[b.Status], escape(b.Service), escape(b.CustomerName))
	fmt.Fprintf(&sb, "📍 %s\n", escape(b.Address))
	when := strings.TrimSpace(b.PreferredDate + " " + b.PreferredTime)
	if when != "" {
		fmt.Fprintf(&sb, "📅 %s\n", escape(when))
	}
	if b.Urgency != "" && b.Urgency != models.UrgencyStandard {
		fmt.Fprintf(&sb, "⚡ %s\n", escape(b.Urgency))
	}
	if b.Description != "" {
		fmt.Fprintf(&sb, "\n%s\n", escape(b.Description))
	}
	fmt.Fprintf(&sb, "\nStatus: %s", b.Status)
	return sb.String()
}

func newBookingText(b models.Booking) string {
	return "🔔 New booking request\n\n" + bookingText(b)
}

func callbackData(status, bookingID string) string {
	return callbackPrefix + status + ":" + bookingID
}

// parseCallbackData reverses callbackData. Booking ids never contain ':'.
func parseCallbackData(data string) (status, bookingID string, ok bool) {
	rest, found := strings.CutPrefix(data, callbackPrefix)
	if !found {
		return "", "", false
	}
	status, bookingID, found = strings.Cut(rest, ":")
	if !found || bookingID == "" {
		return "", "", false
	}
	return status, bookingID, true
}

// keyboardFor offers the transitions still open for a booking.
func keyboardFor(b models.Booking) *tgbotapi.InlineKeyboardMarkup {
	var row []tgbotapi.InlineKeyboardButton
	switch b.Status {
	case models.StatusPending:
		row = tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Accept", callbackData(models.StatusAccepted, b.ID)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Decline", callbackData(models.StatusDeclined, b.ID)),
		)
	case models.StatusAccepted:
		row = tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🏁 Mark completed", callbackData(models.StatusCompleted, b.ID)),
		)
	default:
		return nil
	}
	keyboard := tgbotapi.NewInlineKeyboardMarkup(row)
	return &keyboard
}

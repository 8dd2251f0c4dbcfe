package bot

import (
	"fixora/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const parseModeMarkdown = "Markdown"

// messenger wraps the sender with the few message shapes the bot uses.
type messenger struct {
	sender domain.TelegramSender
}

func (m messenger) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := m.sender.Send(msg)
	return err
}

func (m messenger) sendMarkdown(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = parseModeMarkdown
	if keyboard != nil {
		msg.ReplyMarkup = *keyboard
	}
	_, err := m.sender.Send(msg)
	return err
}

func (m messenger) edit(chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error {
	if keyboard != nil {
		msg := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, *keyboard)
		msg.ParseMode = parseModeMarkdown
		_, err := m.sender.Send(msg)
		return err
	}
	msg := tgbotapi.NewEditMessageText(chatID, messageID, text)
	msg.ParseMode = parseModeMarkdown
	_, err := m.sender.Send(msg)
	return err
}

func (m messenger) answerCallback(callbackID, text string) error {
	_, err := m.sender.Request(tgbotapi.NewCallback(callbackID, text))
	return err
}

func (m messenger) sendDocument(chatID int64, path, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
	doc.Caption = caption
	_, err := m.sender.Send(doc)
	return err
}

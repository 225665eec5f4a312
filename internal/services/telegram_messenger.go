package services

import (
	"context"

	"github.com/smarttransit/ticket-bot/internal/models"
	"github.com/smarttransit/ticket-bot/pkg/telegram"
)

// short labels (quantities) are packed several to a row
const (
	shortLabelLength  = 3
	shortLabelsPerRow = 5
)

type telegramAPI interface {
	SendMessage(ctx context.Context, req telegram.SendMessageRequest) error
	SendDocument(ctx context.Context, req telegram.SendDocumentRequest) error
}

// TelegramMessenger implements Messenger over the Bot API
type TelegramMessenger struct {
	api telegramAPI
}

// NewTelegramMessenger creates a new TelegramMessenger
func NewTelegramMessenger(api telegramAPI) *TelegramMessenger {
	return &TelegramMessenger{api: api}
}

// SendMessage sends text with the choices as an inline keyboard
func (m *TelegramMessenger) SendMessage(ctx context.Context, chatID int64, text string, choices ...models.Choice) error {
	return m.api.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:      chatID,
		Text:        text,
		ReplyMarkup: keyboard(choices),
	})
}

// SendDocument forwards a stored file
func (m *TelegramMessenger) SendDocument(ctx context.Context, chatID int64, fileID, caption string) error {
	return m.api.SendDocument(ctx, telegram.SendDocumentRequest{
		ChatID:   chatID,
		Document: fileID,
		Caption:  caption,
	})
}

func keyboard(choices []models.Choice) *telegram.InlineKeyboardMarkup {
	if len(choices) == 0 {
		return nil
	}

	perRow := shortLabelsPerRow
	for _, c := range choices {
		if len([]rune(c.Label)) > shortLabelLength {
			perRow = 1
			break
		}
	}

	var rows [][]telegram.InlineKeyboardButton
	for i := 0; i < len(choices); i += perRow {
		end := i + perRow
		if end > len(choices) {
			end = len(choices)
		}
		row := make([]telegram.InlineKeyboardButton, 0, end-i)
		for _, c := range choices[i:end] {
			button := telegram.InlineKeyboardButton{Text: c.Label}
			if c.URL != "" {
				button.URL = c.URL
			} else {
				button.CallbackData = c.Data
			}
			row = append(row, button)
		}
		rows = append(rows, row)
	}
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

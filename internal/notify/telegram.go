// Package notify alerts operators about failed ingestion cycles.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ingestor/internal/ingest"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts a report to one chat whenever a cycle has failed sources.
type Telegram struct {
	api    telegramAPI
	chatID int64
	log    *slog.Logger
}

// New creates a Telegram reporter for the given bot token and chat.
func New(token string, chatID int64, log *slog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return newWithAPI(api, chatID, log), nil
}

func newWithAPI(api telegramAPI, chatID int64, log *slog.Logger) *Telegram {
	return &Telegram{api: api, chatID: chatID, log: log}
}

// ReportCycle sends FormatCycleReport(res) when at least one source failed.
// Delivery errors are logged, never returned.
func (t *Telegram) ReportCycle(_ context.Context, res *ingest.Result) {
	if res == nil || len(res.Failed()) == 0 {
		return
	}

	msg := tgbotapi.NewMessage(t.chatID, FormatCycleReport(res))
	msg.DisableWebPagePreview = true
	if _, err := t.api.Send(msg); err != nil {
		t.log.Error("send cycle report", "chat_id", t.chatID, "error", err)
	}
}

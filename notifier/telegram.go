package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"vsix-downloader/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxListedFailures caps the failed items named in one message
const maxListedFailures = 20

// Telegram sends a run summary to a chat
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram authorizes the bot token and returns a Telegram sink
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram token is empty")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("telegram chat ID is not set")
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Telegram{bot: bot, chatID: chatID}, nil
}

// Name implements the report sink interface
func (t *Telegram) Name() string { return "telegram" }

// Report implements the report sink interface
func (t *Telegram) Report(_ context.Context, res *models.BatchResult) error {
	if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, formatSummary(res))); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func formatSummary(res *models.BatchResult) string {
	var sb strings.Builder

	icon := "✅"
	if res.Failed > 0 {
		icon = "⚠️"
	}
	fmt.Fprintf(&sb, "%s VSIX download finished\n", icon)
	fmt.Fprintf(&sb, "Success: %d/%d, Failed: %d/%d\n", res.Succeeded, res.Total, res.Failed, res.Total)
	if !res.FinishedAt.IsZero() && !res.StartedAt.IsZero() {
		fmt.Fprintf(&sb, "Took: %s\n", res.FinishedAt.Sub(res.StartedAt).Round(time.Second))
	}

	failed := res.FailedItems()
	if len(failed) == 0 {
		return sb.String()
	}

	sb.WriteString("\nFailed:\n")
	for i, item := range failed {
		if i == maxListedFailures {
			fmt.Fprintf(&sb, "... and %d more\n", len(failed)-maxListedFailures)
			break
		}
		fmt.Fprintf(&sb, "• %s\n", item)
	}
	return sb.String()
}

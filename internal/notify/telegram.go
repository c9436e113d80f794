package notify

import (
	"fmt"

	"github.com/ReplAI-Neo/ReplAI/internal/config"
	"github.com/ReplAI-Neo/ReplAI/internal/scheduler"
	"github.com/ReplAI-Neo/ReplAI/pkg/markdown"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Notifier posts operational digests to an operator's Telegram chat. A nil
// *Notifier is valid and does nothing, so callers never need to branch on
// whether notifications are configured.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *logrus.Logger
}

// NewNotifier creates the operator channel, or nil when disabled.
func NewNotifier(cfg *config.NotifyConfig, logger *logrus.Logger) (*Notifier, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create operator bot: %w", err)
	}

	logger.WithField("username", bot.Self.UserName).Info("Operator notifications enabled")
	return &Notifier{
		bot:    bot,
		chatID: cfg.ChatID,
		logger: logger,
	}, nil
}

// Startup announces that the agent is live.
func (n *Notifier) Startup() {
	n.send("**ReplAI started**, polling for unread chats.")
}

// Shutdown posts the final state summary.
func (n *Notifier) Shutdown(summary scheduler.Summary) {
	n.send(fmt.Sprintf(
		"**ReplAI stopped**\n\n- Tracked chats: %d\n- Queued chats: %d\n- Responses sent: %d",
		summary.TrackedChats, summary.QueuedChats, summary.ResponsesSent))
}

func (n *Notifier) send(text string) {
	if n == nil {
		return
	}

	msg := tgbotapi.NewMessage(n.chatID, markdown.ToTelegramHTML(text))
	msg.ParseMode = "HTML"

	if _, err := n.bot.Send(msg); err != nil {
		// HTML parse errors fall back to plain text.
		n.logger.WithError(err).Warn("Failed to send HTML digest, trying plain text")
		msg.ParseMode = ""
		msg.Text = text
		if _, err := n.bot.Send(msg); err != nil {
			n.logger.WithError(err).Error("Failed to send operator digest")
		}
	}
}

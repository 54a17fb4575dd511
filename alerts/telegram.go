package alerts

import (
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"github.com/longportwhale/openapi-go/trade"
)

var markdownReplacer = strings.NewReplacer(
	"_", `\_`, "*", `\*`, "[", `\[`, "]", `\]`, "(", `\(`, ")", `\)`, "~", `\~`, "`", "\\`",
	">", `\>`, "#", `\#`, "+", `\+`, "-", `\-`, "=", `\=`, "|", `\|`, "{", `\{`, "}", `\}`,
	".", `\.`, "!", `\!`,
)

// escapeMarkdown escapes the MarkdownV2 special characters.
func escapeMarkdown(s string) string {
	return markdownReplacer.Replace(s)
}

// TelegramNotifier sends alert and order notifications to one chat.
// A nil *TelegramNotifier drops every notification.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *slog.Logger
}

// NewTelegramNotifier returns nil if botToken is empty.
func NewTelegramNotifier(botToken string, chatID int64, logger *slog.Logger) (*TelegramNotifier, error) {
	if botToken == "" {
		logger.Info("Telegram bot token not configured, notifications disabled")
		return nil, nil
	}
	if chatID == 0 {
		return nil, fmt.Errorf("telegram chat id is required with a bot token")
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	logger.Info("Telegram bot initialized", "bot_name", bot.Self.UserName)
	return newTelegramNotifier(bot, chatID, logger), nil
}

func newTelegramNotifier(bot *tgbotapi.BotAPI, chatID int64, logger *slog.Logger) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, chatID: chatID, logger: logger}
}

// NotifyAlert has the NotifyCallback signature.
func (t *TelegramNotifier) NotifyAlert(alert *Alert, price decimal.Decimal) {
	if t == nil {
		return
	}

	emoji := "\U0001F4C9"
	if alert.Direction == DirectionAbove {
		emoji = "\U0001F4C8"
	}
	text := fmt.Sprintf("%s *%s* crossed %s %s\nCurrent: %s",
		emoji,
		escapeMarkdown(alert.Symbol),
		string(alert.Direction),
		escapeMarkdown(alert.TargetPrice.String()),
		escapeMarkdown(price.String()),
	)
	t.send(text, "alert_id", alert.ID, "symbol", alert.Symbol)
}

// NotifyOrder reports an order update.
func (t *TelegramNotifier) NotifyOrder(ev trade.PushOrderChanged) {
	if t == nil {
		return
	}

	text := fmt.Sprintf("*%s* %s %d %s\nStatus: %s\nFilled: %d",
		escapeMarkdown(ev.Symbol),
		ev.Side,
		ev.SubmittedQuantity,
		escapeMarkdown("@ "+ev.SubmittedPrice.String()),
		escapeMarkdown(ev.Status.String()),
		ev.ExecutedQuantity,
	)
	if ev.ExecutedPrice != nil {
		text += escapeMarkdown(" @ " + ev.ExecutedPrice.String())
	}
	if ev.Msg != "" {
		text += "\n" + escapeMarkdown(ev.Msg)
	}
	t.send(text, "order_id", ev.OrderID, "status", ev.Status)
}

func (t *TelegramNotifier) send(text string, attrs ...any) {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error("Failed to send Telegram notification", append(attrs, "chat_id", t.chatID, "error", err)...)
		return
	}
	t.logger.Info("Telegram notification sent", attrs...)
}

package notify

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/quantedge/options-engine/pkg/types"
	"go.uber.org/zap"
)

// Telegram sends notifications to a chat via the Bot API.
type Telegram struct {
	logger *zap.Logger
	bot    *bot.Bot
	chatID string
}

// NewTelegram creates a Telegram notifier for the given bot token and chat.
func NewTelegram(logger *zap.Logger, token, chatID string) (*Telegram, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Telegram{
		logger: logger.Named("telegram"),
		bot:    b,
		chatID: chatID,
	}, nil
}

func (t *Telegram) send(ctx context.Context, text string) error {
	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    t.chatID,
		Text:      text,
		ParseMode: models.ParseModeMarkdown,
	})
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

func (t *Telegram) TradeExecuted(ctx context.Context, trade types.Trade) error {
	emoji := "🟢"
	if trade.RealizedPnL.IsNegative() {
		emoji = "🔴"
	}
	return t.send(ctx, fmt.Sprintf("%s *Trade closed* %s %s\nQty: %d  P\\&L: %s",
		emoji, trade.Symbol, trade.Strategy, trade.Quantity, trade.RealizedPnL.StringFixed(2)))
}

func (t *Telegram) RiskRaised(ctx context.Context, event types.RiskEvent) error {
	return t.send(ctx, fmt.Sprintf("⚠️ *Risk %s* (%s)\n%s",
		event.Type, event.Severity, event.Message))
}

func (t *Telegram) EmergencyStop(ctx context.Context, reason string) error {
	return t.send(ctx, fmt.Sprintf("🛑 *EMERGENCY STOP*\n%s", reason))
}

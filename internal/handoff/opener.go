// Package handoff opens the bank-transfer payment link for the user. The
// reconciliation loop invokes it at most once per order; failures are
// logged and never fed back into the loop, since a user who missed the
// handoff still sees the bank link in the progress text flow.
package handoff

import (
	"context"
	"log"

	"github.com/tg-eats/checkout-gateway/internal/telegram"
)

// Opener delivers a payment link to the user's chat session.
type Opener interface {
	Open(ctx context.Context, chatID, url string) error
}

// BankButtonText is the message accompanying the bank link.
const BankButtonText = "Подтвердите платёж в приложении банка"

const bankButtonLabel = "Открыть банк"

// BotOpener sends the link as an inline URL button through the Telegram
// bot, so the banking app and not an in-app viewer receives it.
type BotOpener struct {
	bot    *telegram.Bot
	logger *log.Logger
}

func NewBotOpener(bot *telegram.Bot, logger *log.Logger) *BotOpener {
	if logger == nil {
		logger = log.Default()
	}
	return &BotOpener{bot: bot, logger: logger}
}

func (o *BotOpener) Open(ctx context.Context, chatID, url string) error {
	o.logger.Printf("[handoff] opening bank link for chat %s", chatID)
	if err := o.bot.SendLinkButton(ctx, chatID, BankButtonText, bankButtonLabel, url); err != nil {
		// Fall back to a plain message with the raw URL; some clients
		// render buttons but refuse bank deep links inside them.
		if sendErr := o.bot.SendMessage(ctx, chatID, BankButtonText+"\n"+url); sendErr != nil {
			return err
		}
	}
	return nil
}

// LogOpener only records the link. Used when no bot is configured or the
// probe fails.
type LogOpener struct {
	Logger *log.Logger
}

func (o LogOpener) Open(_ context.Context, chatID, url string) error {
	l := o.Logger
	if l == nil {
		l = log.Default()
	}
	l.Printf("[handoff] chat %s: bank link %s", chatID, url)
	return nil
}

// Probe selects the link-opening capability at startup: the bot when its
// token answers getMe, the log fallback otherwise.
func Probe(ctx context.Context, bot *telegram.Bot, logger *log.Logger) Opener {
	if logger == nil {
		logger = log.Default()
	}
	if bot == nil {
		logger.Printf("[handoff] no bot configured, using log opener")
		return LogOpener{Logger: logger}
	}
	if err := bot.GetMe(ctx); err != nil {
		logger.Printf("[handoff] bot probe failed (%v), using log opener", err)
		return LogOpener{Logger: logger}
	}
	return NewBotOpener(bot, logger)
}

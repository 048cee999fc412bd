package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"github.com/tg-eats/checkout-gateway/internal/checkout"
	appconfig "github.com/tg-eats/checkout-gateway/internal/config"
	"github.com/tg-eats/checkout-gateway/internal/events"
	"github.com/tg-eats/checkout-gateway/internal/secrets"
	"github.com/tg-eats/checkout-gateway/internal/telegram"
)

// The notifier consumes checkout events and pushes the terminal result to
// the chat that started the checkout. It runs separately from the gateway
// so a Telegram outage never slows reconciliation down.
func main() {
	_ = godotenv.Load()
	log.Println("Notifier starting...")

	if err := secrets.BootstrapFromOpenBao(context.Background()); err != nil {
		log.Printf("WARNING: OpenBao bootstrap failed: %v", err)
	}

	cfg, err := appconfig.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Telegram.BotToken == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN is required")
	}
	bot := telegram.NewBot(cfg.Telegram.BotToken)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    cfg.Kafka.EventsTopic,
		GroupID:  cfg.Kafka.NotifierGroup,
		MinBytes: 1e3, MaxBytes: 10e6,
	})
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runConsumer(ctx, reader, bot, cfg.Kafka.NotifierGroup)
	})
	g.Go(func() error {
		<-ctx.Done()
		return reader.Close()
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Fatalf("notifier stopped: %v", err)
	}
	log.Println("Notifier stopped")
}

func runConsumer(ctx context.Context, reader *kafka.Reader, bot *telegram.Bot, group string) error {
	log.Printf("[notifier] consuming (group=%s)", group)
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		var evt events.Envelope
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			log.Printf("[notifier] bad json: %v; payload=%s", err, string(msg.Value))
			continue
		}

		switch evt.EventType {
		case events.EventPaymentOutcome:
			handlePaymentOutcome(ctx, bot, evt)
		default:
			// other event types are not chat-worthy
		}
	}
}

func handlePaymentOutcome(ctx context.Context, bot *telegram.Bot, evt events.Envelope) {
	data := toMap(evt.Data)
	orderID := toString(data["orderId"])
	chatID := toString(data["chatId"])
	outcome := toString(data["outcome"])
	errMsg := toString(data["errorMessage"])
	if chatID == "" {
		log.Printf("[notifier] outcome event without chatId, order=%s", orderID)
		return
	}

	text := outcomeText(orderID, outcome, errMsg)
	if err := bot.SendMessage(ctx, chatID, text); err != nil {
		log.Printf("[notifier] send failed chat=%s order=%s: %v", chatID, orderID, err)
		return
	}
	log.Printf("[notifier] notified chat=%s order=%s outcome=%s", chatID, orderID, outcome)
}

func outcomeText(orderID, outcome, errMsg string) string {
	switch outcome {
	case checkout.OutcomeSucceeded.String():
		return fmt.Sprintf("Заказ %s оплачен", orderID)
	case checkout.OutcomeTimedOut.String():
		// A timeout is not a decline: the payment may still land, so the
		// user is pointed at the order status instead of a retry.
		return fmt.Sprintf("Не дождались подтверждения оплаты заказа %s. Проверьте статус заказа позже", orderID)
	default:
		if errMsg != "" {
			return errMsg
		}
		return "Оплата не прошла"
	}
}

// helpers
func toMap(v interface{}) map[string]interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

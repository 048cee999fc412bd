package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	postgres "github.com/tg-eats/checkout-gateway/internal/storage/postgres"
)

// Config aggregates runtime configuration grouped by concern.
type Config struct {
	ServiceName string
	HTTP        HTTPConfig
	Restate     RestateConfig
	Kafka       KafkaConfig
	Database    postgres.DatabaseConfig
	Commerce    CommerceConfig
	Reconcile   ReconcileConfig
	Telegram    TelegramConfig
}

type HTTPConfig struct {
	Addr string
}

type RestateConfig struct {
	ListenAddr string
	RuntimeURL string
}

type KafkaConfig struct {
	Brokers       []string
	EventsTopic   string
	NotifierGroup string
}

// CommerceConfig carries the upstream identity. Every request the gateway
// makes to the commerce backend presents these values as headers.
type CommerceConfig struct {
	BaseURL        string
	Bearer         string
	DeviceID       string
	AppmetricaUUID string
	DefaultChatID  string
	Latitude       float64
	Longitude      float64
	HasCoords      bool
}

type ReconcileConfig struct {
	Interval    time.Duration
	MaxAttempts int
}

type TelegramConfig struct {
	BotToken string
}

// Load reads configuration from environment variables, applying sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		ServiceName: getEnv("SERVICE_NAME", "checkout-gateway"),
		HTTP: HTTPConfig{
			Addr: getEnv("HTTP_LISTEN_ADDR", ":3000"),
		},
		Restate: RestateConfig{
			ListenAddr: getEnv("RESTATE_LISTEN_ADDR", ":9081"),
			RuntimeURL: getEnv("RESTATE_RUNTIME_URL", "http://127.0.0.1:8080"),
		},
		Kafka: KafkaConfig{
			Brokers:       splitAndTrim(getEnv("KAFKA_BROKERS", "localhost:9092")),
			EventsTopic:   getEnv("KAFKA_CHECKOUT_TOPIC", "checkout.v1"),
			NotifierGroup: getEnv("KAFKA_NOTIFIER_GROUP_ID", "checkout-notifiers"),
		},
		Commerce: CommerceConfig{
			BaseURL:        getEnv("COMMERCE_BASE_URL", "https://eda.yandex.ru"),
			Bearer:         getEnv("COMMERCE_BEARER", ""),
			DeviceID:       getEnv("COMMERCE_DEVICE_ID", ""),
			AppmetricaUUID: getEnv("COMMERCE_APPMETRICA_UUID", ""),
			DefaultChatID:  getEnv("COMMERCE_CHAT_ID", ""),
		},
		Telegram: TelegramConfig{
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		},
	}

	interval, err := time.ParseDuration(getEnv("RECONCILE_POLL_INTERVAL", "2s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse RECONCILE_POLL_INTERVAL: %w", err)
	}
	attempts, err := strconv.Atoi(getEnv("RECONCILE_MAX_ATTEMPTS", "60"))
	if err != nil {
		return Config{}, fmt.Errorf("parse RECONCILE_MAX_ATTEMPTS: %w", err)
	}
	cfg.Reconcile = ReconcileConfig{Interval: interval, MaxAttempts: attempts}

	if lat, lon, ok, err := ParseCoords(os.Getenv("COMMERCE_USER_COORDS")); err != nil {
		return Config{}, err
	} else if ok {
		cfg.Commerce.Latitude = lat
		cfg.Commerce.Longitude = lon
		cfg.Commerce.HasCoords = true
	}

	portStr := getEnv("CHECKOUT_DB_PORT", "5432")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Config{}, fmt.Errorf("parse CHECKOUT_DB_PORT: %w", err)
	}

	cfg.Database = postgres.DatabaseConfig{
		Host:     getEnv("CHECKOUT_DB_HOST", "localhost"),
		Port:     port,
		Database: getEnv("CHECKOUT_DB_NAME", "checkoutgateway"),
		User:     getEnv("CHECKOUT_DB_USER", "checkoutadmin"),
		Password: getEnv("CHECKOUT_DB_PASSWORD", ""),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// ParseCoords accepts "lat,lon". An empty value is not an error.
func ParseCoords(raw string) (lat, lon float64, ok bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, 0, false, nil
	}
	parts := strings.SplitN(raw, ",", 2)
	if len(parts) != 2 {
		return 0, 0, false, fmt.Errorf("parse COMMERCE_USER_COORDS: want \"lat,lon\", got %q", raw)
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, false, fmt.Errorf("parse COMMERCE_USER_COORDS latitude: %w", err)
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, false, fmt.Errorf("parse COMMERCE_USER_COORDS longitude: %w", err)
	}
	return lat, lon, true, nil
}

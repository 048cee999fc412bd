package bdd

import (
	"os"
	"testing"

	"github.com/cucumber/godog"
	"github.com/joho/godotenv"
)

func TestMain(m *testing.M) {
	// Load .env.test if present, else .env. Overload so test values always
	// override any shell/CI env.
	if _, err := os.Stat(".env.test"); err == nil {
		_ = godotenv.Overload(".env.test")
	} else {
		_ = godotenv.Overload()
	}
	// Scenarios run against an in-process commerce stub; make sure nothing
	// reaches for real infrastructure.
	_ = os.Setenv("KAFKA_BROKERS", "127.0.0.1:1")
	_ = os.Unsetenv("TELEGRAM_BOT_TOKEN")

	os.Exit(m.Run())
}

func TestBDDFeatures(t *testing.T) {
	opts := godog.Options{
		Format: "pretty",
		Paths:  []string{"features"},
		Strict: true,
	}

	suite := godog.TestSuite{
		Name: "checkout-gateway",
		ScenarioInitializer: func(sc *godog.ScenarioContext) {
			world := NewCheckoutWorld(t)
			world.Register(sc)
		},
		Options: &opts,
	}

	if suite.Run() != 0 {
		t.Fail()
	}
}

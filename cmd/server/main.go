package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	restate "github.com/restatedev/sdk-go"
	"github.com/restatedev/sdk-go/server"
	"go.uber.org/fx"

	"github.com/tg-eats/checkout-gateway/internal/api"
	"github.com/tg-eats/checkout-gateway/internal/checkout"
	"github.com/tg-eats/checkout-gateway/internal/commerce"
	appconfig "github.com/tg-eats/checkout-gateway/internal/config"
	"github.com/tg-eats/checkout-gateway/internal/events"
	"github.com/tg-eats/checkout-gateway/internal/handoff"
	"github.com/tg-eats/checkout-gateway/internal/progress"
	"github.com/tg-eats/checkout-gateway/internal/secrets"
	postgres "github.com/tg-eats/checkout-gateway/internal/storage/postgres"
	"github.com/tg-eats/checkout-gateway/internal/telegram"
	"github.com/tg-eats/checkout-gateway/internal/telemetry"
)

func newLogger(cfg appconfig.Config) *log.Logger {
	prefix := ""
	if cfg.ServiceName != "" {
		prefix = fmt.Sprintf("[%s] ", cfg.ServiceName)
	}
	logger := log.New(os.Stdout, prefix, log.LstdFlags|log.Lmicroseconds)
	log.SetOutput(os.Stdout)
	log.SetFlags(logger.Flags())
	log.SetPrefix(prefix)
	return logger
}

func setupTelemetry(lc fx.Lifecycle, cfg appconfig.Config, logger *log.Logger) {
	var cleanup func()
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			cleanup = telemetry.InitTracer(cfg.ServiceName)
			return nil
		},
		OnStop: func(context.Context) error {
			if cleanup != nil {
				cleanup()
			}
			return nil
		},
	})
}

// newSQLDB opens the shared pool. A missing database is a warning, not a
// fatal error: the gateway still submits and reconciles, it just keeps no
// history.
func newSQLDB(lc fx.Lifecycle, cfg appconfig.Config, logger *log.Logger) (*sql.DB, error) {
	logger.Printf("Connecting to PostgreSQL database %s@%s:%d", cfg.Database.Database, cfg.Database.Host, cfg.Database.Port)
	db, err := postgres.Open(cfg.Database)
	if err != nil {
		logger.Printf("WARNING: failed to connect to database: %v", err)
		return nil, nil
	}
	if err := postgres.EnsureSchema(db); err != nil {
		logger.Printf("WARNING: schema setup failed: %v", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return db.Close()
		},
	})
	return db, nil
}

func newRepository(db *sql.DB) *postgres.Repository {
	if db == nil {
		return nil
	}
	return postgres.NewRepository(db)
}

// newKafkaProducer constructs the shared producer and binds its lifecycle to Fx.
func newKafkaProducer(cfg appconfig.Config, lc fx.Lifecycle) *events.Producer {
	prod := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return prod.Close()
		},
	})
	return prod
}

// newLocator prefers a refreshing locator over a one-shot static fix: the
// coordinate env var can be rewritten by the secrets bootstrap while the
// gateway runs, and the refresh loop picks the change up.
func newLocator(lc fx.Lifecycle, cfg appconfig.Config, logger *log.Logger) commerce.Locator {
	if !cfg.Commerce.HasCoords {
		return commerce.NoLocation{}
	}
	loc := commerce.NewRefreshingLocator(func(context.Context) (commerce.Coords, error) {
		lat, lon, ok, err := appconfig.ParseCoords(os.Getenv("COMMERCE_USER_COORDS"))
		if err != nil {
			return commerce.Coords{}, err
		}
		if !ok {
			return commerce.Coords{Lat: cfg.Commerce.Latitude, Lon: cfg.Commerce.Longitude}, nil
		}
		return commerce.Coords{Lat: lat, Lon: lon}, nil
	}, 2*time.Minute, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				loc.Run(ctx)
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			<-done
			return nil
		},
	})
	return loc
}

func newCommerceClient(cfg appconfig.Config, loc commerce.Locator, logger *log.Logger) *commerce.Client {
	identity := commerce.Identity{
		Bearer:         cfg.Commerce.Bearer,
		DeviceID:       cfg.Commerce.DeviceID,
		ChatID:         cfg.Commerce.DefaultChatID,
		AppmetricaUUID: cfg.Commerce.AppmetricaUUID,
	}
	return commerce.NewClient(cfg.Commerce.BaseURL,
		identity,
		commerce.WithLocator(loc),
		commerce.WithLogger(logger),
	)
}

// newOpener probes the Telegram Bot API once at startup and falls back to
// log-only bank handoff when the bot is unreachable or unconfigured.
func newOpener(cfg appconfig.Config, logger *log.Logger) handoff.Opener {
	if cfg.Telegram.BotToken == "" {
		logger.Printf("No Telegram bot token; bank links will be logged only")
		return handoff.LogOpener{Logger: logger}
	}
	bot := telegram.NewBot(cfg.Telegram.BotToken)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return handoff.Probe(ctx, bot, logger)
}

func newEngine(cfg appconfig.Config, client *commerce.Client, opener handoff.Opener, repo *postgres.Repository, prod *events.Producer, logger *log.Logger) *checkout.Engine {
	machine := checkout.NewMachine()
	if cfg.Reconcile.MaxAttempts > 0 {
		machine.MaxAttempts = cfg.Reconcile.MaxAttempts
	}

	submitter := checkout.NewSubmitter(client, logger)
	runner := checkout.NewRunner(client, opener, machine, cfg.Reconcile.Interval, logger)

	// A nil *Repository must stay a nil Store, not a typed-nil interface.
	var store checkout.Store
	if repo != nil {
		store = repo
	}
	var publisher checkout.Publisher
	if prod != nil {
		publisher = prod
	}
	return checkout.NewEngine(submitter, runner, store, publisher, logger)
}

func buildRestateServer() *server.Restate {
	srv := server.NewRestate()

	workflow := restate.NewWorkflow(checkout.WorkflowServiceName).
		Handler("Checkout", restate.NewWorkflowHandler(checkout.Checkout)).
		Handler("GetStatus", restate.NewWorkflowSharedHandler(checkout.GetStatus))
	srv = srv.Bind(workflow)

	return srv
}

func newWebServer(cfg appconfig.Config, eng *checkout.Engine, client *commerce.Client, repo *postgres.Repository, board *progress.Board) *http.Server {
	mux := http.NewServeMux()
	api.RegisterCheckoutRoutes(mux, eng, repo, board)
	api.RegisterChatRoutes(mux, repo, board)
	api.RegisterPromocodeRoutes(mux, client)
	return &http.Server{Addr: cfg.HTTP.Addr, Handler: mux}
}

func registerWebServer(lc fx.Lifecycle, cfg appconfig.Config, logger *log.Logger, shutdowner fx.Shutdowner, httpServer *http.Server) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				logger.Printf("API listening on %s", cfg.HTTP.Addr)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Printf("API server error: %v", err)
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	})
}

func registerRestateServer(lc fx.Lifecycle, cfg appconfig.Config, logger *log.Logger, shutdowner fx.Shutdowner, srv *server.Restate) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Println("Restate server listening on", cfg.Restate.ListenAddr)
			displayAddr := cfg.Restate.ListenAddr
			if strings.HasPrefix(displayAddr, ":") {
				displayAddr = "localhost" + displayAddr
			}
			logger.Printf("Register with Restate: restate deployments register http://%s", displayAddr)

			go func() {
				defer close(done)
				if err := srv.Start(ctx, cfg.Restate.ListenAddr); err != nil && !errors.Is(err, context.Canceled) {
					logger.Printf("Restate server error: %v", err)
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			<-done
			return nil
		},
	})
}

func main() {
	_ = godotenv.Load()

	if err := secrets.BootstrapFromOpenBao(context.Background()); err != nil {
		log.Printf("WARNING: OpenBao bootstrap failed: %v", err)
	}

	app := fx.New(
		fx.Provide(
			appconfig.Load,
			newLogger,
			buildRestateServer,
			newKafkaProducer,
			newSQLDB,
			newRepository,
			newLocator,
			newCommerceClient,
			newOpener,
			newEngine,
			progress.NewBoard,
			newWebServer,
		),
		fx.Invoke(
			func(logger *log.Logger, cfg appconfig.Config) {
				logger.Printf("Starting %s...", cfg.ServiceName)
			},
			func(eng *checkout.Engine) { checkout.SetWorkflowEngine(eng) },
			setupTelemetry,
			registerWebServer,
			registerRestateServer,
		),
	)

	app.Run()
}

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"grid-exchange/src/amm"
	"grid-exchange/src/certify"
	"grid-exchange/src/config"
	"grid-exchange/src/engine"
	"grid-exchange/src/events"
	"grid-exchange/src/handlers"
	"grid-exchange/src/logger"
	"grid-exchange/src/metrics"
	"grid-exchange/src/routes"
	"grid-exchange/src/settlement"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logger.InitLogger(config.Default().Log)
		l := logger.GetLogger()
		l.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.InitLogger(cfg.Log)
	log := logger.GetLogger()

	log.Info().Msg("Initializing Grid Energy Exchange")

	emitters := events.Fanout{events.LogEmitter{}}
	var natsEmitter *events.NATSEmitter
	if cfg.NATS.Enabled {
		natsEmitter, err = events.NewNATSEmitter(cfg.NATS.URL)
		if err != nil {
			log.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("Failed to connect to NATS")
		}
		emitters = append(emitters, natsEmitter)
		log.Info().Str("url", cfg.NATS.URL).Msg("NATS event emission enabled")
	}

	ledger := settlement.NewLedger()
	executor := settlement.NewExecutor(ledger, cfg.Accounts.FeeCollector, cfg.Accounts.GridOperator)

	certProvider := certify.NewStaticProvider()
	checker := certify.NewChecker(certProvider)

	market := engine.NewMarket(cfg.Market.Authority,
		engine.WithSettler(executor),
		engine.WithCertifier(checker),
		engine.WithEmitter(emitters),
		engine.WithMarketFeeBps(cfg.Market.FeeBps),
		engine.WithClearingEnabled(cfg.Market.ClearingEnabled),
		engine.WithBatchConfig(engine.BatchConfig{
			MaxBatchSize:        cfg.Batch.MaxBatchSize,
			BatchTimeoutSeconds: cfg.Batch.TimeoutSeconds,
			MinBatchSize:        cfg.Batch.MinBatchSize,
			PriceImprovementPct: cfg.Batch.PriceImprovementPct,
		}),
	)

	pools := amm.NewRegistry(ledger, amm.WithEmitter(emitters))

	m := metrics.New()
	exchangeHandler := handlers.NewExchangeHandler(market, m)
	poolHandler := handlers.NewPoolHandler(pools, ledger, certProvider, m)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}

			log.Error().
				Str("path", c.Path()).
				Str("method", c.Method()).
				Int("status", code).
				Str("error", err.Error()).
				Msg("Request error")

			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	routes.SetupRoutes(app, cfg.Server, exchangeHandler, poolHandler, m)

	serverError := make(chan error, 1)

	go func() {
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			// edge case: ignore shutdown errors, only report real errors
			if err.Error() != "server is shutting down" {
				serverError <- err
			}
		}
	}()

	select {
	case err := <-serverError:
		log.Fatal().
			Err(err).
			Str("port", cfg.Server.Port).
			Str("hint", "Port may be already in use. Try: PORT=3000 go run main.go").
			Msg("Server failed to start")
	default:
		log.Info().
			Str("port", cfg.Server.Port).
			Str("authority", cfg.Market.Authority).
			Msg("Grid Energy Exchange started")

		log.Info().
			Strs("endpoints", []string{
				"POST   /api/v1/orders",
				"DELETE /api/v1/orders/:id",
				"POST   /api/v1/matches",
				"POST   /api/v1/batches",
				"POST   /api/v1/pools/:id/swap",
				"GET    /api/v1/market/depth",
				"GET    /health",
				"GET    /metrics",
			}).
			Msg("API endpoints registered")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-quit
	log.Info().Msg("Received shutdown signal, shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		// edge case: timeout during shutdown is acceptable
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn().
				Dur("timeout", cfg.Server.ShutdownTimeout).
				Msg("Timeout exceeded, shutting down...")
		} else {
			log.Error().
				Err(err).
				Msg("Error during shutdown")
		}
	} else {
		log.Info().Msg("Shutdown complete")
	}

	if natsEmitter != nil {
		natsEmitter.Close()
	}
	logger.CloseLogger()
}

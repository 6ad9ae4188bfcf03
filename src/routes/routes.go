package routes

import (
	"os"

	"github.com/gofiber/fiber/v2"

	"grid-exchange/src/config"
	"grid-exchange/src/handlers"
	"grid-exchange/src/metrics"
	"grid-exchange/src/middleware"
)

func SetupRoutes(app *fiber.App, cfg config.ServerConfig, exchange *handlers.ExchangeHandler, pools *handlers.PoolHandler, m *metrics.Metrics) {
	serviceAvailability := middleware.DefaultServiceAvailability()
	app.Use(serviceAvailability.Middleware())
	app.Use(middleware.RequestLogger(m))

	api := app.Group("/api/v1")

	if os.Getenv("RATE_LIMIT_DISABLED") != "1" {
		rateLimiter := middleware.NewRateLimiter(cfg.RateLimit, cfg.RateWindow)
		api.Use(rateLimiter.Middleware())
	}

	api.Post("/orders", exchange.CreateOrder)
	api.Delete("/orders/:id", exchange.CancelOrder)
	api.Get("/orders/:id", exchange.GetOrder)

	api.Post("/matches", exchange.MatchOrders)
	api.Post("/matches/auto", exchange.AutoMatch)
	api.Post("/settlements", exchange.ExecuteSettlement)
	api.Post("/batches", exchange.ExecuteBatch)

	api.Get("/market/depth", exchange.GetDepth)
	api.Get("/market/stats", exchange.GetStats)
	api.Get("/market/price-history", exchange.GetPriceHistory)
	api.Get("/market/trades", exchange.GetTrades)
	api.Put("/market/params", exchange.UpdateMarketParams)
	api.Put("/market/batch-config", exchange.UpdateBatchConfig)

	api.Post("/pools", pools.CreatePool)
	api.Get("/pools", pools.ListPools)
	api.Get("/pools/:id", pools.GetPool)
	api.Get("/pools/:id/quote/:amount", pools.QuoteBuy)
	api.Post("/pools/:id/swap", pools.Swap)
	api.Put("/pools/:id/params", pools.UpdatePoolParams)

	api.Post("/accounts/deposit", pools.Deposit)
	api.Get("/accounts/:account/balances", pools.GetBalances)

	api.Put("/certificates", pools.PutCertificate)

	app.Get("/health", exchange.HealthCheck)
	app.Get("/metrics", m.Handler())
}

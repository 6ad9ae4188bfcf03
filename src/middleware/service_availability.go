package middleware

import (
	"os"
	"strconv"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// ServiceAvailability sheds load before it reaches the exchange. A
// halted market rejects everything except liveness and metrics; an
// overloaded one rejects once the in-flight cap is hit. Shedding here
// keeps the market latch free for the requests already inside.
type ServiceAvailability struct {
	halted      atomic.Bool
	inFlight    atomic.Int64
	maxInFlight int64
}

func NewServiceAvailability(maxInFlight int64) *ServiceAvailability {
	sa := &ServiceAvailability{maxInFlight: maxInFlight}
	if os.Getenv("MAINTENANCE_MODE") == "1" {
		sa.halted.Store(true)
		log.Warn().Msg("Trading halted: maintenance mode set at startup")
	}
	return sa
}

func DefaultServiceAvailability() *ServiceAvailability {
	var maxInFlight int64
	if raw := os.Getenv("MAX_CONCURRENT_REQUESTS"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil && parsed > 0 {
			maxInFlight = parsed
			log.Info().
				Int64("max_in_flight", maxInFlight).
				Msg("Request shedding enabled")
		}
	}
	return NewServiceAvailability(maxInFlight)
}

// Halt stops accepting trading requests; Resume lifts the halt.
func (sa *ServiceAvailability) Halt() {
	sa.halted.Store(true)
	log.Warn().Msg("Trading halted")
}

func (sa *ServiceAvailability) Resume() {
	sa.halted.Store(false)
	log.Info().Msg("Trading resumed")
}

func (sa *ServiceAvailability) Halted() bool { return sa.halted.Load() }

func (sa *ServiceAvailability) InFlight() int64 { return sa.inFlight.Load() }

func (sa *ServiceAvailability) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// edge case: liveness and metrics stay reachable during a halt
		switch c.Path() {
		case "/health", "/metrics":
			return c.Next()
		}

		if sa.halted.Load() {
			log.Warn().
				Str("path", c.Path()).
				Str("method", c.Method()).
				Str("ip", c.IP()).
				Msg("Request rejected: trading halted")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "Trading is halted for maintenance",
			})
		}

		if sa.maxInFlight > 0 {
			if inFlight := sa.inFlight.Load(); inFlight >= sa.maxInFlight {
				log.Warn().
					Str("path", c.Path()).
					Int64("in_flight", inFlight).
					Int64("max_in_flight", sa.maxInFlight).
					Msg("Request rejected: exchange overloaded")
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"error": "Exchange is overloaded, retry shortly",
				})
			}
		}

		sa.inFlight.Add(1)
		defer sa.inFlight.Add(-1)

		return c.Next()
	}
}

package reference

import (
	"errors"
	"sync"
	"time"

	"grid-exchange/src/engine"
)

// Pricing-reference collaborator: produces a suggested price per unit
// from time-of-use tiers, season, supply/demand balance and grid
// congestion. Callers apply it before creating orders; the exchange
// core itself never consults it.

var ErrInvalidPricingParams = errors.New("invalid pricing parameters")

type TimePeriod uint8

const (
	OffPeak TimePeriod = iota
	MidPeak
	OnPeak
	SuperPeak
)

type Season uint8

const (
	Winter Season = iota
	Spring
	Summer
	Autumn
)

// Tier maps an hour band to a price multiplier (100 = 1.0x). Bands may
// wrap midnight: StartHour > EndHour means overnight.
type Tier struct {
	Multiplier uint16
	StartHour  uint8
	EndHour    uint8
	Period     TimePeriod
}

// Config is the tunable surface of the reference calculator.
type Config struct {
	Enabled             bool
	BasePrice           uint64
	MinPrice            uint64
	MaxPrice            uint64
	Tiers               []Tier
	SeasonalMultipliers [4]uint16
	Sensitivity         uint16 // supply/demand sensitivity, basis points
	CongestionFactor    uint16 // 100 = normal, >100 = congested
	TimezoneOffset      int16  // hours*100, e.g. +7:00 = 700
}

// DefaultConfig mirrors a typical tropical-grid tariff: cheap
// overnight, normal through the working day, expensive in the evening
// ramp.
func DefaultConfig(basePrice uint64) Config {
	return Config{
		Enabled:   true,
		BasePrice: basePrice,
		MinPrice:  basePrice / 2,
		MaxPrice:  basePrice * 4,
		Tiers: []Tier{
			{Multiplier: 70, StartHour: 22, EndHour: 9, Period: OffPeak},
			{Multiplier: 100, StartHour: 9, EndHour: 18, Period: MidPeak},
			{Multiplier: 150, StartHour: 18, EndHour: 22, Period: OnPeak},
		},
		SeasonalMultipliers: [4]uint16{100, 110, 120, 105},
		Sensitivity:         500,
		CongestionFactor:    100,
	}
}

// Calculator evaluates the reference price. Supply, demand and
// congestion are fed in by an external observer via UpdateMarketData.
type Calculator struct {
	mu     sync.RWMutex
	cfg    Config
	supply uint64
	demand uint64
	clock  func() int64
}

type CalculatorOption func(*Calculator)

func WithClock(clock func() int64) CalculatorOption {
	return func(c *Calculator) { c.clock = clock }
}

func NewCalculator(cfg Config, opts ...CalculatorOption) (*Calculator, error) {
	if cfg.BasePrice == 0 || cfg.MinPrice > cfg.MaxPrice {
		return nil, ErrInvalidPricingParams
	}
	c := &Calculator{
		cfg:   cfg,
		clock: func() int64 { return time.Now().Unix() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// UpdateMarketData feeds the current grid balance into the calculator.
func (c *Calculator) UpdateMarketData(supply, demand uint64, congestion uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.supply = supply
	c.demand = demand
	c.cfg.CongestionFactor = congestion
}

// Price returns the reference price at the current time.
func (c *Calculator) Price() uint64 {
	return c.PriceAt(c.clock())
}

// PriceAt evaluates the full stack of adjustments at a given moment:
// TOU multiplier, season, supply/demand skew, congestion, then the
// configured floor and ceiling.
func (c *Calculator) PriceAt(timestamp int64) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.cfg.Enabled {
		return c.cfg.BasePrice
	}

	price := engine.MulDiv(c.cfg.BasePrice, uint64(c.touMultiplier(timestamp)), 100)

	season := seasonOf(timestamp)
	price = engine.MulDiv(price, uint64(c.cfg.SeasonalMultipliers[season]), 100)

	adjustment := c.supplyDemandAdjustment()
	if adjustment >= 0 {
		price = engine.SaturatingAdd(price, uint64(adjustment))
	} else {
		price = engine.SaturatingSub(price, uint64(-adjustment))
	}

	price = engine.MulDiv(price, uint64(c.cfg.CongestionFactor), 100)

	if price > c.cfg.MaxPrice {
		price = c.cfg.MaxPrice
	}
	if price < c.cfg.MinPrice {
		price = c.cfg.MinPrice
	}
	return price
}

// PeriodAt classifies the moment against the configured tiers.
func (c *Calculator) PeriodAt(timestamp int64) TimePeriod {
	c.mu.RLock()
	defer c.mu.RUnlock()
	hour := localHour(timestamp, c.cfg.TimezoneOffset)
	for _, tier := range c.cfg.Tiers {
		if tierCovers(tier, hour) {
			return tier.Period
		}
	}
	return MidPeak
}

func (c *Calculator) touMultiplier(timestamp int64) uint16 {
	hour := localHour(timestamp, c.cfg.TimezoneOffset)
	for _, tier := range c.cfg.Tiers {
		if tierCovers(tier, hour) {
			return tier.Multiplier
		}
	}
	return 100
}

func tierCovers(tier Tier, hour uint8) bool {
	// edge case: overnight band wraps midnight
	if tier.StartHour > tier.EndHour {
		return hour >= tier.StartHour || hour < tier.EndHour
	}
	return hour >= tier.StartHour && hour < tier.EndHour
}

// supplyDemandAdjustment prices scarcity: demand over supply raises the
// reference, surplus lowers it, scaled by the configured sensitivity.
func (c *Calculator) supplyDemandAdjustment() int64 {
	if c.supply == 0 || c.demand == 0 {
		return 0
	}
	ratio := int64(engine.MulDiv(c.demand, 1000, c.supply))
	deviation := ratio - 1000
	adjustment := deviation * int64(c.cfg.Sensitivity) / 10000
	return adjustment * int64(c.cfg.BasePrice) / 1000
}

func localHour(timestamp int64, timezoneOffset int16) uint8 {
	local := timestamp + int64(timezoneOffset)*36
	secondsInDay := ((local % 86400) + 86400) % 86400
	return uint8(secondsInDay / 3600)
}

func seasonOf(timestamp int64) Season {
	dayOfYear := (timestamp / 86400) % 365
	switch {
	case dayOfYear <= 79:
		return Winter
	case dayOfYear <= 171:
		return Spring
	case dayOfYear <= 264:
		return Summer
	default:
		return Autumn
	}
}

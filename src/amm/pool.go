package amm

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"grid-exchange/src/engine"
	"grid-exchange/src/events"
	"grid-exchange/src/settlement"
)

var (
	ErrSlippageExceeded    = errors.New("slippage exceeded")
	ErrInsufficientReserve = errors.New("insufficient pool reserve")
	ErrPoolNotFound        = errors.New("pool not found")
	ErrInvalidCurveType    = errors.New("invalid curve type")
	ErrInvalidCurveParams  = errors.New("invalid curve parameters")
)

// CurveType selects the slope multiplier. Intermittent sources reprice
// faster per unit traded than storage-backed supply: wind doubles the
// configured slope, battery halves it, solar uses it unmodified.
type CurveType string

const (
	CurveLinearSolar CurveType = "LINEAR_SOLAR"
	CurveSteepWind   CurveType = "STEEP_WIND"
	CurveFlatBattery CurveType = "FLAT_BATTERY"
)

func (c CurveType) valid() bool {
	switch c {
	case CurveLinearSolar, CurveSteepWind, CurveFlatBattery:
		return true
	}
	return false
}

// Pool is one independently addressed liquidity record. EnergyReserve
// is the cumulative quantity sold onto the curve, so the marginal price
// only rises as supply is consumed; the deliverable inventory itself
// lives in the ledger under the pool's account and is checked before
// every swap.
type Pool struct {
	ID              string
	Authority       string
	EnergyReserve   uint64
	CurrencyReserve uint64
	Curve           CurveType
	BondingSlope    uint64
	BondingBase     uint64
	FeeBps          uint16
	CreatedAt       int64

	latch sync.Mutex
}

// adjustedSlope applies the curve-type multiplier.
func (p *Pool) adjustedSlope() uint64 {
	switch p.Curve {
	case CurveSteepWind:
		return engine.SaturatingMul(p.BondingSlope, 2)
	case CurveFlatBattery:
		return p.BondingSlope / 2
	default:
		return p.BondingSlope
	}
}

// Quote prices a buy of amount units at the current reserve level:
//
//	cost = base·Δ + slope·(2xΔ + Δ²)/2000
//	total = cost + cost·fee_bps/10000
//
// The quadratic term is computed as slope·Δ·(2x+Δ)/2000 with a 192-bit
// intermediate so no factor pair can truncate. Caller holds the latch
// or accepts a possibly stale quote.
func (p *Pool) quote(amount uint64) (cost, fee, total uint64, err error) {
	baseCost, ok := engine.CheckedMul(p.BondingBase, amount)
	if !ok {
		return 0, 0, 0, engine.ErrMathOverflow
	}
	span := engine.SaturatingAdd(engine.SaturatingMul(p.EnergyReserve, 2), amount)
	curveCost := engine.MulDiv3(p.adjustedSlope(), amount, span, 2000)

	cost = engine.SaturatingAdd(baseCost, curveCost)
	fee = engine.MulDiv(cost, uint64(p.FeeBps), 10000)
	return cost, fee, engine.SaturatingAdd(cost, fee), nil
}

// View is a point-in-time copy of the pool record.
type View struct {
	ID              string    `json:"id"`
	Authority       string    `json:"authority"`
	EnergyReserve   uint64    `json:"energy_reserve"`
	CurrencyReserve uint64    `json:"currency_reserve"`
	Curve           CurveType `json:"curve_type"`
	BondingSlope    uint64    `json:"bonding_slope"`
	BondingBase     uint64    `json:"bonding_base"`
	FeeBps          uint16    `json:"fee_bps"`
	CreatedAt       int64     `json:"created_at"`
}

func (p *Pool) view() View {
	return View{
		ID:              p.ID,
		Authority:       p.Authority,
		EnergyReserve:   p.EnergyReserve,
		CurrencyReserve: p.CurrencyReserve,
		Curve:           p.Curve,
		BondingSlope:    p.BondingSlope,
		BondingBase:     p.BondingBase,
		FeeBps:          p.FeeBps,
		CreatedAt:       p.CreatedAt,
	}
}

// Quote is the result of pricing a prospective swap.
type Quote struct {
	EnergyAmount uint64 `json:"energy_amount"`
	Cost         uint64 `json:"cost"`
	FeeAmount    uint64 `json:"fee_amount"`
	TotalCost    uint64 `json:"total_cost"`
}

// Registry holds every pool. Pools are disjoint records, so swaps on
// different pools proceed fully in parallel; only operations on the
// same pool contend, and those fail fast rather than queue.
type Registry struct {
	pools   map[string]*Pool
	ledger  *settlement.Ledger
	emitter events.Emitter
	clock   func() int64
	mu      sync.RWMutex
}

type RegistryOption func(*Registry)

func WithEmitter(e events.Emitter) RegistryOption {
	return func(r *Registry) { r.emitter = e }
}

func WithClock(clock func() int64) RegistryOption {
	return func(r *Registry) { r.clock = clock }
}

func NewRegistry(ledger *settlement.Ledger, opts ...RegistryOption) *Registry {
	r := &Registry{
		pools:   make(map[string]*Pool),
		ledger:  ledger,
		emitter: events.NopEmitter{},
		clock:   func() int64 { return time.Now().Unix() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreatePool registers a new pool and seeds its deliverable inventory
// in the ledger under the pool's own account.
func (r *Registry) CreatePool(authority string, curve CurveType, base, slope, initialEnergy uint64, feeBps uint16) (View, error) {
	if !curve.valid() {
		return View{}, ErrInvalidCurveType
	}
	if base == 0 || slope == 0 || feeBps > 10000 {
		return View{}, ErrInvalidCurveParams
	}

	pool := &Pool{
		ID:           uuid.New().String(),
		Authority:    authority,
		Curve:        curve,
		BondingSlope: slope,
		BondingBase:  base,
		FeeBps:       feeBps,
		CreatedAt:    r.clock(),
	}
	if initialEnergy > 0 {
		if err := r.ledger.Deposit(pool.ID, settlement.AssetEnergy, initialEnergy); err != nil {
			return View{}, err
		}
	}

	r.mu.Lock()
	r.pools[pool.ID] = pool
	r.mu.Unlock()

	log.Info().
		Str("pool_id", pool.ID).
		Str("curve", string(curve)).
		Uint64("base", base).
		Uint64("slope", slope).
		Msg("Pool created")

	return pool.view(), nil
}

func (r *Registry) get(poolID string) (*Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pool, ok := r.pools[poolID]
	if !ok {
		return nil, ErrPoolNotFound
	}
	return pool, nil
}

// QuoteBuy prices a prospective swap without executing it.
func (r *Registry) QuoteBuy(poolID string, amount uint64) (Quote, error) {
	if amount == 0 {
		return Quote{}, engine.ErrInvalidAmount
	}
	pool, err := r.get(poolID)
	if err != nil {
		return Quote{}, err
	}
	if !pool.latch.TryLock() {
		return Quote{}, engine.ErrRecordBusy
	}
	defer pool.latch.Unlock()

	cost, fee, total, err := pool.quote(amount)
	if err != nil {
		return Quote{}, err
	}
	return Quote{EnergyAmount: amount, Cost: cost, FeeAmount: fee, TotalCost: total}, nil
}

// SwapBuyEnergy executes a buy against the curve: the buyer pays
// total_cost in currency and receives the energy from the pool's
// inventory, both moved in one atomic ledger step. Rejected before any
// transfer when the quote exceeds max_currency or the inventory cannot
// cover the amount.
func (r *Registry) SwapBuyEnergy(buyer, poolID string, amount, maxCurrency uint64) (Quote, error) {
	if amount == 0 {
		return Quote{}, engine.ErrInvalidAmount
	}
	pool, err := r.get(poolID)
	if err != nil {
		return Quote{}, err
	}
	if !pool.latch.TryLock() {
		return Quote{}, engine.ErrRecordBusy
	}
	defer pool.latch.Unlock()

	cost, fee, total, err := pool.quote(amount)
	if err != nil {
		return Quote{}, err
	}
	if total > maxCurrency {
		return Quote{}, ErrSlippageExceeded
	}

	inventory, err := r.ledger.BalancesOf(pool.ID)
	if err != nil {
		return Quote{}, err
	}
	if inventory.Energy < amount {
		return Quote{}, ErrInsufficientReserve
	}

	if err := r.ledger.Apply([]settlement.Transfer{
		{From: buyer, To: pool.ID, Asset: settlement.AssetCurrency, Amount: total},
		{From: pool.ID, To: buyer, Asset: settlement.AssetEnergy, Amount: amount},
	}); err != nil {
		return Quote{}, err
	}

	pool.EnergyReserve = engine.SaturatingAdd(pool.EnergyReserve, amount)
	pool.CurrencyReserve = engine.SaturatingAdd(pool.CurrencyReserve, total)

	r.emitter.Emit(events.PoolSwapExecuted{
		PoolID:        pool.ID,
		Buyer:         buyer,
		EnergyAmount:  amount,
		CurrencyPaid:  total,
		FeeAmount:     fee,
		EnergyReserve: pool.EnergyReserve,
		Timestamp:     r.clock(),
	})

	return Quote{EnergyAmount: amount, Cost: cost, FeeAmount: fee, TotalCost: total}, nil
}

// UpdateParams replaces the pool's curve parameters. Authority only,
// validated for range before acceptance.
func (r *Registry) UpdateParams(caller, poolID string, base, slope uint64, feeBps uint16) (View, error) {
	pool, err := r.get(poolID)
	if err != nil {
		return View{}, err
	}
	if !pool.latch.TryLock() {
		return View{}, engine.ErrRecordBusy
	}
	defer pool.latch.Unlock()

	if caller != pool.Authority {
		return View{}, engine.ErrUnauthorizedAuthority
	}
	if base == 0 || slope == 0 || feeBps > 10000 {
		return View{}, ErrInvalidCurveParams
	}

	pool.BondingBase = base
	pool.BondingSlope = slope
	pool.FeeBps = feeBps
	return pool.view(), nil
}

// Snapshot returns a copy of one pool record.
func (r *Registry) Snapshot(poolID string) (View, error) {
	pool, err := r.get(poolID)
	if err != nil {
		return View{}, err
	}
	if !pool.latch.TryLock() {
		return View{}, engine.ErrRecordBusy
	}
	defer pool.latch.Unlock()
	return pool.view(), nil
}

// List returns copies of every pool, skipping any held by an in-flight
// swap rather than waiting on them.
func (r *Registry) List() []View {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]View, 0, len(r.pools))
	for _, pool := range r.pools {
		if !pool.latch.TryLock() {
			continue
		}
		out = append(out, pool.view())
		pool.latch.Unlock()
	}
	return out
}

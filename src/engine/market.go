package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"grid-exchange/src/events"
)

const (
	// DepthLevels caps the aggregated price levels tracked per side.
	DepthLevels = 20
	// PriceHistorySize caps the trade samples retained for VWAP.
	PriceHistorySize = 24
	// MaxBatchMatches bounds execute_batch so the held record set and
	// the worst-case atomic unit stay small and predictable.
	MaxBatchMatches = 4

	DefaultMarketFeeBps = 25
)

// BatchConfig is the externally settable batch tuning surface.
type BatchConfig struct {
	MaxBatchSize        uint32
	BatchTimeoutSeconds uint32
	MinBatchSize        uint32
	PriceImprovementPct uint16
}

func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		MaxBatchSize:        MaxBatchMatches,
		BatchTimeoutSeconds: 300,
		MinBatchSize:        1,
		PriceImprovementPct: 5,
	}
}

// BatchInfo is the transient per-batch accumulator, reset after each
// ExecuteBatch call.
type BatchInfo struct {
	BatchID     uint64
	MatchCount  uint32
	TotalVolume uint64
	CreatedAt   int64
	ExpiresAt   int64
}

// PricePoint is one retained trade sample.
type PricePoint struct {
	Price     uint64
	Volume    uint64
	Timestamp int64
}

// PriceLevel aggregates remaining amounts of live orders at one price.
type PriceLevel struct {
	Price       uint64
	TotalAmount uint64
	OrderCount  uint16
}

// TradeRecord is the immutable audit trail entry, created once per
// executed match and never mutated afterwards.
type TradeRecord struct {
	ID          string
	BuyOrderID  string
	SellOrderID string
	Buyer       string
	Seller      string
	Amount      uint64
	Price       uint64
	TotalValue  uint64
	FeeAmount   uint64
	ExecutedAt  int64
}

// SettlementTerms is everything the settlement executor needs to move
// funds for one matched pair. Computed before any transfer so a
// rejection leaves zero partial effect.
type SettlementTerms struct {
	BuyOrderID     string
	SellOrderID    string
	Buyer          string
	Seller         string
	Amount         uint64
	Price          uint64
	TotalValue     uint64
	FeeAmount      uint64
	WheelingCharge uint64
	NetSellerValue uint64
}

// Settler performs the multi-party fund movement for matched pairs.
// Settle and SettleAll are all-or-nothing: on error no balance anywhere
// has changed.
type Settler interface {
	Settle(terms SettlementTerms) error
	SettleAll(terms []SettlementTerms) error
}

// CertificateChecker is the read-only certification collaborator
// consulted by sell-order creation when a credential reference is
// supplied.
type CertificateChecker interface {
	Check(ctx context.Context, certificateID string, amount uint64) error
}

// Market is the aggregate root: one global singleton holding counters,
// depth, price history and configuration. Every operation that touches
// it takes the single-writer latch; contention fails immediately with
// ErrRecordBusy rather than queuing, so all MarketState operations
// serialize with respect to each other while operations on disjoint
// orders or pools may proceed in parallel.
type Market struct {
	Authority string

	feeBps            uint16
	clearingEnabled   bool
	totalVolume       uint64
	totalTrades       uint64
	activeOrders      uint32
	lastClearingPrice uint64
	lastDeviationBps  uint64
	vwap              uint64
	createdAt         int64

	priceHistory      [PriceHistorySize]PricePoint
	priceHistoryCount int

	buyDepth       [DepthLevels]PriceLevel
	buyDepthCount  int
	sellDepth      [DepthLevels]PriceLevel
	sellDepthCount int

	batchCfg        BatchConfig
	currentBatch    BatchInfo
	hasCurrentBatch bool

	orders map[string]*Order
	trades []*TradeRecord
	book   *restingBook

	settler   Settler
	certifier CertificateChecker
	emitter   events.Emitter
	clock     func() int64

	latch sync.Mutex
}

type Option func(*Market)

func WithSettler(s Settler) Option {
	return func(m *Market) { m.settler = s }
}

func WithCertifier(c CertificateChecker) Option {
	return func(m *Market) { m.certifier = c }
}

func WithEmitter(e events.Emitter) Option {
	return func(m *Market) { m.emitter = e }
}

func WithClock(clock func() int64) Option {
	return func(m *Market) { m.clock = clock }
}

func WithMarketFeeBps(bps uint16) Option {
	return func(m *Market) { m.feeBps = bps }
}

func WithBatchConfig(cfg BatchConfig) Option {
	return func(m *Market) { m.batchCfg = cfg }
}

func WithClearingEnabled(enabled bool) Option {
	return func(m *Market) { m.clearingEnabled = enabled }
}

func NewMarket(authority string, opts ...Option) *Market {
	m := &Market{
		Authority:       authority,
		feeBps:          DefaultMarketFeeBps,
		clearingEnabled: true,
		batchCfg:        DefaultBatchConfig(),
		orders:          make(map[string]*Order),
		book:            newRestingBook(),
		emitter:         events.NopEmitter{},
		clock:           func() int64 { return time.Now().Unix() },
	}
	for _, opt := range opts {
		opt(m)
	}
	m.createdAt = m.clock()
	return m
}

// tryAcquire takes the market's single-writer hold without blocking.
func (m *Market) tryAcquire() error {
	if !m.latch.TryLock() {
		return ErrRecordBusy
	}
	return nil
}

func (m *Market) release() {
	m.latch.Unlock()
}

// CreateSellOrder validates and records a sell order. When a
// certificate reference is supplied, the certification collaborator is
// consulted read-only before the market latch is taken so the
// serialization point is never held across I/O.
func (m *Market) CreateSellOrder(ctx context.Context, seller string, amount, price uint64, certificateID string) (*Order, error) {
	if err := validateOrderInput(amount, price); err != nil {
		return nil, err
	}
	if certificateID != "" && m.certifier != nil {
		if err := m.certifier.Check(ctx, certificateID, amount); err != nil {
			return nil, err
		}
	}
	return m.createOrder(TypeSell, seller, amount, price)
}

// CreateBuyOrder validates and records a buy order. price is the
// maximum the buyer will pay per unit.
func (m *Market) CreateBuyOrder(_ context.Context, buyer string, amount, price uint64) (*Order, error) {
	if err := validateOrderInput(amount, price); err != nil {
		return nil, err
	}
	return m.createOrder(TypeBuy, buyer, amount, price)
}

func validateOrderInput(amount, price uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	if price == 0 {
		return ErrInvalidPrice
	}
	return nil
}

func (m *Market) createOrder(orderType OrderType, participant string, amount, price uint64) (*Order, error) {
	if err := m.tryAcquire(); err != nil {
		return nil, err
	}
	defer m.release()

	now := m.clock()
	order := &Order{
		ID:           uuid.New().String(),
		Amount:       amount,
		PricePerUnit: price,
		Type:         orderType,
		Status:       StatusActive,
		CreatedAt:    now,
		ExpiresAt:    now + DefaultExpiryHorizon,
	}
	if orderType == TypeBuy {
		order.Buyer = participant
	} else {
		order.Seller = participant
	}

	m.orders[order.ID] = order
	m.activeOrders++
	m.depthAdd(orderType, price, amount)
	m.book.add(order)

	m.emitter.Emit(events.OrderCreated{
		OrderID:      order.ID,
		Participant:  participant,
		OrderType:    string(orderType),
		Amount:       amount,
		PricePerUnit: price,
		ExpiresAt:    order.ExpiresAt,
		Timestamp:    now,
	})

	log.Debug().
		Str("order_id", order.ID).
		Str("type", string(orderType)).
		Uint64("amount", amount).
		Uint64("price", price).
		Msg("Order created")

	return order, nil
}

// CancelOrder transitions an order to Cancelled. Only the creator may
// cancel, and only from Active or PartiallyFilled.
func (m *Market) CancelOrder(orderID, caller string) error {
	if err := m.tryAcquire(); err != nil {
		return err
	}
	defer m.release()

	order, ok := m.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	if !order.TryAcquire() {
		return ErrRecordBusy
	}
	defer order.Release()

	// Authorization short-circuits everything else.
	if caller != order.Owner() {
		return ErrUnauthorizedAuthority
	}
	if order.expiredAt(m.clock()) {
		m.expireLocked(order)
		return ErrOrderExpired
	}
	if !order.Live() {
		return ErrInvalidOrderState
	}

	remaining := order.Remaining()
	order.Status = StatusCancelled
	m.depthReduce(order.Type, order.PricePerUnit, remaining, true)
	m.book.remove(order)
	m.activeOrdersDec()

	m.emitter.Emit(events.OrderCancelled{
		OrderID:   orderID,
		User:      caller,
		Remaining: remaining,
		Timestamp: m.clock(),
	})

	return nil
}

// expireLocked lazily transitions an order whose horizon has passed.
// Caller holds both the market latch and the order latch.
func (m *Market) expireLocked(order *Order) {
	remaining := order.Remaining()
	order.Status = StatusExpired
	m.depthReduce(order.Type, order.PricePerUnit, remaining, true)
	m.book.remove(order)
	m.activeOrdersDec()
}

func (m *Market) activeOrdersDec() {
	// edge case: counter saturates at zero
	if m.activeOrders > 0 {
		m.activeOrders--
	}
}

// UpdateParams adjusts the market fee and clearing toggle. Authority
// only; the fee is validated for range before acceptance.
func (m *Market) UpdateParams(caller string, feeBps uint16, clearingEnabled bool) error {
	if err := m.tryAcquire(); err != nil {
		return err
	}
	defer m.release()

	if caller != m.Authority {
		return ErrUnauthorizedAuthority
	}
	if feeBps > 10000 {
		return ErrInvalidFee
	}

	m.feeBps = feeBps
	m.clearingEnabled = clearingEnabled

	m.emitter.Emit(events.MarketParamsUpdated{
		Authority:       caller,
		MarketFeeBps:    feeBps,
		ClearingEnabled: clearingEnabled,
		Timestamp:       m.clock(),
	})
	return nil
}

// UpdateBatchConfig replaces the batch tuning surface. Authority only.
func (m *Market) UpdateBatchConfig(caller string, cfg BatchConfig) error {
	if err := m.tryAcquire(); err != nil {
		return err
	}
	defer m.release()

	if caller != m.Authority {
		return ErrUnauthorizedAuthority
	}
	if cfg.MaxBatchSize == 0 || cfg.MaxBatchSize > MaxBatchMatches {
		return ErrBatchSizeExceeded
	}
	if cfg.MinBatchSize > cfg.MaxBatchSize || cfg.BatchTimeoutSeconds == 0 {
		return ErrInvalidAmount
	}
	if cfg.PriceImprovementPct > 100 {
		return ErrInvalidFee
	}

	m.batchCfg = cfg
	return nil
}

// Stats is a point-in-time copy of the market counters.
type Stats struct {
	Authority           string
	TotalVolume         uint64
	TotalTrades         uint64
	ActiveOrders        uint32
	MarketFeeBps        uint16
	ClearingEnabled     bool
	LastClearingPrice   uint64
	LastDeviationBps    uint64
	VolumeWeightedPrice uint64
	PriceHistoryCount   int
	CreatedAt           int64
}

func (m *Market) Stats() (Stats, error) {
	if err := m.tryAcquire(); err != nil {
		return Stats{}, err
	}
	defer m.release()

	return Stats{
		Authority:           m.Authority,
		TotalVolume:         m.totalVolume,
		TotalTrades:         m.totalTrades,
		ActiveOrders:        m.activeOrders,
		MarketFeeBps:        m.feeBps,
		ClearingEnabled:     m.clearingEnabled,
		LastClearingPrice:   m.lastClearingPrice,
		LastDeviationBps:    m.lastDeviationBps,
		VolumeWeightedPrice: m.vwap,
		PriceHistoryCount:   m.priceHistoryCount,
		CreatedAt:           m.createdAt,
	}, nil
}

// Depth returns copies of both aggregated sides: buy descending, sell
// ascending.
func (m *Market) Depth() (buy, sell []PriceLevel, err error) {
	if err := m.tryAcquire(); err != nil {
		return nil, nil, err
	}
	defer m.release()

	buy = make([]PriceLevel, m.buyDepthCount)
	copy(buy, m.buyDepth[:m.buyDepthCount])
	sell = make([]PriceLevel, m.sellDepthCount)
	copy(sell, m.sellDepth[:m.sellDepthCount])
	return buy, sell, nil
}

// OrderView is a read snapshot of one order record.
type OrderView struct {
	ID           string
	Seller       string
	Buyer        string
	Amount       uint64
	FilledAmount uint64
	PricePerUnit uint64
	Type         OrderType
	Status       OrderStatus
	CreatedAt    int64
	ExpiresAt    int64
}

func (m *Market) OrderSnapshot(orderID string) (OrderView, error) {
	if err := m.tryAcquire(); err != nil {
		return OrderView{}, err
	}
	defer m.release()

	order, ok := m.orders[orderID]
	if !ok {
		return OrderView{}, ErrOrderNotFound
	}
	if !order.TryAcquire() {
		return OrderView{}, ErrRecordBusy
	}
	defer order.Release()

	return OrderView{
		ID:           order.ID,
		Seller:       order.Seller,
		Buyer:        order.Buyer,
		Amount:       order.Amount,
		FilledAmount: order.FilledAmount,
		PricePerUnit: order.PricePerUnit,
		Type:         order.Type,
		Status:       order.Status,
		CreatedAt:    order.CreatedAt,
		ExpiresAt:    order.ExpiresAt,
	}, nil
}

// PriceHistory returns a copy of the retained samples, oldest first.
func (m *Market) PriceHistory() ([]PricePoint, error) {
	if err := m.tryAcquire(); err != nil {
		return nil, err
	}
	defer m.release()

	out := make([]PricePoint, m.priceHistoryCount)
	copy(out, m.priceHistory[:m.priceHistoryCount])
	return out, nil
}

// Trades returns a copy of the audit trail.
func (m *Market) Trades() ([]TradeRecord, error) {
	if err := m.tryAcquire(); err != nil {
		return nil, err
	}
	defer m.release()

	out := make([]TradeRecord, len(m.trades))
	for i, t := range m.trades {
		out[i] = *t
	}
	return out, nil
}

func (m *Market) BatchConfigSnapshot() (BatchConfig, error) {
	if err := m.tryAcquire(); err != nil {
		return BatchConfig{}, err
	}
	defer m.release()
	return m.batchCfg, nil
}

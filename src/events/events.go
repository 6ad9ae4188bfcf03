package events

// Each event carries enough fields to reconstruct state without
// re-reading the store. Subjects double as NATS subjects.

type Event interface {
	Subject() string
}

type OrderCreated struct {
	OrderID      string `json:"order_id"`
	Participant  string `json:"participant"`
	OrderType    string `json:"order_type"`
	Amount       uint64 `json:"amount"`
	PricePerUnit uint64 `json:"price_per_unit"`
	ExpiresAt    int64  `json:"expires_at"`
	Timestamp    int64  `json:"timestamp"`
}

func (OrderCreated) Subject() string { return "grid.orders.created" }

type OrderCancelled struct {
	OrderID   string `json:"order_id"`
	User      string `json:"user"`
	Remaining uint64 `json:"remaining"`
	Timestamp int64  `json:"timestamp"`
}

func (OrderCancelled) Subject() string { return "grid.orders.cancelled" }

type TradeExecuted struct {
	TradeID     string `json:"trade_id"`
	BuyOrderID  string `json:"buy_order_id"`
	SellOrderID string `json:"sell_order_id"`
	Buyer       string `json:"buyer"`
	Seller      string `json:"seller"`
	Amount      uint64 `json:"amount"`
	Price       uint64 `json:"price"`
	TotalValue  uint64 `json:"total_value"`
	FeeAmount   uint64 `json:"fee_amount"`
	Timestamp   int64  `json:"timestamp"`
}

func (TradeExecuted) Subject() string { return "grid.trades" }

type BatchExecuted struct {
	BatchID     uint64 `json:"batch_id"`
	Authority   string `json:"authority"`
	MatchCount  uint32 `json:"match_count"`
	TotalVolume uint64 `json:"total_volume"`
	Timestamp   int64  `json:"timestamp"`
}

func (BatchExecuted) Subject() string { return "grid.batches" }

type PoolSwapExecuted struct {
	PoolID        string `json:"pool_id"`
	Buyer         string `json:"buyer"`
	EnergyAmount  uint64 `json:"energy_amount"`
	CurrencyPaid  uint64 `json:"currency_paid"`
	FeeAmount     uint64 `json:"fee_amount"`
	EnergyReserve uint64 `json:"energy_reserve"`
	Timestamp     int64  `json:"timestamp"`
}

func (PoolSwapExecuted) Subject() string { return "grid.pools.swaps" }

type MarketParamsUpdated struct {
	Authority       string `json:"authority"`
	MarketFeeBps    uint16 `json:"market_fee_bps"`
	ClearingEnabled bool   `json:"clearing_enabled"`
	Timestamp       int64  `json:"timestamp"`
}

func (MarketParamsUpdated) Subject() string { return "grid.market.params" }

// Emitter publishes events to external indexers. Emission is
// best-effort; a failed publish never rolls back the operation that
// produced the event.
type Emitter interface {
	Emit(event Event)
}

// NopEmitter discards everything. Useful default for tests.
type NopEmitter struct{}

func (NopEmitter) Emit(Event) {}

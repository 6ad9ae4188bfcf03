package models

// Prices are integer cents per kWh, amounts integer milli-kWh.

type CreateOrderRequest struct {
	Side          string `json:"side"` // BUY or SELL
	Participant   string `json:"participant"`
	Amount        uint64 `json:"amount"`
	PricePerUnit  uint64 `json:"price_per_unit"`
	CertificateID string `json:"certificate_id,omitempty"` // SELL only
}

type OrderResponse struct {
	OrderID      string `json:"order_id"`
	Side         string `json:"side"`
	Participant  string `json:"participant"`
	Amount       uint64 `json:"amount"`
	FilledAmount uint64 `json:"filled_amount"`
	PricePerUnit uint64 `json:"price_per_unit"`
	Status       string `json:"status"`
	CreatedAt    int64  `json:"created_at"`
	ExpiresAt    int64  `json:"expires_at"`
}

type CancelOrderRequest struct {
	Participant string `json:"participant"`
}

type CancelOrderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type MatchOrdersRequest struct {
	BuyOrderID  string `json:"buy_order_id"`
	SellOrderID string `json:"sell_order_id"`
	Amount      uint64 `json:"amount"`
}

type SettlementRequest struct {
	BuyOrderID     string `json:"buy_order_id"`
	SellOrderID    string `json:"sell_order_id"`
	Amount         uint64 `json:"amount"`
	Price          uint64 `json:"price"`
	WheelingCharge uint64 `json:"wheeling_charge"`
}

type TradeResponse struct {
	TradeID     string `json:"trade_id"`
	BuyOrderID  string `json:"buy_order_id"`
	SellOrderID string `json:"sell_order_id"`
	Buyer       string `json:"buyer"`
	Seller      string `json:"seller"`
	Amount      uint64 `json:"amount"`
	Price       uint64 `json:"price"`
	TotalValue  uint64 `json:"total_value"`
	FeeAmount   uint64 `json:"fee_amount"`
	ExecutedAt  int64  `json:"executed_at"`
}

type BatchEntryRequest struct {
	BuyOrderID     string `json:"buy_order_id"`
	SellOrderID    string `json:"sell_order_id"`
	Amount         uint64 `json:"amount"`
	Price          uint64 `json:"price"`
	WheelingCharge uint64 `json:"wheeling_charge"`
}

type BatchRequest struct {
	Authority string              `json:"authority"`
	Entries   []BatchEntryRequest `json:"entries"`
}

type BatchResponse struct {
	BatchID     uint64 `json:"batch_id"`
	MatchCount  uint32 `json:"match_count"`
	TotalVolume uint64 `json:"total_volume"`
	CreatedAt   int64  `json:"created_at"`
	ExpiresAt   int64  `json:"expires_at"`
}

type AutoMatchRequest struct {
	MaxMatches int `json:"max_matches"`
}

type AutoMatchResponse struct {
	Trades []TradeResponse `json:"trades"`
}

type PriceLevelInfo struct {
	Price       uint64 `json:"price"`
	TotalAmount uint64 `json:"total_amount"`
	OrderCount  uint16 `json:"order_count"`
}

type DepthResponse struct {
	Timestamp int64            `json:"timestamp"`
	Bids      []PriceLevelInfo `json:"bids"` // sorted descending (highest first)
	Asks      []PriceLevelInfo `json:"asks"` // sorted ascending (lowest first)
}

type PricePointInfo struct {
	Price     uint64 `json:"price"`
	Volume    uint64 `json:"volume"`
	Timestamp int64  `json:"timestamp"`
}

type MarketStatsResponse struct {
	Authority           string `json:"authority"`
	TotalVolume         uint64 `json:"total_volume"`
	TotalTrades         uint64 `json:"total_trades"`
	ActiveOrders        uint32 `json:"active_orders"`
	MarketFeeBps        uint16 `json:"market_fee_bps"`
	ClearingEnabled     bool   `json:"clearing_enabled"`
	LastClearingPrice   uint64 `json:"last_clearing_price"`
	LastDeviationBps    uint64 `json:"last_deviation_bps"`
	VolumeWeightedPrice uint64 `json:"volume_weighted_price"`
	PriceHistoryCount   int    `json:"price_history_count"`
	CreatedAt           int64  `json:"created_at"`
}

type UpdateMarketParamsRequest struct {
	Authority       string `json:"authority"`
	MarketFeeBps    uint16 `json:"market_fee_bps"`
	ClearingEnabled bool   `json:"clearing_enabled"`
}

type UpdateBatchConfigRequest struct {
	Authority           string `json:"authority"`
	MaxBatchSize        uint32 `json:"max_batch_size"`
	TimeoutSeconds      uint32 `json:"timeout_seconds"`
	MinBatchSize        uint32 `json:"min_batch_size"`
	PriceImprovementPct uint16 `json:"price_improvement_pct"`
}

type CreatePoolRequest struct {
	Authority     string `json:"authority"`
	CurveType     string `json:"curve_type"` // LINEAR_SOLAR, STEEP_WIND, FLAT_BATTERY
	BondingBase   uint64 `json:"bonding_base"`
	BondingSlope  uint64 `json:"bonding_slope"`
	InitialEnergy uint64 `json:"initial_energy"`
	FeeBps        uint16 `json:"fee_bps"`
}

type UpdatePoolParamsRequest struct {
	Authority    string `json:"authority"`
	BondingBase  uint64 `json:"bonding_base"`
	BondingSlope uint64 `json:"bonding_slope"`
	FeeBps       uint16 `json:"fee_bps"`
}

type SwapRequest struct {
	Buyer        string `json:"buyer"`
	EnergyAmount uint64 `json:"energy_amount"`
	MaxCurrency  uint64 `json:"max_currency"`
}

type DepositRequest struct {
	Account string `json:"account"`
	Asset   string `json:"asset"` // CURRENCY or ENERGY
	Amount  uint64 `json:"amount"`
}

type BalancesResponse struct {
	Account  string `json:"account"`
	Currency uint64 `json:"currency"`
	Energy   uint64 `json:"energy"`
}

type CertificateRequest struct {
	ID                  string `json:"id"`
	Owner               string `json:"owner"`
	Status              string `json:"status"`
	EnergyAmount        uint64 `json:"energy_amount"`
	ExpiresAt           int64  `json:"expires_at"`
	ValidatedForTrading bool   `json:"validated_for_trading"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	ActiveOrders  uint32 `json:"active_orders"`
	TotalTrades   uint64 `json:"total_trades"`
}

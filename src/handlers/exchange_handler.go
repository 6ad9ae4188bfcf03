package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"grid-exchange/src/engine"
	"grid-exchange/src/metrics"
	"grid-exchange/src/models"
)

type ExchangeHandler struct {
	Market    *engine.Market
	Metrics   *metrics.Metrics
	StartTime time.Time
}

func NewExchangeHandler(market *engine.Market, m *metrics.Metrics) *ExchangeHandler {
	return &ExchangeHandler{
		Market:    market,
		Metrics:   m,
		StartTime: time.Now(),
	}
}

func (h *ExchangeHandler) CreateOrder(c *fiber.Ctx) error {
	var req models.CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		log.Warn().
			Err(err).
			Str("ip", c.IP()).
			Str("path", c.Path()).
			Msg("Invalid request: malformed JSON")
		return badRequest(c, "Invalid request: malformed JSON")
	}
	if req.Participant == "" {
		return badRequest(c, "participant is required")
	}
	if req.Side != "BUY" && req.Side != "SELL" {
		return badRequest(c, "side must be BUY or SELL")
	}
	// edge case: certificates back sell-side supply only
	if req.Side == "BUY" && req.CertificateID != "" {
		return badRequest(c, "certificate_id is only valid for SELL orders")
	}

	var order *engine.Order
	var err error
	if req.Side == "SELL" {
		order, err = h.Market.CreateSellOrder(c.Context(), req.Participant, req.Amount, req.PricePerUnit, req.CertificateID)
	} else {
		order, err = h.Market.CreateBuyOrder(c.Context(), req.Participant, req.Amount, req.PricePerUnit)
	}
	if err != nil {
		log.Warn().
			Err(err).
			Str("side", req.Side).
			Str("participant", req.Participant).
			Uint64("amount", req.Amount).
			Uint64("price", req.PricePerUnit).
			Msg("Order rejected")
		return fail(c, h.Metrics, "create_order", err)
	}

	if h.Metrics != nil {
		h.Metrics.OrdersCreated.WithLabelValues(req.Side).Inc()
	}

	return c.Status(fiber.StatusCreated).JSON(orderResponse(engine.OrderView{
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
	}))
}

func (h *ExchangeHandler) CancelOrder(c *fiber.Ctx) error {
	orderID := c.Params("id")

	var req models.CancelOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request: malformed JSON")
	}
	if req.Participant == "" {
		return badRequest(c, "participant is required")
	}

	if err := h.Market.CancelOrder(orderID, req.Participant); err != nil {
		return fail(c, h.Metrics, "cancel_order", err)
	}

	if h.Metrics != nil {
		h.Metrics.OrdersCancelled.Inc()
	}

	return c.JSON(models.CancelOrderResponse{
		OrderID: orderID,
		Status:  string(engine.StatusCancelled),
	})
}

func (h *ExchangeHandler) GetOrder(c *fiber.Ctx) error {
	view, err := h.Market.OrderSnapshot(c.Params("id"))
	if err != nil {
		return fail(c, h.Metrics, "get_order", err)
	}
	return c.JSON(orderResponse(view))
}

func (h *ExchangeHandler) MatchOrders(c *fiber.Ctx) error {
	var req models.MatchOrdersRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request: malformed JSON")
	}
	if req.BuyOrderID == "" || req.SellOrderID == "" {
		return badRequest(c, "buy_order_id and sell_order_id are required")
	}

	trade, err := h.Market.MatchOrders(req.BuyOrderID, req.SellOrderID, req.Amount)
	if err != nil {
		return fail(c, h.Metrics, "match_orders", err)
	}

	h.countTrade(trade.Amount)
	return c.JSON(tradeResponse(trade))
}

func (h *ExchangeHandler) ExecuteSettlement(c *fiber.Ctx) error {
	var req models.SettlementRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request: malformed JSON")
	}
	if req.BuyOrderID == "" || req.SellOrderID == "" {
		return badRequest(c, "buy_order_id and sell_order_id are required")
	}

	trade, err := h.Market.ExecuteSettlement(req.BuyOrderID, req.SellOrderID, req.Amount, req.Price, req.WheelingCharge)
	if err != nil {
		return fail(c, h.Metrics, "execute_settlement", err)
	}

	h.countTrade(trade.Amount)
	return c.JSON(tradeResponse(trade))
}

func (h *ExchangeHandler) ExecuteBatch(c *fiber.Ctx) error {
	var req models.BatchRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request: malformed JSON")
	}
	if req.Authority == "" {
		return badRequest(c, "authority is required")
	}

	entries := make([]engine.BatchEntry, len(req.Entries))
	for i, e := range req.Entries {
		entries[i] = engine.BatchEntry{
			BuyOrderID:     e.BuyOrderID,
			SellOrderID:    e.SellOrderID,
			Amount:         e.Amount,
			Price:          e.Price,
			WheelingCharge: e.WheelingCharge,
		}
	}

	batch, err := h.Market.ExecuteBatch(req.Authority, entries)
	if err != nil {
		return fail(c, h.Metrics, "execute_batch", err)
	}

	if h.Metrics != nil {
		h.Metrics.BatchesExecuted.Inc()
		h.Metrics.TradesExecuted.Add(float64(batch.MatchCount))
		h.Metrics.TradeVolume.Add(float64(batch.TotalVolume))
	}

	return c.JSON(models.BatchResponse{
		BatchID:     batch.BatchID,
		MatchCount:  batch.MatchCount,
		TotalVolume: batch.TotalVolume,
		CreatedAt:   batch.CreatedAt,
		ExpiresAt:   batch.ExpiresAt,
	})
}

func (h *ExchangeHandler) AutoMatch(c *fiber.Ctx) error {
	var req models.AutoMatchRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request: malformed JSON")
	}
	if req.MaxMatches <= 0 {
		req.MaxMatches = 16
	}

	trades, err := h.Market.AutoMatch(req.MaxMatches)
	if err != nil {
		// edge case: trades executed before the failure already settled
		if len(trades) == 0 {
			return fail(c, h.Metrics, "auto_match", err)
		}
		log.Warn().
			Err(err).
			Int("executed", len(trades)).
			Msg("Auto-match stopped early")
	}

	out := models.AutoMatchResponse{Trades: make([]models.TradeResponse, len(trades))}
	for i, t := range trades {
		h.countTrade(t.Amount)
		out.Trades[i] = tradeResponse(t)
	}
	return c.JSON(out)
}

func (h *ExchangeHandler) GetDepth(c *fiber.Ctx) error {
	bids, asks, err := h.Market.Depth()
	if err != nil {
		return fail(c, h.Metrics, "get_depth", err)
	}
	return c.JSON(models.DepthResponse{
		Timestamp: time.Now().UnixMilli(),
		Bids:      levelInfos(bids),
		Asks:      levelInfos(asks),
	})
}

func (h *ExchangeHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.Market.Stats()
	if err != nil {
		return fail(c, h.Metrics, "get_stats", err)
	}
	return c.JSON(models.MarketStatsResponse{
		Authority:           stats.Authority,
		TotalVolume:         stats.TotalVolume,
		TotalTrades:         stats.TotalTrades,
		ActiveOrders:        stats.ActiveOrders,
		MarketFeeBps:        stats.MarketFeeBps,
		ClearingEnabled:     stats.ClearingEnabled,
		LastClearingPrice:   stats.LastClearingPrice,
		LastDeviationBps:    stats.LastDeviationBps,
		VolumeWeightedPrice: stats.VolumeWeightedPrice,
		PriceHistoryCount:   stats.PriceHistoryCount,
		CreatedAt:           stats.CreatedAt,
	})
}

func (h *ExchangeHandler) GetPriceHistory(c *fiber.Ctx) error {
	history, err := h.Market.PriceHistory()
	if err != nil {
		return fail(c, h.Metrics, "get_price_history", err)
	}
	out := make([]models.PricePointInfo, len(history))
	for i, p := range history {
		out[i] = models.PricePointInfo{Price: p.Price, Volume: p.Volume, Timestamp: p.Timestamp}
	}
	return c.JSON(out)
}

func (h *ExchangeHandler) GetTrades(c *fiber.Ctx) error {
	trades, err := h.Market.Trades()
	if err != nil {
		return fail(c, h.Metrics, "get_trades", err)
	}
	out := make([]models.TradeResponse, len(trades))
	for i := range trades {
		out[i] = tradeResponse(&trades[i])
	}
	return c.JSON(out)
}

func (h *ExchangeHandler) UpdateMarketParams(c *fiber.Ctx) error {
	var req models.UpdateMarketParamsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request: malformed JSON")
	}
	if err := h.Market.UpdateParams(req.Authority, req.MarketFeeBps, req.ClearingEnabled); err != nil {
		return fail(c, h.Metrics, "update_market_params", err)
	}
	return h.GetStats(c)
}

func (h *ExchangeHandler) UpdateBatchConfig(c *fiber.Ctx) error {
	var req models.UpdateBatchConfigRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request: malformed JSON")
	}
	err := h.Market.UpdateBatchConfig(req.Authority, engine.BatchConfig{
		MaxBatchSize:        req.MaxBatchSize,
		BatchTimeoutSeconds: req.TimeoutSeconds,
		MinBatchSize:        req.MinBatchSize,
		PriceImprovementPct: req.PriceImprovementPct,
	})
	if err != nil {
		return fail(c, h.Metrics, "update_batch_config", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ExchangeHandler) HealthCheck(c *fiber.Ctx) error {
	resp := models.HealthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.StartTime).Seconds()),
	}
	// edge case: a held market latch must not fail the health probe
	if stats, err := h.Market.Stats(); err == nil {
		resp.ActiveOrders = stats.ActiveOrders
		resp.TotalTrades = stats.TotalTrades
	}
	return c.JSON(resp)
}

func (h *ExchangeHandler) countTrade(volume uint64) {
	if h.Metrics == nil {
		return
	}
	h.Metrics.TradesExecuted.Inc()
	h.Metrics.TradeVolume.Add(float64(volume))
}

func orderResponse(view engine.OrderView) models.OrderResponse {
	participant := view.Seller
	side := "SELL"
	if view.Type == engine.TypeBuy {
		participant = view.Buyer
		side = "BUY"
	}
	return models.OrderResponse{
		OrderID:      view.ID,
		Side:         side,
		Participant:  participant,
		Amount:       view.Amount,
		FilledAmount: view.FilledAmount,
		PricePerUnit: view.PricePerUnit,
		Status:       string(view.Status),
		CreatedAt:    view.CreatedAt,
		ExpiresAt:    view.ExpiresAt,
	}
}

func tradeResponse(t *engine.TradeRecord) models.TradeResponse {
	return models.TradeResponse{
		TradeID:     t.ID,
		BuyOrderID:  t.BuyOrderID,
		SellOrderID: t.SellOrderID,
		Buyer:       t.Buyer,
		Seller:      t.Seller,
		Amount:      t.Amount,
		Price:       t.Price,
		TotalValue:  t.TotalValue,
		FeeAmount:   t.FeeAmount,
		ExecutedAt:  t.ExecutedAt,
	}
}

func levelInfos(levels []engine.PriceLevel) []models.PriceLevelInfo {
	out := make([]models.PriceLevelInfo, len(levels))
	for i, l := range levels {
		out[i] = models.PriceLevelInfo{
			Price:       l.Price,
			TotalAmount: l.TotalAmount,
			OrderCount:  l.OrderCount,
		}
	}
	return out
}

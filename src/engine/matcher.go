package engine

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"grid-exchange/src/events"
)

// Pairwise matching and settlement. All entry points follow the same
// shape: acquire the market latch, look up and latch the orders,
// validate everything, compute the full money movement, hand it to the
// settler, and only then mutate state. A failure at any step leaves
// zero partial effect because no write happens before the last check
// passes.

// BatchEntry names one pre-matched pair for ExecuteBatch.
type BatchEntry struct {
	BuyOrderID     string
	SellOrderID    string
	Amount         uint64
	Price          uint64
	WheelingCharge uint64
}

// MatchOrders executes a directed match between two specific resting
// orders at the derived clearing price. amount is a hint; the executed
// quantity is clamped to both remainings.
func (m *Market) MatchOrders(buyOrderID, sellOrderID string, amount uint64) (*TradeRecord, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	if err := m.tryAcquire(); err != nil {
		return nil, err
	}
	defer m.release()

	buy, sell, err := m.lookupPair(buyOrderID, sellOrderID)
	if err != nil {
		return nil, err
	}
	if !acquirePair(buy, sell) {
		return nil, ErrRecordBusy
	}
	defer releasePair(buy, sell)

	now := m.clock()
	if err := m.validatePair(buy, sell, now); err != nil {
		return nil, err
	}

	actual := min(amount, buy.Remaining(), sell.Remaining())
	price := m.clearingPrice(buy.PricePerUnit, sell.PricePerUnit, actual)

	terms, err := m.computeTerms(buy, sell, actual, price, 0)
	if err != nil {
		return nil, err
	}
	if m.settler != nil {
		if err := m.settler.Settle(terms); err != nil {
			return nil, err
		}
	}
	return m.applyMatch(buy, sell, terms, now, true), nil
}

// ExecuteSettlement settles one pre-matched pair at an externally
// supplied price with an explicit wheeling charge. Unlike MatchOrders
// the amount must fit both orders exactly rather than being clamped.
func (m *Market) ExecuteSettlement(buyOrderID, sellOrderID string, amount, price, wheelingCharge uint64) (*TradeRecord, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	if price == 0 {
		return nil, ErrInvalidPrice
	}
	if err := m.tryAcquire(); err != nil {
		return nil, err
	}
	defer m.release()

	buy, sell, err := m.lookupPair(buyOrderID, sellOrderID)
	if err != nil {
		return nil, err
	}
	if !acquirePair(buy, sell) {
		return nil, ErrRecordBusy
	}
	defer releasePair(buy, sell)

	now := m.clock()
	if err := m.validatePair(buy, sell, now); err != nil {
		return nil, err
	}
	if amount > buy.Remaining() || amount > sell.Remaining() {
		return nil, ErrInvalidAmount
	}
	// edge case: the settlement price must sit inside both limits
	if price > buy.PricePerUnit || price < sell.PricePerUnit {
		return nil, ErrPriceMismatch
	}

	terms, err := m.computeTerms(buy, sell, amount, price, wheelingCharge)
	if err != nil {
		return nil, err
	}
	if m.settler != nil {
		if err := m.settler.Settle(terms); err != nil {
			return nil, err
		}
	}
	return m.applyMatch(buy, sell, terms, now, false), nil
}

// ExecuteBatch settles up to MaxBatchSize pre-matched pairs as one
// atomic unit: every entry is validated and priced before any transfer,
// the settler moves all funds in one all-or-nothing step, and only then
// is order and market state advanced. Authority only.
func (m *Market) ExecuteBatch(caller string, entries []BatchEntry) (BatchInfo, error) {
	if err := m.tryAcquire(); err != nil {
		return BatchInfo{}, err
	}
	defer m.release()

	if caller != m.Authority {
		return BatchInfo{}, ErrUnauthorizedAuthority
	}
	if !m.clearingEnabled {
		return BatchInfo{}, ErrBatchProcessingDisabled
	}
	if len(entries) == 0 || uint32(len(entries)) > m.batchCfg.MaxBatchSize {
		return BatchInfo{}, ErrBatchSizeExceeded
	}

	now := m.clock()

	type staged struct {
		buy, sell *Order
		terms     SettlementTerms
	}
	var acquired []*Order
	defer func() {
		for _, o := range acquired {
			o.Release()
		}
	}()

	plan := make([]staged, 0, len(entries))
	allTerms := make([]SettlementTerms, 0, len(entries))
	for _, e := range entries {
		if e.Amount == 0 {
			return BatchInfo{}, ErrInvalidAmount
		}
		if e.Price == 0 {
			return BatchInfo{}, ErrInvalidPrice
		}
		buy, sell, err := m.lookupPair(e.BuyOrderID, e.SellOrderID)
		if err != nil {
			return BatchInfo{}, err
		}
		// edge case: an order named twice in one batch reads as busy
		if !buy.TryAcquire() {
			return BatchInfo{}, ErrRecordBusy
		}
		acquired = append(acquired, buy)
		if !sell.TryAcquire() {
			return BatchInfo{}, ErrRecordBusy
		}
		acquired = append(acquired, sell)

		if err := m.validatePair(buy, sell, now); err != nil {
			return BatchInfo{}, err
		}
		if e.Amount > buy.Remaining() || e.Amount > sell.Remaining() {
			return BatchInfo{}, ErrInvalidAmount
		}
		if e.Price > buy.PricePerUnit || e.Price < sell.PricePerUnit {
			return BatchInfo{}, ErrPriceMismatch
		}
		terms, err := m.computeTerms(buy, sell, e.Amount, e.Price, e.WheelingCharge)
		if err != nil {
			return BatchInfo{}, err
		}
		plan = append(plan, staged{buy: buy, sell: sell, terms: terms})
		allTerms = append(allTerms, terms)
	}

	if m.settler != nil {
		if err := m.settler.SettleAll(allTerms); err != nil {
			return BatchInfo{}, err
		}
	}

	var batchVolume uint64
	for _, s := range plan {
		m.applyMatch(s.buy, s.sell, s.terms, now, false)
		batchVolume = SaturatingAdd(batchVolume, s.terms.Amount)
	}

	batch := BatchInfo{
		BatchID:     uint64(now),
		MatchCount:  uint32(len(plan)),
		TotalVolume: batchVolume,
		CreatedAt:   now,
		ExpiresAt:   now + int64(m.batchCfg.BatchTimeoutSeconds),
	}
	m.currentBatch = batch
	m.hasCurrentBatch = true

	m.emitter.Emit(events.BatchExecuted{
		BatchID:     batch.BatchID,
		Authority:   caller,
		MatchCount:  batch.MatchCount,
		TotalVolume: batch.TotalVolume,
		Timestamp:   now,
	})

	log.Info().
		Uint64("batch_id", batch.BatchID).
		Uint32("match_count", batch.MatchCount).
		Uint64("total_volume", batch.TotalVolume).
		Msg("Batch executed")

	return batch, nil
}

// AutoMatch crosses the book by price-time priority until prices no
// longer cross or maxMatches trades have executed. When the best bid
// cannot absorb the whole best ask level, the bid's remaining quantity
// is allocated pro-rata across the level's orders.
func (m *Market) AutoMatch(maxMatches int) ([]*TradeRecord, error) {
	if maxMatches <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := m.tryAcquire(); err != nil {
		return nil, err
	}
	defer m.release()

	now := m.clock()
	var out []*TradeRecord

	for len(out) < maxMatches {
		bidLevel := m.book.bestBid()
		askLevel := m.book.bestAsk()
		if bidLevel == nil || askLevel == nil || bidLevel.Price < askLevel.Price {
			break
		}

		buy := m.firstLive(bidLevel, now)
		if buy == nil {
			if len(bidLevel.Orders) == 0 {
				continue // level pruned, re-read the book
			}
			break
		}

		sellers := m.liveCounterparties(askLevel, buy.Buyer, now)
		if len(sellers) == 0 {
			// edge case: only self-trades cross; nothing executable
			break
		}

		allocations := allocateAcross(buy.Remaining(), sellers)
		matched := false
		for i, sell := range sellers {
			if allocations[i] == 0 || len(out) >= maxMatches {
				break
			}
			if !acquirePair(buy, sell) {
				return out, ErrRecordBusy
			}
			price := m.clearingPrice(buy.PricePerUnit, sell.PricePerUnit, allocations[i])
			terms, err := m.computeTerms(buy, sell, allocations[i], price, 0)
			if err != nil {
				releasePair(buy, sell)
				return out, err
			}
			if m.settler != nil {
				if err := m.settler.Settle(terms); err != nil {
					releasePair(buy, sell)
					return out, err
				}
			}
			out = append(out, m.applyMatch(buy, sell, terms, now, true))
			releasePair(buy, sell)
			matched = true
			if !buy.Live() {
				break
			}
		}
		if !matched {
			break
		}
	}
	return out, nil
}

// allocateAcross splits total over the sellers' remaining quantities.
// When total covers everything each seller gets its full remaining;
// otherwise shares are pro-rata by remaining with the rounding
// remainder handed out in time priority, one unit at a time.
func allocateAcross(total uint64, sellers []*Order) []uint64 {
	remainings := make([]uint64, len(sellers))
	var sum uint64
	for i, s := range sellers {
		remainings[i] = s.Remaining()
		sum = SaturatingAdd(sum, remainings[i])
	}
	if total >= sum {
		return remainings
	}

	allocations := make([]uint64, len(sellers))
	var given uint64
	for i := range sellers {
		allocations[i] = MulDiv(remainings[i], total, sum)
		given += allocations[i]
	}
	for leftover := total - given; leftover > 0; {
		progressed := false
		for i := range allocations {
			if leftover == 0 {
				break
			}
			if allocations[i] < remainings[i] {
				allocations[i]++
				leftover--
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	return allocations
}

// firstLive returns the oldest live order at the level, lazily expiring
// anything past its horizon along the way.
func (m *Market) firstLive(level *restingLevel, now int64) *Order {
	for len(level.Orders) > 0 {
		candidate := level.Orders[0]
		if !candidate.TryAcquire() {
			return nil
		}
		if candidate.expiredAt(now) {
			m.expireLocked(candidate)
			candidate.Release()
			continue
		}
		if !candidate.Live() {
			m.book.remove(candidate)
			candidate.Release()
			continue
		}
		candidate.Release()
		return candidate
	}
	return nil
}

// liveCounterparties snapshots the level's live orders excluding the
// buyer's own, expiring stale entries lazily.
func (m *Market) liveCounterparties(level *restingLevel, buyer string, now int64) []*Order {
	out := make([]*Order, 0, len(level.Orders))
	i := 0
	for i < len(level.Orders) {
		candidate := level.Orders[i]
		if !candidate.TryAcquire() {
			i++
			continue
		}
		if candidate.expiredAt(now) {
			m.expireLocked(candidate)
			candidate.Release()
			continue // removal shifted the slice
		}
		if !candidate.Live() {
			m.book.remove(candidate)
			candidate.Release()
			continue
		}
		candidate.Release()
		if candidate.Seller != buyer {
			out = append(out, candidate)
		}
		i++
	}
	return out
}

func (m *Market) lookupPair(buyOrderID, sellOrderID string) (*Order, *Order, error) {
	buy, ok := m.orders[buyOrderID]
	if !ok {
		return nil, nil, ErrOrderNotFound
	}
	sell, ok := m.orders[sellOrderID]
	if !ok {
		return nil, nil, ErrOrderNotFound
	}
	return buy, sell, nil
}

func acquirePair(buy, sell *Order) bool {
	if !buy.TryAcquire() {
		return false
	}
	if !sell.TryAcquire() {
		buy.Release()
		return false
	}
	return true
}

func releasePair(buy, sell *Order) {
	sell.Release()
	buy.Release()
}

// validatePair runs the full pre-trade rule set. Caller holds the
// market latch and both order latches.
func (m *Market) validatePair(buy, sell *Order, now int64) error {
	if buy.Type != TypeBuy || sell.Type != TypeSell {
		return ErrInvalidOrderState
	}
	expired := false
	if buy.expiredAt(now) {
		m.expireLocked(buy)
		expired = true
	}
	if sell.expiredAt(now) {
		m.expireLocked(sell)
		expired = true
	}
	if expired {
		return ErrOrderExpired
	}
	if !buy.Live() || !sell.Live() {
		return ErrInactiveOrder
	}
	if buy.PricePerUnit < sell.PricePerUnit {
		return ErrPriceMismatch
	}
	if buy.Buyer == sell.Seller {
		return ErrSelfTradeNotAllowed
	}
	return nil
}

// computeTerms prices the match and splits the proceeds: fee to the
// market, wheeling charge to the grid operator, the rest to the seller.
func (m *Market) computeTerms(buy, sell *Order, amount, price, wheelingCharge uint64) (SettlementTerms, error) {
	totalValue, ok := CheckedMul(amount, price)
	if !ok {
		return SettlementTerms{}, ErrMathOverflow
	}
	fee := MulDiv(totalValue, uint64(m.feeBps), 10000)
	charges := SaturatingAdd(fee, wheelingCharge)
	// edge case: combined charges may not exceed the trade value
	if charges > totalValue {
		return SettlementTerms{}, ErrInvalidAmount
	}
	return SettlementTerms{
		BuyOrderID:     buy.ID,
		SellOrderID:    sell.ID,
		Buyer:          buy.Buyer,
		Seller:         sell.Seller,
		Amount:         amount,
		Price:          price,
		TotalValue:     totalValue,
		FeeAmount:      fee,
		WheelingCharge: wheelingCharge,
		NetSellerValue: totalValue - charges,
	}, nil
}

// applyMatch mutates order and market state for a settled trade and
// records the audit entry. All validation and fund movement has already
// succeeded; nothing here can fail.
func (m *Market) applyMatch(buy, sell *Order, terms SettlementTerms, now int64, sample bool) *TradeRecord {
	if sample {
		m.recordTrade(terms.Price, terms.Amount, now)
	} else {
		m.lastDeviationBps = DeviationBps(m.lastClearingPrice, terms.Price)
		m.lastClearingPrice = terms.Price
	}

	m.applyFill(buy, terms.Amount)
	m.applyFill(sell, terms.Amount)
	m.totalVolume = SaturatingAdd(m.totalVolume, terms.Amount)
	m.totalTrades++

	trade := &TradeRecord{
		ID:          uuid.New().String(),
		BuyOrderID:  buy.ID,
		SellOrderID: sell.ID,
		Buyer:       terms.Buyer,
		Seller:      terms.Seller,
		Amount:      terms.Amount,
		Price:       terms.Price,
		TotalValue:  terms.TotalValue,
		FeeAmount:   terms.FeeAmount,
		ExecutedAt:  now,
	}
	m.trades = append(m.trades, trade)

	m.emitter.Emit(events.TradeExecuted{
		TradeID:     trade.ID,
		BuyOrderID:  trade.BuyOrderID,
		SellOrderID: trade.SellOrderID,
		Buyer:       trade.Buyer,
		Seller:      trade.Seller,
		Amount:      trade.Amount,
		Price:       trade.Price,
		TotalValue:  trade.TotalValue,
		FeeAmount:   trade.FeeAmount,
		Timestamp:   now,
	})

	return trade
}

// applyFill advances one side of a trade and keeps depth, the resting
// book and active_orders consistent with the new remaining amount.
func (m *Market) applyFill(order *Order, qty uint64) {
	order.fill(qty)
	m.depthReduce(order.Type, order.PricePerUnit, qty, order.Status == StatusCompleted)
	if order.Status == StatusCompleted {
		m.book.remove(order)
		m.activeOrdersDec()
	}
}

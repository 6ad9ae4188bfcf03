package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSettler captures the terms it is asked to settle and can be
// primed to reject.
type recordingSettler struct {
	settled []SettlementTerms
	fail    error
}

func (s *recordingSettler) Settle(terms SettlementTerms) error {
	return s.SettleAll([]SettlementTerms{terms})
}

func (s *recordingSettler) SettleAll(terms []SettlementTerms) error {
	if s.fail != nil {
		return s.fail
	}
	s.settled = append(s.settled, terms...)
	return nil
}

func TestMatchOrdersHappyPath(t *testing.T) {
	clock := &testClock{now: 1000}
	settler := &recordingSettler{}
	m := newTestMarket(t, clock, WithSettler(settler))

	buy, err := m.CreateBuyOrder(context.Background(), "alice", 500, 120)
	require.NoError(t, err)
	sell, err := m.CreateSellOrder(context.Background(), "bob", 800, 100, "")
	require.NoError(t, err)

	trade, err := m.MatchOrders(buy.ID, sell.ID, 500)
	require.NoError(t, err)

	assert.Equal(t, uint64(500), trade.Amount)
	assert.Equal(t, uint64(110), trade.Price) // first trade: midpoint
	assert.Equal(t, uint64(55000), trade.TotalValue)
	assert.Equal(t, uint64(55000*DefaultMarketFeeBps/10000), trade.FeeAmount)

	require.Len(t, settler.settled, 1)
	terms := settler.settled[0]
	assert.Equal(t, "alice", terms.Buyer)
	assert.Equal(t, "bob", terms.Seller)
	assert.Equal(t, terms.TotalValue-terms.FeeAmount, terms.NetSellerValue)

	buyView, err := m.OrderSnapshot(buy.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, buyView.Status)

	sellView, err := m.OrderSnapshot(sell.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPartiallyFilled, sellView.Status)
	assert.Equal(t, uint64(500), sellView.FilledAmount)

	stats, err := m.Stats()
	require.NoError(t, err)
	assert.Equal(t, uint64(500), stats.TotalVolume)
	assert.Equal(t, uint64(1), stats.TotalTrades)
	assert.Equal(t, uint32(1), stats.ActiveOrders, "completed buy leaves only the resting sell")
}

func TestMatchOrdersClampsAmount(t *testing.T) {
	clock := &testClock{now: 1000}
	m := newTestMarket(t, clock)

	buy, _ := m.CreateBuyOrder(context.Background(), "alice", 300, 100)
	sell, _ := m.CreateSellOrder(context.Background(), "bob", 200, 100, "")

	trade, err := m.MatchOrders(buy.ID, sell.ID, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), trade.Amount)
}

func TestMatchOrdersRejections(t *testing.T) {
	clock := &testClock{now: 1000}
	m := newTestMarket(t, clock)

	buy, _ := m.CreateBuyOrder(context.Background(), "alice", 100, 90)
	sell, _ := m.CreateSellOrder(context.Background(), "bob", 100, 100, "")
	own, _ := m.CreateSellOrder(context.Background(), "alice", 100, 80, "")

	_, err := m.MatchOrders(buy.ID, sell.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	// buy limit below sell limit
	_, err = m.MatchOrders(buy.ID, sell.ID, 100)
	assert.ErrorIs(t, err, ErrPriceMismatch)

	// both sides owned by the same participant
	_, err = m.MatchOrders(buy.ID, own.ID, 100)
	assert.ErrorIs(t, err, ErrSelfTradeNotAllowed)

	// swapped sides
	_, err = m.MatchOrders(sell.ID, buy.ID, 100)
	assert.ErrorIs(t, err, ErrInvalidOrderState)

	_, err = m.MatchOrders(buy.ID, "missing", 100)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

// TestMatchExpiresLazily advances past the horizon: the match must
// first transition the stale order to Expired, then reject.
func TestMatchExpiresLazily(t *testing.T) {
	clock := &testClock{now: 1000}
	m := newTestMarket(t, clock)

	buy, _ := m.CreateBuyOrder(context.Background(), "alice", 100, 110)
	sell, _ := m.CreateSellOrder(context.Background(), "bob", 100, 100, "")

	clock.now += DefaultExpiryHorizon + 1

	_, err := m.MatchOrders(buy.ID, sell.ID, 100)
	assert.ErrorIs(t, err, ErrOrderExpired)

	buyView, err := m.OrderSnapshot(buy.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, buyView.Status)

	stats, err := m.Stats()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), stats.ActiveOrders)
	assert.Equal(t, uint64(0), stats.TotalTrades)
}

func TestMatchSettlerRejectionLeavesZeroEffect(t *testing.T) {
	clock := &testClock{now: 1000}
	boom := errors.New("no funds")
	m := newTestMarket(t, clock, WithSettler(&recordingSettler{fail: boom}))

	buy, _ := m.CreateBuyOrder(context.Background(), "alice", 100, 110)
	sell, _ := m.CreateSellOrder(context.Background(), "bob", 100, 100, "")

	_, err := m.MatchOrders(buy.ID, sell.ID, 100)
	assert.ErrorIs(t, err, boom)

	buyView, _ := m.OrderSnapshot(buy.ID)
	assert.Equal(t, StatusActive, buyView.Status)
	assert.Equal(t, uint64(0), buyView.FilledAmount)

	sellView, _ := m.OrderSnapshot(sell.ID)
	assert.Equal(t, StatusActive, sellView.Status)

	stats, _ := m.Stats()
	assert.Equal(t, uint64(0), stats.TotalTrades)
	assert.Equal(t, uint32(2), stats.ActiveOrders)
}

func TestCancelOrder(t *testing.T) {
	clock := &testClock{now: 1000}
	m := newTestMarket(t, clock)

	sell, _ := m.CreateSellOrder(context.Background(), "bob", 100, 100, "")

	// authorization is checked before anything else
	err := m.CancelOrder(sell.ID, "mallory")
	assert.ErrorIs(t, err, ErrUnauthorizedAuthority)

	require.NoError(t, m.CancelOrder(sell.ID, "bob"))

	view, _ := m.OrderSnapshot(sell.ID)
	assert.Equal(t, StatusCancelled, view.Status)

	// terminal records are immutable
	err = m.CancelOrder(sell.ID, "bob")
	assert.ErrorIs(t, err, ErrInvalidOrderState)

	stats, _ := m.Stats()
	assert.Equal(t, uint32(0), stats.ActiveOrders)
	_, asks, _ := m.Depth()
	assert.Empty(t, asks)
}

func TestExecuteSettlementValidatesBounds(t *testing.T) {
	clock := &testClock{now: 1000}
	settler := &recordingSettler{}
	m := newTestMarket(t, clock, WithSettler(settler))

	buy, _ := m.CreateBuyOrder(context.Background(), "alice", 100, 120)
	sell, _ := m.CreateSellOrder(context.Background(), "bob", 100, 100, "")

	// amount larger than remaining is rejected, not clamped
	_, err := m.ExecuteSettlement(buy.ID, sell.ID, 150, 110, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	// price outside the two limits
	_, err = m.ExecuteSettlement(buy.ID, sell.ID, 100, 130, 0)
	assert.ErrorIs(t, err, ErrPriceMismatch)
	_, err = m.ExecuteSettlement(buy.ID, sell.ID, 100, 90, 0)
	assert.ErrorIs(t, err, ErrPriceMismatch)

	trade, err := m.ExecuteSettlement(buy.ID, sell.ID, 100, 110, 40)
	require.NoError(t, err)
	assert.Equal(t, uint64(110), trade.Price)

	require.Len(t, settler.settled, 1)
	terms := settler.settled[0]
	assert.Equal(t, uint64(40), terms.WheelingCharge)
	assert.Equal(t, terms.TotalValue-terms.FeeAmount-40, terms.NetSellerValue)
}

func TestAutoMatchBestLevelFirst(t *testing.T) {
	clock := &testClock{now: 1000}
	m := newTestMarket(t, clock)

	// two sellers at the best price split the buy pro-rata; the worse
	// priced seller is not touched
	first, _ := m.CreateSellOrder(context.Background(), "s1", 100, 100, "")
	second, _ := m.CreateSellOrder(context.Background(), "s2", 100, 100, "")
	worse, _ := m.CreateSellOrder(context.Background(), "s3", 100, 105, "")

	m.CreateBuyOrder(context.Background(), "buyer", 150, 110)

	trades, err := m.AutoMatch(10)
	require.NoError(t, err)
	require.Len(t, trades, 2)

	assert.Equal(t, first.ID, trades[0].SellOrderID)
	assert.Equal(t, uint64(75), trades[0].Amount)
	assert.Equal(t, second.ID, trades[1].SellOrderID)
	assert.Equal(t, uint64(75), trades[1].Amount)

	worseView, _ := m.OrderSnapshot(worse.ID)
	assert.Equal(t, StatusActive, worseView.Status, "non-crossing level untouched")

	// a fresh buyer drains the residual best level before the worse one
	m.CreateBuyOrder(context.Background(), "buyer2", 50, 110)
	trades, err = m.AutoMatch(10)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, first.ID, trades[0].SellOrderID)
	assert.Equal(t, second.ID, trades[1].SellOrderID)
	for _, tr := range trades {
		assert.Equal(t, uint64(25), tr.Amount)
	}
}

// TestAutoMatchProRata gives one buyer less than a level's total: the
// fill splits proportionally to each resting order's remaining amount.
func TestAutoMatchProRata(t *testing.T) {
	clock := &testClock{now: 1000}
	m := newTestMarket(t, clock)

	a, _ := m.CreateSellOrder(context.Background(), "s1", 300, 100, "")
	b, _ := m.CreateSellOrder(context.Background(), "s2", 100, 100, "")

	m.CreateBuyOrder(context.Background(), "buyer", 200, 100)

	trades, err := m.AutoMatch(10)
	require.NoError(t, err)
	require.Len(t, trades, 2)

	byID := map[string]uint64{}
	for _, tr := range trades {
		byID[tr.SellOrderID] = tr.Amount
	}
	assert.Equal(t, uint64(150), byID[a.ID])
	assert.Equal(t, uint64(50), byID[b.ID])
}

func TestAutoMatchSkipsSelfTrade(t *testing.T) {
	clock := &testClock{now: 1000}
	m := newTestMarket(t, clock)

	m.CreateSellOrder(context.Background(), "alice", 100, 100, "")
	other, _ := m.CreateSellOrder(context.Background(), "bob", 100, 100, "")
	m.CreateBuyOrder(context.Background(), "alice", 100, 100)

	trades, err := m.AutoMatch(10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, other.ID, trades[0].SellOrderID)
}

func TestAllocateAcrossDistributesRemainder(t *testing.T) {
	sellers := []*Order{
		{Amount: 3},
		{Amount: 3},
		{Amount: 3},
	}
	got := allocateAcross(7, sellers)
	var sum uint64
	for i, a := range got {
		assert.LessOrEqual(t, a, sellers[i].Remaining())
		sum += a
	}
	assert.Equal(t, uint64(7), sum)
	// earlier orders receive the rounding remainder first
	assert.GreaterOrEqual(t, got[0], got[2])
}

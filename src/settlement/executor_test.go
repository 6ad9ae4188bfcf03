package settlement

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grid-exchange/src/engine"
)

func fundedLedger(t *testing.T) *Ledger {
	t.Helper()
	l := NewLedger()
	require.NoError(t, l.Deposit("buyer", AssetCurrency, 100_000))
	require.NoError(t, l.Deposit("seller", AssetEnergy, 1_000))
	return l
}

// TestExecutorSplitsProceeds settles one pair and verifies the fixed
// movement order lands the fee with the collector, the wheeling charge
// with the grid operator, the net with the seller and the energy with
// the buyer.
func TestExecutorSplitsProceeds(t *testing.T) {
	l := fundedLedger(t)
	e := NewExecutor(l, "fees", "grid")

	err := e.Settle(engine.SettlementTerms{
		Buyer:          "buyer",
		Seller:         "seller",
		Amount:         100,
		Price:          110,
		TotalValue:     11_000,
		FeeAmount:      27,
		WheelingCharge: 40,
		NetSellerValue: 10_933,
	})
	require.NoError(t, err)

	fees, _ := l.BalancesOf("fees")
	grid, _ := l.BalancesOf("grid")
	buyer, _ := l.BalancesOf("buyer")
	seller, _ := l.BalancesOf("seller")

	assert.Equal(t, uint64(27), fees.Currency)
	assert.Equal(t, uint64(40), grid.Currency)
	assert.Equal(t, uint64(100_000-11_000), buyer.Currency)
	assert.Equal(t, uint64(100), buyer.Energy)
	assert.Equal(t, uint64(10_933), seller.Currency)
	assert.Equal(t, uint64(900), seller.Energy)
}

func TestExecutorSkipsZeroCharges(t *testing.T) {
	l := fundedLedger(t)
	e := NewExecutor(l, "fees", "grid")

	err := e.Settle(engine.SettlementTerms{
		Buyer:          "buyer",
		Seller:         "seller",
		Amount:         10,
		TotalValue:     1_000,
		NetSellerValue: 1_000,
	})
	require.NoError(t, err)

	fees, _ := l.BalancesOf("fees")
	grid, _ := l.BalancesOf("grid")
	assert.Zero(t, fees.Currency)
	assert.Zero(t, grid.Currency)
}

// TestExecutorBatchAllOrNothing funds the buyer for the first pair
// only: both pairs must fail together, leaving the first one unsettled.
func TestExecutorBatchAllOrNothing(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Deposit("buyer", AssetCurrency, 11_000))
	require.NoError(t, l.Deposit("seller", AssetEnergy, 1_000))
	e := NewExecutor(l, "fees", "grid")

	pair := engine.SettlementTerms{
		Buyer:          "buyer",
		Seller:         "seller",
		Amount:         100,
		TotalValue:     11_000,
		NetSellerValue: 11_000,
	}
	err := e.SettleAll([]engine.SettlementTerms{pair, pair})
	assert.ErrorIs(t, err, ErrInsufficientCurrency)

	buyer, _ := l.BalancesOf("buyer")
	seller, _ := l.BalancesOf("seller")
	assert.Equal(t, uint64(11_000), buyer.Currency)
	assert.Equal(t, uint64(0), buyer.Energy)
	assert.Equal(t, uint64(1_000), seller.Energy)
}

// TestMarketSettlesThroughExecutor wires the executor into a real
// market and checks a directed match moves funds end to end.
func TestMarketSettlesThroughExecutor(t *testing.T) {
	l := fundedLedger(t)
	e := NewExecutor(l, "fees", "grid")
	m := engine.NewMarket("authority", engine.WithSettler(e))

	buy, err := m.CreateBuyOrder(context.Background(), "buyer", 100, 120)
	require.NoError(t, err)
	sell, err := m.CreateSellOrder(context.Background(), "seller", 100, 100, "")
	require.NoError(t, err)

	trade, err := m.MatchOrders(buy.ID, sell.ID, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(110), trade.Price)

	buyer, _ := l.BalancesOf("buyer")
	seller, _ := l.BalancesOf("seller")
	fees, _ := l.BalancesOf("fees")

	assert.Equal(t, uint64(100), buyer.Energy)
	assert.Equal(t, uint64(100_000)-trade.TotalValue, buyer.Currency)
	assert.Equal(t, trade.TotalValue-trade.FeeAmount, seller.Currency)
	assert.Equal(t, trade.FeeAmount, fees.Currency)
}

// TestUnfundedMatchLeavesOrdersUntouched drives the fail-atomically
// path through the full stack: ledger rejection must abort the match
// with the orders still live.
func TestUnfundedMatchLeavesOrdersUntouched(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Deposit("seller", AssetEnergy, 1_000))
	e := NewExecutor(l, "fees", "grid")
	m := engine.NewMarket("authority", engine.WithSettler(e))

	buy, _ := m.CreateBuyOrder(context.Background(), "buyer", 100, 120)
	sell, _ := m.CreateSellOrder(context.Background(), "seller", 100, 100, "")

	_, err := m.MatchOrders(buy.ID, sell.ID, 100)
	assert.ErrorIs(t, err, ErrInsufficientCurrency)

	view, err := m.OrderSnapshot(buy.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusActive, view.Status)

	seller, _ := l.BalancesOf("seller")
	assert.Equal(t, uint64(1_000), seller.Energy)
}

package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClock is a settable clock for deterministic expiry and sampling.
type testClock struct {
	now int64
}

func (c *testClock) fn() func() int64 {
	return func() int64 { return c.now }
}

func newTestMarket(t *testing.T, clock *testClock, opts ...Option) *Market {
	t.Helper()
	opts = append([]Option{WithClock(clock.fn())}, opts...)
	return NewMarket("authority", opts...)
}

// TestFirstTradeClearsAtMidpoint verifies that with zero cumulative
// volume the volume weight falls back to zero and the trade clears at
// the exact midpoint of the two limits.
func TestFirstTradeClearsAtMidpoint(t *testing.T) {
	clock := &testClock{now: 1000}
	m := newTestMarket(t, clock)

	buy, err := m.CreateBuyOrder(context.Background(), "alice", 1000, 520)
	require.NoError(t, err)
	sell, err := m.CreateSellOrder(context.Background(), "bob", 1000, 480, "")
	require.NoError(t, err)

	trade, err := m.MatchOrders(buy.ID, sell.ID, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), trade.Price)

	stats, err := m.Stats()
	require.NoError(t, err)
	assert.Equal(t, uint64(500), stats.LastClearingPrice)
	assert.Equal(t, uint64(500), stats.VolumeWeightedPrice)
	assert.Equal(t, 1, stats.PriceHistoryCount)
}

func TestClearingPriceVolumeSkew(t *testing.T) {
	m := NewMarket("authority")
	m.totalVolume = 10000

	// trade volume equals cumulative volume: weight saturates at 1000,
	// adjustment is 10% of midpoint
	price := m.clearingPrice(500, 500, 10000)
	assert.Equal(t, uint64(550), price)

	// small trade: weight 100/10000, adjustment 1% of midpoint
	price = m.clearingPrice(500, 500, 1000)
	assert.Equal(t, uint64(505), price)

	// weight never exceeds the cap even for outsized trades
	price = m.clearingPrice(500, 500, 1_000_000)
	assert.Equal(t, uint64(550), price)
}

func TestMidpointDoesNotOverflow(t *testing.T) {
	const big = ^uint64(0) - 1
	assert.Equal(t, big, midpoint(big, big))
	assert.Equal(t, uint64(2), midpoint(1, 3))
	assert.Equal(t, uint64(2), midpoint(2, 3))
	assert.Equal(t, uint64(3), midpoint(3, 3))
}

func TestDeviationBps(t *testing.T) {
	assert.Equal(t, uint64(0), DeviationBps(0, 100))
	assert.Equal(t, uint64(0), DeviationBps(100, 100))
	assert.Equal(t, uint64(1000), DeviationBps(100, 110))
	assert.Equal(t, uint64(1000), DeviationBps(100, 90))
	// edge case: saturates instead of wrapping for huge moves
	assert.Equal(t, uint64(10000), DeviationBps(1, 1_000_000))
}

// TestPriceHistoryRingEviction fills all 24 slots and verifies shift
// semantics: the oldest sample leaves, count stays pinned at capacity.
func TestPriceHistoryRingEviction(t *testing.T) {
	m := NewMarket("authority")

	for i := 0; i < PriceHistorySize+5; i++ {
		m.pushSample(uint64(100+i), 10, int64(i))
	}

	assert.Equal(t, PriceHistorySize, m.priceHistoryCount)
	assert.Equal(t, uint64(100+5), m.priceHistory[0].Price)
	assert.Equal(t, uint64(100+PriceHistorySize+4), m.priceHistory[PriceHistorySize-1].Price)
}

func TestVolumeWeightedPrice(t *testing.T) {
	m := NewMarket("authority")
	m.pushSample(100, 100, 1)
	m.pushSample(200, 300, 2)
	m.priceHistoryCount = 2

	// (100*100 + 200*300) / 400 = 175
	assert.Equal(t, uint64(175), m.volumeWeightedPrice())
}

func TestVWAPZeroVolumeKeepsPrevious(t *testing.T) {
	m := NewMarket("authority")
	m.vwap = 123
	m.pushSample(100, 0, 1)
	assert.Equal(t, uint64(123), m.volumeWeightedPrice())
}

// TestLazySamplingPolicy exercises the three append triggers: first
// trade, active_orders divisible by ten, and the 60s staleness window.
func TestLazySamplingPolicy(t *testing.T) {
	clock := &testClock{now: 1000}
	m := newTestMarket(t, clock)

	// first trade always samples
	assert.True(t, m.shouldSample(clock.now))
	m.recordTrade(100, 10, clock.now)
	m.totalTrades = 1
	require.Equal(t, 1, m.priceHistoryCount)

	// active_orders not divisible by ten, within the staleness window
	m.activeOrders = 3
	clock.now += 10
	m.recordTrade(105, 10, clock.now)
	assert.Equal(t, 1, m.priceHistoryCount, "no-op call must not append")
	assert.Equal(t, uint64(105), m.lastClearingPrice, "clearing price still refreshed")

	// divisible by ten samples regardless of recency
	m.activeOrders = 10
	m.recordTrade(110, 10, clock.now)
	assert.Equal(t, 2, m.priceHistoryCount)

	// staleness window reopens sampling
	m.activeOrders = 3
	clock.now += priceSampleInterval + 1
	m.recordTrade(120, 10, clock.now)
	assert.Equal(t, 3, m.priceHistoryCount)
}

package engine

import "github.com/rs/zerolog/log"

// Clearing price and price-history maintenance. History updates are
// lazy: sampling every trade would make the hot path quadratic in the
// ring size, so a sample is only taken on the first trade ever, when
// active_orders is a multiple of ten, or when more than a minute has
// passed since the last sample. last_clearing_price is refreshed on
// every trade regardless.

const (
	// priceSampleInterval is the maximum staleness of the history ring.
	priceSampleInterval int64 = 60
	// deviationCapBps bounds the reported move between consecutive
	// clearing prices.
	deviationCapBps uint64 = 10000
)

// clearingPrice derives the execution price for a crossed pair: the
// midpoint of the two limit prices plus a volume-weighted skew toward
// the buyer's willingness to pay. Large trades relative to cumulative
// market volume move the price more, capped at 10% above the midpoint.
//
// edge case: the first trade ever has zero cumulative volume, so the
// weight falls back to zero and the trade clears exactly at midpoint
func (m *Market) clearingPrice(buyPrice, sellPrice, volume uint64) uint64 {
	base := midpoint(buyPrice, sellPrice)
	weight := CheckedDiv(SaturatingMul(volume, 1000), m.totalVolume, 0)
	if weight > 1000 {
		weight = 1000
	}
	adjustment := MulDiv(base, weight, 10000)
	return SaturatingAdd(base, adjustment)
}

// midpoint averages two prices without overflowing the sum.
func midpoint(a, b uint64) uint64 {
	return a/2 + b/2 + (a & b & 1)
}

// recordTrade refreshes the clearing price, logs outsized moves and
// applies the lazy sampling policy. Caller holds the market latch and
// has not yet incremented total_trades for this trade.
func (m *Market) recordTrade(price, volume uint64, now int64) {
	deviation := DeviationBps(m.lastClearingPrice, price)
	m.lastDeviationBps = deviation
	if m.lastClearingPrice != 0 && deviation >= uint64(m.batchCfg.PriceImprovementPct)*100 {
		log.Warn().
			Uint64("previous_price", m.lastClearingPrice).
			Uint64("price", price).
			Uint64("deviation_bps", deviation).
			Msg("Clearing price moved beyond threshold")
	}
	m.lastClearingPrice = price

	if !m.shouldSample(now) {
		return
	}
	m.pushSample(price, volume, now)
	m.vwap = m.volumeWeightedPrice()
}

func (m *Market) shouldSample(now int64) bool {
	if m.totalTrades == 0 || m.priceHistoryCount == 0 {
		return true
	}
	if m.activeOrders%10 == 0 {
		return true
	}
	last := m.priceHistory[m.priceHistoryCount-1].Timestamp
	return now-last > priceSampleInterval
}

// pushSample appends to the ring, shifting out the oldest sample once
// all slots are occupied so the window stays bounded.
func (m *Market) pushSample(price, volume uint64, now int64) {
	point := PricePoint{Price: price, Volume: volume, Timestamp: now}
	if m.priceHistoryCount < PriceHistorySize {
		m.priceHistory[m.priceHistoryCount] = point
		m.priceHistoryCount++
		return
	}
	copy(m.priceHistory[:], m.priceHistory[1:])
	m.priceHistory[PriceHistorySize-1] = point
}

// volumeWeightedPrice computes sum(price*volume)/sum(volume) over the
// retained samples with a 128-bit accumulator.
func (m *Market) volumeWeightedPrice() uint64 {
	var weighted uint128
	var totalVolume uint64
	for i := 0; i < m.priceHistoryCount; i++ {
		p := m.priceHistory[i]
		weighted = weighted.add(mul128(p.Price, p.Volume))
		totalVolume = SaturatingAdd(totalVolume, p.Volume)
	}
	// edge case: all samples carry zero volume
	return weighted.div(totalVolume, m.vwap)
}

// DeviationBps reports the absolute move from previous to current in
// basis points of previous, capped at deviationCapBps. A zero previous
// price reports zero rather than dividing by it.
func DeviationBps(previous, current uint64) uint64 {
	if previous == 0 {
		return 0
	}
	diff := current - previous
	if previous > current {
		diff = previous - current
	}
	bps := MulDiv(diff, 10000, previous)
	if bps > deviationCapBps {
		return deviationCapBps
	}
	return bps
}

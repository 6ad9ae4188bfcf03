package engine

// Aggregated market depth: two fixed arrays of at most DepthLevels
// entries, sell side ascending and buy side descending so index 0 is
// always the best price. Each PriceLevel tracks the sum of remaining
// amounts of live orders at that price.

// depthAdd merges amount into the level for price, inserting a new
// level at its sorted position when none exists. When the side is full
// and the price does not improve on the worst level, it is dropped
// from the aggregate view; the order itself still rests in the book.
func (m *Market) depthAdd(side OrderType, price, amount uint64) {
	levels, count := m.depthSide(side)

	for i := 0; i < *count; i++ {
		if levels[i].Price == price {
			levels[i].TotalAmount = SaturatingAdd(levels[i].TotalAmount, amount)
			levels[i].OrderCount++
			return
		}
	}

	pos := *count
	for i := 0; i < *count; i++ {
		if depthBetter(side, price, levels[i].Price) {
			pos = i
			break
		}
	}
	if pos >= DepthLevels {
		return
	}

	if *count < DepthLevels {
		*count++
	}
	// shift the tail down, discarding the worst level when full
	for i := *count - 1; i > pos; i-- {
		levels[i] = levels[i-1]
	}
	levels[pos] = PriceLevel{Price: price, TotalAmount: amount, OrderCount: 1}
}

// depthReduce subtracts amount from the level for price, decrementing
// the order count when an order left the level entirely. A level whose
// total reaches zero is removed and the tail shifted up.
func (m *Market) depthReduce(side OrderType, price, amount uint64, orderGone bool) {
	levels, count := m.depthSide(side)

	for i := 0; i < *count; i++ {
		if levels[i].Price != price {
			continue
		}
		levels[i].TotalAmount = SaturatingSub(levels[i].TotalAmount, amount)
		if orderGone && levels[i].OrderCount > 0 {
			levels[i].OrderCount--
		}
		if levels[i].TotalAmount == 0 || levels[i].OrderCount == 0 {
			for j := i; j < *count-1; j++ {
				levels[j] = levels[j+1]
			}
			*count--
			levels[*count] = PriceLevel{}
		}
		return
	}
}

func (m *Market) depthSide(side OrderType) (*[DepthLevels]PriceLevel, *int) {
	if side == TypeBuy {
		return &m.buyDepth, &m.buyDepthCount
	}
	return &m.sellDepth, &m.sellDepthCount
}

// depthBetter reports whether a belongs before b on the given side.
func depthBetter(side OrderType, a, b uint64) bool {
	if side == TypeBuy {
		return a > b
	}
	return a < b
}

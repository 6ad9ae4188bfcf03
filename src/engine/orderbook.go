package engine

import "github.com/google/btree"

// restingBook holds live orders by price level for the auto-matcher:
// bids sorted descending, asks ascending, FIFO within a level so time
// priority falls out of insertion order. The market latch serializes
// all access, so the book carries no lock of its own.

type restingLevel struct {
	Price  uint64
	Orders []*Order
}

type bidLevelItem struct {
	Level *restingLevel
}

func (b *bidLevelItem) Less(than btree.Item) bool {
	other := than.(*bidLevelItem)
	return b.Level.Price > other.Level.Price
}

type askLevelItem struct {
	Level *restingLevel
}

func (a *askLevelItem) Less(than btree.Item) bool {
	other := than.(*askLevelItem)
	return a.Level.Price < other.Level.Price
}

type restingBook struct {
	bids *btree.BTree
	asks *btree.BTree
}

func newRestingBook() *restingBook {
	return &restingBook{
		bids: btree.New(32),
		asks: btree.New(32),
	}
}

func (rb *restingBook) tree(side OrderType) *btree.BTree {
	if side == TypeBuy {
		return rb.bids
	}
	return rb.asks
}

func (rb *restingBook) probe(side OrderType, price uint64) btree.Item {
	if side == TypeBuy {
		return &bidLevelItem{Level: &restingLevel{Price: price}}
	}
	return &askLevelItem{Level: &restingLevel{Price: price}}
}

func levelOf(item btree.Item) *restingLevel {
	switch it := item.(type) {
	case *bidLevelItem:
		return it.Level
	case *askLevelItem:
		return it.Level
	}
	return nil
}

func (rb *restingBook) add(order *Order) {
	tree := rb.tree(order.Type)
	probe := rb.probe(order.Type, order.PricePerUnit)

	if existing := tree.Get(probe); existing != nil {
		level := levelOf(existing)
		level.Orders = append(level.Orders, order)
		return
	}

	level := levelOf(probe)
	level.Orders = append(level.Orders, order)
	tree.ReplaceOrInsert(probe)
}

func (rb *restingBook) remove(order *Order) {
	tree := rb.tree(order.Type)
	probe := rb.probe(order.Type, order.PricePerUnit)

	existing := tree.Get(probe)
	if existing == nil {
		return
	}
	level := levelOf(existing)
	for i, o := range level.Orders {
		if o.ID == order.ID {
			level.Orders = append(level.Orders[:i], level.Orders[i+1:]...)
			break
		}
	}
	// edge case: remove empty price level
	if len(level.Orders) == 0 {
		tree.Delete(probe)
	}
}

// bestBid returns the highest-priced bid level, nil when no bids rest.
func (rb *restingBook) bestBid() *restingLevel {
	if rb.bids.Len() == 0 {
		return nil
	}
	return levelOf(rb.bids.Min())
}

// bestAsk returns the lowest-priced ask level, nil when no asks rest.
func (rb *restingBook) bestAsk() *restingLevel {
	if rb.asks.Len() == 0 {
		return nil
	}
	return levelOf(rb.asks.Min())
}

package engine

import "sync"

type OrderType string

const (
	TypeSell OrderType = "SELL"
	TypeBuy  OrderType = "BUY"
)

type OrderStatus string

const (
	StatusActive          OrderStatus = "ACTIVE"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusCompleted       OrderStatus = "COMPLETED"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusExpired         OrderStatus = "EXPIRED"
)

// DefaultExpiryHorizon is the default order lifetime in seconds.
const DefaultExpiryHorizon int64 = 86400

// Order is an individually addressed record. Exactly one of Seller or
// Buyer is populated depending on side. Once Completed, Cancelled or
// Expired the record is terminal and never mutated again.
//
// edge case: prices are integer cents per kWh and amounts integer
// milli-kWh to avoid floating-point precision errors
type Order struct {
	ID           string
	Seller       string
	Buyer        string
	Amount       uint64
	FilledAmount uint64
	PricePerUnit uint64
	Type         OrderType
	Status       OrderStatus
	CreatedAt    int64
	ExpiresAt    int64

	latch sync.Mutex
}

// TryAcquire takes the order's single-writer hold without blocking.
func (o *Order) TryAcquire() bool {
	return o.latch.TryLock()
}

func (o *Order) Release() {
	o.latch.Unlock()
}

// Owner is the identity allowed to cancel the order.
func (o *Order) Owner() string {
	if o.Type == TypeBuy {
		return o.Buyer
	}
	return o.Seller
}

func (o *Order) Remaining() uint64 {
	return SaturatingSub(o.Amount, o.FilledAmount)
}

// Live reports whether the order can still participate in a match.
func (o *Order) Live() bool {
	return o.Status == StatusActive || o.Status == StatusPartiallyFilled
}

func (o *Order) expiredAt(now int64) bool {
	return o.Live() && now >= o.ExpiresAt
}

// fill advances FilledAmount and transitions the status. Callers hold
// the order latch and guarantee qty <= Remaining(), so filled_amount
// can never exceed amount.
func (o *Order) fill(qty uint64) {
	o.FilledAmount += qty
	if o.FilledAmount >= o.Amount {
		o.Status = StatusCompleted
	} else {
		o.Status = StatusPartiallyFilled
	}
}

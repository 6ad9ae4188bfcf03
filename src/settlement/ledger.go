package settlement

import (
	"errors"
	"sync"

	"grid-exchange/src/engine"
)

var (
	ErrInsufficientCurrency = errors.New("insufficient currency balance")
	ErrInsufficientEnergy   = errors.New("insufficient energy balance")
	ErrUnknownAsset         = errors.New("unknown asset")
)

// Asset distinguishes the two balances every participant holds.
type Asset string

const (
	AssetCurrency Asset = "CURRENCY"
	AssetEnergy   Asset = "ENERGY"
)

// Transfer is one directed balance movement.
type Transfer struct {
	From   string
	To     string
	Asset  Asset
	Amount uint64
}

// Balances is a point-in-time copy of one participant's holdings.
type Balances struct {
	Currency uint64
	Energy   uint64
}

// Ledger holds currency and energy balances in memory. It is a single
// record under the exchange's concurrency rule: writers take the latch
// with TryLock and fail fast with ErrRecordBusy instead of queuing.
//
// Apply is the only mutation path for trade settlement and it is
// all-or-nothing: the transfer list is simulated in full before any
// balance is written, so a rejection anywhere leaves every account
// untouched.
type Ledger struct {
	currency map[string]uint64
	energy   map[string]uint64

	latch sync.Mutex
}

func NewLedger() *Ledger {
	return &Ledger{
		currency: make(map[string]uint64),
		energy:   make(map[string]uint64),
	}
}

// Deposit credits an account outside of trade settlement. Used for
// funding participants and for tests.
func (l *Ledger) Deposit(account string, asset Asset, amount uint64) error {
	if !l.latch.TryLock() {
		return engine.ErrRecordBusy
	}
	defer l.latch.Unlock()

	book, err := l.book(asset)
	if err != nil {
		return err
	}
	book[account] = engine.SaturatingAdd(book[account], amount)
	return nil
}

// BalancesOf returns a copy of the account's holdings.
func (l *Ledger) BalancesOf(account string) (Balances, error) {
	if !l.latch.TryLock() {
		return Balances{}, engine.ErrRecordBusy
	}
	defer l.latch.Unlock()

	return Balances{
		Currency: l.currency[account],
		Energy:   l.energy[account],
	}, nil
}

// Apply executes the transfers in order as one atomic unit. The whole
// list is first simulated against scratch copies of the touched
// balances; only when every step is covered are the results written
// back.
func (l *Ledger) Apply(transfers []Transfer) error {
	if !l.latch.TryLock() {
		return engine.ErrRecordBusy
	}
	defer l.latch.Unlock()

	scratchCurrency := make(map[string]uint64)
	scratchEnergy := make(map[string]uint64)
	scratch := func(asset Asset, account string) (map[string]uint64, error) {
		switch asset {
		case AssetCurrency:
			if _, ok := scratchCurrency[account]; !ok {
				scratchCurrency[account] = l.currency[account]
			}
			return scratchCurrency, nil
		case AssetEnergy:
			if _, ok := scratchEnergy[account]; !ok {
				scratchEnergy[account] = l.energy[account]
			}
			return scratchEnergy, nil
		}
		return nil, ErrUnknownAsset
	}

	for _, t := range transfers {
		from, err := scratch(t.Asset, t.From)
		if err != nil {
			return err
		}
		if _, err := scratch(t.Asset, t.To); err != nil {
			return err
		}
		if from[t.From] < t.Amount {
			if t.Asset == AssetEnergy {
				return ErrInsufficientEnergy
			}
			return ErrInsufficientCurrency
		}
		from[t.From] -= t.Amount
		from[t.To] = engine.SaturatingAdd(from[t.To], t.Amount)
	}

	for account, balance := range scratchCurrency {
		l.currency[account] = balance
	}
	for account, balance := range scratchEnergy {
		l.energy[account] = balance
	}
	return nil
}

func (l *Ledger) book(asset Asset) (map[string]uint64, error) {
	switch asset {
	case AssetCurrency:
		return l.currency, nil
	case AssetEnergy:
		return l.energy, nil
	}
	return nil, ErrUnknownAsset
}

package settlement

import (
	"github.com/rs/zerolog/log"

	"grid-exchange/src/engine"
)

// Executor turns matched-pair terms into ledger transfers. For each
// pair the movement order is fixed: market fee, then wheeling charge to
// the grid operator, then the seller's net proceeds, then the energy to
// the buyer. Everything settles through one Ledger.Apply call so a
// batch either clears in full or not at all.
type Executor struct {
	ledger       *Ledger
	feeCollector string
	gridOperator string
}

func NewExecutor(ledger *Ledger, feeCollector, gridOperator string) *Executor {
	return &Executor{
		ledger:       ledger,
		feeCollector: feeCollector,
		gridOperator: gridOperator,
	}
}

func (e *Executor) Settle(terms engine.SettlementTerms) error {
	return e.SettleAll([]engine.SettlementTerms{terms})
}

func (e *Executor) SettleAll(terms []engine.SettlementTerms) error {
	transfers := make([]Transfer, 0, len(terms)*4)
	for _, t := range terms {
		if t.FeeAmount > 0 {
			transfers = append(transfers, Transfer{
				From: t.Buyer, To: e.feeCollector, Asset: AssetCurrency, Amount: t.FeeAmount,
			})
		}
		if t.WheelingCharge > 0 {
			transfers = append(transfers, Transfer{
				From: t.Buyer, To: e.gridOperator, Asset: AssetCurrency, Amount: t.WheelingCharge,
			})
		}
		transfers = append(transfers,
			Transfer{From: t.Buyer, To: t.Seller, Asset: AssetCurrency, Amount: t.NetSellerValue},
			Transfer{From: t.Seller, To: t.Buyer, Asset: AssetEnergy, Amount: t.Amount},
		)
	}

	if err := e.ledger.Apply(transfers); err != nil {
		log.Warn().
			Err(err).
			Int("pairs", len(terms)).
			Msg("Settlement rejected")
		return err
	}

	for _, t := range terms {
		log.Debug().
			Str("buyer", t.Buyer).
			Str("seller", t.Seller).
			Uint64("amount", t.Amount).
			Uint64("total_value", t.TotalValue).
			Uint64("fee", t.FeeAmount).
			Uint64("wheeling", t.WheelingCharge).
			Msg("Pair settled")
	}
	return nil
}

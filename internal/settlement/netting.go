package settlement

import (
	"github.com/rawblock/clearing-engine/pkg/models"
)

// Bilateral Netting Engine
//
// Collapses N confirmed trades into at most one net obligation per
// (symbol, counterparty-pair). Both trade directions between a pair
// fold into a single signed accumulator keyed by the canonical
// (lo, hi) ordering of the two account ids:
//
//   lo buys  → quantity and payment accumulate positive
//   lo sells → quantity and payment accumulate negative
//
// The sign of the accumulated quantity at emission decides who
// delivers. Intermediates are 128-bit so a pair's gross payment can
// exceed int64 without corrupting the net; the emitted payment is
// clamped to int64 (clamp-and-continue rather than abort — operational
// monitoring compares intermediates to the int64 limits out of band).
type nettingKey struct {
	symbolHash uint64
	loID       uint64
	hiID       uint64
}

type nettingAccumulator struct {
	// Positive means loID is net buyer from hiID.
	netQuantitySigned int128
	// Same sign convention as netQuantitySigned; emission negates both
	// together, so the payment follows the obligation's direction.
	netPaymentSigned int128
	tradeCount       uint32
}

// NettingEngine accumulates trades within a netting cycle and computes
// net obligations across all counterparty pairs. Not safe for shared
// mutation; ComputeNet is read-only.
type NettingEngine struct {
	accumulators map[nettingKey]*nettingAccumulator
}

// NewNettingEngine creates an empty engine.
func NewNettingEngine() *NettingEngine {
	return &NettingEngine{
		accumulators: make(map[nettingKey]*nettingAccumulator),
	}
}

// AddTrade accumulates one trade into the netting state.
func (e *NettingEngine) AddTrade(trade models.Trade) {
	lo, hi := canonicalPair(trade.BuyerID, trade.SellerID)
	key := nettingKey{symbolHash: trade.SymbolHash, loID: lo, hiID: hi}

	acc, ok := e.accumulators[key]
	if !ok {
		acc = &nettingAccumulator{}
		e.accumulators[key] = acc
	}
	acc.tradeCount++

	qty := int128FromU64(trade.Quantity)
	payment := mulI64U64(trade.Price, trade.Quantity)

	if trade.BuyerID == lo {
		acc.netQuantitySigned = acc.netQuantitySigned.add(qty)
		acc.netPaymentSigned = acc.netPaymentSigned.add(payment)
	} else {
		acc.netQuantitySigned = acc.netQuantitySigned.sub(qty)
		acc.netPaymentSigned = acc.netPaymentSigned.sub(payment)
	}
}

// ComputeNet emits one NetObligation per (symbol, pair) with non-zero
// net quantity. Pairs whose trades perfectly offset produce nothing.
// Emission order follows map iteration and is unspecified; consumers
// must not rely on it.
func (e *NettingEngine) ComputeNet() []models.NetObligation {
	obligations := make([]models.NetObligation, 0, len(e.accumulators))

	for key, acc := range e.accumulators {
		if acc.netQuantitySigned.isZero() {
			continue
		}

		// Positive: loID is net buyer, hiID delivers.
		// Negative: roles flip and both signs are negated.
		var ob models.NetObligation
		if !acc.netQuantitySigned.isNeg() {
			ob = models.NetObligation{
				SymbolHash:  key.symbolHash,
				DelivererID: key.hiID,
				ReceiverID:  key.loID,
				NetQuantity: acc.netQuantitySigned.satUint64(),
				NetPayment:  acc.netPaymentSigned.satInt64(),
				TradeCount:  acc.tradeCount,
			}
		} else {
			ob = models.NetObligation{
				SymbolHash:  key.symbolHash,
				DelivererID: key.loID,
				ReceiverID:  key.hiID,
				NetQuantity: acc.netQuantitySigned.neg().satUint64(),
				NetPayment:  acc.netPaymentSigned.neg().satInt64(),
				TradeCount:  acc.tradeCount,
			}
		}
		obligations = append(obligations, ob)
	}

	return obligations
}

// PairCount returns the number of live accumulators.
func (e *NettingEngine) PairCount() int {
	return len(e.accumulators)
}

// Clear resets the engine for the next netting cycle.
func (e *NettingEngine) Clear() {
	e.accumulators = make(map[nettingKey]*nettingAccumulator)
}

// canonicalPair orders a counterparty pair as (min, max).
func canonicalPair(a, b uint64) (uint64, uint64) {
	if a <= b {
		return a, b
	}
	return b, a
}

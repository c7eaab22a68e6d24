package models

// SettlementStatus tracks a trade through the settlement lifecycle.
type SettlementStatus uint8

const (
	// StatusPending — trade confirmed, awaiting settlement.
	StatusPending SettlementStatus = iota
	// StatusNetted — netting applied, awaiting clearing.
	StatusNetted
	// StatusCleared — clearing house has accepted.
	StatusCleared
	// StatusSettled — final settlement complete.
	StatusSettled
	// StatusFailed — settlement failed (insufficient funds, etc.).
	StatusFailed
)

// String returns the lifecycle state name for logs and API payloads.
func (s SettlementStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusNetted:
		return "netted"
	case StatusCleared:
		return "cleared"
	case StatusSettled:
		return "settled"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Trade is a confirmed trade between two counterparties, derived from
// matching fills. All identifiers are opaque 64-bit values; prices are
// fixed-point integer ticks.
type Trade struct {
	TradeID     uint64           `json:"tradeId"`
	SymbolHash  uint64           `json:"symbolHash"`
	BuyerID     uint64           `json:"buyerId"`
	SellerID    uint64           `json:"sellerId"`
	Price       int64            `json:"price"`    // in ticks
	Quantity    uint64           `json:"quantity"` // in lots
	TimestampNS uint64           `json:"timestampNs"`
	Status      SettlementStatus `json:"status"`
}

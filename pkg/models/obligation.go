package models

// NetObligation is a single net delivery/payment relationship between
// two accounts for one symbol after netting. Obligations flow by value:
// the netting engine emits them, the multilateral netter rewrites them,
// and the clearing house consumes them.
type NetObligation struct {
	SymbolHash uint64 `json:"symbolHash"`
	// DelivererID owes delivery (net seller).
	DelivererID uint64 `json:"delivererId"`
	// ReceiverID receives delivery (net buyer).
	ReceiverID uint64 `json:"receiverId"`
	// NetQuantity to deliver. Always > 0 in anything the netting
	// engine emits.
	NetQuantity uint64 `json:"netQuantity"`
	// NetPayment is debited from the deliverer and credited to the
	// receiver at clearing, clamped to int64 range.
	NetPayment int64 `json:"netPayment"`
	// TradeCount is the number of original trades netted in.
	TradeCount uint32 `json:"tradeCount"`
}

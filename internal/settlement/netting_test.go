package settlement

import (
	"math"
	"testing"

	"github.com/rawblock/clearing-engine/pkg/models"
)

func makeTrade(tradeID, symbolHash, buyerID, sellerID uint64, price int64, quantity uint64) models.Trade {
	return models.Trade{
		TradeID:    tradeID,
		SymbolHash: symbolHash,
		BuyerID:    buyerID,
		SellerID:   sellerID,
		Price:      price,
		Quantity:   quantity,
		Status:     models.StatusPending,
	}
}

func TestEmptyNetting(t *testing.T) {
	engine := NewNettingEngine()
	if obs := engine.ComputeNet(); len(obs) != 0 {
		t.Fatalf("expected no obligations from empty engine, got %d", len(obs))
	}
}

func TestSingleTradeNetting(t *testing.T) {
	engine := NewNettingEngine()
	engine.AddTrade(makeTrade(1, 0xABCD, 100, 200, 500, 10))

	obs := engine.ComputeNet()
	if len(obs) != 1 {
		t.Fatalf("expected 1 obligation, got %d", len(obs))
	}

	ob := obs[0]
	if ob.SymbolHash != 0xABCD {
		t.Errorf("symbol = %#x, want 0xABCD", ob.SymbolHash)
	}
	// Buyer 100 receives, seller 200 delivers.
	if ob.ReceiverID != 100 || ob.DelivererID != 200 {
		t.Errorf("direction = %d→%d, want 200→100", ob.DelivererID, ob.ReceiverID)
	}
	if ob.NetQuantity != 10 {
		t.Errorf("net quantity = %d, want 10", ob.NetQuantity)
	}
	if ob.NetPayment != 5_000 {
		t.Errorf("net payment = %d, want 5000", ob.NetPayment)
	}
	if ob.TradeCount != 1 {
		t.Errorf("trade count = %d, want 1", ob.TradeCount)
	}
}

func TestBilateralNetting(t *testing.T) {
	// A (100) buys 100 from B (200), then B buys 30 back from A.
	// Net: A buys 70 from B, payment 100*100 - 120*30 = 6400.
	engine := NewNettingEngine()
	engine.AddTrade(makeTrade(1, 0xABCD, 100, 200, 100, 100))
	engine.AddTrade(makeTrade(2, 0xABCD, 200, 100, 120, 30))

	obs := engine.ComputeNet()
	if len(obs) != 1 {
		t.Fatalf("expected 1 obligation, got %d", len(obs))
	}

	ob := obs[0]
	if ob.ReceiverID != 100 || ob.DelivererID != 200 {
		t.Errorf("direction = %d→%d, want 200→100", ob.DelivererID, ob.ReceiverID)
	}
	if ob.NetQuantity != 70 {
		t.Errorf("net quantity = %d, want 70", ob.NetQuantity)
	}
	if ob.NetPayment != 6_400 {
		t.Errorf("net payment = %d, want 6400", ob.NetPayment)
	}
	if ob.TradeCount != 2 {
		t.Errorf("trade count = %d, want 2", ob.TradeCount)
	}
}

func TestPerfectOffsetEmitsNothing(t *testing.T) {
	engine := NewNettingEngine()
	engine.AddTrade(makeTrade(1, 0x01, 100, 200, 50, 10))
	engine.AddTrade(makeTrade(2, 0x01, 200, 100, 55, 10))

	if obs := engine.ComputeNet(); len(obs) != 0 {
		t.Fatalf("perfectly offsetting trades must emit nothing, got %d obligations", len(obs))
	}
}

func TestMultiSymbolNetting(t *testing.T) {
	engine := NewNettingEngine()
	engine.AddTrade(makeTrade(1, 0x0001, 100, 200, 100, 5))
	engine.AddTrade(makeTrade(2, 0x0002, 100, 200, 200, 3))

	obs := engine.ComputeNet()
	if len(obs) != 2 {
		t.Fatalf("expected 2 obligations, got %d", len(obs))
	}

	for _, ob := range obs {
		if ob.ReceiverID != 100 || ob.DelivererID != 200 {
			t.Errorf("direction = %d→%d, want 200→100", ob.DelivererID, ob.ReceiverID)
		}
		switch ob.SymbolHash {
		case 0x0001:
			if ob.NetQuantity != 5 || ob.NetPayment != 500 {
				t.Errorf("symbol 1: qty=%d payment=%d, want 5/500", ob.NetQuantity, ob.NetPayment)
			}
		case 0x0002:
			if ob.NetQuantity != 3 || ob.NetPayment != 600 {
				t.Errorf("symbol 2: qty=%d payment=%d, want 3/600", ob.NetQuantity, ob.NetPayment)
			}
		default:
			t.Errorf("unexpected symbol %#x", ob.SymbolHash)
		}
	}
}

func TestThreePartyNetting(t *testing.T) {
	engine := NewNettingEngine()
	engine.AddTrade(makeTrade(1, 0xFFFF, 100, 200, 50, 10)) // A buys 10 from B
	engine.AddTrade(makeTrade(2, 0xFFFF, 200, 300, 60, 20)) // B buys 20 from C
	engine.AddTrade(makeTrade(3, 0xFFFF, 100, 300, 55, 15)) // A buys 15 from C

	obs := engine.ComputeNet()
	if len(obs) != 3 {
		t.Fatalf("expected 3 obligations, got %d", len(obs))
	}

	find := func(a, b uint64) models.NetObligation {
		t.Helper()
		for _, ob := range obs {
			if (ob.ReceiverID == a && ob.DelivererID == b) || (ob.ReceiverID == b && ob.DelivererID == a) {
				return ob
			}
		}
		t.Fatalf("no obligation between %d and %d", a, b)
		return models.NetObligation{}
	}

	ab := find(100, 200)
	if ab.ReceiverID != 100 || ab.DelivererID != 200 || ab.NetQuantity != 10 {
		t.Errorf("A↔B = %+v", ab)
	}
	bc := find(200, 300)
	if bc.ReceiverID != 200 || bc.DelivererID != 300 || bc.NetQuantity != 20 {
		t.Errorf("B↔C = %+v", bc)
	}
	ac := find(100, 300)
	if ac.ReceiverID != 100 || ac.DelivererID != 300 || ac.NetQuantity != 15 {
		t.Errorf("A↔C = %+v", ac)
	}
}

func TestCanonicalIdempotence(t *testing.T) {
	// The same trade twice must equal one trade of doubled quantity,
	// except for trade count.
	twice := NewNettingEngine()
	twice.AddTrade(makeTrade(1, 0xAA, 7, 3, 500, 10))
	twice.AddTrade(makeTrade(2, 0xAA, 7, 3, 500, 10))

	doubled := NewNettingEngine()
	doubled.AddTrade(makeTrade(3, 0xAA, 7, 3, 500, 20))

	a, b := twice.ComputeNet(), doubled.ComputeNet()
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("expected 1 obligation each, got %d and %d", len(a), len(b))
	}
	if a[0].NetQuantity != b[0].NetQuantity || a[0].NetPayment != b[0].NetPayment {
		t.Errorf("doubled trade mismatch: %+v vs %+v", a[0], b[0])
	}
	if a[0].DelivererID != b[0].DelivererID || a[0].ReceiverID != b[0].ReceiverID {
		t.Errorf("direction mismatch: %+v vs %+v", a[0], b[0])
	}
	if a[0].TradeCount != 2 || b[0].TradeCount != 1 {
		t.Errorf("trade counts = %d and %d, want 2 and 1", a[0].TradeCount, b[0].TradeCount)
	}
}

// signedPayment credits the receiver and debits the deliverer.
func signedPayment(accountID uint64, ob models.NetObligation) int64 {
	switch accountID {
	case ob.ReceiverID:
		return ob.NetPayment
	case ob.DelivererID:
		return -ob.NetPayment
	}
	return 0
}

func TestNettingConservation(t *testing.T) {
	// For every account, the summed signed payment over trades equals
	// the summed signed payment over emitted obligations.
	trades := []models.Trade{
		makeTrade(1, 0x01, 100, 200, 10, 5),
		makeTrade(2, 0x01, 200, 100, 12, 3),
		makeTrade(3, 0x01, 100, 300, 7, 9),
		makeTrade(4, 0x02, 300, 200, 20, 4),
		makeTrade(5, 0x02, 200, 300, 20, 4),
	}

	engine := NewNettingEngine()
	perAccount := make(map[uint64]int64)
	for _, tr := range trades {
		engine.AddTrade(tr)
		payment := tr.Price * int64(tr.Quantity)
		// Sign each trade from the buyer's side: buyer negative, seller
		// positive.
		perAccount[tr.BuyerID] -= payment
		perAccount[tr.SellerID] += payment
	}

	netted := make(map[uint64]int64)
	for _, ob := range engine.ComputeNet() {
		// The same convention on obligations: the receiver is the net
		// buyer (negative), the deliverer the net seller (positive).
		netted[ob.ReceiverID] -= ob.NetPayment
		netted[ob.DelivererID] += ob.NetPayment
	}

	for id, want := range perAccount {
		if netted[id] != want {
			t.Errorf("account %d: netted payment %d, want %d", id, netted[id], want)
		}
	}
}

func TestNoZeroObligations(t *testing.T) {
	engine := NewNettingEngine()
	// Mixed flows, some offsetting exactly.
	engine.AddTrade(makeTrade(1, 0x01, 1, 2, 100, 10))
	engine.AddTrade(makeTrade(2, 0x01, 2, 1, 90, 10))
	engine.AddTrade(makeTrade(3, 0x02, 1, 2, 100, 4))

	for _, ob := range engine.ComputeNet() {
		if ob.NetQuantity == 0 {
			t.Errorf("zero-quantity obligation emitted: %+v", ob)
		}
	}
}

func TestPaymentSaturation(t *testing.T) {
	// A pair's gross payment above int64 max clamps rather than wraps.
	engine := NewNettingEngine()
	engine.AddTrade(makeTrade(1, 0x01, 1, 2, math.MaxInt64, 100))

	obs := engine.ComputeNet()
	if len(obs) != 1 {
		t.Fatalf("expected 1 obligation, got %d", len(obs))
	}
	if obs[0].NetPayment != math.MaxInt64 {
		t.Errorf("payment = %d, want saturated MaxInt64", obs[0].NetPayment)
	}
	if obs[0].NetQuantity != 100 {
		t.Errorf("quantity = %d, want 100 (saturation must not corrupt quantity)", obs[0].NetQuantity)
	}
}

func TestNegativePaymentSaturation(t *testing.T) {
	engine := NewNettingEngine()
	// lo (1) sells at extreme price: accumulator goes deeply negative;
	// emission flips the direction and the payment clamps high.
	engine.AddTrade(makeTrade(1, 0x01, 2, 1, math.MaxInt64, 100))

	obs := engine.ComputeNet()
	if len(obs) != 1 {
		t.Fatalf("expected 1 obligation, got %d", len(obs))
	}
	if obs[0].DelivererID != 1 || obs[0].ReceiverID != 2 {
		t.Errorf("direction = %d→%d, want 1→2", obs[0].DelivererID, obs[0].ReceiverID)
	}
	if obs[0].NetPayment != math.MaxInt64 {
		t.Errorf("payment = %d, want saturated MaxInt64", obs[0].NetPayment)
	}
}

func TestClearResetsEngine(t *testing.T) {
	engine := NewNettingEngine()
	engine.AddTrade(makeTrade(1, 0x01, 1, 2, 10, 5))
	if engine.PairCount() != 1 {
		t.Fatalf("pair count = %d, want 1", engine.PairCount())
	}

	engine.Clear()
	if engine.PairCount() != 0 {
		t.Errorf("pair count after Clear = %d, want 0", engine.PairCount())
	}
	if obs := engine.ComputeNet(); len(obs) != 0 {
		t.Errorf("obligations after Clear = %d, want 0", len(obs))
	}

	// Engine is reusable after reset.
	engine.AddTrade(makeTrade(2, 0x01, 1, 2, 10, 5))
	if obs := engine.ComputeNet(); len(obs) != 1 {
		t.Errorf("obligations after reuse = %d, want 1", len(obs))
	}
}

func TestCanonicalPair(t *testing.T) {
	tests := []struct {
		name   string
		a, b   uint64
		lo, hi uint64
	}{
		{"ordered", 1, 2, 1, 2},
		{"reversed", 9, 4, 4, 9},
		{"equal", 7, 7, 7, 7},
		{"zero", 0, 5, 0, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi := canonicalPair(tt.a, tt.b)
			if lo != tt.lo || hi != tt.hi {
				t.Errorf("canonicalPair(%d, %d) = (%d, %d), want (%d, %d)", tt.a, tt.b, lo, hi, tt.lo, tt.hi)
			}
		})
	}
}

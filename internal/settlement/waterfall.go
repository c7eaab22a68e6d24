package settlement

// Default Waterfall
//
// When a clearing member defaults, losses are absorbed through five
// capital layers in fixed order, each exhausted before the next is
// tapped — the standard CCP loss waterfall:
//
//   1. the defaulter's own margin deposit
//   2. the defaulter's default-fund contribution
//   3. the CCP's first-loss capital (skin-in-the-game)
//   4. non-defaulting members' default-fund contributions
//   5. the CCP's remaining capital
//
// Each AbsorbLoss call sees full layer capacity: losses are modeled as
// independent events, and no hidden depletion state accumulates across
// calls.

// WaterfallLayer identifies one of the five absorption layers.
type WaterfallLayer uint8

const (
	LayerDefaulterMargin WaterfallLayer = iota
	LayerDefaulterFund
	LayerCcpFirstLoss
	LayerMembersFund
	LayerCcpCapital
)

// String returns the layer name for logs and API payloads.
func (l WaterfallLayer) String() string {
	switch l {
	case LayerDefaulterMargin:
		return "defaulter_margin"
	case LayerDefaulterFund:
		return "defaulter_fund"
	case LayerCcpFirstLoss:
		return "ccp_first_loss"
	case LayerMembersFund:
		return "members_fund"
	case LayerCcpCapital:
		return "ccp_capital"
	default:
		return "unknown"
	}
}

// LayerAbsorption records one layer's share of an absorbed loss.
type LayerAbsorption struct {
	Layer          WaterfallLayer `json:"layer"`
	Capacity       int64          `json:"capacity"`
	Absorbed       int64          `json:"absorbed"`
	RemainingAfter int64          `json:"remainingAfter"`
}

// WaterfallConfig sets the capacity (in ticks) of each layer.
type WaterfallConfig struct {
	DefaulterMargin int64 `json:"defaulterMargin"`
	DefaulterFund   int64 `json:"defaulterFund"`
	CcpFirstLoss    int64 `json:"ccpFirstLoss"`
	MembersFund     int64 `json:"membersFund"`
	CcpCapital      int64 `json:"ccpCapital"`
}

// DefaultWaterfallConfig returns the reference capacities.
func DefaultWaterfallConfig() WaterfallConfig {
	return WaterfallConfig{
		DefaulterMargin: 10_000,
		DefaulterFund:   5_000,
		CcpFirstLoss:    2_000,
		MembersFund:     20_000,
		CcpCapital:      50_000,
	}
}

// WaterfallResult details how a loss ran through the layers.
type WaterfallResult struct {
	TotalLoss     int64             `json:"totalLoss"`
	TotalAbsorbed int64             `json:"totalAbsorbed"`
	Layers        []LayerAbsorption `json:"layers"` // always 5, in layer order
	FullyCovered  bool              `json:"fullyCovered"`
	Shortfall     int64             `json:"shortfall"`
	ContentHash   uint64            `json:"contentHash"`
}

// DefaultWaterfall applies losses to the five-layer cascade. Loss
// absorption never fails; it always returns a result.
type DefaultWaterfall struct {
	config WaterfallConfig
}

// NewDefaultWaterfall creates a waterfall with the given capacities.
func NewDefaultWaterfall(config WaterfallConfig) *DefaultWaterfall {
	return &DefaultWaterfall{config: config}
}

// Config returns the waterfall's configuration.
func (w *DefaultWaterfall) Config() WaterfallConfig {
	return w.config
}

type layerCapacity struct {
	layer    WaterfallLayer
	capacity int64
}

// orderedCapacities returns the layers in absorption order.
func (w *DefaultWaterfall) orderedCapacities() [5]layerCapacity {
	return [5]layerCapacity{
		{LayerDefaulterMargin, w.config.DefaulterMargin},
		{LayerDefaulterFund, w.config.DefaulterFund},
		{LayerCcpFirstLoss, w.config.CcpFirstLoss},
		{LayerMembersFund, w.config.MembersFund},
		{LayerCcpCapital, w.config.CcpCapital},
	}
}

// AbsorbLoss runs a loss through the layers in order and returns the
// detailed absorption result. Non-positive losses absorb nothing and
// count as fully covered.
func (w *DefaultWaterfall) AbsorbLoss(loss int64) WaterfallResult {
	if loss <= 0 {
		return w.zeroResult(loss)
	}

	remaining := loss
	layers := make([]LayerAbsorption, 0, 5)

	for _, lc := range w.orderedCapacities() {
		absorbed := remaining
		if lc.capacity < absorbed {
			absorbed = lc.capacity
		}
		remaining -= absorbed
		layers = append(layers, LayerAbsorption{
			Layer:          lc.layer,
			Capacity:       lc.capacity,
			Absorbed:       absorbed,
			RemainingAfter: remaining,
		})
	}

	totalAbsorbed := loss - remaining

	return WaterfallResult{
		TotalLoss:     loss,
		TotalAbsorbed: totalAbsorbed,
		Layers:        layers,
		FullyCovered:  remaining == 0,
		Shortfall:     remaining,
		ContentHash:   fnv1aPair(uint64(loss), uint64(totalAbsorbed)),
	}
}

// AbsorbLosses applies AbsorbLoss to each input independently. Layers
// are not depleted across calls.
func (w *DefaultWaterfall) AbsorbLosses(losses []int64) []WaterfallResult {
	results := make([]WaterfallResult, 0, len(losses))
	for _, loss := range losses {
		results = append(results, w.AbsorbLoss(loss))
	}
	return results
}

// TotalCapacity sums the five layer capacities, saturating at the
// int64 limit.
func (w *DefaultWaterfall) TotalCapacity() int64 {
	total := w.config.DefaulterMargin
	total = saturatingAdd(total, w.config.DefaulterFund)
	total = saturatingAdd(total, w.config.CcpFirstLoss)
	total = saturatingAdd(total, w.config.MembersFund)
	total = saturatingAdd(total, w.config.CcpCapital)
	return total
}

func (w *DefaultWaterfall) zeroResult(loss int64) WaterfallResult {
	layers := make([]LayerAbsorption, 0, 5)
	for _, lc := range w.orderedCapacities() {
		layers = append(layers, LayerAbsorption{
			Layer:    lc.layer,
			Capacity: lc.capacity,
		})
	}
	return WaterfallResult{
		TotalLoss:    loss,
		Layers:       layers,
		FullyCovered: true,
		ContentHash:  fnv1aPair(uint64(loss), 0),
	}
}

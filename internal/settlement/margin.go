package settlement

import (
	"github.com/rawblock/clearing-engine/pkg/models"
)

// SPAN-style Margin Engine
//
// Three components per requirement:
//   initial   — flat fraction of notional
//   variation — fraction of mark-to-market exposure
//   stress    — worst-case absolute loss across configured price-shock
//               scenarios (e.g. 0.85 = -15%, 1.15 = +15%)
// total = max(initial + variation, stress, floor).
//
// The rate multiplications are IEEE-754 binary64 with truncation
// toward zero on the int64 conversion. The truncation is part of the
// replay contract: content hashes depend on these exact integers, so
// the rounding mode must not be changed.

// MarginConfig parameterizes the engine.
type MarginConfig struct {
	// InitialMarginRate is a fraction of notional (0.05 = 5%).
	InitialMarginRate float64 `json:"initialMarginRate"`
	// VariationMarginRate is a fraction of mark-to-market exposure.
	VariationMarginRate float64 `json:"variationMarginRate"`
	// StressScenarios are price-shock multipliers.
	StressScenarios []float64 `json:"stressScenarios"`
	// MarginFloor is the absolute minimum requirement.
	MarginFloor int64 `json:"marginFloor"`
}

// DefaultMarginConfig mirrors a conservative exchange-style setup:
// 5% initial, full variation, ±15% worst shock, floor of 100 ticks.
func DefaultMarginConfig() MarginConfig {
	return MarginConfig{
		InitialMarginRate:   0.05,
		VariationMarginRate: 1.0,
		StressScenarios:     []float64{0.85, 0.90, 0.95, 1.05, 1.10, 1.15},
		MarginFloor:         100,
	}
}

// MarginRequirement is the computed requirement for one account.
type MarginRequirement struct {
	AccountID       uint64 `json:"accountId"`
	InitialMargin   int64  `json:"initialMargin"`
	VariationMargin int64  `json:"variationMargin"`
	StressMargin    int64  `json:"stressMargin"`
	TotalMargin     int64  `json:"totalMargin"`
	ContentHash     uint64 `json:"contentHash"`
}

// MarginEngine computes margin requirements from net obligations.
// Margin computation never fails; it always returns a requirement.
type MarginEngine struct {
	config MarginConfig
}

// NewMarginEngine creates an engine with the given configuration.
func NewMarginEngine(config MarginConfig) *MarginEngine {
	return &MarginEngine{config: config}
}

// Config returns the engine's configuration.
func (m *MarginEngine) Config() MarginConfig {
	return m.config
}

// ComputeObligationMargin computes margin for a single obligation from
// the deliverer's perspective.
func (m *MarginEngine) ComputeObligationMargin(ob models.NetObligation) MarginRequirement {
	notional := absInt64(ob.NetPayment)

	initial := int64(float64(notional) * m.config.InitialMarginRate)
	variation := int64(float64(notional) * m.config.VariationMarginRate)
	stress := m.worstCaseStress(notional)

	total := maxInt64(saturatingAdd(initial, variation), stress, m.config.MarginFloor)

	return MarginRequirement{
		AccountID:       ob.DelivererID,
		InitialMargin:   initial,
		VariationMargin: variation,
		StressMargin:    stress,
		TotalMargin:     total,
		ContentHash:     fnv1aPair(ob.DelivererID, uint64(total)),
	}
}

// ComputePortfolioMargin computes margin for one account across a set
// of obligations. Obligations the account delivers contribute short
// exposure; obligations it receives contribute long exposure.
func (m *MarginEngine) ComputePortfolioMargin(accountID uint64, obligations []models.NetObligation) MarginRequirement {
	var totalNotional, netExposure int64

	for _, ob := range obligations {
		switch accountID {
		case ob.DelivererID:
			totalNotional = saturatingAdd(totalNotional, absInt64(ob.NetPayment))
			netExposure = saturatingSub(netExposure, ob.NetPayment)
		case ob.ReceiverID:
			totalNotional = saturatingAdd(totalNotional, absInt64(ob.NetPayment))
			netExposure = saturatingAdd(netExposure, ob.NetPayment)
		}
	}

	initial := int64(float64(totalNotional) * m.config.InitialMarginRate)
	variation := int64(float64(absInt64(netExposure)) * m.config.VariationMarginRate)
	stress := m.worstCaseStress(totalNotional)

	total := maxInt64(saturatingAdd(initial, variation), stress, m.config.MarginFloor)

	return MarginRequirement{
		AccountID:       accountID,
		InitialMargin:   initial,
		VariationMargin: variation,
		StressMargin:    stress,
		TotalMargin:     total,
		ContentHash:     fnv1aPair(accountID, uint64(total)),
	}
}

// worstCaseStress evaluates the worst absolute price-shock loss across
// all scenarios. Zero when no scenarios are configured.
func (m *MarginEngine) worstCaseStress(notional int64) int64 {
	var worst int64
	for _, scenario := range m.config.StressScenarios {
		shocked := int64(float64(notional) * scenario)
		loss := absInt64(shocked - notional)
		if loss > worst {
			worst = loss
		}
	}
	return worst
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func maxInt64(vals ...int64) int64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func saturatingAdd(a, b int64) int64 {
	sum := a + b
	if a > 0 && b > 0 && sum < 0 {
		return 1<<63 - 1
	}
	if a < 0 && b < 0 && sum >= 0 {
		return -1 << 63
	}
	return sum
}

func saturatingSub(a, b int64) int64 {
	if b == -1<<63 {
		if a >= 0 {
			return 1<<63 - 1
		}
		return saturatingAdd(a+1, 1<<63-1)
	}
	return saturatingAdd(a, -b)
}

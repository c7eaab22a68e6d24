package settlement

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/clearing-engine/internal/metrics"
	"github.com/rawblock/clearing-engine/pkg/models"
)

// SettlementPipeline drives a full settlement cycle: trade intake,
// bilateral netting, optional multilateral cancellation, clearing,
// margin advisories and shortfall escalation — journaling every
// lifecycle milestone along the way.
//
// The pipeline owns one instance of each core component and inherits
// their single-writer contract: callers serialize RunCycle invocations
// (the API layer does this behind one mutex). Progress counters are
// atomic so the progress endpoint can read them concurrently.

// CycleStore persists a finished cycle. The in-memory journal remains
// canonical; persistence is an audit sink and failures only warn.
type CycleStore interface {
	SaveCycleReport(ctx context.Context, report CycleReport) error
}

// CycleAlert is the real-time notification broadcast after each cycle.
type CycleAlert struct {
	CycleID         string `json:"cycleId"`
	TradeCount      int    `json:"tradeCount"`
	ObligationCount int    `json:"obligationCount"`
	SuccessCount    int    `json:"successCount"`
	FailCount       int    `json:"failCount"`
	SettledTrades   int    `json:"settledTrades"`
	FailedTrades    int    `json:"failedTrades"`
	TotalShortfall  int64  `json:"totalShortfall"`
	JournalHash     uint64 `json:"journalHash"`
}

// ClearingOutcome is a ClearingResult flattened for reports and
// persistence, with the error rendered as a reason string.
type ClearingOutcome struct {
	Obligation models.NetObligation `json:"obligation"`
	Success    bool                 `json:"success"`
	Reason     string               `json:"reason,omitempty"`
}

// CycleReport is the full outcome of one settlement cycle.
type CycleReport struct {
	CycleID     string                    `json:"cycleId"`
	Trades      []models.Trade            `json:"trades"` // with final statuses
	Obligations []models.NetObligation    `json:"obligations"`
	Outcomes    []ClearingOutcome         `json:"outcomes"`
	Margins     []MarginRequirement       `json:"margins"`
	Waterfalls  []WaterfallResult         `json:"waterfalls,omitempty"`
	Efficiency  metrics.NettingEfficiency `json:"efficiency"`
	JournalHash uint64                    `json:"journalHash"`
}

// PipelineConfig selects the optional stages.
type PipelineConfig struct {
	// Multilateral enables cycle cancellation after bilateral netting.
	Multilateral bool
	// EscalateShortfalls drives each InsufficientBalance failure
	// through the default waterfall.
	EscalateShortfalls bool
}

// CycleProgress is the pipeline's externally visible state.
type CycleProgress struct {
	CyclesRun     int64 `json:"cyclesRun"`
	TradesSettled int64 `json:"tradesSettled"`
	TradesFailed  int64 `json:"tradesFailed"`
}

// SettlementPipeline wires the core components into a cycle driver.
type SettlementPipeline struct {
	engine    *NettingEngine
	house     *ClearingHouse
	margin    *MarginEngine
	waterfall *DefaultWaterfall
	journal   *SettlementJournal
	store     CycleStore       // optional
	alertFunc func(CycleAlert) // optional broadcast callback
	config    PipelineConfig

	// now is swappable for deterministic tests.
	now func() uint64

	cyclesRun     atomic.Int64
	tradesSettled atomic.Int64
	tradesFailed  atomic.Int64
}

// NewSettlementPipeline assembles a pipeline. store and alertFunc may
// be nil.
func NewSettlementPipeline(
	marginCfg MarginConfig,
	waterfallCfg WaterfallConfig,
	pipelineCfg PipelineConfig,
	store CycleStore,
	alertFunc func(CycleAlert),
) *SettlementPipeline {
	return &SettlementPipeline{
		engine:    NewNettingEngine(),
		house:     NewClearingHouse(),
		margin:    NewMarginEngine(marginCfg),
		waterfall: NewDefaultWaterfall(waterfallCfg),
		journal:   NewSettlementJournal(),
		store:     store,
		alertFunc: alertFunc,
		config:    pipelineCfg,
		now:       func() uint64 { return uint64(time.Now().UnixNano()) },
	}
}

// House exposes the clearing house for account registration and reads.
func (p *SettlementPipeline) House() *ClearingHouse { return p.house }

// Journal exposes the canonical journal (read-only contract).
func (p *SettlementPipeline) Journal() *SettlementJournal { return p.journal }

// MarginEngine exposes the margin engine for advisory queries.
func (p *SettlementPipeline) MarginEngine() *MarginEngine { return p.margin }

// Waterfall exposes the default waterfall for simulations.
func (p *SettlementPipeline) Waterfall() *DefaultWaterfall { return p.waterfall }

// Progress returns the atomic cycle counters (safe to call
// concurrently with RunCycle).
func (p *SettlementPipeline) Progress() CycleProgress {
	return CycleProgress{
		CyclesRun:     p.cyclesRun.Load(),
		TradesSettled: p.tradesSettled.Load(),
		TradesFailed:  p.tradesFailed.Load(),
	}
}

// RunCycle executes one complete settlement cycle over the given
// trades and returns the report. The netting engine is reset at the
// end, so each call is an independent netting cycle; accounts and the
// journal persist across cycles.
func (p *SettlementPipeline) RunCycle(ctx context.Context, trades []models.Trade) CycleReport {
	cycleID := uuid.NewString()
	log.Printf("[Pipeline] Cycle %s: %d trades in", cycleID, len(trades))

	// Intake: journal every trade and feed the netting engine.
	cycleTrades := make([]models.Trade, len(trades))
	copy(cycleTrades, trades)
	for i := range cycleTrades {
		p.journal.Record(cycleTrades[i].TimestampNS, models.TradeReceived{TradeID: cycleTrades[i].TradeID})
		p.engine.AddTrade(cycleTrades[i])
		cycleTrades[i].Status = models.StatusNetted
	}

	// Netting: bilateral, then optional cycle cancellation.
	bilateral := p.engine.ComputeNet()
	obligations := bilateral
	grossBefore := GrossQuantity(bilateral)
	if p.config.Multilateral {
		obligations = MultilateralNet(bilateral)
	}
	grossAfter := GrossQuantity(obligations)
	p.journal.Record(p.now(), models.NettingCompleted{ObligationCount: len(obligations)})

	// Clearing.
	results := p.house.ClearAll(obligations)
	successCount := 0
	for _, r := range results {
		if r.Success {
			successCount++
		}
	}
	failCount := len(results) - successCount
	p.journal.Record(p.now(), models.ClearingAttempted{
		ObligationCount: len(obligations),
		SuccessCount:    successCount,
		FailCount:       failCount,
	})

	// Map failed obligations back to their contributing trades by
	// (symbol, unordered pair) so trade statuses and the journal
	// reflect per-trade outcomes.
	type pairKey struct {
		symbol, lo, hi uint64
	}
	failReasons := make(map[pairKey]string)
	outcomes := make([]ClearingOutcome, 0, len(results))
	var waterfalls []WaterfallResult
	var totalShortfall int64
	for _, r := range results {
		outcome := ClearingOutcome{Obligation: r.Obligation, Success: r.Success}
		if !r.Success {
			outcome.Reason = r.Err.Error()
			lo, hi := canonicalPair(r.Obligation.DelivererID, r.Obligation.ReceiverID)
			failReasons[pairKey{r.Obligation.SymbolHash, lo, hi}] = outcome.Reason

			if p.config.EscalateShortfalls {
				if ib, ok := r.Err.(*InsufficientBalanceError); ok {
					wf := p.waterfall.AbsorbLoss(ib.Required - ib.Available)
					totalShortfall += wf.Shortfall
					waterfalls = append(waterfalls, wf)
				}
			}
		}
		outcomes = append(outcomes, outcome)
	}

	settled, failed := 0, 0
	for i := range cycleTrades {
		lo, hi := canonicalPair(cycleTrades[i].BuyerID, cycleTrades[i].SellerID)
		if reason, bad := failReasons[pairKey{cycleTrades[i].SymbolHash, lo, hi}]; bad {
			cycleTrades[i].Status = models.StatusFailed
			failed++
			p.journal.Record(p.now(), models.SettlementFailed{TradeID: cycleTrades[i].TradeID, Reason: reason})
		} else {
			cycleTrades[i].Status = models.StatusSettled
			settled++
		}
	}
	p.journal.Record(p.now(), models.SettlementCompleted{TradeCount: settled})

	// Margin advisories, one per obligation deliverer.
	margins := make([]MarginRequirement, 0, len(obligations))
	for _, ob := range obligations {
		margins = append(margins, p.margin.ComputeObligationMargin(ob))
	}

	p.engine.Clear()
	p.cyclesRun.Add(1)
	p.tradesSettled.Add(int64(settled))
	p.tradesFailed.Add(int64(failed))

	report := CycleReport{
		CycleID:     cycleID,
		Trades:      cycleTrades,
		Obligations: obligations,
		Outcomes:    outcomes,
		Margins:     margins,
		Waterfalls:  waterfalls,
		Efficiency:  metrics.Compute(len(cycleTrades), len(obligations), grossBefore, grossAfter),
		JournalHash: ComputeJournalHash(p.journal),
	}

	if p.store != nil {
		if err := p.store.SaveCycleReport(ctx, report); err != nil {
			log.Printf("[Pipeline] Warning: failed to persist cycle %s: %v", cycleID, err)
		}
	}

	if p.alertFunc != nil {
		p.alertFunc(CycleAlert{
			CycleID:         cycleID,
			TradeCount:      len(cycleTrades),
			ObligationCount: len(obligations),
			SuccessCount:    successCount,
			FailCount:       failCount,
			SettledTrades:   settled,
			FailedTrades:    failed,
			TotalShortfall:  totalShortfall,
			JournalHash:     report.JournalHash,
		})
	}

	log.Printf("[Pipeline] Cycle %s: %d obligations, %d cleared, %d failed, journal hash %016x",
		cycleID, len(obligations), successCount, failCount, report.JournalHash)

	return report
}

package settlement

import (
	"encoding/binary"

	"github.com/rawblock/clearing-engine/pkg/models"
)

// Deterministic Journal Replay
//
// Two parties holding what should be the same journal derive a replay
// log — one content-hashed step per entry — and compare. Equivalence
// is byte-exact: the discriminant byte per event kind, the single-u64
// payload encoding per variant, the 25-byte step framing and the
// 16-byte chained journal fold are all fixed, and any change breaks
// interoperability with existing counterparties.
//
// Event kind bytes:
//   TradeReceived=0  NettingCompleted=1  ClearingAttempted=2
//   SettlementCompleted=3  SettlementFailed=4

// ReplayStep is the deterministic fingerprint of one journal entry.
type ReplayStep struct {
	Sequence    uint64 `json:"sequence"`
	TimestampNS uint64 `json:"timestampNs"`
	EventKind   uint8  `json:"eventKind"`
	ContentHash uint64 `json:"contentHash"`
}

// ReplayDiscrepancy is one mismatch found during verification.
type ReplayDiscrepancy struct {
	Sequence     uint64 `json:"sequence"`
	ExpectedHash uint64 `json:"expectedHash"`
	ActualHash   uint64 `json:"actualHash"`
}

// ReplayResult is the outcome of verifying two replay logs.
type ReplayResult struct {
	StepsVerified int                 `json:"stepsVerified"`
	Discrepancies []ReplayDiscrepancy `json:"discrepancies"`
	Success       bool                `json:"success"`
	ContentHash   uint64              `json:"contentHash"`
}

// BuildReplayLog maps every journal entry to a content-hashed step.
// The log is a pure function of the journal.
func BuildReplayLog(journal *SettlementJournal) []ReplayStep {
	entries := journal.Entries()
	log := make([]ReplayStep, 0, len(entries))
	for _, entry := range entries {
		kind := eventKindByte(entry.Event)
		payload := eventPayload(entry.Event)
		log = append(log, ReplayStep{
			Sequence:    entry.Sequence,
			TimestampNS: entry.TimestampNS,
			EventKind:   kind,
			ContentHash: stepHash(entry.Sequence, entry.TimestampNS, kind, payload),
		})
	}
	return log
}

// Verify compares two replay logs step by step, recording every
// mismatch rather than short-circuiting so operators see the full
// divergence shape. A length mismatch adds one extra discrepancy whose
// hashes encode the two lengths.
func Verify(expected, actual []ReplayStep) ReplayResult {
	var discrepancies []ReplayDiscrepancy
	minLen := len(expected)
	if len(actual) < minLen {
		minLen = len(actual)
	}

	verified := 0
	for i := 0; i < minLen; i++ {
		if expected[i].ContentHash != actual[i].ContentHash {
			discrepancies = append(discrepancies, ReplayDiscrepancy{
				Sequence:     expected[i].Sequence,
				ExpectedHash: expected[i].ContentHash,
				ActualHash:   actual[i].ContentHash,
			})
		} else {
			verified++
		}
	}

	if len(expected) != len(actual) {
		seq := uint64(1)
		if minLen > 0 {
			seq = expected[minLen-1].Sequence + 1
		}
		discrepancies = append(discrepancies, ReplayDiscrepancy{
			Sequence:     seq,
			ExpectedHash: uint64(len(expected)),
			ActualHash:   uint64(len(actual)),
		})
	}

	return ReplayResult{
		StepsVerified: verified,
		Discrepancies: discrepancies,
		Success:       len(discrepancies) == 0,
		ContentHash:   fnv1aPair(uint64(verified), uint64(len(discrepancies))),
	}
}

// ComputeJournalHash folds every step hash into a single cumulative
// fingerprint, starting from the FNV offset basis. An empty journal
// hashes to the offset basis unchanged.
func ComputeJournalHash(journal *SettlementJournal) uint64 {
	cumulative := fnvOffsetBasis
	for _, entry := range journal.Entries() {
		kind := eventKindByte(entry.Event)
		payload := eventPayload(entry.Event)
		stepH := stepHash(entry.Sequence, entry.TimestampNS, kind, payload)
		cumulative = fnv1aPair(cumulative, stepH)
	}
	return cumulative
}

// eventKindByte maps each event variant to its fixed discriminant.
func eventKindByte(event models.JournalEvent) uint8 {
	switch event.(type) {
	case models.TradeReceived:
		return 0
	case models.NettingCompleted:
		return 1
	case models.ClearingAttempted:
		return 2
	case models.SettlementCompleted:
		return 3
	case models.SettlementFailed:
		return 4
	default:
		// The event sum is closed; this is unreachable.
		panic("settlement: unknown journal event variant")
	}
}

// eventPayload folds each variant's fields into a single u64.
func eventPayload(event models.JournalEvent) uint64 {
	switch e := event.(type) {
	case models.TradeReceived:
		return e.TradeID
	case models.NettingCompleted:
		return uint64(e.ObligationCount)
	case models.ClearingAttempted:
		return uint64(e.ObligationCount)<<32 | uint64(e.SuccessCount)<<16 | uint64(e.FailCount)
	case models.SettlementCompleted:
		return uint64(e.TradeCount)
	case models.SettlementFailed:
		return e.TradeID ^ fnv1a([]byte(e.Reason))
	default:
		panic("settlement: unknown journal event variant")
	}
}

// stepHash fingerprints one entry: sequence (8 LE) | timestamp (8 LE) |
// kind (1) | payload (8 LE).
func stepHash(sequence, timestampNS uint64, kind uint8, payload uint64) uint64 {
	var data [25]byte
	binary.LittleEndian.PutUint64(data[0:8], sequence)
	binary.LittleEndian.PutUint64(data[8:16], timestampNS)
	data[16] = kind
	binary.LittleEndian.PutUint64(data[17:25], payload)
	return fnv1a(data[:])
}

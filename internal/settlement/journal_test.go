package settlement

import (
	"testing"

	"github.com/rawblock/clearing-engine/pkg/models"
)

func TestJournalRecord(t *testing.T) {
	journal := NewSettlementJournal()
	if !journal.IsEmpty() || journal.Len() != 0 {
		t.Fatal("new journal not empty")
	}
	if _, ok := journal.LastEntry(); ok {
		t.Fatal("empty journal returned a last entry")
	}

	journal.Record(1_000, models.TradeReceived{TradeID: 42})
	if journal.Len() != 1 {
		t.Fatalf("len = %d, want 1", journal.Len())
	}

	entry := journal.Entries()[0]
	if entry.Sequence != 1 || entry.TimestampNS != 1_000 {
		t.Errorf("entry = %+v", entry)
	}
	if ev, ok := entry.Event.(models.TradeReceived); !ok || ev.TradeID != 42 {
		t.Errorf("event = %+v", entry.Event)
	}

	journal.Record(2_000, models.NettingCompleted{ObligationCount: 3})
	if journal.Len() != 2 {
		t.Errorf("len = %d, want 2", journal.Len())
	}
}

func TestJournalSequenceIncrements(t *testing.T) {
	journal := NewSettlementJournal()
	for i := uint64(0); i < 10; i++ {
		journal.Record(i*1_000, models.TradeReceived{TradeID: i})
	}

	if journal.Len() != 10 {
		t.Fatalf("len = %d, want 10", journal.Len())
	}
	for idx, entry := range journal.Entries() {
		if entry.Sequence != uint64(idx)+1 {
			t.Errorf("entry %d sequence = %d, want %d", idx, entry.Sequence, idx+1)
		}
	}
}

func TestJournalLastEntry(t *testing.T) {
	journal := NewSettlementJournal()

	journal.Record(100, models.TradeReceived{TradeID: 1})
	last, ok := journal.LastEntry()
	if !ok || last.Sequence != 1 {
		t.Errorf("last = %+v, ok = %v", last, ok)
	}

	journal.Record(200, models.ClearingAttempted{ObligationCount: 5, SuccessCount: 4, FailCount: 1})
	last, ok = journal.LastEntry()
	if !ok || last.Sequence != 2 || last.TimestampNS != 200 {
		t.Errorf("last = %+v", last)
	}
	if ev, okEv := last.Event.(models.ClearingAttempted); !okEv || ev.SuccessCount != 4 {
		t.Errorf("event = %+v", last.Event)
	}

	journal.Record(300, models.SettlementFailed{TradeID: 99, Reason: "insufficient funds"})
	last, _ = journal.LastEntry()
	if last.Sequence != 3 || last.TimestampNS != 300 {
		t.Errorf("last = %+v", last)
	}
}

func TestJournalAllEventVariants(t *testing.T) {
	journal := NewSettlementJournal()
	journal.Record(1, models.TradeReceived{TradeID: 1})
	journal.Record(2, models.NettingCompleted{ObligationCount: 5})
	journal.Record(3, models.ClearingAttempted{ObligationCount: 5, SuccessCount: 4, FailCount: 1})
	journal.Record(4, models.SettlementCompleted{TradeCount: 10})
	journal.Record(5, models.SettlementFailed{TradeID: 42, Reason: "no funds"})

	if journal.Len() != 5 {
		t.Fatalf("len = %d, want 5", journal.Len())
	}
	for i, entry := range journal.Entries() {
		if entry.Sequence != uint64(i)+1 {
			t.Errorf("sequence %d at index %d", entry.Sequence, i)
		}
	}
}

func TestJournalTimestampPreserved(t *testing.T) {
	journal := NewSettlementJournal()
	const ts uint64 = 1_700_000_000_123_456_789
	journal.Record(ts, models.TradeReceived{TradeID: 7})
	if got := journal.Entries()[0].TimestampNS; got != ts {
		t.Errorf("timestamp = %d, want %d", got, ts)
	}
}

func TestJournalLargeSequence(t *testing.T) {
	journal := NewSettlementJournal()
	for i := uint64(0); i < 1_000; i++ {
		journal.Record(i, models.TradeReceived{TradeID: i})
	}
	if journal.Len() != 1_000 {
		t.Fatalf("len = %d", journal.Len())
	}
	last, _ := journal.LastEntry()
	if last.Sequence != 1_000 {
		t.Errorf("last sequence = %d, want 1000", last.Sequence)
	}
}

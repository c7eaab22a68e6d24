package settlement

import (
	"github.com/rawblock/clearing-engine/pkg/models"
)

// SettlementJournal is the append-only audit trail. Sequence numbers
// start at 1 and increment by exactly one per recorded event; entries
// are never removed or reordered. The journal is the canonical surface
// for cross-implementation determinism — replay fingerprints derive
// from it, never from raw obligation vectors.
type SettlementJournal struct {
	entries []models.JournalEntry
	nextSeq uint64
}

// NewSettlementJournal creates an empty journal. The first recorded
// entry will have sequence 1.
func NewSettlementJournal() *SettlementJournal {
	return &SettlementJournal{nextSeq: 1}
}

// Record appends an event with the given timestamp.
func (j *SettlementJournal) Record(timestampNS uint64, event models.JournalEvent) {
	seq := j.nextSeq
	j.nextSeq++
	j.entries = append(j.entries, models.JournalEntry{
		Sequence:    seq,
		TimestampNS: timestampNS,
		Event:       event,
	})
}

// Entries returns all journal entries in order. The slice is the
// journal's backing store; callers must treat it as read-only.
func (j *SettlementJournal) Entries() []models.JournalEntry {
	return j.entries
}

// Len returns the number of entries.
func (j *SettlementJournal) Len() int {
	return len(j.entries)
}

// IsEmpty reports whether the journal has no entries.
func (j *SettlementJournal) IsEmpty() bool {
	return len(j.entries) == 0
}

// LastEntry returns the most recent entry, or false if the journal is
// empty.
func (j *SettlementJournal) LastEntry() (models.JournalEntry, bool) {
	if len(j.entries) == 0 {
		return models.JournalEntry{}, false
	}
	return j.entries[len(j.entries)-1], true
}

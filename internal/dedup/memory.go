package dedup

import (
	"context"
	"sync"
)

// MemoryLedger is the in-process deduplication backend. Each meeting
// carries a hash set of everything accepted plus a bounded ring of the
// most recent normalized texts for cheap repeat detection.
type MemoryLedger struct {
	recentSize int
	meetings   map[string]*meetingRecord

	// Statistics
	accepted uint64
	dropped  uint64

	mu sync.Mutex
}

type meetingRecord struct {
	hashes map[string]struct{}
	recent []string // normalized texts, newest last, bounded by recentSize
}

// LedgerStats represents deduplication statistics
type LedgerStats struct {
	Meetings int    `json:"meetings"`
	Accepted uint64 `json:"accepted"`
	Dropped  uint64 `json:"dropped"`
}

// NewMemoryLedger creates an in-memory ledger with the given recent-ring size
func NewMemoryLedger(recentSize int) *MemoryLedger {
	if recentSize <= 0 {
		recentSize = 10
	}

	return &MemoryLedger{
		recentSize: recentSize,
		meetings:   make(map[string]*meetingRecord),
	}
}

// FirstSeen records text for the meeting and reports whether it is new
func (l *MemoryLedger) FirstSeen(_ context.Context, meetingID, text string) (bool, error) {
	if Rejectable(text) {
		return false, nil
	}

	normalized := Normalize(text)
	hash := HashText(text)

	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok := l.meetings[meetingID]
	if !ok {
		record = &meetingRecord{hashes: make(map[string]struct{})}
		l.meetings[meetingID] = record
	}

	for _, seen := range record.recent {
		if seen == normalized {
			l.dropped++
			return false, nil
		}
	}

	if _, dup := record.hashes[hash]; dup {
		l.dropped++
		return false, nil
	}

	record.hashes[hash] = struct{}{}
	record.recent = append(record.recent, normalized)
	if len(record.recent) > l.recentSize {
		record.recent = record.recent[len(record.recent)-l.recentSize:]
	}

	l.accepted++
	return true, nil
}

// ForgetMeeting drops all state for a meeting
func (l *MemoryLedger) ForgetMeeting(_ context.Context, meetingID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.meetings, meetingID)
	return nil
}

// GetStats returns current ledger statistics
func (l *MemoryLedger) GetStats() LedgerStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return LedgerStats{
		Meetings: len(l.meetings),
		Accepted: l.accepted,
		Dropped:  l.dropped,
	}
}

// Close releases ledger resources
func (l *MemoryLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.meetings = make(map[string]*meetingRecord)
	return nil
}

package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps finalized artifacts in process memory. It backs
// single-instance deployments and the monitoring API's archive lookups.
type MemoryStore struct {
	transcripts map[string][]Segment
	summaries   map[string]StoredSummary
	tasks       map[string][]string
	mu          sync.RWMutex
}

// StoredSummary is a persisted meeting summary
type StoredSummary struct {
	Summary   string    `json:"summary"`
	TaskCount int       `json:"task_count"`
	SavedAt   time.Time `json:"saved_at"`
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transcripts: make(map[string][]Segment),
		summaries:   make(map[string]StoredSummary),
		tasks:       make(map[string][]string),
	}
}

// SaveSegment appends one accepted segment to the meeting's transcript.
// The finalization SaveTranscript overwrites this incremental copy with
// the attributed, time-ordered version.
func (st *MemoryStore) SaveSegment(_ context.Context, meetingID string, segment Segment) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.transcripts[meetingID] = append(st.transcripts[meetingID], segment)
	return nil
}

// SaveTranscript stores the final transcript for a meeting
func (st *MemoryStore) SaveTranscript(_ context.Context, meetingID string, segments []Segment) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.transcripts[meetingID] = append([]Segment(nil), segments...)
	return nil
}

// SaveSummary stores the final summary for a meeting
func (st *MemoryStore) SaveSummary(_ context.Context, meetingID, summary string, taskCount int) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.summaries[meetingID] = StoredSummary{
		Summary:   summary,
		TaskCount: taskCount,
		SavedAt:   time.Now(),
	}
	return nil
}

// SaveTasks stores the extracted action items for a meeting
func (st *MemoryStore) SaveTasks(_ context.Context, meetingID string, tasks []string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.tasks[meetingID] = append([]string(nil), tasks...)
	return nil
}

// GetTranscript returns the stored transcript for a meeting
func (st *MemoryStore) GetTranscript(meetingID string) ([]Segment, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	segments, ok := st.transcripts[meetingID]
	return segments, ok
}

// GetSummary returns the stored summary for a meeting
func (st *MemoryStore) GetSummary(meetingID string) (StoredSummary, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	summary, ok := st.summaries[meetingID]
	return summary, ok
}

// GetTasks returns the stored action items for a meeting
func (st *MemoryStore) GetTasks(meetingID string) ([]string, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	tasks, ok := st.tasks[meetingID]
	return tasks, ok
}

package session

import (
	"sort"
	"sync"
	"time"

	"github.com/meetscribe/meeting-stream-service/internal/audio"
	"github.com/meetscribe/meeting-stream-service/internal/batch"
)

// State identifies which lifecycle pool a session is in
type State string

const (
	StateActive       State = "active"
	StateDisconnected State = "disconnected"
	StateProcessed    State = "processed"
)

// Segment is one accepted transcript line for a meeting
type Segment struct {
	ChunkID    string    `json:"chunk_id"`
	BatchIndex int       `json:"batch_index"`
	Text       string    `json:"text"`
	Speaker    string    `json:"speaker,omitempty"`
	Confidence float64   `json:"confidence"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}

// MeetingSession holds all per-meeting state: the audio accumulator,
// the attribution batch buffer, accepted transcript segments, and
// lifecycle bookkeeping.
type MeetingSession struct {
	ID           string
	MeetingID    string
	ConnectionID string
	Platform     string
	Participants []string

	StartTime         time.Time
	LastActivity      time.Time
	DisconnectedAt    time.Time
	ProcessedAt       time.Time
	ReconnectionCount int
	State             State

	AudioBuffer *audio.ChunkBuffer
	BatchBuffer *batch.Buffer

	segments []Segment

	// endPending is set when meeting_ended arrives before the client's
	// buffer flush finished; finalization waits for the flushed audio.
	endPending bool

	// finalized flips exactly once, under the manager lock.
	finalized bool

	// flushMu serializes buffer flushes per meeting. Contenders use
	// TryLock and walk away rather than queue.
	flushMu sync.Mutex

	mu sync.RWMutex
}

// SessionInfo represents session state for monitoring and APIs
type SessionInfo struct {
	SessionID         string        `json:"session_id"`
	MeetingID         string        `json:"meeting_id"`
	ConnectionID      string        `json:"connection_id,omitempty"`
	Platform          string        `json:"platform,omitempty"`
	State             State         `json:"state"`
	Participants      []string      `json:"participants,omitempty"`
	StartTime         time.Time     `json:"start_time"`
	LastActivity      time.Time     `json:"last_activity"`
	Duration          time.Duration `json:"duration"`
	ReconnectionCount int           `json:"reconnection_count"`
	Segments          int           `json:"segments"`
	PendingChunks     int           `json:"pending_chunks"`
	BufferedAudio     time.Duration `json:"buffered_audio"`
}

// Touch updates the last activity timestamp
func (s *MeetingSession) Touch() {
	s.mu.Lock()
	s.LastActivity = time.Now()
	s.mu.Unlock()
}

// SetParticipants replaces the roster when an enhanced chunk reports it
func (s *MeetingSession) SetParticipants(participants []string) {
	if len(participants) == 0 {
		return
	}

	s.mu.Lock()
	s.Participants = participants
	s.mu.Unlock()
}

// ParticipantsSnapshot returns a copy of the current roster
func (s *MeetingSession) ParticipantsSnapshot() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.Participants))
	copy(out, s.Participants)
	return out
}

// AppendSegment records an accepted transcript segment
func (s *MeetingSession) AppendSegment(segment Segment) {
	s.mu.Lock()
	s.segments = append(s.segments, segment)
	s.mu.Unlock()
}

// ApplySpeakers copies attributed speakers back onto the matching
// segments by batch index
func (s *MeetingSession) ApplySpeakers(chunks []batch.Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byIndex := make(map[int]string, len(chunks))
	for _, chunk := range chunks {
		byIndex[chunk.ChunkIndex] = chunk.Speaker
	}

	for i := range s.segments {
		if speaker, ok := byIndex[s.segments[i].BatchIndex]; ok && speaker != "" {
			s.segments[i].Speaker = speaker
		}
	}
}

// SegmentsSnapshot returns the accepted segments ordered by start time
func (s *MeetingSession) SegmentsSnapshot() []Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Segment, len(s.segments))
	copy(out, s.segments)

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})

	return out
}

// SegmentCount returns the number of accepted segments
func (s *MeetingSession) SegmentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.segments)
}

// GetInfo returns a monitoring snapshot
func (s *MeetingSession) GetInfo() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return SessionInfo{
		SessionID:         s.ID,
		MeetingID:         s.MeetingID,
		ConnectionID:      s.ConnectionID,
		Platform:          s.Platform,
		State:             s.State,
		Participants:      append([]string(nil), s.Participants...),
		StartTime:         s.StartTime,
		LastActivity:      s.LastActivity,
		Duration:          time.Since(s.StartTime),
		ReconnectionCount: s.ReconnectionCount,
		Segments:          len(s.segments),
		PendingChunks:     s.BatchBuffer.PendingCount(),
		BufferedAudio:     s.AudioBuffer.Duration(),
	}
}

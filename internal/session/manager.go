package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meetscribe/meeting-stream-service/internal/audio"
	"github.com/meetscribe/meeting-stream-service/internal/batch"
	"github.com/meetscribe/meeting-stream-service/internal/config"
	"github.com/meetscribe/meeting-stream-service/internal/dedup"
	"github.com/meetscribe/meeting-stream-service/internal/metrics"
	"github.com/meetscribe/meeting-stream-service/internal/protocol"
	"github.com/meetscribe/meeting-stream-service/internal/transcription"
	"github.com/meetscribe/meeting-stream-service/internal/vad"
)

var (
	// ErrDuplicateMeeting means the meeting already has a live session
	// on another connection.
	ErrDuplicateMeeting = errors.New("meeting already has an active session")

	// ErrMaxReconnections means the session exhausted its reconnection
	// budget and will finalize on its timer.
	ErrMaxReconnections = errors.New("reconnection limit exceeded")

	// ErrSessionProcessed means the meeting was already finalized.
	ErrSessionProcessed = errors.New("meeting has already been processed")

	// ErrMeetingNotFound means no session exists for the meeting.
	ErrMeetingNotFound = errors.New("meeting not found")
)

// Store persists finalized meeting artifacts
type Store interface {
	SaveSegment(ctx context.Context, meetingID string, segment Segment) error
	SaveTranscript(ctx context.Context, meetingID string, segments []Segment) error
	SaveSummary(ctx context.Context, meetingID string, summary string, taskCount int) error
	SaveTasks(ctx context.Context, meetingID string, tasks []string) error
}

// Integration receives the finalized meeting artifacts for downstream
// systems (task trackers, chat notifiers). Failures are logged and never
// unwind finalization.
type Integration interface {
	MeetingProcessed(ctx context.Context, meetingID string, segments []Segment, summary string, tasks []string) error
}

// Notifier delivers outbound messages for a meeting. The gateway
// implements it over WebSocket connections.
type Notifier interface {
	NotifyTranscription(meetingID string, result protocol.TranscriptionResult)
	NotifyMeetingUpdate(meetingID string, update protocol.MeetingUpdate)
	NotifyProcessingStatus(meetingID string, status protocol.ProcessingStatus)
	NotifyProcessingComplete(meetingID string, complete protocol.ProcessingComplete)
}

// Deps bundles the manager's collaborators
type Deps struct {
	Transcriber transcription.Transcriber
	Attributor  *batch.Attributor
	Ledger      dedup.Ledger
	Silence     *vad.Processor
	Store       Store
	Notifier    Notifier
	Integration Integration      // optional
	Metrics     *metrics.Metrics // optional
}

// Manager owns every meeting session across its lifecycle: active
// sessions receiving audio, disconnected sessions awaiting reconnection,
// and processed sessions retained for late queries.
type Manager struct {
	cfg    *config.Config
	logger *slog.Logger
	deps   Deps

	active         map[string]*MeetingSession // keyed by meeting ID
	disconnected   map[string]*MeetingSession
	processed      map[string]*MeetingSession
	finalizeTimers map[string]*time.Timer
	mu             sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	loops  sync.WaitGroup
}

// ManagerStats represents manager state for monitoring
type ManagerStats struct {
	Active       int `json:"active"`
	Disconnected int `json:"disconnected"`
	Processed    int `json:"processed"`
}

// NewManager creates a session manager and starts its background loops
func NewManager(logger *slog.Logger, cfg *config.Config, deps Deps) (*Manager, error) {
	if deps.Transcriber == nil {
		return nil, fmt.Errorf("transcriber is required")
	}
	if deps.Attributor == nil {
		return nil, fmt.Errorf("attributor is required")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("dedup ledger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	mgr := &Manager{
		cfg:            cfg,
		logger:         logger,
		deps:           deps,
		active:         make(map[string]*MeetingSession),
		disconnected:   make(map[string]*MeetingSession),
		processed:      make(map[string]*MeetingSession),
		finalizeTimers: make(map[string]*time.Timer),
		ctx:            ctx,
		cancel:         cancel,
	}

	mgr.loops.Add(2)
	go mgr.flushLoop()
	go mgr.sweepLoop()

	return mgr, nil
}

// Register creates a session for the meeting or resumes a disconnected
// one. The second return value reports whether the session is new.
func (m *Manager) Register(connectionID string, hs *protocol.Handshake) (*MeetingSession, bool, error) {
	if hs.MeetingID == "" {
		return nil, false, fmt.Errorf("handshake missing meeting ID")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, done := m.processed[hs.MeetingID]; done {
		return nil, false, ErrSessionProcessed
	}

	if s, waiting := m.disconnected[hs.MeetingID]; waiting {
		if s.ReconnectionCount+1 > m.cfg.Session.MaxReconnections {
			m.logger.Warn("Reconnection refused over limit",
				slog.String("meeting_id", hs.MeetingID),
				slog.Int("reconnection_count", s.ReconnectionCount),
				slog.Int("max_reconnections", m.cfg.Session.MaxReconnections),
			)
			if m.deps.Metrics != nil {
				m.deps.Metrics.RecordReconnectionDenied()
			}
			return nil, false, ErrMaxReconnections
		}

		m.cancelFinalizeTimerLocked(hs.MeetingID)
		delete(m.disconnected, hs.MeetingID)

		s.mu.Lock()
		s.ReconnectionCount++
		s.ConnectionID = connectionID
		s.State = StateActive
		s.LastActivity = time.Now()
		if len(hs.Participants) > 0 {
			s.Participants = hs.Participants
		}
		s.mu.Unlock()

		m.active[hs.MeetingID] = s
		m.updateGaugesLocked()

		m.logger.Info("Session reconnected",
			slog.String("meeting_id", hs.MeetingID),
			slog.String("session_id", s.ID),
			slog.Int("reconnection_count", s.ReconnectionCount),
		)
		if m.deps.Metrics != nil {
			m.deps.Metrics.RecordReconnection()
		}

		return s, false, nil
	}

	if s, live := m.active[hs.MeetingID]; live {
		// Re-handshake on the same connection refreshes metadata.
		if s.ConnectionID == connectionID {
			s.SetParticipants(hs.Participants)
			s.Touch()
			return s, false, nil
		}
		return nil, false, ErrDuplicateMeeting
	}

	audioBuffer, err := audio.NewChunkBuffer(
		m.cfg.Audio.DefaultSampleRate,
		m.cfg.Audio.DefaultChannels,
		m.cfg.Audio.DefaultSampleWidth,
		m.cfg.Audio.GetTargetDuration(),
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create audio buffer: %w", err)
	}

	now := time.Now()
	s := &MeetingSession{
		ID:           uuid.NewString(),
		MeetingID:    hs.MeetingID,
		ConnectionID: connectionID,
		Platform:     hs.Platform,
		Participants: hs.Participants,
		StartTime:    now,
		LastActivity: now,
		State:        StateActive,
		AudioBuffer:  audioBuffer,
		BatchBuffer: batch.NewBuffer(
			m.cfg.Batch.MinChunks,
			m.cfg.Batch.GetInterval(),
			m.cfg.Batch.MaxTokens,
		),
	}

	m.active[hs.MeetingID] = s
	m.updateGaugesLocked()

	m.logger.Info("Session registered",
		slog.String("meeting_id", hs.MeetingID),
		slog.String("session_id", s.ID),
		slog.String("platform", hs.Platform),
		slog.Int("participants", len(hs.Participants)),
	)
	if m.deps.Metrics != nil {
		m.deps.Metrics.RecordSessionRegistered()
	}

	return s, true, nil
}

// AddAudio appends decoded PCM to the meeting's buffer and flushes
// asynchronously once the buffer reaches its target
func (m *Manager) AddAudio(meetingID string, chunk *protocol.AudioChunk) error {
	m.mu.RLock()
	s, ok := m.active[meetingID]
	m.mu.RUnlock()

	if !ok {
		return ErrMeetingNotFound
	}

	s.Touch()
	s.SetParticipants(chunk.Participants)

	// The first chunk's announced format configures the buffer; later
	// chunks must agree with whatever is already buffered.
	if err := s.AudioBuffer.EnsureFormat(chunk.SampleRate, chunk.Channels, chunk.SampleWidth); err != nil {
		return fmt.Errorf("audio format rejected: %w", err)
	}

	pcm, err := chunk.DecodeAudio()
	if err != nil {
		return fmt.Errorf("failed to decode audio chunk: %w", err)
	}

	full, err := s.AudioBuffer.Append(pcm)
	if err != nil {
		return fmt.Errorf("failed to buffer audio: %w", err)
	}

	if full {
		go m.flushSession(s, false)
	}

	return nil
}

// Disconnect moves the connection's session into the disconnected pool
// and arms its finalization timer
func (m *Manager) Disconnect(connectionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for meetingID, s := range m.active {
		if s.ConnectionID != connectionID {
			continue
		}

		delete(m.active, meetingID)

		s.mu.Lock()
		s.State = StateDisconnected
		s.DisconnectedAt = time.Now()
		s.ConnectionID = ""
		s.mu.Unlock()

		m.disconnected[meetingID] = s
		m.armFinalizeTimerLocked(meetingID, m.cfg.Session.GetDisconnectTimeout(), "disconnect timeout")
		m.updateGaugesLocked()

		m.logger.Info("Session disconnected, awaiting reconnection",
			slog.String("meeting_id", meetingID),
			slog.String("session_id", s.ID),
			slog.Duration("finalize_in", m.cfg.Session.GetDisconnectTimeout()),
		)
		return
	}
}

// EndMeeting handles a meeting_ended event. If the client reports its
// buffer flush complete the meeting finalizes now; otherwise
// finalization waits for the remaining audio, with a grace timer as
// backstop.
func (m *Manager) EndMeeting(meetingID string, bufferFlushComplete bool) error {
	m.mu.Lock()
	s, ok := m.active[meetingID]
	if !ok {
		s, ok = m.disconnected[meetingID]
	}
	if !ok {
		m.mu.Unlock()
		return ErrMeetingNotFound
	}

	if bufferFlushComplete {
		m.mu.Unlock()
		go m.finalizeMeeting(meetingID, "meeting ended")
		return nil
	}

	s.mu.Lock()
	s.endPending = true
	s.mu.Unlock()

	grace := 2 * m.cfg.Audio.GetFlushWindow()
	m.armFinalizeTimerLocked(meetingID, grace, "flush grace expired")
	m.mu.Unlock()

	m.deps.Notifier.NotifyProcessingStatus(meetingID, protocol.ProcessingStatus{
		MeetingID: meetingID,
		Status:    "waiting_buffer_flush",
		Detail:    "finalization deferred until buffered audio arrives",
	})

	m.logger.Info("Meeting end deferred until buffer flush",
		slog.String("meeting_id", meetingID),
		slog.Duration("grace", grace),
	)

	return nil
}

// flushLoop periodically forces idle buffers out and fires due
// attribution batches
func (m *Manager) flushLoop() {
	defer m.loops.Done()

	ticker := time.NewTicker(m.cfg.Audio.GetFlushCheckInterval())
	defer ticker.Stop()

	flushWindow := m.cfg.Audio.GetFlushWindow()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			for _, s := range m.activeSnapshot() {
				if s.AudioBuffer.Len() > 0 && s.AudioBuffer.IdleFor() >= flushWindow {
					go m.flushSession(s, false)
				}
				if s.BatchBuffer.ShouldProcess(now) {
					go m.runBatch(s)
				}
			}
		}
	}
}

// activeSnapshot returns the active sessions without holding the lock
// during processing
func (m *Manager) activeSnapshot() []*MeetingSession {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*MeetingSession, 0, len(m.active))
	for _, s := range m.active {
		out = append(out, s)
	}
	return out
}

// flushSession drains the meeting's audio buffer and runs it through the
// transcription pipeline. Only one flush runs per meeting; contenders
// return immediately.
func (m *Manager) flushSession(s *MeetingSession, final bool) {
	if !s.flushMu.TryLock() {
		if m.deps.Metrics != nil {
			m.deps.Metrics.RecordFlushSkipped()
		}
		return
	}

	m.flushLocked(s, final)
	s.flushMu.Unlock()

	s.mu.RLock()
	endPending := s.endPending
	s.mu.RUnlock()

	if endPending && s.AudioBuffer.Len() == 0 {
		m.finalizeMeeting(s.MeetingID, "deferred meeting end")
	}
}

// flushLocked does the actual flush work. Caller holds s.flushMu.
func (m *Manager) flushLocked(s *MeetingSession, final bool) {
	pcm, sampleRate, channels := s.AudioBuffer.Drain()
	if len(pcm) == 0 {
		return
	}

	start := time.Now()
	chunkID := uuid.NewString()

	duration := time.Duration(float64(len(pcm)) / float64(sampleRate*channels*2) * float64(time.Second))
	chunkStart := start.Add(-duration)

	if m.deps.Metrics != nil {
		m.deps.Metrics.RecordFlushTriggered(len(pcm))
	}

	if m.deps.Silence != nil {
		if result, err := m.deps.Silence.Analyze(pcm); err == nil && !result.HasVoice {
			m.logger.Debug("Flush gated as silence",
				slog.String("meeting_id", s.MeetingID),
				slog.String("chunk_id", chunkID),
				slog.Float64("rms", result.RMS),
			)
			if m.deps.Metrics != nil {
				m.deps.Metrics.RecordFlushSilent()
			}
			return
		}
	}

	wav, err := audio.EncodeWAV(pcm, sampleRate, channels)
	if err != nil {
		m.logger.Error("Failed to encode flushed audio",
			slog.String("meeting_id", s.MeetingID),
			slog.String("chunk_id", chunkID),
			slog.String("error", err.Error()),
		)
		return
	}

	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.Transcription.GetTimeoutDuration()+30*time.Second)
	defer cancel()

	if m.deps.Metrics != nil {
		m.deps.Metrics.RecordTranscriptionRequest()
	}

	result, err := m.deps.Transcriber.Transcribe(ctx, &transcription.Request{
		MeetingID:  s.MeetingID,
		ChunkID:    chunkID,
		AudioData:  wav,
		SampleRate: sampleRate,
		Duration:   duration.Seconds(),
		Timestamp:  chunkStart,
	})
	elapsed := time.Since(start)

	if err != nil {
		m.logger.Error("Transcription failed",
			slog.String("meeting_id", s.MeetingID),
			slog.String("chunk_id", chunkID),
			slog.String("error", err.Error()),
			slog.Float64("duration", elapsed.Seconds()),
		)
		if m.deps.Metrics != nil {
			m.deps.Metrics.RecordTranscriptionFailure(elapsed.Seconds())
		}
		return
	}

	if m.deps.Metrics != nil {
		m.deps.Metrics.RecordTranscriptionSuccess(elapsed.Seconds())
		m.deps.Metrics.RecordFlushDuration(elapsed.Seconds())
	}

	if !result.IsUsable() {
		m.logger.Debug("Transcription returned no usable text",
			slog.String("meeting_id", s.MeetingID),
			slog.String("chunk_id", chunkID),
		)
		return
	}

	first, err := m.deps.Ledger.FirstSeen(ctx, s.MeetingID, result.Text)
	if err != nil {
		// Fail open: a broken ledger must not silently drop transcript.
		m.logger.Warn("Dedup ledger error, accepting text",
			slog.String("meeting_id", s.MeetingID),
			slog.String("error", err.Error()),
		)
		first = true
	}

	if !first {
		m.logger.Debug("Duplicate transcription dropped",
			slog.String("meeting_id", s.MeetingID),
			slog.String("chunk_id", chunkID),
		)
		if m.deps.Metrics != nil {
			m.deps.Metrics.RecordDuplicateDropped()
		}
		return
	}

	chunkEnd := chunkStart.Add(duration)
	batchChunk := s.BatchBuffer.Add(result.Text, chunkStart, chunkEnd, s.ParticipantsSnapshot(), result.Confidence)

	segment := Segment{
		ChunkID:    chunkID,
		BatchIndex: batchChunk.ChunkIndex,
		Text:       result.Text,
		Confidence: result.Confidence,
		Start:      chunkStart,
		End:        chunkEnd,
	}
	s.AppendSegment(segment)

	// Incremental write so a crash before finalization loses at most the
	// in-flight chunk. Finalization overwrites with the attributed copy.
	if err := m.deps.Store.SaveSegment(ctx, s.MeetingID, segment); err != nil {
		m.logger.Warn("Failed to persist segment",
			slog.String("meeting_id", s.MeetingID),
			slog.String("chunk_id", chunkID),
			slog.String("error", err.Error()),
		)
	}

	m.deps.Notifier.NotifyTranscription(s.MeetingID, protocol.TranscriptionResult{
		Text:       result.Text,
		Confidence: result.Confidence,
		Timestamp:  chunkStart,
		ChunkID:    chunkID,
		IsFlushing: final,
	})

	m.logger.Info("Transcription accepted",
		slog.String("meeting_id", s.MeetingID),
		slog.String("chunk_id", chunkID),
		slog.Float64("confidence", result.Confidence),
		slog.Float64("audio_seconds", duration.Seconds()),
		slog.Float64("elapsed", elapsed.Seconds()),
	)
}

// runBatch drains the pending attribution batch and fans attributed
// lines out as meeting updates
func (m *Manager) runBatch(s *MeetingSession) {
	chunks := s.BatchBuffer.Take()
	if len(chunks) == 0 {
		return
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.LLM.GetTimeoutDuration()+10*time.Second)
	defer cancel()

	attributed, err := m.deps.Attributor.Attribute(ctx, chunks, s.ParticipantsSnapshot())
	if err != nil {
		m.logger.Warn("Speaker attribution degraded to pattern fallback",
			slog.String("meeting_id", s.MeetingID),
			slog.Int("chunks", len(chunks)),
			slog.String("error", err.Error()),
		)
		if m.deps.Metrics != nil {
			m.deps.Metrics.RecordBatchFallback()
		}
	}

	s.ApplySpeakers(attributed)

	for _, chunk := range attributed {
		m.deps.Notifier.NotifyMeetingUpdate(s.MeetingID, protocol.MeetingUpdate{
			MeetingID:  s.MeetingID,
			UpdateType: "speaker_attributed",
			Text:       chunk.Text,
			Speaker:    chunk.Speaker,
		})
	}

	if m.deps.Metrics != nil {
		m.deps.Metrics.RecordBatchProcessed(len(attributed), time.Since(start).Seconds())
	}

	m.logger.Info("Attribution batch processed",
		slog.String("meeting_id", s.MeetingID),
		slog.Int("chunks", len(attributed)),
		slog.Float64("elapsed", time.Since(start).Seconds()),
	)
}

// finalizeMeeting runs the meeting's terminal processing exactly once:
// final flush, final attribution batch, summary, persistence, and the
// move into the processed pool.
func (m *Manager) finalizeMeeting(meetingID, reason string) {
	m.mu.Lock()
	s, ok := m.active[meetingID]
	if !ok {
		s, ok = m.disconnected[meetingID]
	}
	if !ok {
		m.mu.Unlock()
		return
	}

	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		m.mu.Unlock()
		return
	}
	s.finalized = true
	s.endPending = false
	s.mu.Unlock()

	delete(m.active, meetingID)
	delete(m.disconnected, meetingID)
	m.cancelFinalizeTimerLocked(meetingID)
	m.updateGaugesLocked()
	m.mu.Unlock()

	m.logger.Info("Finalizing meeting",
		slog.String("meeting_id", meetingID),
		slog.String("session_id", s.ID),
		slog.String("reason", reason),
	)

	m.deps.Notifier.NotifyProcessingStatus(meetingID, protocol.ProcessingStatus{
		MeetingID: meetingID,
		Status:    "processing",
		Detail:    reason,
	})

	// Blocking lock: an in-flight flush finishes first, then the final
	// flush takes whatever remains.
	s.flushMu.Lock()
	m.flushLocked(s, true)
	s.flushMu.Unlock()

	m.runBatch(s)

	segments := s.SegmentsSnapshot()
	summary, tasks, partial := m.buildSummary(s, segments)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := m.deps.Store.SaveTranscript(ctx, meetingID, segments); err != nil {
		m.logger.Error("Failed to persist transcript",
			slog.String("meeting_id", meetingID),
			slog.String("error", err.Error()),
		)
		partial = true
	}
	if err := m.deps.Store.SaveSummary(ctx, meetingID, summary, len(tasks)); err != nil {
		m.logger.Error("Failed to persist summary",
			slog.String("meeting_id", meetingID),
			slog.String("error", err.Error()),
		)
		partial = true
	}
	if err := m.deps.Store.SaveTasks(ctx, meetingID, tasks); err != nil {
		m.logger.Error("Failed to persist tasks",
			slog.String("meeting_id", meetingID),
			slog.String("error", err.Error()),
		)
		partial = true
	}

	if m.deps.Integration != nil {
		if err := m.deps.Integration.MeetingProcessed(ctx, meetingID, segments, summary, tasks); err != nil {
			m.logger.Warn("Integration notification failed",
				slog.String("meeting_id", meetingID),
				slog.String("error", err.Error()),
			)
		}
	}

	now := time.Now()
	s.mu.Lock()
	s.State = StateProcessed
	s.ProcessedAt = now
	s.ConnectionID = ""
	sessionDuration := now.Sub(s.StartTime)
	s.mu.Unlock()

	m.mu.Lock()
	m.processed[meetingID] = s
	m.updateGaugesLocked()
	m.mu.Unlock()

	m.deps.Notifier.NotifyProcessingComplete(meetingID, protocol.ProcessingComplete{
		MeetingID:    meetingID,
		Summary:      summary,
		TaskCount:    len(tasks),
		SegmentCount: len(segments),
		Partial:      partial,
	})

	if m.deps.Metrics != nil {
		m.deps.Metrics.RecordFinalization(sessionDuration.Seconds())
	}

	m.logger.Info("Meeting finalized",
		slog.String("meeting_id", meetingID),
		slog.String("session_id", s.ID),
		slog.Int("segments", len(segments)),
		slog.Int("tasks", len(tasks)),
		slog.Bool("partial", partial),
		slog.Duration("session_duration", sessionDuration),
	)
}

const summarySystemPrompt = "You summarize meeting transcripts. Reply with a short " +
	"summary paragraph, then a line \"Action items:\" followed by one \"- \" bullet " +
	"per concrete action item. Write \"Action items: none\" if there are none."

// buildSummary asks the language model for a summary and action items.
// When the model is unavailable a minimal summary is produced locally
// and the result is marked partial.
func (m *Manager) buildSummary(s *MeetingSession, segments []Segment) (string, []string, bool) {
	if len(segments) == 0 {
		return "No transcript was captured for this meeting.", nil, false
	}

	var sb strings.Builder
	for _, seg := range segments {
		speaker := seg.Speaker
		if speaker == "" {
			speaker = batch.UnknownSpeaker
		}
		fmt.Fprintf(&sb, "%s: %s\n", speaker, seg.Text)
	}

	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.LLM.GetTimeoutDuration()+10*time.Second)
	defer cancel()

	reply, err := m.deps.Attributor.Completer().Complete(ctx, summarySystemPrompt, sb.String())
	if err != nil {
		m.logger.Warn("Summary generation failed, using degraded summary",
			slog.String("meeting_id", s.MeetingID),
			slog.String("error", err.Error()),
		)
		degraded := fmt.Sprintf("Meeting with %d transcript segments and %d participants. Summary generation was unavailable.",
			len(segments), len(s.ParticipantsSnapshot()))
		return degraded, nil, true
	}

	return reply, extractActionItems(reply), false
}

// extractActionItems collects "- " bullets after the "Action items:" heading
func extractActionItems(summary string) []string {
	lines := strings.Split(summary, "\n")
	inItems := false
	var items []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToLower(trimmed), "action items") {
			inItems = true
			continue
		}
		if inItems && strings.HasPrefix(trimmed, "- ") {
			items = append(items, strings.TrimSpace(strings.TrimPrefix(trimmed, "- ")))
		}
	}

	return items
}

// sweepLoop removes processed sessions past the retention window
func (m *Manager) sweepLoop() {
	defer m.loops.Done()

	ticker := time.NewTicker(m.cfg.Session.GetSweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.sweepProcessed()
		}
	}
}

// sweepProcessed drops processed sessions older than the retention
// window and releases their dedup state
func (m *Manager) sweepProcessed() {
	retention := m.cfg.Session.GetRetention()
	now := time.Now()

	m.mu.Lock()
	expired := make([]string, 0)
	for meetingID, s := range m.processed {
		s.mu.RLock()
		processedAt := s.ProcessedAt
		s.mu.RUnlock()

		if now.Sub(processedAt) > retention {
			delete(m.processed, meetingID)
			expired = append(expired, meetingID)
		}
	}
	m.mu.Unlock()

	for _, meetingID := range expired {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.deps.Ledger.ForgetMeeting(ctx, meetingID); err != nil {
			m.logger.Warn("Failed to release dedup state",
				slog.String("meeting_id", meetingID),
				slog.String("error", err.Error()),
			)
		}
		cancel()
	}

	if len(expired) > 0 {
		m.logger.Info("Swept expired processed sessions",
			slog.Int("removed", len(expired)),
		)
	}
}

// armFinalizeTimerLocked schedules finalization. Caller holds m.mu. An
// existing timer is replaced.
func (m *Manager) armFinalizeTimerLocked(meetingID string, after time.Duration, reason string) {
	if timer, ok := m.finalizeTimers[meetingID]; ok {
		timer.Stop()
	}

	m.finalizeTimers[meetingID] = time.AfterFunc(after, func() {
		m.finalizeMeeting(meetingID, reason)
	})
}

// cancelFinalizeTimerLocked stops any pending finalization. Caller holds m.mu.
func (m *Manager) cancelFinalizeTimerLocked(meetingID string) {
	if timer, ok := m.finalizeTimers[meetingID]; ok {
		timer.Stop()
		delete(m.finalizeTimers, meetingID)
	}
}

func (m *Manager) updateGaugesLocked() {
	if m.deps.Metrics == nil {
		return
	}
	m.deps.Metrics.SetActiveSessions(len(m.active))
	m.deps.Metrics.SetDisconnectedSessions(len(m.disconnected))
}

// GetSession finds a session in any pool
func (m *Manager) GetSession(meetingID string) (*MeetingSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if s, ok := m.active[meetingID]; ok {
		return s, true
	}
	if s, ok := m.disconnected[meetingID]; ok {
		return s, true
	}
	if s, ok := m.processed[meetingID]; ok {
		return s, true
	}
	return nil, false
}

// GetAllSessions returns monitoring snapshots across all pools
func (m *Manager) GetAllSessions() []SessionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]SessionInfo, 0, len(m.active)+len(m.disconnected)+len(m.processed))
	for _, s := range m.active {
		out = append(out, s.GetInfo())
	}
	for _, s := range m.disconnected {
		out = append(out, s.GetInfo())
	}
	for _, s := range m.processed {
		out = append(out, s.GetInfo())
	}
	return out
}

// GetStats returns pool sizes
func (m *Manager) GetStats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return ManagerStats{
		Active:       len(m.active),
		Disconnected: len(m.disconnected),
		Processed:    len(m.processed),
	}
}

// Stop finalizes nothing; it stops the background loops and cancels
// pending timers. In-flight finalizations complete on their own
// goroutines.
func (m *Manager) Stop() {
	m.logger.Info("Stopping session manager...")

	m.mu.Lock()
	for meetingID, timer := range m.finalizeTimers {
		timer.Stop()
		delete(m.finalizeTimers, meetingID)
	}
	m.mu.Unlock()

	m.cancel()
	m.loops.Wait()

	stats := m.GetStats()
	m.logger.Info("Session manager stopped",
		slog.Int("active", stats.Active),
		slog.Int("disconnected", stats.Disconnected),
		slog.Int("processed", stats.Processed),
	)
}

package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/meetscribe/meeting-stream-service/internal/batch"
	"github.com/meetscribe/meeting-stream-service/internal/config"
	"github.com/meetscribe/meeting-stream-service/internal/dedup"
	"github.com/meetscribe/meeting-stream-service/internal/protocol"
	"github.com/meetscribe/meeting-stream-service/internal/transcription"
)

type fakeTranscriber struct {
	texts []string
	calls int
	last  *transcription.Request
	mu    sync.Mutex
}

func (f *fakeTranscriber) Transcribe(_ context.Context, req *transcription.Request) (*transcription.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	text := "default transcript text"
	if f.calls < len(f.texts) {
		text = f.texts[f.calls]
	}
	f.calls++
	f.last = req

	return &transcription.Result{ChunkID: req.ChunkID, Text: text, Confidence: 0.9}, nil
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeTranscriber) lastRequest() *transcription.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

type fakeCompleter struct {
	reply string
	err   error
}

func (f *fakeCompleter) Complete(context.Context, string, string) (string, error) {
	return f.reply, f.err
}

type recordingNotifier struct {
	transcriptions []protocol.TranscriptionResult
	updates        []protocol.MeetingUpdate
	statuses       []protocol.ProcessingStatus
	completes      []protocol.ProcessingComplete
	mu             sync.Mutex
}

func (n *recordingNotifier) NotifyTranscription(_ string, r protocol.TranscriptionResult) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transcriptions = append(n.transcriptions, r)
}

func (n *recordingNotifier) NotifyMeetingUpdate(_ string, u protocol.MeetingUpdate) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, u)
}

func (n *recordingNotifier) NotifyProcessingStatus(_ string, s protocol.ProcessingStatus) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, s)
}

func (n *recordingNotifier) NotifyProcessingComplete(_ string, c protocol.ProcessingComplete) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completes = append(n.completes, c)
}

func (n *recordingNotifier) completeCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.completes)
}

func (n *recordingNotifier) transcriptionCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.transcriptions)
}

type recordingIntegration struct {
	processed []string
	mu        sync.Mutex
}

func (i *recordingIntegration) MeetingProcessed(_ context.Context, meetingID string, _ []Segment, _ string, _ []string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.processed = append(i.processed, meetingID)
	return nil
}

func (i *recordingIntegration) processedCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.processed)
}

type managerFixture struct {
	manager     *Manager
	transcriber *fakeTranscriber
	notifier    *recordingNotifier
	store       *MemoryStore
	integration *recordingIntegration
	cfg         *config.Config
}

func newFixture(t *testing.T, mutate func(*config.Config)) *managerFixture {
	t.Helper()

	cfg := config.Default()
	cfg.Audio.TargetDuration = 1
	cfg.Audio.FlushWindow = 1
	if mutate != nil {
		mutate(cfg)
	}

	transcriber := &fakeTranscriber{}
	notifier := &recordingNotifier{}
	store := NewMemoryStore()
	integration := &recordingIntegration{}

	mgr, err := NewManager(
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		cfg,
		Deps{
			Transcriber: transcriber,
			Attributor:  batch.NewAttributor(&fakeCompleter{reply: "Summary of the call.\nAction items:\n- follow up"}),
			Ledger:      dedup.NewMemoryLedger(cfg.Dedup.RecentSize),
			Store:       store,
			Notifier:    notifier,
			Integration: integration,
		},
	)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	t.Cleanup(mgr.Stop)

	return &managerFixture{manager: mgr, transcriber: transcriber, notifier: notifier, store: store, integration: integration, cfg: cfg}
}

func handshake(meetingID string) *protocol.Handshake {
	return &protocol.Handshake{
		ClientVersion: "1.0.0",
		MeetingID:     meetingID,
		Platform:      "meet",
		Participants:  []string{"Alice Johnson", "Bob Smith"},
	}
}

func audioChunk(samples int) *protocol.AudioChunk {
	return audioChunkAt(samples, 16000)
}

func audioChunkAt(samples, sampleRate int) *protocol.AudioChunk {
	return &protocol.AudioChunk{
		Audio:       base64.StdEncoding.EncodeToString(make([]byte, samples*2)),
		SampleRate:  sampleRate,
		Channels:    1,
		SampleWidth: 2,
	}
}

func TestRegisterNewSession(t *testing.T) {
	f := newFixture(t, nil)

	s, isNew, err := f.manager.Register("conn-1", handshake("meet-1"))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if !isNew {
		t.Error("Expected new session")
	}
	info := s.GetInfo()
	if info.State != StateActive {
		t.Errorf("Expected active state, got %s", info.State)
	}
	if info.MeetingID != "meet-1" {
		t.Errorf("Expected meeting ID meet-1, got %s", info.MeetingID)
	}
}

func TestRegisterDuplicateMeeting(t *testing.T) {
	f := newFixture(t, nil)

	if _, _, err := f.manager.Register("conn-1", handshake("meet-1")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if _, _, err := f.manager.Register("conn-2", handshake("meet-1")); !errors.Is(err, ErrDuplicateMeeting) {
		t.Errorf("Expected ErrDuplicateMeeting, got %v", err)
	}

	// Same connection re-registering is idempotent.
	_, isNew, err := f.manager.Register("conn-1", handshake("meet-1"))
	if err != nil {
		t.Fatalf("Re-register on same connection failed: %v", err)
	}
	if isNew {
		t.Error("Expected re-registration to not be new")
	}
}

func TestDisconnectAndReconnect(t *testing.T) {
	f := newFixture(t, nil)

	s1, _, err := f.manager.Register("conn-1", handshake("meet-1"))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	f.manager.Disconnect("conn-1")

	stats := f.manager.GetStats()
	if stats.Active != 0 || stats.Disconnected != 1 {
		t.Fatalf("Expected 0 active / 1 disconnected, got %d / %d", stats.Active, stats.Disconnected)
	}

	s2, isNew, err := f.manager.Register("conn-2", handshake("meet-1"))
	if err != nil {
		t.Fatalf("Reconnect failed: %v", err)
	}

	if isNew {
		t.Error("Expected reconnection, not a new session")
	}
	info1, info2 := s1.GetInfo(), s2.GetInfo()
	if info2.SessionID != info1.SessionID {
		t.Error("Expected the same session to be resumed")
	}
	if info2.ReconnectionCount != 1 {
		t.Errorf("Expected reconnection count 1, got %d", info2.ReconnectionCount)
	}
	if info2.ConnectionID != "conn-2" {
		t.Errorf("Expected connection ID conn-2, got %s", info2.ConnectionID)
	}
}

func TestReconnectionLimit(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Session.MaxReconnections = 1
	})

	if _, _, err := f.manager.Register("conn-1", handshake("meet-1")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	f.manager.Disconnect("conn-1")
	if _, _, err := f.manager.Register("conn-2", handshake("meet-1")); err != nil {
		t.Fatalf("First reconnect failed: %v", err)
	}

	f.manager.Disconnect("conn-2")
	if _, _, err := f.manager.Register("conn-3", handshake("meet-1")); !errors.Is(err, ErrMaxReconnections) {
		t.Errorf("Expected ErrMaxReconnections, got %v", err)
	}
}

func TestFinalizationRunsAtMostOnce(t *testing.T) {
	f := newFixture(t, nil)

	if _, _, err := f.manager.Register("conn-1", handshake("meet-1")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	f.manager.finalizeMeeting("meet-1", "test")
	f.manager.finalizeMeeting("meet-1", "test repeat")

	if got := f.notifier.completeCount(); got != 1 {
		t.Errorf("Expected exactly 1 processing complete, got %d", got)
	}

	stats := f.manager.GetStats()
	if stats.Processed != 1 {
		t.Errorf("Expected 1 processed session, got %d", stats.Processed)
	}
}

func TestRegisterAfterProcessed(t *testing.T) {
	f := newFixture(t, nil)

	if _, _, err := f.manager.Register("conn-1", handshake("meet-1")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	f.manager.finalizeMeeting("meet-1", "test")

	if _, _, err := f.manager.Register("conn-2", handshake("meet-1")); !errors.Is(err, ErrSessionProcessed) {
		t.Errorf("Expected ErrSessionProcessed, got %v", err)
	}
}

func TestFlushPipeline(t *testing.T) {
	f := newFixture(t, nil)
	f.transcriber.texts = []string{"hello from the meeting"}

	s, _, err := f.manager.Register("conn-1", handshake("meet-1"))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// Half a second of audio, below the 1s target: no automatic flush.
	if err := f.manager.AddAudio("meet-1", audioChunk(8000)); err != nil {
		t.Fatalf("AddAudio failed: %v", err)
	}

	f.manager.flushSession(s, false)

	if got := f.notifier.transcriptionCount(); got != 1 {
		t.Fatalf("Expected 1 transcription notification, got %d", got)
	}
	if f.notifier.transcriptions[0].Text != "hello from the meeting" {
		t.Errorf("Unexpected transcription text %q", f.notifier.transcriptions[0].Text)
	}

	if s.SegmentCount() != 1 {
		t.Errorf("Expected 1 segment, got %d", s.SegmentCount())
	}
	if s.AudioBuffer.Len() != 0 {
		t.Errorf("Expected drained buffer, got %d bytes", s.AudioBuffer.Len())
	}
}

func TestAudioFormatFollowsFirstChunk(t *testing.T) {
	f := newFixture(t, nil)

	s, _, err := f.manager.Register("conn-1", handshake("meet-1"))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// Half a second of mono audio announced at 48 kHz, not the 16 kHz
	// configured default.
	if err := f.manager.AddAudio("meet-1", audioChunkAt(24000, 48000)); err != nil {
		t.Fatalf("AddAudio failed: %v", err)
	}

	f.manager.flushSession(s, false)

	req := f.transcriber.lastRequest()
	if req == nil {
		t.Fatal("Expected a transcription request")
	}
	if req.SampleRate != 48000 {
		t.Errorf("Expected request sample rate 48000, got %d", req.SampleRate)
	}
	if req.Duration < 0.49 || req.Duration > 0.51 {
		t.Errorf("Expected ~0.5s duration, got %f", req.Duration)
	}
}

func TestAudioFormatMismatchRejected(t *testing.T) {
	f := newFixture(t, nil)

	if _, _, err := f.manager.Register("conn-1", handshake("meet-1")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := f.manager.AddAudio("meet-1", audioChunkAt(4000, 16000)); err != nil {
		t.Fatalf("AddAudio failed: %v", err)
	}

	// A different rate while audio is buffered cannot be honored.
	if err := f.manager.AddAudio("meet-1", audioChunkAt(4000, 48000)); err == nil {
		t.Error("Expected error for sample rate change mid-buffer, got nil")
	}

	// The original format keeps working.
	if err := f.manager.AddAudio("meet-1", audioChunkAt(4000, 16000)); err != nil {
		t.Errorf("AddAudio with matching format failed: %v", err)
	}
}

func TestFlushPersistsSegment(t *testing.T) {
	f := newFixture(t, nil)
	f.transcriber.texts = []string{"incremental line"}

	s, _, err := f.manager.Register("conn-1", handshake("meet-1"))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := f.manager.AddAudio("meet-1", audioChunk(8000)); err != nil {
		t.Fatalf("AddAudio failed: %v", err)
	}
	f.manager.flushSession(s, false)

	// Persisted before any finalization runs.
	transcript, ok := f.store.GetTranscript("meet-1")
	if !ok || len(transcript) != 1 {
		t.Fatalf("Expected 1 persisted segment before finalization, got %v (ok=%v)", transcript, ok)
	}
	if transcript[0].Text != "incremental line" {
		t.Errorf("Unexpected persisted text %q", transcript[0].Text)
	}
}

func TestFlushDropsDuplicateText(t *testing.T) {
	f := newFixture(t, nil)
	f.transcriber.texts = []string{"repeated line", "repeated line"}

	s, _, err := f.manager.Register("conn-1", handshake("meet-1"))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := f.manager.AddAudio("meet-1", audioChunk(8000)); err != nil {
			t.Fatalf("AddAudio failed: %v", err)
		}
		f.manager.flushSession(s, false)
	}

	if f.transcriber.callCount() != 2 {
		t.Fatalf("Expected 2 transcription calls, got %d", f.transcriber.callCount())
	}
	if got := f.notifier.transcriptionCount(); got != 1 {
		t.Errorf("Expected duplicate text to be dropped, got %d notifications", got)
	}
	if s.SegmentCount() != 1 {
		t.Errorf("Expected 1 segment after dedup, got %d", s.SegmentCount())
	}
	if transcript, _ := f.store.GetTranscript("meet-1"); len(transcript) != 1 {
		t.Errorf("Expected 1 persisted segment after dedup, got %d", len(transcript))
	}
}

func TestFlushExclusivity(t *testing.T) {
	f := newFixture(t, nil)

	s, _, err := f.manager.Register("conn-1", handshake("meet-1"))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := f.manager.AddAudio("meet-1", audioChunk(8000)); err != nil {
		t.Fatalf("AddAudio failed: %v", err)
	}

	// Simulate an in-flight flush holding the lock.
	s.flushMu.Lock()
	f.manager.flushSession(s, false)
	s.flushMu.Unlock()

	if f.transcriber.callCount() != 0 {
		t.Errorf("Expected contending flush to walk away, got %d transcription calls", f.transcriber.callCount())
	}
	if s.AudioBuffer.Len() == 0 {
		t.Error("Expected buffer untouched by the skipped flush")
	}
}

func TestSegmentsSortedByStartTime(t *testing.T) {
	f := newFixture(t, nil)

	s, _, err := f.manager.Register("conn-1", handshake("meet-1"))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	base := time.Now()
	for _, offset := range []int{5, 1, 3} {
		s.AppendSegment(Segment{
			ChunkID: fmt.Sprintf("chunk-%d", offset),
			Text:    fmt.Sprintf("segment %d", offset),
			Start:   base.Add(time.Duration(offset) * time.Minute),
		})
	}

	sorted := s.SegmentsSnapshot()
	want := []string{"segment 1", "segment 3", "segment 5"}
	for i, seg := range sorted {
		if seg.Text != want[i] {
			t.Errorf("Position %d: expected %q, got %q", i, want[i], seg.Text)
		}
	}
}

func TestFinalizePersistsAndNotifies(t *testing.T) {
	f := newFixture(t, nil)
	f.transcriber.texts = []string{"we agreed to ship friday"}

	s, _, err := f.manager.Register("conn-1", handshake("meet-1"))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := f.manager.AddAudio("meet-1", audioChunk(8000)); err != nil {
		t.Fatalf("AddAudio failed: %v", err)
	}
	f.manager.flushSession(s, false)

	f.manager.finalizeMeeting("meet-1", "meeting ended")

	transcript, ok := f.store.GetTranscript("meet-1")
	if !ok || len(transcript) != 1 {
		t.Fatalf("Expected 1 persisted segment, got %v (ok=%v)", transcript, ok)
	}

	summary, ok := f.store.GetSummary("meet-1")
	if !ok {
		t.Fatal("Expected persisted summary")
	}
	if summary.TaskCount != 1 {
		t.Errorf("Expected 1 action item counted, got %d", summary.TaskCount)
	}

	tasks, ok := f.store.GetTasks("meet-1")
	if !ok || len(tasks) != 1 || tasks[0] != "follow up" {
		t.Errorf("Expected persisted task 'follow up', got %v (ok=%v)", tasks, ok)
	}

	if f.integration.processedCount() != 1 {
		t.Errorf("Expected 1 integration notification, got %d", f.integration.processedCount())
	}

	if f.notifier.completeCount() != 1 {
		t.Fatalf("Expected 1 processing complete, got %d", f.notifier.completeCount())
	}
	complete := f.notifier.completes[0]
	if complete.SegmentCount != 1 {
		t.Errorf("Expected segment count 1, got %d", complete.SegmentCount)
	}
	if complete.Partial {
		t.Error("Expected complete (non-partial) finalization")
	}

	if got := s.GetInfo().State; got != StateProcessed {
		t.Errorf("Expected processed state, got %s", got)
	}
}

func TestEndMeetingDeferredUntilFlush(t *testing.T) {
	f := newFixture(t, nil)

	s, _, err := f.manager.Register("conn-1", handshake("meet-1"))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := f.manager.EndMeeting("meet-1", false); err != nil {
		t.Fatalf("EndMeeting failed: %v", err)
	}

	f.notifier.mu.Lock()
	waiting := len(f.notifier.statuses) > 0 && f.notifier.statuses[0].Status == "waiting_buffer_flush"
	f.notifier.mu.Unlock()
	if !waiting {
		t.Error("Expected waiting_buffer_flush status")
	}
	if f.notifier.completeCount() != 0 {
		t.Fatal("Expected no finalization before the buffer flushed")
	}

	// The next completed flush triggers the deferred finalization.
	f.manager.flushSession(s, true)

	if f.notifier.completeCount() != 1 {
		t.Errorf("Expected finalization after flush, got %d completes", f.notifier.completeCount())
	}
}

func TestEndMeetingUnknown(t *testing.T) {
	f := newFixture(t, nil)

	if err := f.manager.EndMeeting("nope", true); !errors.Is(err, ErrMeetingNotFound) {
		t.Errorf("Expected ErrMeetingNotFound, got %v", err)
	}
}

func TestExtractActionItems(t *testing.T) {
	tests := []struct {
		summary string
		want    []string
	}{
		{"Summary.\nAction items:\n- one\n- two", []string{"one", "two"}},
		{"Summary.\nAction items: none", nil},
		{"- stray bullet before heading\nAction items:\n- one", []string{"one"}},
		{"no heading at all\n- bullet", nil},
	}

	for _, tt := range tests {
		got := extractActionItems(tt.summary)
		if len(got) != len(tt.want) {
			t.Errorf("extractActionItems(%q) = %v, want %v", tt.summary, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("extractActionItems(%q)[%d] = %q, want %q", tt.summary, i, got[i], tt.want[i])
			}
		}
	}
}

package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Message types accepted from clients
const (
	TypeHandshake          = "HANDSHAKE"
	TypeAudioChunk         = "AUDIO_CHUNK"
	TypeAudioChunkEnhanced = "AUDIO_CHUNK_ENHANCED"
	TypeMeetingEvent       = "MEETING_EVENT"
)

// Message types emitted to clients
const (
	TypeHandshakeAck        = "HANDSHAKE_ACK"
	TypeSessionRegistered   = "SESSION_REGISTERED"
	TypeTranscriptionResult = "TRANSCRIPTION_RESULT"
	TypeMeetingUpdate       = "MEETING_UPDATE"
	TypeProcessingStatus    = "PROCESSING_STATUS"
	TypeProcessingComplete  = "PROCESSING_COMPLETE"
	TypeError               = "ERROR"
)

// Meeting event subtypes
const (
	EventMeetingStarted = "meeting_started"
	EventMeetingEnded   = "meeting_ended"
)

// Envelope is the outer wire frame shared by every message
type Envelope struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Handshake announces client capabilities before any audio flows
type Handshake struct {
	ClientVersion string `json:"clientVersion"`
	MeetingID     string `json:"meetingId"`
	Platform      string `json:"platform,omitempty"`
	Participants  []string `json:"participants,omitempty"`
}

// HandshakeAck confirms the server is ready
type HandshakeAck struct {
	ProtocolVersion string `json:"protocolVersion"`
	ServerTime      time.Time `json:"serverTime"`
}

// AudioChunk carries one base64 audio payload with its capture metadata.
// The enhanced variant additionally reports the current participant roster.
type AudioChunk struct {
	Audio            string   `json:"audio"` // base64 PCM-16
	SampleRate       int      `json:"sampleRate"`
	Channels         int      `json:"channels"`
	SampleWidth      int      `json:"sampleWidth"`
	Platform         string   `json:"platform,omitempty"`
	MeetingURL       string   `json:"meetingUrl,omitempty"`
	Participants     []string `json:"participants,omitempty"`
	ParticipantCount int      `json:"participantCount,omitempty"`
}

// DecodeAudio decodes the base64 audio payload into raw PCM bytes
func (a *AudioChunk) DecodeAudio() ([]byte, error) {
	if a.Audio == "" {
		return nil, fmt.Errorf("audio payload is empty")
	}

	raw, err := base64.StdEncoding.DecodeString(a.Audio)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 audio: %w", err)
	}

	return raw, nil
}

// MeetingEvent signals lifecycle transitions from the capture client
type MeetingEvent struct {
	EventType          string          `json:"eventType"`
	BufferFlushComplete bool           `json:"bufferFlushComplete,omitempty"`
	Data               json.RawMessage `json:"data,omitempty"`
}

// SessionRegistered reports the outcome of a registration or reconnection
type SessionRegistered struct {
	SessionID         string `json:"sessionId"`
	MeetingID         string `json:"meetingId"`
	IsNewSession      bool   `json:"isNewSession"`
	ReconnectionCount int    `json:"reconnectionCount"`
}

// TranscriptionResult delivers one transcribed chunk back to the client
type TranscriptionResult struct {
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
	Speaker    string    `json:"speaker,omitempty"`
	ChunkID    string    `json:"chunkId"`
	IsFlushing bool      `json:"isFlushing"`
}

// MeetingUpdate fans participant and transcript changes out to other
// viewers of the same meeting
type MeetingUpdate struct {
	MeetingID    string   `json:"meetingId"`
	UpdateType   string   `json:"updateType"`
	Participants []string `json:"participants,omitempty"`
	Text         string   `json:"text,omitempty"`
	Speaker      string   `json:"speaker,omitempty"`
}

// ProcessingStatus reports finalization progress
type ProcessingStatus struct {
	MeetingID string `json:"meetingId"`
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
}

// ProcessingComplete is the terminal finalization signal
type ProcessingComplete struct {
	MeetingID    string `json:"meetingId"`
	Summary      string `json:"summary,omitempty"`
	TaskCount    int    `json:"taskCount"`
	SegmentCount int    `json:"segmentCount"`
	Partial      bool   `json:"partial"`
}

// ErrorMessage reports a protocol or processing error. Recoverable errors
// do not close the connection.
type ErrorMessage struct {
	Error       string `json:"error"`
	Recoverable bool   `json:"recoverable"`
}

// Decode parses a raw wire frame into an Envelope
func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to parse message envelope: %w", err)
	}

	if env.Type == "" {
		return nil, fmt.Errorf("message envelope missing type")
	}

	return &env, nil
}

// DecodeData parses the envelope payload into the given message struct
func (e *Envelope) DecodeData(v interface{}) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s message has no data payload", e.Type)
	}

	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to parse %s payload: %w", e.Type, err)
	}

	return nil
}

// Encode wraps a payload into an Envelope and serializes it
func Encode(msgType string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
	}

	env := Envelope{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", msgType, err)
	}

	return raw, nil
}

// IsInbound reports whether the message type is one clients may send
func IsInbound(msgType string) bool {
	switch msgType {
	case TypeHandshake, TypeAudioChunk, TypeAudioChunkEnhanced, TypeMeetingEvent:
		return true
	}
	return false
}

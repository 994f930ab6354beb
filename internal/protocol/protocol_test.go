package protocol

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"
)

func TestDecodeEnvelope(t *testing.T) {
	raw := []byte(`{"type":"HANDSHAKE","timestamp":"2025-01-15T10:00:00Z","data":{"clientVersion":"1.2.0","meetingId":"meet-abc"}}`)

	env, err := Decode(raw)
	if err != nil {
		t.Fatalf("Failed to decode envelope: %v", err)
	}

	if env.Type != TypeHandshake {
		t.Errorf("Expected type %s, got %s", TypeHandshake, env.Type)
	}

	var hs Handshake
	if err := env.DecodeData(&hs); err != nil {
		t.Fatalf("Failed to decode handshake payload: %v", err)
	}

	if hs.MeetingID != "meet-abc" {
		t.Errorf("Expected meeting ID meet-abc, got %s", hs.MeetingID)
	}
}

func TestDecodeMissingType(t *testing.T) {
	_, err := Decode([]byte(`{"timestamp":"2025-01-15T10:00:00Z"}`))
	if err == nil {
		t.Error("Expected error for envelope without type")
	}
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	if err == nil {
		t.Error("Expected error for malformed frame")
	}
}

func TestAudioChunkDecodeAudio(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	chunk := AudioChunk{
		Audio:       base64.StdEncoding.EncodeToString(pcm),
		SampleRate:  16000,
		Channels:    1,
		SampleWidth: 2,
	}

	decoded, err := chunk.DecodeAudio()
	if err != nil {
		t.Fatalf("Failed to decode audio: %v", err)
	}

	if len(decoded) != len(pcm) {
		t.Errorf("Expected %d bytes, got %d", len(pcm), len(decoded))
	}

	for i := range pcm {
		if decoded[i] != pcm[i] {
			t.Errorf("Byte %d: expected 0x%02x, got 0x%02x", i, pcm[i], decoded[i])
		}
	}
}

func TestAudioChunkDecodeInvalidBase64(t *testing.T) {
	chunk := AudioChunk{Audio: "not-base64!!!"}
	if _, err := chunk.DecodeAudio(); err == nil {
		t.Error("Expected error for invalid base64 audio")
	}
}

func TestAudioChunkDecodeEmpty(t *testing.T) {
	chunk := AudioChunk{}
	if _, err := chunk.DecodeAudio(); err == nil {
		t.Error("Expected error for empty audio payload")
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	result := TranscriptionResult{
		Text:       "hello everyone",
		Confidence: 0.93,
		Timestamp:  time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC),
		Speaker:    "Alice",
		ChunkID:    "chunk-1",
	}

	raw, err := Encode(TypeTranscriptionResult, result)
	if err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}

	env, err := Decode(raw)
	if err != nil {
		t.Fatalf("Failed to decode encoded frame: %v", err)
	}

	if env.Type != TypeTranscriptionResult {
		t.Errorf("Expected type %s, got %s", TypeTranscriptionResult, env.Type)
	}

	var decoded TranscriptionResult
	if err := env.DecodeData(&decoded); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}

	if decoded.Text != result.Text || decoded.Speaker != result.Speaker {
		t.Errorf("Round trip mismatch: got %+v", decoded)
	}
}

func TestMeetingEventFlags(t *testing.T) {
	raw := []byte(`{"type":"MEETING_EVENT","data":{"eventType":"meeting_ended","bufferFlushComplete":true}}`)

	env, err := Decode(raw)
	if err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}

	var ev MeetingEvent
	if err := env.DecodeData(&ev); err != nil {
		t.Fatalf("Failed to decode event: %v", err)
	}

	if ev.EventType != EventMeetingEnded {
		t.Errorf("Expected event type %s, got %s", EventMeetingEnded, ev.EventType)
	}

	if !ev.BufferFlushComplete {
		t.Error("Expected bufferFlushComplete to be true")
	}
}

func TestIsInbound(t *testing.T) {
	inbound := []string{TypeHandshake, TypeAudioChunk, TypeAudioChunkEnhanced, TypeMeetingEvent}
	for _, mt := range inbound {
		if !IsInbound(mt) {
			t.Errorf("Expected %s to be inbound", mt)
		}
	}

	outbound := []string{TypeHandshakeAck, TypeTranscriptionResult, TypeError, "UNKNOWN"}
	for _, mt := range outbound {
		if IsInbound(mt) {
			t.Errorf("Expected %s not to be inbound", mt)
		}
	}
}

func TestEnvelopeDataOmitted(t *testing.T) {
	env := Envelope{Type: TypeHandshake}
	var hs Handshake
	if err := env.DecodeData(&hs); err == nil {
		t.Error("Expected error decoding empty data payload")
	}

	// Raw envelope without data still round-trips
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	if _, err := Decode(raw); err != nil {
		t.Errorf("Failed to decode envelope without data: %v", err)
	}
}

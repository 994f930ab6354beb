package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestEncodeWAV(t *testing.T) {
	pcm := make([]byte, 16000*2) // 1 second of mono PCM-16 at 16 kHz
	for i := 0; i < len(pcm); i += 2 {
		binary.LittleEndian.PutUint16(pcm[i:], uint16(i%1000))
	}

	wav, err := EncodeWAV(pcm, 16000, 1)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	if len(wav) != 44+len(pcm) {
		t.Errorf("Expected %d bytes, got %d", 44+len(pcm), len(wav))
	}

	if !bytes.Equal(wav[:4], []byte("RIFF")) {
		t.Errorf("Expected RIFF magic, got %q", wav[:4])
	}

	if !bytes.Equal(wav[8:12], []byte("WAVE")) {
		t.Errorf("Expected WAVE format, got %q", wav[8:12])
	}

	sampleRate := binary.LittleEndian.Uint32(wav[24:28])
	if sampleRate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", sampleRate)
	}

	dataSize := binary.LittleEndian.Uint32(wav[40:44])
	if int(dataSize) != len(pcm) {
		t.Errorf("Expected data size %d, got %d", len(pcm), dataSize)
	}
}

func TestEncodeWAVValidation(t *testing.T) {
	if _, err := EncodeWAV(nil, 16000, 1); err == nil {
		t.Error("Expected error for empty data")
	}

	if _, err := EncodeWAV([]byte{1, 2}, 0, 1); err == nil {
		t.Error("Expected error for zero sample rate")
	}

	if _, err := EncodeWAV([]byte{1, 2}, 16000, 5); err == nil {
		t.Error("Expected error for invalid channel count")
	}
}

func TestWAVRoundTrip(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

	wav, err := EncodeWAV(pcm, 48000, 2)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	decoded, sampleRate, channels, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}

	if !bytes.Equal(decoded, pcm) {
		t.Errorf("PCM data mismatch after round trip")
	}
	if sampleRate != 48000 {
		t.Errorf("Expected sample rate 48000, got %d", sampleRate)
	}
	if channels != 2 {
		t.Errorf("Expected 2 channels, got %d", channels)
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, _, _, err := DecodeWAV([]byte("not a wav file")); err == nil {
		t.Error("Expected error for short data")
	}

	garbage := make([]byte, 100)
	if _, _, _, err := DecodeWAV(garbage); err == nil {
		t.Error("Expected error for missing RIFF magic")
	}
}

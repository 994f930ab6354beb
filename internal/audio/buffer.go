package audio

import (
	"fmt"
	"sync"
	"time"
)

// ChunkBuffer accumulates raw PCM bytes for one meeting until enough audio
// is present for a transcription flush. Contents always represent exactly
// the unflushed audio since the last Drain.
type ChunkBuffer struct {
	data []byte

	sampleRate  int
	channels    int
	sampleWidth int // bytes per sample

	target        time.Duration
	targetSamples int // per-channel sample count that triggers a flush

	createdAt  time.Time
	lastAppend time.Time

	mu sync.Mutex
}

// BufferStats represents buffer state for monitoring
type BufferStats struct {
	SampleRate    int           `json:"sample_rate"`
	Channels      int           `json:"channels"`
	Samples       int           `json:"samples"`
	TargetSamples int           `json:"target_samples"`
	Duration      time.Duration `json:"duration"`
	IdleFor       time.Duration `json:"idle_for"`
}

// NewChunkBuffer creates a buffer targeting the given duration of audio
func NewChunkBuffer(sampleRate, channels, sampleWidth int, target time.Duration) (*ChunkBuffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("channels must be 1 or 2, got %d", channels)
	}

	if sampleWidth != 2 {
		return nil, fmt.Errorf("sample width must be 2 bytes (PCM-16), got %d", sampleWidth)
	}

	if target <= 0 {
		return nil, fmt.Errorf("target duration must be positive, got %v", target)
	}

	targetSamples := int(float64(sampleRate) * target.Seconds())

	now := time.Now()
	return &ChunkBuffer{
		data:          make([]byte, 0, targetSamples*channels*sampleWidth),
		sampleRate:    sampleRate,
		channels:      channels,
		sampleWidth:   sampleWidth,
		target:        target,
		targetSamples: targetSamples,
		createdAt:     now,
		lastAppend:    now,
	}, nil
}

// EnsureFormat reconciles the buffer with a chunk's announced audio
// format. Zero fields mean the chunk announced nothing and the current
// format stands. An empty buffer adopts a newly announced format; a
// non-empty buffer rejects any change, since mixing formats would
// corrupt the flushed audio.
func (b *ChunkBuffer) EnsureFormat(sampleRate, channels, sampleWidth int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sampleRate == 0 {
		sampleRate = b.sampleRate
	}
	if channels == 0 {
		channels = b.channels
	}
	if sampleWidth == 0 {
		sampleWidth = b.sampleWidth
	}

	if sampleRate == b.sampleRate && channels == b.channels && sampleWidth == b.sampleWidth {
		return nil
	}

	if len(b.data) > 0 {
		return fmt.Errorf("audio format %dHz/%dch/%dB conflicts with buffered %dHz/%dch/%dB",
			sampleRate, channels, sampleWidth, b.sampleRate, b.channels, b.sampleWidth)
	}

	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if channels < 1 || channels > 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", channels)
	}
	if sampleWidth != 2 {
		return fmt.Errorf("sample width must be 2 bytes (PCM-16), got %d", sampleWidth)
	}

	b.sampleRate = sampleRate
	b.channels = channels
	b.sampleWidth = sampleWidth
	b.targetSamples = int(float64(sampleRate) * b.target.Seconds())

	return nil
}

// Append adds raw PCM bytes and reports whether the buffer has reached
// its target sample count and should be flushed now.
func (b *ChunkBuffer) Append(raw []byte) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(raw)%(b.sampleWidth*b.channels) != 0 {
		return false, fmt.Errorf("audio data length %d is not frame-aligned (%d bytes per frame)",
			len(raw), b.sampleWidth*b.channels)
	}

	b.data = append(b.data, raw...)
	b.lastAppend = time.Now()

	return b.sampleCountLocked() >= b.targetSamples, nil
}

// Drain atomically returns the buffered bytes, with the format they
// were recorded under, and clears the buffer. Called before the
// transcription call suspends so the same bytes can never be flushed
// twice. The format is captured under the same lock so a format change
// on the emptied buffer cannot misdescribe the drained audio.
func (b *ChunkBuffer) Drain() (pcm []byte, sampleRate, channels int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sampleRate = b.sampleRate
	channels = b.channels

	if len(b.data) == 0 {
		return nil, sampleRate, channels
	}

	drained := b.data
	b.data = make([]byte, 0, b.targetSamples*b.channels*b.sampleWidth)
	return drained, sampleRate, channels
}

// sampleCountLocked returns the per-channel sample count. Caller holds b.mu.
func (b *ChunkBuffer) sampleCountLocked() int {
	return len(b.data) / (b.sampleWidth * b.channels)
}

// SampleCount returns the per-channel samples currently buffered
func (b *ChunkBuffer) SampleCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sampleCountLocked()
}

// Len returns the buffered byte count
func (b *ChunkBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Duration returns the duration of the buffered audio
func (b *ChunkBuffer) Duration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	seconds := float64(b.sampleCountLocked()) / float64(b.sampleRate)
	return time.Duration(seconds * float64(time.Second))
}

// IdleFor returns how long it has been since data last arrived
func (b *ChunkBuffer) IdleFor() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Since(b.lastAppend)
}

// SampleRate returns the buffer's sample rate
func (b *ChunkBuffer) SampleRate() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sampleRate
}

// Channels returns the buffer's channel count
func (b *ChunkBuffer) Channels() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channels
}

// GetStats returns current buffer statistics
func (b *ChunkBuffer) GetStats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	samples := b.sampleCountLocked()
	seconds := float64(samples) / float64(b.sampleRate)

	return BufferStats{
		SampleRate:    b.sampleRate,
		Channels:      b.channels,
		Samples:       samples,
		TargetSamples: b.targetSamples,
		Duration:      time.Duration(seconds * float64(time.Second)),
		IdleFor:       time.Since(b.lastAppend),
	}
}

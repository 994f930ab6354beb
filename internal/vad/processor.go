package vad

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"
)

// Processor gates transcription flushes on signal energy. Buffers whose
// RMS amplitude stays below the configured floor are treated as silence
// and skip the transcription upload entirely.
type Processor struct {
	thresholdRMS float64

	// Statistics
	totalBuffers  uint64
	silentBuffers uint64
	lastProcessed time.Time

	mu sync.RWMutex
}

// Result represents the analysis of one audio buffer
type Result struct {
	RMS       float64   `json:"rms"`        // Root mean square amplitude
	Peak      int16     `json:"peak"`       // Maximum absolute sample value
	HasVoice  bool      `json:"has_voice"`  // Whether energy exceeds the silence floor
	Samples   int       `json:"samples"`    // Samples analyzed
	Timestamp time.Time `json:"timestamp"`  // When analysis occurred
}

// ProcessorStats represents silence gate statistics
type ProcessorStats struct {
	ThresholdRMS      float64   `json:"threshold_rms"`
	TotalBuffers      uint64    `json:"total_buffers"`
	SilentBuffers     uint64    `json:"silent_buffers"`
	SilencePercentage float64   `json:"silence_percentage"`
	LastProcessed     time.Time `json:"last_processed"`
}

// NewProcessor creates a silence gate with the given RMS floor
func NewProcessor(thresholdRMS float64) (*Processor, error) {
	if thresholdRMS < 0 {
		return nil, fmt.Errorf("threshold must be non-negative, got %f", thresholdRMS)
	}

	return &Processor{
		thresholdRMS: thresholdRMS,
	}, nil
}

// Analyze computes the RMS energy of raw little-endian PCM-16 bytes and
// reports whether the buffer carries voice-level energy
func (p *Processor) Analyze(pcm []byte) (*Result, error) {
	if len(pcm) < 2 {
		return nil, fmt.Errorf("buffer too short: %d bytes", len(pcm))
	}

	samples := len(pcm) / 2

	var energy float64
	var peak int16
	for i := 0; i < samples; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		energy += float64(sample) * float64(sample)

		abs := sample
		if abs < 0 {
			abs = -abs
		}
		if abs > peak {
			peak = abs
		}
	}

	rms := math.Sqrt(energy / float64(samples))
	hasVoice := rms >= p.thresholdRMS

	p.mu.Lock()
	p.totalBuffers++
	if !hasVoice {
		p.silentBuffers++
	}
	p.lastProcessed = time.Now()
	p.mu.Unlock()

	return &Result{
		RMS:       rms,
		Peak:      peak,
		HasVoice:  hasVoice,
		Samples:   samples,
		Timestamp: time.Now(),
	}, nil
}

// GetStats returns current gate statistics
func (p *Processor) GetStats() ProcessorStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	silencePercentage := float64(0)
	if p.totalBuffers > 0 {
		silencePercentage = float64(p.silentBuffers) / float64(p.totalBuffers) * 100
	}

	return ProcessorStats{
		ThresholdRMS:      p.thresholdRMS,
		TotalBuffers:      p.totalBuffers,
		SilentBuffers:     p.silentBuffers,
		SilencePercentage: silencePercentage,
		LastProcessed:     p.lastProcessed,
	}
}

// UpdateThreshold updates the silence floor
func (p *Processor) UpdateThreshold(thresholdRMS float64) error {
	if thresholdRMS < 0 {
		return fmt.Errorf("threshold must be non-negative, got %f", thresholdRMS)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.thresholdRMS = thresholdRMS
	return nil
}

// GetThreshold returns the current silence floor
func (p *Processor) GetThreshold() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.thresholdRMS
}

// Reset clears accumulated statistics
func (p *Processor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalBuffers = 0
	p.silentBuffers = 0
	p.lastProcessed = time.Time{}
}

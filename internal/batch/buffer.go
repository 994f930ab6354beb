package batch

import (
	"sync"
	"time"
)

// Chunk is one transcription result awaiting speaker attribution
type Chunk struct {
	ChunkIndex     int       `json:"chunk_index"`
	Text           string    `json:"text"`
	TimestampStart time.Time `json:"timestamp_start"`
	TimestampEnd   time.Time `json:"timestamp_end"`
	Participants   []string  `json:"participants"` // roster at capture time
	Confidence     float64   `json:"confidence"`
	Speaker        string    `json:"speaker,omitempty"` // filled by attribution
}

// Buffer accumulates transcript chunks for one meeting until a batch is
// worth sending for attribution. A batch fires only when the chunk floor
// is met and either enough time has passed or the token estimate hits
// the ceiling.
type Buffer struct {
	minChunks int
	interval  time.Duration
	maxTokens int

	pending   []Chunk
	nextIndex int
	lastBatch time.Time

	mu sync.Mutex
}

// BufferStats represents batch buffer state for monitoring
type BufferStats struct {
	Pending         int           `json:"pending"`
	EstimatedTokens int           `json:"estimated_tokens"`
	NextIndex       int           `json:"next_index"`
	SinceLastBatch  time.Duration `json:"since_last_batch"`
}

// NewBuffer creates a batch buffer with the given trigger thresholds
func NewBuffer(minChunks int, interval time.Duration, maxTokens int) *Buffer {
	if minChunks <= 0 {
		minChunks = 3
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if maxTokens <= 0 {
		maxTokens = 6000
	}

	return &Buffer{
		minChunks: minChunks,
		interval:  interval,
		maxTokens: maxTokens,
		lastBatch: time.Now(),
	}
}

// EstimateTokens approximates the token cost of text. Four characters
// per token tracks English prose closely enough for a ceiling check.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// Add appends a transcript chunk and returns it with its index assigned
func (b *Buffer) Add(text string, start, end time.Time, participants []string, confidence float64) Chunk {
	b.mu.Lock()
	defer b.mu.Unlock()

	chunk := Chunk{
		ChunkIndex:     b.nextIndex,
		Text:           text,
		TimestampStart: start,
		TimestampEnd:   end,
		Participants:   participants,
		Confidence:     confidence,
	}
	b.nextIndex++
	b.pending = append(b.pending, chunk)

	return chunk
}

// ShouldProcess reports whether the pending chunks form a processable
// batch as of now
func (b *Buffer) ShouldProcess(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pending) < b.minChunks {
		return false
	}

	if now.Sub(b.lastBatch) >= b.interval {
		return true
	}

	return b.estimatedTokensLocked() >= b.maxTokens
}

// Take drains all pending chunks and resets the batch clock. The clock
// resets regardless of how the caller's attribution turns out, so a
// failed batch never causes an immediate re-fire.
func (b *Buffer) Take() []Chunk {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pending) == 0 {
		return nil
	}

	taken := b.pending
	b.pending = nil
	b.lastBatch = time.Now()

	return taken
}

// PendingCount returns the number of chunks awaiting attribution
func (b *Buffer) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// estimatedTokensLocked sums the token estimate of pending chunks.
// Caller holds b.mu.
func (b *Buffer) estimatedTokensLocked() int {
	total := 0
	for _, chunk := range b.pending {
		total += EstimateTokens(chunk.Text)
	}
	return total
}

// GetStats returns current buffer statistics
func (b *Buffer) GetStats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BufferStats{
		Pending:         len(b.pending),
		EstimatedTokens: b.estimatedTokensLocked(),
		NextIndex:       b.nextIndex,
		SinceLastBatch:  time.Since(b.lastBatch),
	}
}

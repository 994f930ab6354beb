package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/meetscribe/meeting-stream-service/internal/transcription"
)

// Ledger decides whether transcript text has been seen before for a
// meeting. FirstSeen returns true exactly once per distinct text per
// meeting; later occurrences and sentinel texts return false.
type Ledger interface {
	FirstSeen(ctx context.Context, meetingID, text string) (bool, error)
	ForgetMeeting(ctx context.Context, meetingID string) error
	Close() error
}

// Normalize lowercases text and collapses internal whitespace so that
// formatting differences never defeat deduplication
func Normalize(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// Rejectable reports whether text can never be accepted: empty after
// normalization, or a transcription backend sentinel
func Rejectable(text string) bool {
	normalized := strings.TrimSpace(text)
	if normalized == "" {
		return true
	}

	return normalized == transcription.SentinelNoSpeech || normalized == transcription.SentinelError
}

// HashText returns the hex SHA-256 of normalized text
func HashText(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}

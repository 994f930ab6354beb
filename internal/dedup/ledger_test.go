package dedup

import (
	"context"
	"fmt"
	"testing"

	"github.com/meetscribe/meeting-stream-service/internal/transcription"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Hello World", "hello world"},
		{"  hello   world  ", "hello world"},
		{"Hello\tWorld\n", "hello world"},
		{"HELLO", "hello"},
	}

	for _, tt := range tests {
		if got := Normalize(tt.input); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFirstSeenAcceptsNewText(t *testing.T) {
	ledger := NewMemoryLedger(10)
	ctx := context.Background()

	first, err := ledger.FirstSeen(ctx, "meet-1", "hello everyone")
	if err != nil {
		t.Fatalf("FirstSeen failed: %v", err)
	}
	if !first {
		t.Error("Expected new text to be accepted")
	}

	first, err = ledger.FirstSeen(ctx, "meet-1", "hello everyone")
	if err != nil {
		t.Fatalf("FirstSeen failed: %v", err)
	}
	if first {
		t.Error("Expected repeat text to be rejected")
	}
}

func TestFirstSeenNormalizesBeforeComparing(t *testing.T) {
	ledger := NewMemoryLedger(10)
	ctx := context.Background()

	if first, _ := ledger.FirstSeen(ctx, "meet-1", "Hello  World"); !first {
		t.Error("Expected first occurrence to be accepted")
	}

	if first, _ := ledger.FirstSeen(ctx, "meet-1", "hello world"); first {
		t.Error("Expected normalized repeat to be rejected")
	}
}

func TestFirstSeenIsolatesMeetings(t *testing.T) {
	ledger := NewMemoryLedger(10)
	ctx := context.Background()

	if first, _ := ledger.FirstSeen(ctx, "meet-1", "same text"); !first {
		t.Error("Expected acceptance in meet-1")
	}

	if first, _ := ledger.FirstSeen(ctx, "meet-2", "same text"); !first {
		t.Error("Expected acceptance in meet-2 for text only seen in meet-1")
	}
}

func TestFirstSeenRejectsSentinels(t *testing.T) {
	ledger := NewMemoryLedger(10)
	ctx := context.Background()

	for _, text := range []string{"", "   ", transcription.SentinelNoSpeech, transcription.SentinelError} {
		if first, _ := ledger.FirstSeen(ctx, "meet-1", text); first {
			t.Errorf("Expected %q to be rejected", text)
		}
	}
}

func TestHashSetOutlivesRecentRing(t *testing.T) {
	ledger := NewMemoryLedger(3)
	ctx := context.Background()

	if first, _ := ledger.FirstSeen(ctx, "meet-1", "the original line"); !first {
		t.Fatal("Expected first occurrence to be accepted")
	}

	// Push the original out of the 3-slot recent ring.
	for i := 0; i < 5; i++ {
		if first, _ := ledger.FirstSeen(ctx, "meet-1", fmt.Sprintf("filler line %d", i)); !first {
			t.Fatalf("Expected filler line %d to be accepted", i)
		}
	}

	// The hash set still remembers it.
	if first, _ := ledger.FirstSeen(ctx, "meet-1", "the original line"); first {
		t.Error("Expected repeat to be caught by hash set after leaving the recent ring")
	}
}

func TestForgetMeeting(t *testing.T) {
	ledger := NewMemoryLedger(10)
	ctx := context.Background()

	if first, _ := ledger.FirstSeen(ctx, "meet-1", "hello"); !first {
		t.Fatal("Expected acceptance")
	}

	if err := ledger.ForgetMeeting(ctx, "meet-1"); err != nil {
		t.Fatalf("ForgetMeeting failed: %v", err)
	}

	if first, _ := ledger.FirstSeen(ctx, "meet-1", "hello"); !first {
		t.Error("Expected acceptance after meeting state was forgotten")
	}
}

func TestLedgerStats(t *testing.T) {
	ledger := NewMemoryLedger(10)
	ctx := context.Background()

	ledger.FirstSeen(ctx, "meet-1", "one")
	ledger.FirstSeen(ctx, "meet-1", "one")
	ledger.FirstSeen(ctx, "meet-2", "two")

	stats := ledger.GetStats()
	if stats.Meetings != 2 {
		t.Errorf("Expected 2 meetings, got %d", stats.Meetings)
	}
	if stats.Accepted != 2 {
		t.Errorf("Expected 2 accepted, got %d", stats.Accepted)
	}
	if stats.Dropped != 1 {
		t.Errorf("Expected 1 dropped, got %d", stats.Dropped)
	}
}

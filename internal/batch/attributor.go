package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/meetscribe/meeting-stream-service/internal/llm"
)

const systemPrompt = "You are a meeting assistant. You receive timestamped transcript " +
	"segments and the participant roster. Attribute each segment to the most likely " +
	"speaker. Reply with a JSON array of objects with \"speaker\" and \"text\" fields, " +
	"one per segment, in order."

// matchThreshold is the minimum token-set overlap between a model line
// and a transcript chunk for the attribution to be trusted.
const matchThreshold = 0.6

// UnknownSpeaker labels chunks no heuristic could attribute
const UnknownSpeaker = "Unknown"

// Attributor assigns speakers to transcript chunks via the language
// model, falling back to text patterns when the model's output cannot be
// matched back to a chunk.
type Attributor struct {
	completer llm.Completer
}

type attributedLine struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// NewAttributor creates an attributor backed by the given completer
func NewAttributor(completer llm.Completer) *Attributor {
	return &Attributor{completer: completer}
}

// Completer exposes the underlying completer for callers that share it,
// like summary generation
func (a *Attributor) Completer() llm.Completer {
	return a.completer
}

// Attribute fills the Speaker field of every chunk. The model is asked
// once per batch; chunks whose text cannot be matched to any model line
// above the similarity threshold get pattern-based attribution instead.
// The returned error is advisory: chunks always come back attributed.
func (a *Attributor) Attribute(ctx context.Context, chunks []Chunk, participants []string) ([]Chunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	reply, err := a.completer.Complete(ctx, systemPrompt, BuildPrompt(chunks, participants))
	if err != nil {
		for i := range chunks {
			chunks[i].Speaker = fallbackSpeaker(chunks[i].Text, participants)
		}
		return chunks, fmt.Errorf("attribution request failed: %w", err)
	}

	lines := parseAttributionReply(reply)

	for i := range chunks {
		speaker, ok := bestMatch(chunks[i].Text, lines)
		if !ok {
			speaker = fallbackSpeaker(chunks[i].Text, participants)
		}
		chunks[i].Speaker = speaker
	}

	return chunks, nil
}

// BuildPrompt renders the batch as timestamped lines preceded by the
// participant roster
func BuildPrompt(chunks []Chunk, participants []string) string {
	var sb strings.Builder

	if len(participants) > 0 {
		sb.WriteString("Participants: ")
		sb.WriteString(strings.Join(participants, ", "))
		sb.WriteString("\n\n")
	}

	for _, chunk := range chunks {
		fmt.Fprintf(&sb, "[%s] %s\n", chunk.TimestampStart.Format("15:04:05"), chunk.Text)
	}

	return sb.String()
}

var jsonFence = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// parseAttributionReply extracts speaker/text pairs from the model's
// reply. JSON is tried first, with or without a markdown fence; anything
// else is read line by line as "Speaker: text".
func parseAttributionReply(reply string) []attributedLine {
	candidate := strings.TrimSpace(reply)
	if m := jsonFence.FindStringSubmatch(candidate); m != nil {
		candidate = m[1]
	}

	var lines []attributedLine
	if err := json.Unmarshal([]byte(candidate), &lines); err == nil {
		return lines
	}

	for _, raw := range strings.Split(reply, "\n") {
		raw = strings.TrimSpace(raw)
		speaker, text, found := strings.Cut(raw, ":")
		if !found {
			continue
		}

		speaker = strings.TrimSpace(speaker)
		text = strings.TrimSpace(text)
		if speaker == "" || text == "" || strings.ContainsAny(speaker, "[]{}\"") {
			continue
		}

		lines = append(lines, attributedLine{Speaker: speaker, Text: text})
	}

	return lines
}

// bestMatch finds the model line most similar to the chunk text and
// returns its speaker if the overlap clears the threshold
func bestMatch(text string, lines []attributedLine) (string, bool) {
	bestScore := 0.0
	bestSpeaker := ""

	for _, line := range lines {
		score := similarity(text, line.Text)
		if score > bestScore {
			bestScore = score
			bestSpeaker = line.Speaker
		}
	}

	if bestScore < matchThreshold || bestSpeaker == "" {
		return "", false
	}

	return bestSpeaker, true
}

// similarity computes token-set overlap between two texts: the size of
// the intersection over the size of the smaller set
func similarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)

	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	smaller := setA
	larger := setB
	if len(setB) < len(setA) {
		smaller, larger = setB, setA
	}

	overlap := 0
	for token := range smaller {
		if _, ok := larger[token]; ok {
			overlap++
		}
	}

	return float64(overlap) / float64(len(smaller))
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, token := range strings.Fields(strings.ToLower(text)) {
		token = strings.Trim(token, ".,!?;:\"'()")
		if token != "" {
			set[token] = struct{}{}
		}
	}
	return set
}

var (
	speakingPattern = regexp.MustCompile(`(?i)^\s*([A-Za-zÀ-ÿ]+)\s+speaking\b`)
	selfIdPattern   = regexp.MustCompile(`(?i)\b(?:i'm|i am|this is)\s+([A-Za-zÀ-ÿ]+)\b`)
)

// fallbackSpeaker attributes a chunk by text patterns alone: an explicit
// "X speaking" prefix, a self-introduction, or a leading participant
// name. Chunks matching nothing get the unknown label.
func fallbackSpeaker(text string, participants []string) string {
	if m := speakingPattern.FindStringSubmatch(text); m != nil {
		return normalizeName(m[1], participants)
	}

	if m := selfIdPattern.FindStringSubmatch(text); m != nil {
		return normalizeName(m[1], participants)
	}

	trimmed := strings.TrimSpace(text)
	for _, participant := range participants {
		if participant == "" {
			continue
		}
		first := strings.Fields(participant)
		if len(first) > 0 && hasWordPrefix(trimmed, first[0]) {
			return participant
		}
	}

	return UnknownSpeaker
}

// normalizeName maps a captured name onto the roster entry it matches,
// keeping attribution consistent with participant spelling
func normalizeName(name string, participants []string) string {
	for _, participant := range participants {
		if strings.EqualFold(participant, name) {
			return participant
		}
		first := strings.Fields(participant)
		if len(first) > 0 && strings.EqualFold(first[0], name) {
			return participant
		}
	}
	return name
}

// hasWordPrefix reports whether text starts with word followed by a
// non-letter boundary
func hasWordPrefix(text, word string) bool {
	if len(text) < len(word) || !strings.EqualFold(text[:len(word)], word) {
		return false
	}
	if len(text) == len(word) {
		return true
	}
	next := text[len(word)]
	return next == ' ' || next == ':' || next == ',' || next == '.'
}

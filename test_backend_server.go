package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/meetscribe/meeting-stream-service/internal/audio"
)

// Standalone fake backend for local development: serves the transcription
// endpoint and an OpenAI-style chat completion endpoint so the service can
// run end to end without real models.

type transcriptionResponse struct {
	ChunkID     string    `json:"chunk_id"`
	Text        string    `json:"text"`
	Confidence  float64   `json:"confidence"`
	Language    string    `json:"language"`
	Duration    float64   `json:"duration"`
	ProcessedAt time.Time `json:"processed_at"`
}

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
	} `json:"usage"`
}

var cannedTexts = []string{
	"Alright, let's get started with the quarterly review.",
	"I think we should move the launch date to next month.",
	"Can someone take the action item to update the roadmap?",
	"Sounds good, I'll follow up with the design team tomorrow.",
}

var requestCount int

func transcribeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	meetingID := r.FormValue("meeting_id")
	chunkID := r.FormValue("chunk_id")
	duration := r.FormValue("duration")
	timestamp := r.FormValue("timestamp")

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	wavData, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	pcm, sampleRate, channels, err := audio.DecodeWAV(wavData)
	if err != nil {
		http.Error(w, "Invalid WAV payload", http.StatusBadRequest)
		return
	}

	log.Printf("TRANSCRIPTION REQUEST:")
	log.Printf("  meeting_id=%s chunk_id=%s", meetingID, chunkID)
	log.Printf("  duration=%ss timestamp=%s", duration, timestamp)
	log.Printf("  file=%s wav=%d bytes pcm=%d bytes rate=%d channels=%d",
		header.Filename, len(wavData), len(pcm), sampleRate, channels)

	// Simulate processing time
	time.Sleep(200 * time.Millisecond)

	response := transcriptionResponse{
		ChunkID:     chunkID,
		Text:        cannedTexts[requestCount%len(cannedTexts)],
		Confidence:  0.95,
		Language:    "en",
		Duration:    parseFloat64(duration),
		ProcessedAt: time.Now(),
	}
	requestCount++

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)

	log.Printf("TRANSCRIPTION RESPONSE SENT: %q", response.Text)
	log.Println("---")
}

func chatHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	promptLen := 0
	for _, m := range req.Messages {
		promptLen += len(m.Content)
	}
	log.Printf("CHAT REQUEST: model=%s messages=%d prompt_chars=%d",
		req.Model, len(req.Messages), promptLen)

	var resp chatResponse
	resp.Choices = make([]struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	}, 1)
	resp.Choices[0].Message.Role = "assistant"
	resp.Choices[0].Message.Content = `[{"speaker": "Unknown", "text": "stub attribution"}]`
	resp.Usage.PromptTokens = promptLen / 4

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)

	log.Printf("CHAT RESPONSE SENT")
	log.Println("---")
}

func parseFloat64(s string) float64 {
	var val float64
	fmt.Sscanf(s, "%f", &val)
	return val
}

func main() {
	http.HandleFunc("/transcribe", transcribeHandler)
	http.HandleFunc("/v1/chat/completions", chatHandler)

	port := ":9000"
	log.Printf("Test Backend Server starting on port %s", port)
	log.Printf("Transcription endpoint: http://localhost%s/transcribe", port)
	log.Printf("LLM endpoint:           http://localhost%s/v1/chat/completions", port)
	log.Println("Update configs/config.yaml to point at these endpoints.")

	if err := http.ListenAndServe(port, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}

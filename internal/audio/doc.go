// Package audio provides the per-meeting chunk buffer that accumulates
// raw PCM between transcription flushes, plus WAV container encoding for
// the transcription upload.
package audio

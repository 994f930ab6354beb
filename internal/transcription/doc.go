// Package transcription provides the HTTP client for the speech-to-text
// backend, with bounded concurrency and retry with exponential backoff.
package transcription

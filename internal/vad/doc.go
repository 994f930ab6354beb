// Package vad implements an energy-based silence gate. Flushed audio
// buffers are analyzed before upload so near-silent audio never wastes a
// transcription round trip.
package vad

// Package batch defers speaker attribution: transcript chunks accumulate
// per meeting and are attributed in batches through the language model,
// so attribution cost amortizes over many chunks instead of one request
// per transcription.
package batch

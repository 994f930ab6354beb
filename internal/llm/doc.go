// Package llm provides the chat-completion client used for speaker
// attribution and meeting summaries.
package llm

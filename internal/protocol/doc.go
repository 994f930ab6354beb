// Package protocol implements the JSON wire protocol spoken over the
// streaming connection. Every frame is an Envelope tagged by message type;
// payloads are decoded per type at the gateway dispatch point.
package protocol

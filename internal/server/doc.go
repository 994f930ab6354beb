// Package server hosts the two network surfaces: the WebSocket gateway
// clients stream through, and the HTTP API for monitoring and metrics.
package server

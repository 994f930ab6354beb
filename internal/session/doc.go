// Package session manages meeting sessions across their lifecycle.
// Active sessions buffer audio and accumulate transcript; disconnected
// sessions wait out a reconnection window; processed sessions hold the
// finalized transcript until retention expires. Finalization runs at
// most once per meeting regardless of how it is triggered.
package session

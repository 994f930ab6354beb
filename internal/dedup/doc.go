// Package dedup suppresses repeated transcript text per meeting. Two
// backends satisfy the Ledger interface: an in-process map for single
// instances and redis for shared state across instances.
package dedup

// Package config defines the yaml service configuration and its validation.
// Every tunable lifecycle constant (disconnect timeout, retention window,
// batch trigger thresholds, silence RMS) lives here rather than in code.
package config

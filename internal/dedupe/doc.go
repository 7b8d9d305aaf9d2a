// Package dedupe provides a time-based cache that drops device log lines
// already recorded within a configurable window.
package dedupe

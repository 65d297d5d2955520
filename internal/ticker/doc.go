// Package ticker maintains market-data subscriptions keyed by instrument
// identity. The registry guarantees at most one live subscription per
// instrument, merges partial ticks into per-instrument snapshots, and marks
// every entry invalid when the session goes down.
package ticker

// Package dispatch owns the single goroutine that drains the transport's
// event stream. Each event first updates internal state (ticker registry or
// order tracker), then fans out to the handlers registered for its category,
// in registration order, with per-handler panic isolation. Handlers run on
// the dispatch goroutine: a blocking handler stalls all later delivery.
package dispatch

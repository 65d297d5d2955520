// Package orders tracks submitted orders through their lifecycle. Each order
// is a small state machine driven by asynchronous gateway status events;
// out-of-order and duplicate events are discarded rather than applied, so
// the tracked state only ever moves along legal transitions.
package orders

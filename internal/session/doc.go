// Package session owns the lifecycle of one gateway session and is the
// public face of the client: connect and disconnect, handler registration,
// and the command operations that forward over the active transport. The
// session never reconnects on its own; after a disconnect the application
// decides whether to call Connect again.
package session

// Package transport defines the boundary between the session core and the
// gateway wire protocol. The core issues requests (market data, orders)
// through the Transport interface and consumes a single stream of typed push
// events; everything about framing and encoding lives behind it.
package transport

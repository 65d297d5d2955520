// Package model defines shared data types used across the gateway client.
//
// Conventions:
//   - Prices and sizes from the market-data stream: float64, NaN = unset
//   - Timestamps: time.Time, stamped locally on receipt
//   - Instruments: comparable value tuples, usable directly as map keys
//   - Order quantities: int64 whole units
package model

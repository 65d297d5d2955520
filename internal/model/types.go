package model

import (
	"fmt"
	"math"
	"time"
)

// Instrument identifies a tradable security. It is an immutable value type;
// two instruments are the same subscription key iff all four fields match.
type Instrument struct {
	Symbol   string // e.g. "AAPL"
	SecType  string // security type, e.g. "STK"
	Exchange string // routing hint, e.g. "SMART"
	Currency string // e.g. "USD"
}

// Stock returns a stock instrument with SMART routing in USD.
func Stock(symbol string) Instrument {
	return Instrument{
		Symbol:   symbol,
		SecType:  "STK",
		Exchange: "SMART",
		Currency: "USD",
	}
}

// String returns a compact identity string for logging.
func (i Instrument) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", i.Symbol, i.SecType, i.Exchange, i.Currency)
}

// Snapshot holds the last-known market data for an instrument.
// Fields the gateway has not reported yet are NaN.
type Snapshot struct {
	Bid       float64
	Ask       float64
	Last      float64
	Volume    float64
	High      float64
	Low       float64
	UpdatedAt time.Time // local receive time of the last merged tick
}

// NewSnapshot returns a snapshot with every field unset.
func NewSnapshot() Snapshot {
	nan := math.NaN()
	return Snapshot{
		Bid:    nan,
		Ask:    nan,
		Last:   nan,
		Volume: nan,
		High:   nan,
		Low:    nan,
	}
}

// TickerFields is a partial market-data update. Nil fields were not present
// in the tick and must not overwrite prior snapshot values.
type TickerFields struct {
	Bid    *float64
	Ask    *float64
	Last   *float64
	Volume *float64
	High   *float64
	Low    *float64
}

// Merge applies the present fields of f onto s and stamps the update time.
func (s *Snapshot) Merge(f TickerFields, at time.Time) {
	if f.Bid != nil {
		s.Bid = *f.Bid
	}
	if f.Ask != nil {
		s.Ask = *f.Ask
	}
	if f.Last != nil {
		s.Last = *f.Last
	}
	if f.Volume != nil {
		s.Volume = *f.Volume
	}
	if f.High != nil {
		s.High = *f.High
	}
	if f.Low != nil {
		s.Low = *f.Low
	}
	s.UpdatedAt = at
}

// Float returns a pointer to v, for building TickerFields literals.
func Float(v float64) *float64 { return &v }

// IsSet reports whether a snapshot field carries a real value.
func IsSet(v float64) bool { return !math.IsNaN(v) }

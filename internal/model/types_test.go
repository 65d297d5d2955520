package model

import (
	"math"
	"testing"
	"time"
)

func TestStock(t *testing.T) {
	inst := Stock("AAPL")

	if inst.Symbol != "AAPL" {
		t.Errorf("Symbol = %q, want %q", inst.Symbol, "AAPL")
	}
	if inst.SecType != "STK" {
		t.Errorf("SecType = %q, want %q", inst.SecType, "STK")
	}
	if inst.Exchange != "SMART" {
		t.Errorf("Exchange = %q, want %q", inst.Exchange, "SMART")
	}
	if inst.Currency != "USD" {
		t.Errorf("Currency = %q, want %q", inst.Currency, "USD")
	}
}

func TestInstrument_MapKeyIdentity(t *testing.T) {
	m := map[Instrument]int{}
	m[Stock("AAPL")] = 1
	m[Stock("AAPL")] = 2
	m[Stock("MSFT")] = 3

	if len(m) != 2 {
		t.Errorf("len(m) = %d, want 2", len(m))
	}
	if m[Stock("AAPL")] != 2 {
		t.Errorf("m[AAPL] = %d, want 2", m[Stock("AAPL")])
	}

	// Same symbol on a different exchange is a different identity.
	other := Instrument{Symbol: "AAPL", SecType: "STK", Exchange: "NYSE", Currency: "USD"}
	if _, ok := m[other]; ok {
		t.Error("AAPL/NYSE should not collide with AAPL/SMART")
	}
}

func TestNewSnapshot_AllUnset(t *testing.T) {
	s := NewSnapshot()

	for name, v := range map[string]float64{
		"Bid":    s.Bid,
		"Ask":    s.Ask,
		"Last":   s.Last,
		"Volume": s.Volume,
		"High":   s.High,
		"Low":    s.Low,
	} {
		if !math.IsNaN(v) {
			t.Errorf("%s = %v, want NaN", name, v)
		}
	}
	if !s.UpdatedAt.IsZero() {
		t.Errorf("UpdatedAt = %v, want zero", s.UpdatedAt)
	}
}

func TestSnapshot_MergePartial(t *testing.T) {
	s := NewSnapshot()
	now := time.Now()

	s.Merge(TickerFields{Bid: Float(100.0), Ask: Float(100.2)}, now)

	if s.Bid != 100.0 {
		t.Errorf("Bid = %v, want 100.0", s.Bid)
	}
	if s.Ask != 100.2 {
		t.Errorf("Ask = %v, want 100.2", s.Ask)
	}
	if !math.IsNaN(s.Last) {
		t.Errorf("Last = %v, want NaN", s.Last)
	}
	if !math.IsNaN(s.Volume) {
		t.Errorf("Volume = %v, want NaN", s.Volume)
	}
	if !s.UpdatedAt.Equal(now) {
		t.Errorf("UpdatedAt = %v, want %v", s.UpdatedAt, now)
	}
}

func TestSnapshot_MergeRetainsPriorValues(t *testing.T) {
	s := NewSnapshot()
	t0 := time.Now()
	s.Merge(TickerFields{
		Bid:    Float(99.5),
		Ask:    Float(99.7),
		Last:   Float(99.6),
		Volume: Float(12000),
		High:   Float(101.0),
		Low:    Float(98.0),
	}, t0)

	t1 := t0.Add(time.Second)
	s.Merge(TickerFields{Bid: Float(99.6), Ask: Float(99.8)}, t1)

	if s.Bid != 99.6 {
		t.Errorf("Bid = %v, want 99.6", s.Bid)
	}
	if s.Ask != 99.8 {
		t.Errorf("Ask = %v, want 99.8", s.Ask)
	}
	if s.Last != 99.6 {
		t.Errorf("Last = %v, want unchanged 99.6", s.Last)
	}
	if s.Volume != 12000 {
		t.Errorf("Volume = %v, want unchanged 12000", s.Volume)
	}
	if s.High != 101.0 {
		t.Errorf("High = %v, want unchanged 101.0", s.High)
	}
	if s.Low != 98.0 {
		t.Errorf("Low = %v, want unchanged 98.0", s.Low)
	}
	if !s.UpdatedAt.Equal(t1) {
		t.Errorf("UpdatedAt = %v, want %v", s.UpdatedAt, t1)
	}
}

func TestOrderStatus_IsTerminal(t *testing.T) {
	terminal := []OrderStatus{StatusRejected, StatusFilled, StatusCancelled}
	working := []OrderStatus{StatusSubmitted, StatusAcknowledged, StatusPartiallyFilled}

	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s.IsTerminal() = false, want true", s)
		}
	}
	for _, s := range working {
		if s.IsTerminal() {
			t.Errorf("%s.IsTerminal() = true, want false", s)
		}
	}
}

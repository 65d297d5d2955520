package ticker

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/ibgw/internal/model"
)

// fakeConn counts market-data requests and cancellations.
type fakeConn struct {
	mu         sync.Mutex
	requests   int32
	cancels    []string
	requestErr error
}

func (f *fakeConn) RequestMarketData(inst model.Instrument) (string, error) {
	n := atomic.AddInt32(&f.requests, 1)
	if f.requestErr != nil {
		return "", f.requestErr
	}
	return fmt.Sprintf("tok-%s-%d", inst.Symbol, n), nil
}

func (f *fakeConn) CancelMarketData(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, token)
	return nil
}

func TestRegistry_Subscribe(t *testing.T) {
	conn := &fakeConn{}
	r := NewRegistry(nil)

	sub, err := r.Subscribe(conn, model.Stock("AAPL"))
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if sub.State != StatePending {
		t.Errorf("State = %s, want %s", sub.State, StatePending)
	}
	if sub.Token == "" {
		t.Error("Token is empty")
	}
	if !math.IsNaN(sub.Snapshot.Bid) {
		t.Errorf("Snapshot.Bid = %v, want NaN", sub.Snapshot.Bid)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistry_SubscribeIdempotent(t *testing.T) {
	conn := &fakeConn{}
	r := NewRegistry(nil)

	first, err := r.Subscribe(conn, model.Stock("AAPL"))
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	second, err := r.Subscribe(conn, model.Stock("AAPL"))
	if err != nil {
		t.Fatalf("second Subscribe failed: %v", err)
	}

	if second.Token != first.Token {
		t.Errorf("Token = %q, want existing %q", second.Token, first.Token)
	}
	if got := atomic.LoadInt32(&conn.requests); got != 1 {
		t.Errorf("gateway requests = %d, want 1", got)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistry_SubscribeConcurrent(t *testing.T) {
	conn := &fakeConn{}
	r := NewRegistry(nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Subscribe(conn, model.Stock("AAPL"))
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&conn.requests); got != 1 {
		t.Errorf("gateway requests = %d, want 1", got)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistry_SubscribeRollbackOnError(t *testing.T) {
	conn := &fakeConn{requestErr: errors.New("gateway says no")}
	r := NewRegistry(nil)

	_, err := r.Subscribe(conn, model.Stock("AAPL"))
	if err == nil {
		t.Fatal("expected error")
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after rollback", r.Len())
	}

	// A later attempt goes back to the gateway.
	conn.requestErr = nil
	if _, err := r.Subscribe(conn, model.Stock("AAPL")); err != nil {
		t.Fatalf("retry Subscribe failed: %v", err)
	}
	if got := atomic.LoadInt32(&conn.requests); got != 2 {
		t.Errorf("gateway requests = %d, want 2", got)
	}
}

func TestRegistry_UpdatePromotesAndMerges(t *testing.T) {
	conn := &fakeConn{}
	r := NewRegistry(nil)
	inst := model.Stock("AAPL")
	r.Subscribe(conn, inst)

	now := time.Now()
	sub, ok := r.Update(inst, model.TickerFields{Bid: model.Float(100.0), Ask: model.Float(100.2)}, now)
	if !ok {
		t.Fatal("Update returned ok=false")
	}

	if sub.State != StateLive {
		t.Errorf("State = %s, want %s", sub.State, StateLive)
	}
	if sub.Snapshot.Bid != 100.0 {
		t.Errorf("Bid = %v, want 100.0", sub.Snapshot.Bid)
	}
	if sub.Snapshot.Ask != 100.2 {
		t.Errorf("Ask = %v, want 100.2", sub.Snapshot.Ask)
	}
	if !math.IsNaN(sub.Snapshot.Last) {
		t.Errorf("Last = %v, want NaN (unset)", sub.Snapshot.Last)
	}

	// Partial follow-up keeps earlier fields.
	sub, ok = r.Update(inst, model.TickerFields{Last: model.Float(100.1)}, now.Add(time.Second))
	if !ok {
		t.Fatal("second Update returned ok=false")
	}
	if sub.Snapshot.Bid != 100.0 {
		t.Errorf("Bid = %v, want retained 100.0", sub.Snapshot.Bid)
	}
	if sub.Snapshot.Last != 100.1 {
		t.Errorf("Last = %v, want 100.1", sub.Snapshot.Last)
	}
}

func TestRegistry_UpdateUnknownInstrument(t *testing.T) {
	r := NewRegistry(nil)

	_, ok := r.Update(model.Stock("AAPL"), model.TickerFields{Bid: model.Float(1)}, time.Now())
	if ok {
		t.Error("Update of unsubscribed instrument should report ok=false")
	}
}

func TestRegistry_UpdateAfterCancel(t *testing.T) {
	conn := &fakeConn{}
	r := NewRegistry(nil)
	inst := model.Stock("AAPL")

	sub, _ := r.Subscribe(conn, inst)
	if err := r.Cancel(conn, inst); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	conn.mu.Lock()
	cancels := len(conn.cancels)
	var cancelled string
	if cancels > 0 {
		cancelled = conn.cancels[0]
	}
	conn.mu.Unlock()

	if cancels != 1 {
		t.Fatalf("cancel requests = %d, want 1", cancels)
	}
	if cancelled != sub.Token {
		t.Errorf("cancelled token = %q, want %q", cancelled, sub.Token)
	}

	// A late tick for the cancelled instrument is stale and dropped.
	if _, ok := r.Update(inst, model.TickerFields{Bid: model.Float(1)}, time.Now()); ok {
		t.Error("Update after cancel should report ok=false")
	}
}

func TestRegistry_CancelNotSubscribed(t *testing.T) {
	conn := &fakeConn{}
	r := NewRegistry(nil)

	if err := r.Cancel(conn, model.Stock("AAPL")); err != nil {
		t.Errorf("Cancel of unsubscribed instrument = %v, want nil", err)
	}
	if len(conn.cancels) != 0 {
		t.Errorf("cancel requests = %d, want 0", len(conn.cancels))
	}
}

func TestRegistry_InvalidateAllRetainsEntries(t *testing.T) {
	conn := &fakeConn{}
	r := NewRegistry(nil)
	inst := model.Stock("AAPL")
	r.Subscribe(conn, inst)
	r.Update(inst, model.TickerFields{Bid: model.Float(100.0)}, time.Now())

	r.InvalidateAll()

	sub, ok := r.Get(inst)
	if !ok {
		t.Fatal("entry should be retained after invalidation")
	}
	if sub.State != StateInvalid {
		t.Errorf("State = %s, want %s", sub.State, StateInvalid)
	}
	if sub.Snapshot.Bid != 100.0 {
		t.Errorf("Bid = %v, want last-known 100.0", sub.Snapshot.Bid)
	}

	// Updates no longer land.
	if _, ok := r.Update(inst, model.TickerFields{Bid: model.Float(1)}, time.Now()); ok {
		t.Error("Update of invalidated entry should report ok=false")
	}

	// Resubscribing replaces the invalid entry with a fresh one.
	fresh, err := r.Subscribe(conn, inst)
	if err != nil {
		t.Fatalf("resubscribe failed: %v", err)
	}
	if fresh.State != StatePending {
		t.Errorf("State = %s, want %s", fresh.State, StatePending)
	}
}

func TestRegistry_CancelAll(t *testing.T) {
	conn := &fakeConn{}
	r := NewRegistry(nil)
	r.Subscribe(conn, model.Stock("AAPL"))
	r.Subscribe(conn, model.Stock("MSFT"))

	r.CancelAll(conn)

	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.cancels) != 2 {
		t.Errorf("cancel requests = %d, want 2", len(conn.cancels))
	}
}

func TestRegistry_Clear(t *testing.T) {
	conn := &fakeConn{}
	r := NewRegistry(nil)
	r.Subscribe(conn, model.Stock("AAPL"))
	r.InvalidateAll()

	r.Clear()

	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

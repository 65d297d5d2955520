package ticker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/ibgw/internal/model"
)

// SubState is the lifecycle state of one subscription.
type SubState string

const (
	// StatePending: the market-data request was issued but no tick has
	// arrived yet.
	StatePending SubState = "pending"
	// StateLive: at least one tick has been merged into the snapshot.
	StateLive SubState = "live"
	// StateInvalid: the session went down; the entry is kept for
	// inspection but no longer receives updates.
	StateInvalid SubState = "invalid"
)

// Subscription is a value view of one market-data subscription.
type Subscription struct {
	Instrument model.Instrument
	Token      string // opaque gateway token, set once the request succeeds
	State      SubState
	Snapshot   model.Snapshot
}

// MarketDataConn is the slice of the transport the registry needs.
type MarketDataConn interface {
	RequestMarketData(inst model.Instrument) (token string, err error)
	CancelMarketData(token string) error
}

// Registry tracks subscriptions by instrument identity. Snapshot writes come
// only from the dispatch goroutine via Update; all other methods may be
// called concurrently and read or mutate entries under the lock.
type Registry struct {
	mu     sync.RWMutex
	subs   map[model.Instrument]*Subscription
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		subs:   make(map[model.Instrument]*Subscription),
		logger: logger,
	}
}

// Subscribe returns the subscription for inst, creating it if absent.
// Idempotent: an existing pending or live entry is returned unchanged and no
// second gateway request is issued. An invalid entry from a previous session
// is replaced. The new entry is registered pending before the gateway
// request goes out, so concurrent calls collapse onto one request; if the
// request fails the entry is rolled back.
func (r *Registry) Subscribe(conn MarketDataConn, inst model.Instrument) (Subscription, error) {
	r.mu.Lock()
	if s, ok := r.subs[inst]; ok && s.State != StateInvalid {
		out := *s
		r.mu.Unlock()
		return out, nil
	}

	s := &Subscription{
		Instrument: inst,
		State:      StatePending,
		Snapshot:   model.NewSnapshot(),
	}
	r.subs[inst] = s
	r.mu.Unlock()

	token, err := conn.RequestMarketData(inst)
	if err != nil {
		r.mu.Lock()
		if cur, ok := r.subs[inst]; ok && cur == s {
			delete(r.subs, inst)
		}
		r.mu.Unlock()
		r.logger.Warn("market data request failed",
			"instrument", inst.String(),
			"error", err,
		)
		return Subscription{}, err
	}

	r.mu.Lock()
	s.Token = token
	out := *s
	r.mu.Unlock()

	r.logger.Debug("subscribed", "instrument", inst.String(), "token", token)
	return out, nil
}

// Cancel removes the subscription for inst, issuing a cancellation request
// for entries that still belong to the active session. No-op if not
// subscribed. The entry is removed even when the cancel request fails.
func (r *Registry) Cancel(conn MarketDataConn, inst model.Instrument) error {
	r.mu.Lock()
	s, ok := r.subs[inst]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.subs, inst)
	token := s.Token
	state := s.State
	r.mu.Unlock()

	r.logger.Debug("cancelled subscription", "instrument", inst.String())

	if state == StateInvalid || token == "" {
		return nil
	}
	return conn.CancelMarketData(token)
}

// CancelAll cancels every active subscription. Used on explicit disconnect;
// cancel failures are logged and do not stop the teardown.
func (r *Registry) CancelAll(conn MarketDataConn) {
	r.mu.Lock()
	entries := make([]*Subscription, 0, len(r.subs))
	for _, s := range r.subs {
		entries = append(entries, s)
	}
	r.subs = make(map[model.Instrument]*Subscription)
	r.mu.Unlock()

	for _, s := range entries {
		if s.State == StateInvalid || s.Token == "" {
			continue
		}
		if err := conn.CancelMarketData(s.Token); err != nil {
			r.logger.Warn("failed to cancel subscription",
				"instrument", s.Instrument.String(),
				"error", err,
			)
		}
	}
}

// Update merges a partial tick into the instrument's snapshot and promotes a
// pending entry to live. Called only from the dispatch goroutine. Updates
// for unknown or invalidated instruments are stale (for example arriving
// after a cancel) and are logged and dropped; the second return is false.
func (r *Registry) Update(inst model.Instrument, fields model.TickerFields, at time.Time) (Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.subs[inst]
	if !ok || s.State == StateInvalid {
		r.logger.Debug("dropping stale ticker update", "instrument", inst.String())
		return Subscription{}, false
	}

	s.Snapshot.Merge(fields, at)
	s.State = StateLive
	return *s, true
}

// InvalidateAll marks every entry invalid but keeps it for inspection.
// Called when the session transitions to disconnected.
func (r *Registry) InvalidateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.subs {
		s.State = StateInvalid
	}
}

// Clear drops all entries, including invalidated ones.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.subs = make(map[model.Instrument]*Subscription)
}

// Get returns a value copy of the subscription for inst.
func (r *Registry) Get(inst model.Instrument) (Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.subs[inst]
	if !ok {
		return Subscription{}, false
	}
	return *s, true
}

// All returns value copies of every entry.
func (r *Registry) All() []Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Subscription, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, *s)
	}
	return out
}

// Len returns the number of entries, including invalidated ones.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

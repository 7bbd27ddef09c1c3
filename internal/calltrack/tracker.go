// Package calltrack derives call records from the signaling message stream.
//
// The tracker is a passive observer: the router reports forwarded answers and
// hangups, and connection teardowns, and the tracker maintains the set of
// open calls and persists completed ones. It never alters message flow.
package calltrack

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/galkyn/video-calling-app/internal/metrics"
	"github.com/galkyn/video-calling-app/internal/ratelimit"
)

// Record is one call, open (EndTime nil) or completed.
//
// Duration is in seconds and is set if and only if EndTime is set.
type Record struct {
	From      string     `json:"from"`
	To        string     `json:"to"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	Duration  *float64   `json:"duration"`
}

// Sink is the durable store for completed call records.
//
// Append is fire-and-forget from the tracker's viewpoint: failures are logged
// and counted but never affect in-memory call state. Retries, if any, are the
// sink's business.
type Sink interface {
	Append(ctx context.Context, rec Record) error
	Recent(ctx context.Context, n int) ([]Record, error)
}

// Tracker holds at most one open call per unordered client pair.
type Tracker struct {
	log     *slog.Logger
	metrics *metrics.Metrics
	sink    Sink
	clock   ratelimit.Clock

	mu   sync.Mutex
	open map[pairKey]openCall
}

// pairKey identifies a call by its two participants, order-independent, so a
// hangup from either side closes the same record.
type pairKey struct {
	lo, hi string
}

func newPairKey(a, b string) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{lo: a, hi: b}
}

type openCall struct {
	from  string
	to    string
	start time.Time
}

func New(sink Sink, clock ratelimit.Clock, log *slog.Logger, m *metrics.Metrics) *Tracker {
	if clock == nil {
		clock = ratelimit.RealClock{}
	}
	if log == nil {
		log = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Tracker{
		log:     log,
		metrics: m,
		sink:    sink,
		clock:   clock,
		open:    make(map[pairKey]openCall),
	}
}

// OfferAccepted opens a call record for the caller/callee pair.
//
// Calls are opened when the relay forwards the callee's answer, not when the
// offer is sent: a call that is never answered produces no record. A second
// answer for a pair that already has an open call keeps the existing record
// and only logs the supersession.
func (t *Tracker) OfferAccepted(caller, callee string) {
	now := t.clock.Now()
	key := newPairKey(caller, callee)

	t.mu.Lock()
	if existing, ok := t.open[key]; ok {
		t.mu.Unlock()
		t.metrics.Inc(metrics.CallSuperseded)
		t.log.Warn("answer for pair with open call, keeping existing record",
			"from", existing.from, "to", existing.to, "start_time", existing.start)
		return
	}
	t.open[key] = openCall{from: caller, to: callee, start: now}
	t.mu.Unlock()

	t.metrics.Inc(metrics.CallOpened)
	t.log.Info("call opened", "from", caller, "to", callee)
}

// CloseCall closes the open call between a and b, if any, and persists the
// completed record. It reports whether a record was closed; closing an
// already-closed pairing is a no-op, so concurrent hangups from both sides
// produce exactly one completed record.
func (t *Tracker) CloseCall(a, b string) bool {
	key := newPairKey(a, b)

	t.mu.Lock()
	call, ok := t.open[key]
	if ok {
		delete(t.open, key)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}

	t.persistClosed(call)
	return true
}

// CloseAllFor closes every open call involving id (normally at most one) and
// returns the counterparty of each closed call. Used when a client's channel
// terminates without an explicit hangup.
func (t *Tracker) CloseAllFor(id string) []string {
	t.mu.Lock()
	var closed []openCall
	for key, call := range t.open {
		if call.from == id || call.to == id {
			closed = append(closed, call)
			delete(t.open, key)
		}
	}
	t.mu.Unlock()

	peers := make([]string, 0, len(closed))
	for _, call := range closed {
		t.persistClosed(call)
		if call.from == id {
			peers = append(peers, call.to)
		} else {
			peers = append(peers, call.from)
		}
	}
	return peers
}

// Counterparty returns the other side of an open call involving id. It backs
// hangup messages that arrive without a "to" field.
func (t *Tracker) Counterparty(id string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, call := range t.open {
		if call.from == id {
			return call.to, true
		}
		if call.to == id {
			return call.from, true
		}
	}
	return "", false
}

// HasOpen reports whether a call between a and b is currently open.
func (t *Tracker) HasOpen(a, b string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.open[newPairKey(a, b)]
	return ok
}

func (t *Tracker) persistClosed(call openCall) {
	end := t.clock.Now()
	if end.Before(call.start) {
		end = call.start
	}
	duration := end.Sub(call.start).Seconds()

	rec := Record{
		From:      call.from,
		To:        call.to,
		StartTime: call.start,
		EndTime:   &end,
		Duration:  &duration,
	}

	t.metrics.Inc(metrics.CallClosed)
	t.log.Info("call closed", "from", rec.From, "to", rec.To, "duration_sec", duration)

	if t.sink == nil {
		return
	}
	if err := t.sink.Append(context.Background(), rec); err != nil {
		t.metrics.Inc(metrics.SinkUnavailable)
		t.log.Error("failed to persist call record", "from", rec.From, "to", rec.To, "err", err)
	}
}

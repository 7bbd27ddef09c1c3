package calltrack

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/galkyn/video-calling-app/internal/metrics"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memorySink struct {
	mu      sync.Mutex
	records []Record
	err     error
}

func (s *memorySink) Append(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *memorySink) Recent(_ context.Context, n int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if n > len(s.records) {
		n = len(s.records)
	}
	out := make([]Record, 0, n)
	for i := len(s.records) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

func (s *memorySink) all() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

func TestTracker_OpenAndClose(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	sink := &memorySink{}
	tr := New(sink, clk, nil, metrics.New())

	tr.OfferAccepted("alice", "bob")
	if !tr.HasOpen("alice", "bob") {
		t.Fatalf("expected open call")
	}
	if got := sink.all(); len(got) != 0 {
		t.Fatalf("open call must not be persisted yet, got %d records", len(got))
	}

	clk.Advance(90 * time.Second)
	if !tr.CloseCall("alice", "bob") {
		t.Fatalf("expected CloseCall to close the open record")
	}

	recs := sink.all()
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	rec := recs[0]
	if rec.From != "alice" || rec.To != "bob" {
		t.Errorf("record pair = %s -> %s", rec.From, rec.To)
	}
	if rec.EndTime == nil || rec.Duration == nil {
		t.Fatalf("closed record must have end_time and duration")
	}
	if *rec.Duration != 90 {
		t.Errorf("duration = %v, want 90", *rec.Duration)
	}
	if got := rec.EndTime.Sub(rec.StartTime).Seconds(); got != *rec.Duration {
		t.Errorf("duration %v != end-start %v", *rec.Duration, got)
	}
}

func TestTracker_CloseIsIdempotent(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	sink := &memorySink{}
	tr := New(sink, clk, nil, nil)

	tr.OfferAccepted("alice", "bob")

	// Hangup arrives from both sides; the pair key is unordered.
	if !tr.CloseCall("bob", "alice") {
		t.Fatalf("first close should win")
	}
	if tr.CloseCall("alice", "bob") {
		t.Fatalf("second close must be a no-op")
	}
	if len(sink.all()) != 1 {
		t.Fatalf("exactly one record must be persisted")
	}
}

func TestTracker_CloseWithoutOpenWritesNothing(t *testing.T) {
	sink := &memorySink{}
	tr := New(sink, nil, nil, nil)

	if tr.CloseCall("alice", "bob") {
		t.Fatalf("nothing to close")
	}
	if len(sink.all()) != 0 {
		t.Fatalf("a call that never connected must produce no record")
	}
}

func TestTracker_SupersededAnswerKeepsExistingRecord(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	sink := &memorySink{}
	m := metrics.New()
	tr := New(sink, clk, nil, m)

	tr.OfferAccepted("alice", "bob")
	clk.Advance(10 * time.Second)
	tr.OfferAccepted("bob", "alice")

	if m.Get(metrics.CallSuperseded) != 1 {
		t.Errorf("expected supersession counter")
	}

	clk.Advance(10 * time.Second)
	tr.CloseCall("alice", "bob")

	recs := sink.all()
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if *recs[0].Duration != 20 {
		t.Errorf("duration = %v, want 20 (original start time kept)", *recs[0].Duration)
	}
}

func TestTracker_CloseAllFor(t *testing.T) {
	sink := &memorySink{}
	tr := New(sink, nil, nil, nil)

	tr.OfferAccepted("alice", "bob")
	tr.OfferAccepted("carol", "alice")

	peers := tr.CloseAllFor("alice")
	if len(peers) != 2 {
		t.Fatalf("peers = %v, want both counterparties", peers)
	}
	seen := map[string]bool{}
	for _, p := range peers {
		seen[p] = true
	}
	if !seen["bob"] || !seen["carol"] {
		t.Errorf("peers = %v, want bob and carol", peers)
	}
	if tr.HasOpen("alice", "bob") || tr.HasOpen("carol", "alice") {
		t.Errorf("all calls involving alice must be closed")
	}
	if len(sink.all()) != 2 {
		t.Errorf("both records must be persisted")
	}
}

func TestTracker_Counterparty(t *testing.T) {
	tr := New(nil, nil, nil, nil)

	if _, ok := tr.Counterparty("alice"); ok {
		t.Fatalf("no open call yet")
	}

	tr.OfferAccepted("alice", "bob")

	if peer, ok := tr.Counterparty("bob"); !ok || peer != "alice" {
		t.Errorf("Counterparty(bob) = %q, %v", peer, ok)
	}
	if peer, ok := tr.Counterparty("alice"); !ok || peer != "bob" {
		t.Errorf("Counterparty(alice) = %q, %v", peer, ok)
	}
}

func TestTracker_SinkFailureDoesNotAffectState(t *testing.T) {
	sink := &memorySink{err: errors.New("store down")}
	m := metrics.New()
	tr := New(sink, nil, nil, m)

	tr.OfferAccepted("alice", "bob")
	if !tr.CloseCall("alice", "bob") {
		t.Fatalf("close must succeed even when the sink is down")
	}
	if tr.HasOpen("alice", "bob") {
		t.Fatalf("call must be gone from in-memory state")
	}
	if m.Get(metrics.SinkUnavailable) != 1 {
		t.Errorf("expected sink_unavailable counter")
	}
}

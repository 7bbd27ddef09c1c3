package peer

import (
	"errors"
	"testing"

	"github.com/galkyn/video-calling-app/internal/signaling"
)

// stubEngine records the calls a session makes into it.
type stubEngine struct {
	offers     int
	answers    int
	remote     []signaling.SessionDescription
	candidates []signaling.Candidate
	closed     bool

	remoteErr error
}

func (e *stubEngine) CreateOffer() (signaling.SessionDescription, error) {
	e.offers++
	return signaling.SessionDescription{Type: "offer", SDP: "v=0\r\nlocal-offer\r\n"}, nil
}

func (e *stubEngine) CreateAnswer() (signaling.SessionDescription, error) {
	e.answers++
	return signaling.SessionDescription{Type: "answer", SDP: "v=0\r\nlocal-answer\r\n"}, nil
}

func (e *stubEngine) SetRemoteDescription(d signaling.SessionDescription) error {
	if e.remoteErr != nil {
		return e.remoteErr
	}
	e.remote = append(e.remote, d)
	return nil
}

func (e *stubEngine) AddICECandidate(c signaling.Candidate) error {
	e.candidates = append(e.candidates, c)
	return nil
}

func (e *stubEngine) Close() error {
	e.closed = true
	return nil
}

func remoteOffer() signaling.SessionDescription {
	return signaling.SessionDescription{Type: "offer", SDP: "v=0\r\nremote-offer\r\n"}
}

func remoteAnswer() signaling.SessionDescription {
	return signaling.SessionDescription{Type: "answer", SDP: "v=0\r\nremote-answer\r\n"}
}

func TestSessionCallerPath(t *testing.T) {
	engine := &stubEngine{}
	s := NewSession("callee-1", engine, nil)

	if _, err := s.Offer(); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateOfferSent {
		t.Fatalf("state = %v", s.State())
	}
	if err := s.HandleAnswer(remoteAnswer()); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateAnswerExchanged {
		t.Fatalf("state = %v", s.State())
	}
	s.NegotiationStarted()
	if s.State() != StateNegotiating {
		t.Fatalf("state = %v", s.State())
	}
	s.Connected()
	if s.State() != StateConnected {
		t.Fatalf("state = %v", s.State())
	}
}

func TestSessionCalleePath(t *testing.T) {
	engine := &stubEngine{}
	s := NewSession("caller-1", engine, nil)

	answer, err := s.HandleOffer(remoteOffer())
	if err != nil {
		t.Fatal(err)
	}
	if answer.Type != "answer" {
		t.Fatalf("answer type = %q", answer.Type)
	}
	if s.State() != StateAnswerExchanged {
		t.Fatalf("state = %v", s.State())
	}
	if engine.answers != 1 || len(engine.remote) != 1 {
		t.Fatalf("engine calls: answers=%d remote=%d", engine.answers, len(engine.remote))
	}
}

func TestSessionInvalidAnswerKeepsWaiting(t *testing.T) {
	engine := &stubEngine{}
	s := NewSession("callee-1", engine, nil)
	if _, err := s.Offer(); err != nil {
		t.Fatal(err)
	}

	err := s.HandleAnswer(signaling.SessionDescription{Type: "answer", SDP: ""})
	if !errors.Is(err, ErrInvalidAnswer) {
		t.Fatalf("error = %v", err)
	}
	if s.State() != StateOfferSent {
		t.Fatalf("state after invalid answer = %v", s.State())
	}

	// A corrected answer still lands.
	if err := s.HandleAnswer(remoteAnswer()); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateAnswerExchanged {
		t.Fatalf("state = %v", s.State())
	}
}

func TestSessionBuffersEarlyCandidates(t *testing.T) {
	engine := &stubEngine{}
	s := NewSession("callee-1", engine, nil)
	if _, err := s.Offer(); err != nil {
		t.Fatal(err)
	}

	early := signaling.Candidate{Candidate: "candidate:1 1 udp 1 192.0.2.1 50000 typ host"}
	if err := s.HandleCandidate(early); err != nil {
		t.Fatal(err)
	}
	if len(engine.candidates) != 0 {
		t.Fatal("candidate delivered before remote description")
	}

	if err := s.HandleAnswer(remoteAnswer()); err != nil {
		t.Fatal(err)
	}
	if len(engine.candidates) != 1 || engine.candidates[0] != early {
		t.Fatalf("buffered candidate not flushed: %v", engine.candidates)
	}

	late := signaling.Candidate{Candidate: "candidate:2 1 udp 1 192.0.2.2 50001 typ host"}
	if err := s.HandleCandidate(late); err != nil {
		t.Fatal(err)
	}
	if len(engine.candidates) != 2 {
		t.Fatal("late candidate not delivered directly")
	}
}

func TestSessionRejectsOfferOutOfTurn(t *testing.T) {
	engine := &stubEngine{}
	s := NewSession("peer", engine, nil)
	if _, err := s.Offer(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.HandleOffer(remoteOffer()); !errors.Is(err, ErrBadState) {
		t.Fatalf("error = %v", err)
	}
	if _, err := s.Offer(); !errors.Is(err, ErrBadState) {
		t.Fatalf("double offer error = %v", err)
	}
}

func TestSessionCloseIsIdempotentAndTerminal(t *testing.T) {
	engine := &stubEngine{}
	s := NewSession("peer", engine, nil)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if !engine.closed {
		t.Fatal("engine not closed")
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Offer(); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("offer after close: %v", err)
	}
	if err := s.HandleCandidate(signaling.Candidate{Candidate: "x"}); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("candidate after close: %v", err)
	}
	// Connected after close must not resurrect the session.
	s.Connected()
	if s.State() != StateClosed {
		t.Fatalf("state = %v", s.State())
	}
}

func TestSessionRejectsBadRemoteOffer(t *testing.T) {
	engine := &stubEngine{remoteErr: errors.New("sdp parse failed")}
	s := NewSession("peer", engine, nil)
	if _, err := s.HandleOffer(remoteOffer()); !errors.Is(err, ErrInvalidOffer) {
		t.Fatalf("error = %v", err)
	}
	if s.State() != StateIdle {
		t.Fatalf("state = %v", s.State())
	}
}

package peer

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/galkyn/video-calling-app/internal/signaling"
)

// State tracks where a session is in the offer/answer exchange.
type State int

const (
	StateIdle State = iota
	StateOfferSent
	StateOfferReceived
	StateAnswerExchanged
	StateNegotiating
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOfferSent:
		return "offer-sent"
	case StateOfferReceived:
		return "offer-received"
	case StateAnswerExchanged:
		return "answer-exchanged"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Engine is the WebRTC machinery a session drives. CreateOffer and
// CreateAnswer also install the description as the local one.
type Engine interface {
	CreateOffer() (signaling.SessionDescription, error)
	CreateAnswer() (signaling.SessionDescription, error)
	SetRemoteDescription(signaling.SessionDescription) error
	AddICECandidate(signaling.Candidate) error
	Close() error
}

// Session is the negotiation state machine for one call with one peer.
// Candidates arriving before the remote description are buffered and
// flushed once it lands.
type Session struct {
	peerID string
	engine Engine
	log    *slog.Logger

	mu        sync.Mutex
	state     State
	remoteSet bool
	pending   []signaling.Candidate
}

func NewSession(peerID string, engine Engine, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		peerID: peerID,
		engine: engine,
		log:    log.With("peer_id", peerID),
		state:  StateIdle,
	}
}

func (s *Session) PeerID() string { return s.peerID }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Offer starts an outbound call: create and return the local offer.
func (s *Session) Offer() (signaling.SessionDescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return signaling.SessionDescription{}, ErrSessionClosed
	}
	if s.state != StateIdle {
		return signaling.SessionDescription{}, fmt.Errorf("%w: offer from %s", ErrBadState, s.state)
	}
	offer, err := s.engine.CreateOffer()
	if err != nil {
		return signaling.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	s.state = StateOfferSent
	return offer, nil
}

// HandleOffer accepts a remote offer and produces the answer. A bad
// offer leaves the session idle so a corrected one can follow.
func (s *Session) HandleOffer(offer signaling.SessionDescription) (signaling.SessionDescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return signaling.SessionDescription{}, ErrSessionClosed
	}
	if s.state != StateIdle {
		return signaling.SessionDescription{}, fmt.Errorf("%w: remote offer in %s", ErrBadState, s.state)
	}
	if offer.Type != "offer" || offer.SDP == "" {
		return signaling.SessionDescription{}, ErrInvalidOffer
	}
	if err := s.engine.SetRemoteDescription(offer); err != nil {
		return signaling.SessionDescription{}, fmt.Errorf("%w: %v", ErrInvalidOffer, err)
	}
	s.state = StateOfferReceived
	s.remoteSet = true
	s.flushPendingLocked()

	answer, err := s.engine.CreateAnswer()
	if err != nil {
		return signaling.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	s.state = StateAnswerExchanged
	return answer, nil
}

// HandleAnswer installs the remote answer for an offer this side sent.
// An invalid answer is rejected without leaving StateOfferSent.
func (s *Session) HandleAnswer(answer signaling.SessionDescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrSessionClosed
	}
	if s.state != StateOfferSent {
		return fmt.Errorf("%w: remote answer in %s", ErrBadState, s.state)
	}
	if answer.Type != "answer" || answer.SDP == "" {
		return ErrInvalidAnswer
	}
	if err := s.engine.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAnswer, err)
	}
	s.state = StateAnswerExchanged
	s.remoteSet = true
	s.flushPendingLocked()
	return nil
}

// HandleCandidate feeds a trickled remote candidate to the engine,
// buffering it when the remote description has not arrived yet.
func (s *Session) HandleCandidate(c signaling.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrSessionClosed
	}
	if !s.remoteSet {
		s.pending = append(s.pending, c)
		return nil
	}
	if err := s.engine.AddICECandidate(c); err != nil {
		// One unusable candidate does not sink the negotiation.
		s.log.Warn("discarding ice candidate", "err", err)
	}
	return nil
}

func (s *Session) flushPendingLocked() {
	for _, c := range s.pending {
		if err := s.engine.AddICECandidate(c); err != nil {
			s.log.Warn("discarding buffered ice candidate", "err", err)
		}
	}
	s.pending = nil
}

// NegotiationStarted records that ICE connectivity checks began.
func (s *Session) NegotiationStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateAnswerExchanged {
		s.state = StateNegotiating
	}
}

// Connected records that the transport came up.
func (s *Session) Connected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateClosed {
		s.state = StateConnected
	}
}

// Close tears the session down. A hangup, a transport failure and a
// dropped signaling channel all arrive here; closing twice is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil
	}
	s.state = StateClosed
	s.pending = nil
	return s.engine.Close()
}

// Package peer implements the client side of the call protocol: a
// signaling connection plus one negotiation session per counterparty.
package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/galkyn/video-calling-app/internal/signaling"
)

// Client speaks the signaling protocol over one websocket and drives a
// Session per peer it is calling or being called by.
type Client struct {
	engineFor EngineFactory
	log       *slog.Logger

	// send writes one frame to the signaling channel.
	send func(data []byte) error

	ws *websocket.Conn

	mu       sync.Mutex
	id       string
	roster   []string
	sessions map[string]*Session

	idReady   chan struct{}
	readyOnce sync.Once

	onRoster func(ids []string)

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the relay's websocket endpoint and starts the read
// loop. The returned client is usable once Ready is signalled.
func Dial(ctx context.Context, url string, factory EngineFactory, log *slog.Logger) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial signaling server: %w", err)
	}
	c := newClient(factory, log, func(data []byte) error {
		return ws.WriteMessage(websocket.TextMessage, data)
	})
	c.ws = ws
	go c.readLoop()
	return c, nil
}

func newClient(factory EngineFactory, log *slog.Logger, send func([]byte) error) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		engineFor: factory,
		log:       log,
		send:      send,
		sessions:  make(map[string]*Session),
		idReady:   make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Ready is closed once the relay has assigned this client its ID.
func (c *Client) Ready() <-chan struct{} { return c.idReady }

// Done is closed when the signaling connection ends.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *Client) Roster() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.roster))
	copy(out, c.roster)
	return out
}

// OnRoster installs a callback invoked on every roster update.
func (c *Client) OnRoster(fn func(ids []string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRoster = fn
}

// SessionState reports the negotiation state with one peer.
func (c *Client) SessionState(peerID string) (State, bool) {
	c.mu.Lock()
	s, ok := c.sessions[peerID]
	c.mu.Unlock()
	if !ok {
		return StateIdle, false
	}
	return s.State(), true
}

func (c *Client) readLoop() {
	defer c.Close()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.log.Debug("signaling read ended", "err", err)
			return
		}
		c.handleEnvelope(data)
	}
}

func (c *Client) handleEnvelope(raw []byte) {
	env, err := signaling.ParseEnvelope(raw)
	if err != nil {
		c.log.Warn("dropping unusable signaling message", "err", err)
		return
	}
	switch env.Type {
	case signaling.MessageTypeClientID:
		if env.Data == nil || env.Data.ClientID == "" {
			return
		}
		c.mu.Lock()
		c.id = env.Data.ClientID
		c.mu.Unlock()
		c.readyOnce.Do(func() { close(c.idReady) })
		c.log.Info("assigned client id", "client_id", env.Data.ClientID)
	case signaling.MessageTypeUserList:
		var ids []string
		if env.Data != nil {
			ids = env.Data.UserIDs
		}
		c.mu.Lock()
		c.roster = ids
		fn := c.onRoster
		c.mu.Unlock()
		if fn != nil {
			fn(ids)
		}
	case signaling.MessageTypeMediaOffer:
		c.handleOffer(env)
	case signaling.MessageTypeMediaAnswer:
		c.handleAnswer(env)
	case signaling.MessageTypeICECandidate:
		c.handleCandidate(env)
	case signaling.MessageTypeHangup:
		c.handleHangup(env)
	default:
		c.log.Debug("ignoring message", "type", env.Type)
	}
}

// handleOffer answers an inbound call. If both sides offered at once,
// the freshest offer wins: the stale outbound session is dropped and
// this side answers instead.
func (c *Client) handleOffer(env signaling.Envelope) {
	from := env.From
	if from == "" || env.Offer == nil {
		return
	}

	c.mu.Lock()
	existing := c.sessions[from]
	delete(c.sessions, from)
	c.mu.Unlock()
	if existing != nil {
		c.log.Info("replacing in-flight negotiation with newer offer", "peer_id", from)
		existing.Close()
	}

	session, err := c.newSession(from)
	if err != nil {
		c.log.Error("could not start session for inbound offer", "peer_id", from, "err", err)
		return
	}
	answer, err := session.HandleOffer(*env.Offer)
	if err != nil {
		c.log.Warn("rejecting inbound offer", "peer_id", from, "err", err)
		c.dropSession(from, session)
		return
	}
	c.sendEnvelope(signaling.Envelope{
		Type:   signaling.MessageTypeMediaAnswer,
		From:   c.ClientID(),
		To:     from,
		Answer: &answer,
	})
}

func (c *Client) handleAnswer(env signaling.Envelope) {
	if env.From == "" || env.Answer == nil {
		return
	}
	c.mu.Lock()
	session, ok := c.sessions[env.From]
	c.mu.Unlock()
	if !ok {
		c.log.Debug("answer for unknown session", "peer_id", env.From)
		return
	}
	if err := session.HandleAnswer(*env.Answer); err != nil {
		// The session stays in place; a usable answer may still come.
		c.log.Warn("rejecting answer", "peer_id", env.From, "err", err)
	}
}

func (c *Client) handleCandidate(env signaling.Envelope) {
	if env.From == "" || env.Candidate == nil {
		return
	}
	c.mu.Lock()
	session, ok := c.sessions[env.From]
	c.mu.Unlock()
	if !ok {
		c.log.Debug("candidate for unknown session", "peer_id", env.From)
		return
	}
	if err := session.HandleCandidate(*env.Candidate); err != nil {
		c.log.Warn("discarding candidate", "peer_id", env.From, "err", err)
	}
}

func (c *Client) handleHangup(env signaling.Envelope) {
	if env.From == "" {
		return
	}
	c.mu.Lock()
	session, ok := c.sessions[env.From]
	delete(c.sessions, env.From)
	c.mu.Unlock()
	if !ok {
		return
	}
	c.log.Info("peer hung up", "peer_id", env.From)
	session.Close()
}

// Call starts an outbound call to peerID.
func (c *Client) Call(peerID string) error {
	c.mu.Lock()
	_, exists := c.sessions[peerID]
	c.mu.Unlock()
	if exists {
		return fmt.Errorf("%w: already negotiating with %s", ErrBadState, peerID)
	}

	session, err := c.newSession(peerID)
	if err != nil {
		return err
	}
	offer, err := session.Offer()
	if err != nil {
		c.dropSession(peerID, session)
		return err
	}
	return c.sendEnvelope(signaling.Envelope{
		Type:  signaling.MessageTypeMediaOffer,
		From:  c.ClientID(),
		To:    peerID,
		Offer: &offer,
	})
}

// Hangup ends the call with peerID and tells them so.
func (c *Client) Hangup(peerID string) error {
	c.mu.Lock()
	session, ok := c.sessions[peerID]
	delete(c.sessions, peerID)
	c.mu.Unlock()
	if !ok {
		return ErrNoSession
	}
	session.Close()
	return c.sendEnvelope(signaling.Envelope{
		Type: signaling.MessageTypeHangup,
		From: c.ClientID(),
		To:   peerID,
	})
}

// RequestUserList asks the relay for the current roster.
func (c *Client) RequestUserList() error {
	return c.sendEnvelope(signaling.Envelope{Type: signaling.MessageTypeRequestUserList})
}

// SendCandidate trickles a locally gathered candidate to peerID. Wired
// as the engine's OnCandidate callback.
func (c *Client) SendCandidate(peerID string, cand signaling.Candidate) {
	err := c.sendEnvelope(signaling.Envelope{
		Type:      signaling.MessageTypeICECandidate,
		From:      c.ClientID(),
		To:        peerID,
		Candidate: &cand,
	})
	if err != nil {
		c.log.Warn("could not trickle candidate", "peer_id", peerID, "err", err)
	}
}

// HandleConnectionState maps engine transport states onto the session
// machine. Wired as the engine's OnStateChange callback.
func (c *Client) HandleConnectionState(peerID string, state webrtc.PeerConnectionState) {
	c.mu.Lock()
	session, ok := c.sessions[peerID]
	c.mu.Unlock()
	if !ok {
		return
	}
	switch state {
	case webrtc.PeerConnectionStateConnecting:
		session.NegotiationStarted()
	case webrtc.PeerConnectionStateConnected:
		session.Connected()
		c.log.Info("call connected", "peer_id", peerID)
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		c.mu.Lock()
		delete(c.sessions, peerID)
		c.mu.Unlock()
		session.Close()
	}
}

// Close tears down every session and the signaling connection.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	c.mu.Lock()
	sessions := c.sessions
	c.sessions = make(map[string]*Session)
	c.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
	if c.ws != nil {
		return c.ws.Close()
	}
	return nil
}

func (c *Client) newSession(peerID string) (*Session, error) {
	engine, err := c.engineFor(peerID)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	session := NewSession(peerID, engine, c.log)
	c.mu.Lock()
	c.sessions[peerID] = session
	c.mu.Unlock()
	return session, nil
}

// dropSession removes a session, but only if it is still the current
// one for that peer.
func (c *Client) dropSession(peerID string, session *Session) {
	c.mu.Lock()
	if c.sessions[peerID] == session {
		delete(c.sessions, peerID)
	}
	c.mu.Unlock()
	session.Close()
}

func (c *Client) sendEnvelope(env signaling.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.send(data)
}

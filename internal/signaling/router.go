package signaling

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/galkyn/video-calling-app/internal/calltrack"
	"github.com/galkyn/video-calling-app/internal/metrics"
)

// RouteOutcome describes what the router did with one inbound message.
type RouteOutcome int

const (
	// RouteDropped: the message went nowhere (malformed, unknown type,
	// absent peer, or saturated peer queue).
	RouteDropped RouteOutcome = iota
	// RouteForwarded: the raw bytes were queued for the addressed peer.
	RouteForwarded
	// RouteReplied: the router answered the sender directly.
	RouteReplied
)

func (o RouteOutcome) String() string {
	switch o {
	case RouteForwarded:
		return "forwarded"
	case RouteReplied:
		return "replied"
	default:
		return "dropped"
	}
}

// Router dispatches inbound signaling messages. Peer-directed envelopes
// are forwarded as the exact bytes received; the router never rewrites
// a payload it merely relays.
type Router struct {
	registry *Registry
	tracker  *calltrack.Tracker
	log      *slog.Logger
	metrics  *metrics.Metrics
}

func NewRouter(registry *Registry, tracker *calltrack.Tracker, log *slog.Logger, m *metrics.Metrics) *Router {
	if log == nil {
		log = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Router{registry: registry, tracker: tracker, log: log, metrics: m}
}

// Route handles one message from senderID. A non-routable message never
// terminates the sender's connection; the worst case is a drop plus a
// log line.
func (rt *Router) Route(senderID string, raw []byte) RouteOutcome {
	env, err := ParseEnvelope(raw)
	switch {
	case errors.Is(err, ErrUnknownMessageType):
		rt.metrics.Inc(metrics.UnknownMessageType)
		rt.log.Warn("ignoring message with unknown type", "client_id", senderID)
		return RouteDropped
	case err != nil:
		rt.metrics.Inc(metrics.MalformedMessage)
		rt.log.Warn("dropping malformed message", "client_id", senderID, "err", err)
		return RouteDropped
	}

	switch env.Type {
	case MessageTypeRequestUserList:
		return rt.replyUserList(senderID)
	case MessageTypeMediaOffer, MessageTypeMediaAnswer, MessageTypeICECandidate:
		return rt.forward(senderID, env, raw)
	case MessageTypeHangup:
		return rt.routeHangup(senderID, env, raw)
	default:
		// clientId and update-user-list only travel server to client.
		rt.metrics.Inc(metrics.MalformedMessage)
		rt.log.Warn("dropping server-originated type sent by client",
			"client_id", senderID, "type", env.Type)
		return RouteDropped
	}
}

func (rt *Router) forward(senderID string, env Envelope, raw []byte) RouteOutcome {
	sink, err := rt.registry.Lookup(env.To)
	if err != nil {
		// The peer hung up or never existed. Not the sender's fault.
		rt.metrics.Inc(metrics.PeerNotFound)
		rt.log.Debug("dropping message for absent peer",
			"client_id", senderID, "to", env.To, "type", env.Type)
		return RouteDropped
	}
	if err := sink.Enqueue(raw); err != nil {
		rt.log.Warn("dropping message for unresponsive peer",
			"client_id", senderID, "to", env.To, "type", env.Type, "err", err)
		return RouteDropped
	}
	rt.metrics.Inc(metrics.MessageForwarded)
	if env.Type == MessageTypeMediaAnswer {
		// The answer travels callee to caller, so the recipient is the
		// caller. Delivery of the answer is what opens the call. The
		// callee side is the connection that sent the answer, not
		// whatever the payload claims.
		rt.tracker.OfferAccepted(env.To, senderID)
	}
	return RouteForwarded
}

func (rt *Router) routeHangup(senderID string, env Envelope, raw []byte) RouteOutcome {
	to := env.To
	if to == "" {
		peer, ok := rt.tracker.Counterparty(senderID)
		if !ok {
			rt.log.Debug("hangup with no addressee and no open call", "client_id", senderID)
			return RouteDropped
		}
		to = peer
		env.To = to
		patched, err := json.Marshal(env)
		if err == nil {
			raw = patched
		}
	}

	outcome := RouteDropped
	if sink, err := rt.registry.Lookup(to); err == nil {
		if err := sink.Enqueue(raw); err == nil {
			rt.metrics.Inc(metrics.MessageForwarded)
			outcome = RouteForwarded
		}
	}
	// The call closes whether or not the peer could be told.
	rt.tracker.CloseCall(senderID, to)
	return outcome
}

func (rt *Router) replyUserList(senderID string) RouteOutcome {
	sink, err := rt.registry.Lookup(senderID)
	if err != nil {
		return RouteDropped
	}
	data, err := json.Marshal(userListEnvelope(rt.registry.IDs(), senderID))
	if err != nil {
		return RouteDropped
	}
	if err := sink.Enqueue(data); err != nil {
		return RouteDropped
	}
	return RouteReplied
}

// ClientClosed runs the disconnect side effects for senderID: every
// open call it was part of is closed, and each reachable counterparty
// receives a synthesized hangup.
func (rt *Router) ClientClosed(senderID string) {
	for _, peer := range rt.tracker.CloseAllFor(senderID) {
		sink, err := rt.registry.Lookup(peer)
		if err != nil {
			continue
		}
		data, err := json.Marshal(Envelope{
			Type: MessageTypeHangup,
			From: senderID,
			To:   peer,
		})
		if err != nil {
			continue
		}
		if err := sink.Enqueue(data); err != nil {
			rt.log.Debug("could not deliver disconnect hangup",
				"client_id", senderID, "to", peer, "err", err)
		}
	}
}

// userListEnvelope builds the roster message for one recipient. The
// recipient's own ID is excluded and the slice is never null.
func userListEnvelope(ids []string, recipient string) Envelope {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != recipient {
			out = append(out, id)
		}
	}
	return Envelope{
		Type: MessageTypeUserList,
		Data: &EnvelopeData{UserIDs: out},
	}
}

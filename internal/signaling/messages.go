// Package signaling implements the relay's websocket protocol: client
// registration, the JSON envelope codec and the router that forwards
// call negotiation messages between peers.
package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// MessageType identifies a signaling envelope on the wire.
type MessageType string

const (
	// Server to client: assigns the connection its client ID.
	MessageTypeClientID MessageType = "clientId"
	// Client to server: asks for the current roster.
	MessageTypeRequestUserList MessageType = "requestUserList"
	// Server to client: the roster, excluding the recipient.
	MessageTypeUserList MessageType = "update-user-list"
	// Peer to peer, relayed verbatim.
	MessageTypeMediaOffer   MessageType = "mediaOffer"
	MessageTypeMediaAnswer  MessageType = "mediaAnswer"
	MessageTypeICECandidate MessageType = "iceCandidate"
	MessageTypeHangup       MessageType = "hangup"
)

// SessionDescription carries an SDP blob inside an offer or answer.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ToPion converts the wire form into the type the WebRTC engine consumes.
func (d SessionDescription) ToPion() (webrtc.SessionDescription, error) {
	var sdpType webrtc.SDPType
	switch d.Type {
	case "offer":
		sdpType = webrtc.SDPTypeOffer
	case "answer":
		sdpType = webrtc.SDPTypeAnswer
	case "pranswer":
		sdpType = webrtc.SDPTypePranswer
	case "rollback":
		sdpType = webrtc.SDPTypeRollback
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("unsupported sdp type %q", d.Type)
	}
	return webrtc.SessionDescription{Type: sdpType, SDP: d.SDP}, nil
}

// SessionDescriptionFromPion converts an engine description to the wire form.
func SessionDescriptionFromPion(d webrtc.SessionDescription) SessionDescription {
	return SessionDescription{Type: d.Type.String(), SDP: d.SDP}
}

// Candidate is a trickled ICE candidate in the browser's JSON shape.
type Candidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// ToPion converts the wire form into the engine's candidate init struct.
func (c Candidate) ToPion() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	}
}

// CandidateFromPion converts a locally gathered candidate to the wire form.
func CandidateFromPion(c *webrtc.ICECandidate) Candidate {
	init := c.ToJSON()
	return Candidate{
		Candidate:     init.Candidate,
		SDPMid:        init.SDPMid,
		SDPMLineIndex: init.SDPMLineIndex,
	}
}

// EnvelopeData holds the payloads of server-originated envelopes.
type EnvelopeData struct {
	ClientID string   `json:"clientId,omitempty"`
	UserIDs  []string `json:"userIds,omitempty"`
}

// Envelope is the top-level signaling message. Only the fields relevant
// to a given type are populated; the relay forwards peer-directed
// envelopes as the raw bytes it received, so unknown extra fields
// survive the trip untouched.
type Envelope struct {
	Type      MessageType         `json:"type"`
	From      string              `json:"from,omitempty"`
	To        string              `json:"to,omitempty"`
	Data      *EnvelopeData       `json:"data,omitempty"`
	Offer     *SessionDescription `json:"offer,omitempty"`
	Answer    *SessionDescription `json:"answer,omitempty"`
	Candidate *Candidate          `json:"candidate,omitempty"`
}

// ParseEnvelope decodes and validates an inbound signaling message.
// Validation is shallow: it checks the fields the relay itself needs to
// route, not the semantic validity of SDP or candidate strings.
func ParseEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	switch env.Type {
	case MessageTypeRequestUserList, MessageTypeClientID, MessageTypeUserList:
		return env, nil
	case MessageTypeMediaOffer, MessageTypeMediaAnswer, MessageTypeICECandidate, MessageTypeHangup:
		if env.From == "" {
			return Envelope{}, fmt.Errorf("%w: %s missing from", ErrMalformedMessage, env.Type)
		}
	default:
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}
	switch env.Type {
	case MessageTypeMediaOffer:
		if env.To == "" {
			return Envelope{}, fmt.Errorf("%w: mediaOffer missing to", ErrMalformedMessage)
		}
		if env.Offer == nil || env.Offer.SDP == "" || env.Offer.Type == "" {
			return Envelope{}, fmt.Errorf("%w: mediaOffer missing offer body", ErrMalformedMessage)
		}
		return env, nil
	case MessageTypeMediaAnswer:
		if env.To == "" {
			return Envelope{}, fmt.Errorf("%w: mediaAnswer missing to", ErrMalformedMessage)
		}
		if env.Answer == nil || env.Answer.SDP == "" || env.Answer.Type == "" {
			return Envelope{}, fmt.Errorf("%w: mediaAnswer missing answer body", ErrMalformedMessage)
		}
		return env, nil
	case MessageTypeICECandidate:
		if env.To == "" {
			return Envelope{}, fmt.Errorf("%w: iceCandidate missing to", ErrMalformedMessage)
		}
		if env.Candidate == nil || env.Candidate.Candidate == "" {
			return Envelope{}, fmt.Errorf("%w: iceCandidate missing candidate body", ErrMalformedMessage)
		}
		return env, nil
	case MessageTypeHangup:
		// "to" may be absent; the router resolves the counterparty from
		// the open-call table.
	}
	return env, nil
}

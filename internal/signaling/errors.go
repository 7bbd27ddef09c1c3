package signaling

import "errors"

var (
	// ErrMalformedMessage covers payloads that are not valid JSON or that
	// omit a field the message type requires.
	ErrMalformedMessage = errors.New("malformed signaling message")

	// ErrUnknownMessageType marks envelopes whose type is outside the
	// protocol. They are dropped without closing the connection.
	ErrUnknownMessageType = errors.New("unknown message type")

	// ErrNotFound is returned when a registry lookup targets a client ID
	// that is not connected.
	ErrNotFound = errors.New("client not found")

	// ErrDuplicateID is returned when a registration collides with a
	// client ID that is already in use.
	ErrDuplicateID = errors.New("client id already registered")

	// ErrSendQueueFull means a client's outbound buffer is saturated and
	// the message was dropped rather than blocking the router.
	ErrSendQueueFull = errors.New("send queue full")

	// ErrClientGone means the client's connection has been torn down.
	ErrClientGone = errors.New("client connection closed")
)

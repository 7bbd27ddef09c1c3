package peer

import "errors"

var (
	// ErrInvalidOffer rejects an offer whose SDP is missing or whose type
	// is not "offer".
	ErrInvalidOffer = errors.New("invalid offer")

	// ErrInvalidAnswer rejects an answer whose SDP is missing or whose
	// type is not "answer". The session keeps waiting for a usable one.
	ErrInvalidAnswer = errors.New("invalid answer")

	// ErrBadState means the operation is not legal in the session's
	// current negotiation state.
	ErrBadState = errors.New("operation not valid in current state")

	// ErrSessionClosed marks operations on a torn-down session.
	ErrSessionClosed = errors.New("session closed")

	// ErrNoSession means no negotiation exists with the named peer.
	ErrNoSession = errors.New("no session with peer")
)

package session

import "errors"

var (
	// ErrUnexpectedMessage is returned when a message type is valid on the
	// wire but not legal in the session's current state — a PeerJoined
	// received mid-Exchange, for instance.
	ErrUnexpectedMessage = errors.New("session: unexpected message for current state")

	// ErrSessionClosed is returned by HandleEnvelope once the session has
	// entered StateLeaving or StateClosed. Leave on a closed session is a
	// no-op and returns nil.
	ErrSessionClosed = errors.New("session: closed")

	// ErrWrongDocument is returned when an envelope's DocID does not match
	// the document this session joined.
	ErrWrongDocument = errors.New("session: envelope addressed to a different document")
)

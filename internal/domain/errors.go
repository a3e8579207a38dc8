package domain

import "errors"

// Lookup failures are local and recoverable: they are returned to the
// originating caller as a structured failure, never crash the process.
var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrPeerNotFound      = errors.New("peer not found")
	ErrTransportNotFound = errors.New("transport not found")
	ErrProducerNotFound  = errors.New("producer not found")
	ErrConsumerNotFound  = errors.New("consumer not found")
	ErrDocumentNotFound  = errors.New("document not found")

	// ErrIncompatibleCapabilities means the router cannot satisfy the
	// requested capabilities for that producer.
	ErrIncompatibleCapabilities = errors.New("incompatible capabilities")

	// ErrMembershipRequired gates the document surface: a connection must
	// join the meeting room before it may touch its documents.
	ErrMembershipRequired = errors.New("meeting room membership required")
)

// ErrorCode maps a domain error to its wire name.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, ErrPeerNotFound):
		return "peer_not_found"
	case errors.Is(err, ErrTransportNotFound):
		return "transport_not_found"
	case errors.Is(err, ErrProducerNotFound):
		return "producer_not_found"
	case errors.Is(err, ErrConsumerNotFound):
		return "consumer_not_found"
	case errors.Is(err, ErrDocumentNotFound):
		return "document_not_found"
	case errors.Is(err, ErrIncompatibleCapabilities):
		return "incompatible_capabilities"
	case errors.Is(err, ErrMembershipRequired):
		return "membership_required"
	default:
		return "internal"
	}
}

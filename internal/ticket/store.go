package ticket

import (
	"errors"

	"github.com/bcast-io/bcast/pkg/protocol"
)

// ErrNotFound is returned when a ticket ID is unknown to the store.
var ErrNotFound = errors.New("ticket not found")

// Store is the persistence interface for broadcast tickets.
// Implementations must be safe for concurrent use and must apply
// acknowledgements atomically per ticket.
type Store interface {
	// Insert persists a fully built ticket in a single write. Recipients and
	// the status key set are never modified after this call.
	Insert(t *protocol.Ticket) error
	// Get retrieves a ticket by ID.
	Get(id string) (*protocol.Ticket, error)
	// List returns tickets matching the filter, newest first.
	List(filter Filter) ([]*protocol.Ticket, error)
	// Acknowledge flips one conversation's entry to closed and recomputes
	// the materialized ticket state. The read-modify-write is atomic; a
	// repeated acknowledgement reports AckAlreadyClosed without mutating.
	// The returned ticket reflects the post-acknowledgement record (nil for
	// AckNotFound).
	Acknowledge(ticketID string, chatID int64) (protocol.AckResult, *protocol.Ticket, error)
}

// Filter constrains ticket list queries.
type Filter struct {
	State *protocol.TicketState
	Limit int // 0 = no limit
}

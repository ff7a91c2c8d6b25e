package protocol

import "time"

// EntryStatus is the per-conversation acknowledgement state within a ticket.
type EntryStatus string

const (
	EntryOpen   EntryStatus = "open"
	EntryClosed EntryStatus = "closed"
)

// TicketState is the materialized ticket-level state. It is recomputed from
// the per-conversation entries on every acknowledgement so read-side filters
// stay correct.
type TicketState string

const (
	TicketOpen   TicketState = "open"
	TicketClosed TicketState = "closed"
)

// Recipient records one successful delivery of a broadcast: the conversation
// it went to and the platform reference of the delivered message.
type Recipient struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int   `json:"message_id"`
}

// Ticket is a single broadcast occurrence, tracked for per-recipient
// acknowledgement. Recipients and the status key set are fixed at creation;
// only entry values flip, open to closed, one at a time.
type Ticket struct {
	ID         string                `json:"ticket_id"`
	Text       string                `json:"text"`
	Recipients []Recipient           `json:"message_ids"`
	Status     map[int64]EntryStatus `json:"status"`
	State      TicketState           `json:"state"`
	CreatedAt  time.Time             `json:"created_at"`
	ClosedAt   *time.Time            `json:"closed_at,omitempty"`
}

// AllClosed reports whether every recipient entry is closed. A ticket with no
// recipients is trivially closed.
func (t *Ticket) AllClosed() bool {
	for _, st := range t.Status {
		if st != EntryClosed {
			return false
		}
	}
	return true
}

// OpenCount returns the number of recipients that have not acknowledged yet.
func (t *Ticket) OpenCount() int {
	n := 0
	for _, st := range t.Status {
		if st != EntryClosed {
			n++
		}
	}
	return n
}

// AckResult is the outcome of an acknowledgement attempt.
type AckResult string

const (
	// AckClosed: the entry was open and has been flipped to closed.
	AckClosed AckResult = "closed"
	// AckAlreadyClosed: the entry was closed already; nothing changed.
	AckAlreadyClosed AckResult = "already_closed"
	// AckNotFound: no ticket matches the given ID.
	AckNotFound AckResult = "not_found"
	// AckUnknownChat: the ticket exists but the reporting conversation never
	// had a successful delivery, so it cannot close anything.
	AckUnknownChat AckResult = "unknown_chat"
)

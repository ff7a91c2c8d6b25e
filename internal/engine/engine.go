// Package engine implements the ticket lifecycle core: registration of
// conversations, broadcast dispatch with per-recipient delivery tracking,
// and independent per-conversation acknowledgement.
package engine

import (
	"errors"
	"log/slog"

	"github.com/bcast-io/bcast/internal/chat"
	"github.com/bcast-io/bcast/internal/connector"
	"github.com/bcast-io/bcast/internal/notify"
	"github.com/bcast-io/bcast/internal/ticket"
	"github.com/bcast-io/bcast/pkg/protocol"
)

// ErrEmptyMessage is returned when a broadcast is requested with no body.
var ErrEmptyMessage = errors.New("empty broadcast message")

// Service wires the chat registry, the ticket store and the outbound
// transport into the engine operations. It holds no state of its own and is
// safe for concurrent use as long as its collaborators are.
type Service struct {
	chats      chat.Registry
	tickets    ticket.Store
	transport  connector.Transport
	operatorID int64
	logger     *slog.Logger

	// Notifier optionally mirrors operator notices to an out-of-band
	// channel. May be nil. Failures are logged and swallowed.
	Notifier notify.Notifier
}

// New creates the engine service. operatorID is the privileged operator's
// conversation ID, used for assignment-request notifications.
func New(chats chat.Registry, tickets ticket.Store, transport connector.Transport, operatorID int64, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		chats:      chats,
		tickets:    tickets,
		transport:  transport,
		operatorID: operatorID,
		logger:     logger,
	}
}

// Ticket retrieves a single ticket by ID.
func (s *Service) Ticket(id string) (*protocol.Ticket, error) {
	return s.tickets.Get(id)
}

// OpenTickets lists tickets that still have unacknowledged recipients.
// "Open" and "closed" listings are read-side filters over one store; no
// lifecycle transition moves tickets between them.
func (s *Service) OpenTickets(limit int) ([]*protocol.Ticket, error) {
	state := protocol.TicketOpen
	return s.tickets.List(ticket.Filter{State: &state, Limit: limit})
}

// History lists fully acknowledged tickets.
func (s *Service) History(limit int) ([]*protocol.Ticket, error) {
	state := protocol.TicketClosed
	return s.tickets.List(ticket.Filter{State: &state, Limit: limit})
}

// Conversations lists every registered conversation.
func (s *Service) Conversations() ([]protocol.Conversation, error) {
	return s.chats.List()
}

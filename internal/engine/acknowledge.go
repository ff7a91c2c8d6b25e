package engine

import (
	"context"

	"github.com/bcast-io/bcast/pkg/protocol"
)

// Acknowledge closes a ticket for one reporting conversation. The flip is
// atomic per ticket and idempotent: a repeated acknowledgement reports
// AckAlreadyClosed without mutating anything. The returned ticket lets the
// caller render a closed annotation on the delivered message; this engine
// never touches transport state itself.
func (s *Service) Acknowledge(ctx context.Context, ticketID string, chatID int64) (protocol.AckResult, *protocol.Ticket, error) {
	res, t, err := s.tickets.Acknowledge(ticketID, chatID)
	if err != nil {
		return "", nil, err
	}

	switch res {
	case protocol.AckClosed:
		s.logger.Info("ticket acknowledged",
			"ticket_id", ticketID,
			"chat_id", chatID,
			"remaining_open", t.OpenCount(),
		)
	case protocol.AckNotFound:
		s.logger.Warn("acknowledgement for unknown ticket", "ticket_id", ticketID, "chat_id", chatID)
	}
	return res, t, nil
}

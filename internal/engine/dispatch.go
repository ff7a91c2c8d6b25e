package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bcast-io/bcast/internal/connector"
	"github.com/bcast-io/bcast/pkg/protocol"
)

// broadcastIcon marks the delivered message with the targeted scope, matching
// the operator command that produced it.
func broadcastIcon(sel protocol.GroupSelector) string {
	switch sel {
	case protocol.SelectDev:
		return "🛠️"
	case protocol.SelectProd:
		return "🚀"
	default:
		return "📢"
	}
}

// CloseButton returns the inline markup recipients use to acknowledge a
// ticket. Connectors route the button data back as an acknowledgement.
func CloseButton(ticketID string) *connector.Markup {
	return &connector.Markup{Rows: [][]connector.Button{{
		{Label: "Close ticket ✅", Data: "close_" + ticketID},
	}}}
}

// Dispatch fans text out to every conversation currently matching sel and
// persists one ticket recording the deliveries. The recipient set is
// snapshotted before the first send; registry changes made while sends are in
// flight do not affect it. A failed send excludes that recipient and never
// aborts the rest; the ticket is persisted only after all attempts complete.
func (s *Service) Dispatch(ctx context.Context, text string, sel protocol.GroupSelector) (*protocol.Ticket, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	recipients, err := s.chats.ListByGroup(sel)
	if err != nil {
		return nil, err
	}

	t := &protocol.Ticket{
		ID:        uuid.NewString(),
		Text:      text,
		Status:    make(map[int64]protocol.EntryStatus),
		State:     protocol.TicketOpen,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}

	body := broadcastIcon(sel) + " " + text
	markup := CloseButton(t.ID)

	for _, conv := range recipients {
		ref, err := s.transport.SendMessage(ctx, conv.ID, body, markup)
		if err != nil {
			s.logger.Error("broadcast delivery failed",
				"ticket_id", t.ID,
				"chat_id", conv.ID,
				"error", err,
			)
			continue
		}
		t.Recipients = append(t.Recipients, protocol.Recipient{ChatID: conv.ID, MessageID: int(ref)})
		t.Status[conv.ID] = protocol.EntryOpen
	}

	if err := s.tickets.Insert(t); err != nil {
		return nil, err
	}

	s.logger.Info("broadcast dispatched",
		"ticket_id", t.ID,
		"scope", string(sel),
		"resolved", len(recipients),
		"delivered", len(t.Recipients),
	)
	return t, nil
}

package engine

import (
	"context"
	"fmt"

	"github.com/bcast-io/bcast/internal/connector"
	"github.com/bcast-io/bcast/pkg/protocol"
)

// AssignButtons returns the inline markup the operator uses to pick a
// delivery group for a newly registered conversation.
func AssignButtons(chatID int64) *connector.Markup {
	return &connector.Markup{Rows: [][]connector.Button{{
		{Label: "DEV", Data: fmt.Sprintf("assign_DEV_%d", chatID)},
		{Label: "PROD", Data: fmt.Sprintf("assign_PROD_%d", chatID)},
	}}}
}

// HandleMembership registers a conversation when the bot is added to it.
// Only {left,kicked} -> {member,administrator} transitions qualify; every
// other transition, including removal, is ignored. Courtesy messaging around
// registration is best effort: send/delete failures are logged and swallowed
// and never block the upsert.
func (s *Service) HandleMembership(ctx context.Context, ev protocol.MembershipChange) error {
	if !ev.BotAdded() {
		return nil
	}

	if err := s.chats.Upsert(ev.Chat); err != nil {
		return err
	}
	s.logger.Info("conversation registered",
		"chat_id", ev.Chat.ID,
		"type", string(ev.Chat.Kind),
		"title", ev.Chat.Title,
	)

	// Courtesy hello, deleted right away so the chat stays clean.
	if ref, err := s.transport.SendMessage(ctx, ev.Chat.ID, "🤖 Bot added to this chat!", nil); err != nil {
		s.logger.Error("hello message failed", "chat_id", ev.Chat.ID, "error", err)
	} else if err := s.transport.DeleteMessage(ctx, ev.Chat.ID, ref); err != nil {
		s.logger.Error("hello cleanup failed", "chat_id", ev.Chat.ID, "error", err)
	}

	// Assignment request to the operator, carrying the conversation ID so a
	// later AssignGroup can target it.
	notice := fmt.Sprintf("🔔 New chat registered:\n🔹 ID: %d\n🔹 Type: %s\n🔹 Title: %s",
		ev.Chat.ID, ev.Chat.Kind, ev.Chat.Title)
	if _, err := s.transport.SendMessage(ctx, s.operatorID, notice, AssignButtons(ev.Chat.ID)); err != nil {
		s.logger.Error("operator notification failed", "chat_id", ev.Chat.ID, "error", err)
	}
	s.notifyOperator(ctx, notice)
	return nil
}

// notifyOperator mirrors a notice to the out-of-band notifier, if configured.
func (s *Service) notifyOperator(ctx context.Context, text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.Notify(ctx, text); err != nil {
		s.logger.Error("operator notice mirror failed", "error", err)
	}
}

// AssignGroup sets the delivery group of a registered conversation.
func (s *Service) AssignGroup(ctx context.Context, chatID int64, group protocol.DeliveryGroup) (*protocol.Conversation, error) {
	conv, err := s.chats.AssignGroup(chatID, group)
	if err != nil {
		return nil, err
	}
	s.logger.Info("conversation assigned", "chat_id", chatID, "group", string(group))
	return conv, nil
}

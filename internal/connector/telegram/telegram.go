// Package telegram implements the Telegram transport: outbound sends and
// edits for the engines, and the long-polling loop that turns Telegram
// updates into engine calls.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/bcast-io/bcast/internal/connector"
	"github.com/bcast-io/bcast/internal/engine"
	"github.com/bcast-io/bcast/pkg/protocol"
)

// Engine is the surface this connector drives. It is exactly the engine
// operations plus the read-side listings the command surface renders.
type Engine interface {
	Dispatch(ctx context.Context, text string, sel protocol.GroupSelector) (*protocol.Ticket, error)
	Acknowledge(ctx context.Context, ticketID string, chatID int64) (protocol.AckResult, *protocol.Ticket, error)
	HandleMembership(ctx context.Context, ev protocol.MembershipChange) error
	AssignGroup(ctx context.Context, chatID int64, group protocol.DeliveryGroup) (*protocol.Conversation, error)
	OpenTickets(limit int) ([]*protocol.Ticket, error)
	History(limit int) ([]*protocol.Ticket, error)
}

// Config holds Telegram connector configuration.
type Config struct {
	Token      string // Bot token from @BotFather
	OperatorID int64  // Telegram user ID of the privileged operator
}

// Connector implements connector.Connector for Telegram.
type Connector struct {
	bot    *tgbotapi.BotAPI
	config Config
	engine Engine
	logger *slog.Logger
	cancel context.CancelFunc
}

// New creates a new Telegram connector.
func New(cfg Config, eng Engine, logger *slog.Logger) (*Connector, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: init bot: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("telegram bot authorized", "username", bot.Self.UserName)

	return &Connector{
		bot:    bot,
		config: cfg,
		engine: eng,
		logger: logger,
	}, nil
}

func (c *Connector) Name() string { return "telegram" }

// Start begins long-polling for updates. Blocks until context is cancelled.
func (c *Connector) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message", "callback_query", "my_chat_member"}

	updates := c.bot.GetUpdatesChan(u)

	c.logger.Info("telegram connector started", "bot", c.bot.Self.UserName)

	for {
		select {
		case update := <-updates:
			c.handleUpdate(ctx, update)

		case <-ctx.Done():
			c.bot.StopReceivingUpdates()
			c.logger.Info("telegram connector stopped")
			return ctx.Err()
		}
	}
}

// Stop gracefully shuts down the connector.
func (c *Connector) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

// SendMessage delivers body to a Telegram chat.
func (c *Connector) SendMessage(_ context.Context, chatID int64, body string, markup *connector.Markup) (connector.MessageRef, error) {
	msg := tgbotapi.NewMessage(chatID, body)
	if markup != nil {
		msg.ReplyMarkup = toInlineKeyboard(markup)
	}
	sent, err := c.bot.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("telegram: send to %d: %w", chatID, err)
	}
	return connector.MessageRef(sent.MessageID), nil
}

// EditMessage replaces the body of a previously delivered message.
func (c *Connector) EditMessage(_ context.Context, chatID int64, ref connector.MessageRef, newBody string) error {
	edit := tgbotapi.NewEditMessageText(chatID, int(ref), newBody)
	if _, err := c.bot.Send(edit); err != nil {
		return fmt.Errorf("telegram: edit %d in %d: %w", int(ref), chatID, err)
	}
	return nil
}

// DeleteMessage removes a previously delivered message.
func (c *Connector) DeleteMessage(_ context.Context, chatID int64, ref connector.MessageRef) error {
	if _, err := c.bot.Request(tgbotapi.NewDeleteMessage(chatID, int(ref))); err != nil {
		return fmt.Errorf("telegram: delete %d in %d: %w", int(ref), chatID, err)
	}
	return nil
}

func (c *Connector) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.MyChatMember != nil:
		c.handleMembership(ctx, update.MyChatMember)
	case update.CallbackQuery != nil:
		c.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		c.handleMessage(ctx, update.Message)
	}
}

// handleMembership forwards bot membership transitions to the registration
// engine as a typed event.
func (c *Connector) handleMembership(ctx context.Context, upd *tgbotapi.ChatMemberUpdated) {
	if upd.NewChatMember.User == nil || upd.NewChatMember.User.ID != c.bot.Self.ID {
		return
	}

	ev := protocol.MembershipChange{
		Chat: protocol.Conversation{
			ID:    upd.Chat.ID,
			Kind:  protocol.ChatKind(upd.Chat.Type),
			Title: upd.Chat.Title,
		},
		Old: protocol.MemberStatus(upd.OldChatMember.Status),
		New: protocol.MemberStatus(upd.NewChatMember.Status),
	}

	if err := c.engine.HandleMembership(ctx, ev); err != nil {
		c.logger.Error("membership handling failed", "chat_id", upd.Chat.ID, "error", err)
	}
}

func (c *Connector) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	switch {
	case strings.HasPrefix(cq.Data, "close_"):
		c.handleClose(ctx, cq)
	case strings.HasPrefix(cq.Data, "assign_"):
		c.handleAssign(ctx, cq)
	}
}

// handleClose acknowledges a ticket for the chat the button was pressed in,
// then annotates the delivered message. The annotation is a courtesy; its
// failure is logged and swallowed.
func (c *Connector) handleClose(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	ticketID := strings.TrimPrefix(cq.Data, "close_")
	if cq.Message == nil {
		return
	}
	chatID := cq.Message.Chat.ID

	res, _, err := c.engine.Acknowledge(ctx, ticketID, chatID)
	if err != nil {
		c.logger.Error("acknowledge failed", "ticket_id", ticketID, "chat_id", chatID, "error", err)
		c.answerCallback(cq.ID, "❌ Something went wrong.")
		return
	}

	switch res {
	case protocol.AckClosed:
		c.answerCallback(cq.ID, "Ticket closed.")
		newText := cq.Message.Text + "\n\n✅ Ticket closed."
		newText = strings.NewReplacer("🛠️", "✅", "🚀", "✅", "📢", "✅").Replace(newText)
		if err := c.EditMessage(ctx, chatID, connector.MessageRef(cq.Message.MessageID), newText); err != nil {
			c.logger.Error("closed annotation failed", "ticket_id", ticketID, "chat_id", chatID, "error", err)
		}
	case protocol.AckAlreadyClosed:
		c.answerCallback(cq.ID, "❌ Ticket already closed.")
	default:
		c.answerCallback(cq.ID, "❌ Ticket not found.")
	}
}

// handleAssign routes an operator's group pick back to the registry.
// Callback data is assign_<GROUP>_<chatID>.
func (c *Connector) handleAssign(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	parts := strings.Split(cq.Data, "_")
	if len(parts) != 3 {
		return
	}
	group := protocol.DeliveryGroup(parts[1])
	chatID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || !group.Valid() {
		return
	}

	if _, err := c.engine.AssignGroup(ctx, chatID, group); err != nil {
		c.logger.Error("group assignment failed", "chat_id", chatID, "group", string(group), "error", err)
		c.answerCallback(cq.ID, "❌ Assignment failed.")
		return
	}

	c.answerCallback(cq.ID, fmt.Sprintf("Chat assigned to %s", group))
	if cq.Message != nil {
		c.EditMessage(ctx, cq.Message.Chat.ID, connector.MessageRef(cq.Message.MessageID),
			fmt.Sprintf("✅ Chat assigned to group %s.", group))
	}
}

func (c *Connector) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	// The command surface lives in the operator's private chat only.
	if !msg.Chat.IsPrivate() {
		return
	}

	if !msg.IsCommand() {
		c.reply(msg, "You sent a message I cannot process. Use /help to see available commands.")
		return
	}

	switch msg.Command() {
	case "start", "help":
		c.sendWelcome(msg)
	case "id":
		c.sendChatID(msg)
	case "dev":
		c.broadcast(ctx, msg, protocol.SelectDev)
	case "prod":
		c.broadcast(ctx, msg, protocol.SelectProd)
	case "all":
		c.broadcast(ctx, msg, protocol.SelectAny)
	case "tickets":
		c.showTickets(msg)
	case "history":
		c.showHistory(msg)
	default:
		c.reply(msg, "❓ Unknown command. Use /help to see available commands.")
	}
}

// broadcast runs a dispatch for the operator. Non-operators are refused.
func (c *Connector) broadcast(ctx context.Context, msg *tgbotapi.Message, sel protocol.GroupSelector) {
	if msg.From == nil || msg.From.ID != c.config.OperatorID {
		c.reply(msg, "❌ Only the operator can send broadcasts.")
		return
	}

	t, err := c.engine.Dispatch(ctx, msg.CommandArguments(), sel)
	if err != nil {
		if errors.Is(err, engine.ErrEmptyMessage) {
			c.reply(msg, fmt.Sprintf("⚠️ Provide a message after /%s.", msg.Command()))
			return
		}
		c.logger.Error("dispatch failed", "scope", string(sel), "error", err)
		c.reply(msg, "❌ Broadcast failed.")
		return
	}

	c.reply(msg, fmt.Sprintf("✅ Message sent to %d %s chat(s): %s", len(t.Recipients), scopeName(sel), t.Text))
}

func (c *Connector) showTickets(msg *tgbotapi.Message) {
	open, err := c.engine.OpenTickets(0)
	if err != nil {
		c.logger.Error("open ticket listing failed", "error", err)
		c.reply(msg, "❌ Could not load tickets.")
		return
	}
	if len(open) == 0 {
		c.reply(msg, "ℹ️ No open tickets.")
		return
	}

	var b strings.Builder
	b.WriteString("📝 Open tickets:\n")
	for _, t := range open {
		fmt.Fprintf(&b, "• %s (%d of %d open)\n", t.Text, t.OpenCount(), len(t.Recipients))
	}
	c.reply(msg, b.String())
}

func (c *Connector) showHistory(msg *tgbotapi.Message) {
	closed, err := c.engine.History(0)
	if err != nil {
		c.logger.Error("history listing failed", "error", err)
		c.reply(msg, "❌ Could not load history.")
		return
	}
	if len(closed) == 0 {
		c.reply(msg, "ℹ️ No closed tickets.")
		return
	}

	var b strings.Builder
	b.WriteString("📜 Closed ticket history:\n")
	for _, t := range closed {
		fmt.Fprintf(&b, "• %s\n  Status: closed\n\n", t.Text)
	}
	c.reply(msg, b.String())
}

func (c *Connector) sendWelcome(msg *tgbotapi.Message) {
	welcome := strings.Join([]string{
		"👋 Hi! I broadcast messages to registered group chats.",
		"",
		"📋 Available commands:",
		"➡️ /dev <message> — broadcast to DEV chats",
		"➡️ /prod <message> — broadcast to PROD chats",
		"➡️ /all <message> — broadcast to all assigned chats",
		"➡️ /tickets — list open tickets",
		"➡️ /history — list closed tickets",
		"➡️ /id — show this chat's ID",
		"",
		"ℹ️ Every broadcast creates a ticket. Each recipient chat closes it",
		"independently; once every chat has closed it, it moves to history.",
	}, "\n")

	reply := tgbotapi.NewMessage(msg.Chat.ID, welcome)
	reply.ReplyMarkup = commandKeyboard()
	if _, err := c.bot.Send(reply); err != nil {
		c.logger.Error("welcome failed", "chat_id", msg.Chat.ID, "error", err)
	}
}

func (c *Connector) sendChatID(msg *tgbotapi.Message) {
	name := msg.Chat.Title
	if name == "" && msg.From != nil {
		name = strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	}
	c.reply(msg, fmt.Sprintf("📌 Chat info:\n🔹 ID: %d\n🔹 Type: %s\n🔹 Name: %s",
		msg.Chat.ID, msg.Chat.Type, name))
}

func (c *Connector) reply(msg *tgbotapi.Message, text string) {
	reply := tgbotapi.NewMessage(msg.Chat.ID, text)
	reply.ReplyToMessageID = msg.MessageID
	if _, err := c.bot.Send(reply); err != nil {
		c.logger.Error("reply failed", "chat_id", msg.Chat.ID, "error", err)
	}
}

func (c *Connector) answerCallback(id, text string) {
	if _, err := c.bot.Request(tgbotapi.NewCallback(id, text)); err != nil {
		c.logger.Error("callback answer failed", "error", err)
	}
}

func scopeName(sel protocol.GroupSelector) string {
	if sel == protocol.SelectAny {
		return "assigned"
	}
	return string(sel)
}

// commandKeyboard is the persistent reply keyboard offered in the operator's
// private chat.
func commandKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/dev"),
			tgbotapi.NewKeyboardButton("/prod"),
			tgbotapi.NewKeyboardButton("/all"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/tickets"),
			tgbotapi.NewKeyboardButton("/history"),
			tgbotapi.NewKeyboardButton("/id"),
			tgbotapi.NewKeyboardButton("/help"),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

// toInlineKeyboard converts the platform-neutral markup to Telegram inline
// buttons with callback data.
func toInlineKeyboard(m *connector.Markup) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(m.Rows))
	for _, row := range m.Rows {
		btns := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			btns = append(btns, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
		}
		rows = append(rows, btns)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

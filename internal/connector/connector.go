package connector

import "context"

// MessageRef identifies a delivered message within its conversation.
type MessageRef int

// Button is a single inline action button. Data is an opaque payload routed
// back to the connector when the button is pressed.
type Button struct {
	Label string
	Data  string
}

// Markup is a platform-neutral grid of inline buttons.
type Markup struct {
	Rows [][]Button
}

// Transport is the outbound messaging surface the engines depend on. The
// concrete platform (Telegram, Slack) is behind this interface.
type Transport interface {
	// SendMessage delivers body to a conversation, optionally with inline
	// buttons, and returns the platform reference of the delivered message.
	SendMessage(ctx context.Context, chatID int64, body string, markup *Markup) (MessageRef, error)
	// EditMessage replaces the body of a previously delivered message.
	EditMessage(ctx context.Context, chatID int64, ref MessageRef, newBody string) error
	// DeleteMessage removes a previously delivered message.
	DeleteMessage(ctx context.Context, chatID int64, ref MessageRef) error
}

// Connector is a transport bound to an inbound event loop (long polling,
// socket mode) feeding the engines.
type Connector interface {
	Transport
	// Name returns the connector type (e.g., "telegram", "slack").
	Name() string
	// Start begins listening for inbound events. Blocks until context is
	// cancelled.
	Start(ctx context.Context) error
	// Stop gracefully shuts down the connector.
	Stop() error
}

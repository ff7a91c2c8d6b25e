package protocol

// MemberStatus is the bot's membership status in a conversation as reported
// by the platform.
type MemberStatus string

const (
	MemberLeft   MemberStatus = "left"
	MemberKicked MemberStatus = "kicked"
	MemberJoined MemberStatus = "member"
	MemberAdmin  MemberStatus = "administrator"
)

// Event is an inbound event from a transport connector. Each variant carries
// a strongly-typed payload; engines dispatch on the concrete type.
type Event interface {
	eventKind() string
}

// MembershipChange reports a transition of the bot's membership status in a
// conversation.
type MembershipChange struct {
	Chat Conversation
	Old  MemberStatus
	New  MemberStatus
}

// BotAdded reports whether this transition means the bot was just added to
// the conversation.
func (e MembershipChange) BotAdded() bool {
	wasOut := e.Old == MemberLeft || e.Old == MemberKicked
	isIn := e.New == MemberJoined || e.New == MemberAdmin
	return wasOut && isIn
}

// BroadcastRequest is an operator request to fan a message out to a delivery
// group.
type BroadcastRequest struct {
	Text  string
	Scope GroupSelector
}

// AckRequest is a recipient-side request to close a ticket for one
// conversation.
type AckRequest struct {
	TicketID string
	ChatID   int64
}

func (MembershipChange) eventKind() string { return "membership_change" }
func (BroadcastRequest) eventKind() string { return "broadcast_request" }
func (AckRequest) eventKind() string       { return "ack_request" }

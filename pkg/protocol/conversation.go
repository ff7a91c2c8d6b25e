package protocol

// ChatKind is the platform-reported type of a conversation.
type ChatKind string

const (
	ChatPrivate    ChatKind = "private"
	ChatGroup      ChatKind = "group"
	ChatSupergroup ChatKind = "supergroup"
	ChatChannel    ChatKind = "channel"
)

// DeliveryGroup is a named partition of conversations used to target broadcasts.
type DeliveryGroup string

const (
	GroupDev  DeliveryGroup = "DEV"
	GroupProd DeliveryGroup = "PROD"
)

// Valid reports whether g is a known delivery group.
func (g DeliveryGroup) Valid() bool {
	return g == GroupDev || g == GroupProd
}

// GroupSelector targets a broadcast at one delivery group or at all of them.
type GroupSelector string

const (
	SelectDev  GroupSelector = "DEV"
	SelectProd GroupSelector = "PROD"
	// SelectAny matches every conversation assigned to any delivery group.
	// Unassigned conversations never receive broadcasts.
	SelectAny GroupSelector = "ANY"
)

// Valid reports whether s is a known selector.
func (s GroupSelector) Valid() bool {
	return s == SelectDev || s == SelectProd || s == SelectAny
}

// Conversation is a registered chat the bot can message into.
// ID is the platform-assigned identifier and the natural key;
// re-registering an existing ID updates fields in place.
type Conversation struct {
	ID            int64         `json:"chat_id"`
	Kind          ChatKind      `json:"type"`
	Title         string        `json:"title,omitempty"`
	AssignedGroup DeliveryGroup `json:"assigned_group,omitempty"`
}

// Assigned reports whether the conversation belongs to a delivery group.
func (c Conversation) Assigned() bool {
	return c.AssignedGroup != ""
}

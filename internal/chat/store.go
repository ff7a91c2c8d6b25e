package chat

import (
	"errors"

	"github.com/bcast-io/bcast/pkg/protocol"
)

// ErrNotFound is returned when a conversation ID is unknown to the registry.
var ErrNotFound = errors.New("conversation not found")

// Registry is the persistence interface for registered conversations.
// Implementations must be safe for concurrent use.
type Registry interface {
	// Upsert inserts a conversation or merges its fields over the existing
	// record. A previously assigned delivery group is preserved unless the
	// incoming record sets one. Idempotent.
	Upsert(conv protocol.Conversation) error
	// Get retrieves a conversation by ID.
	Get(id int64) (*protocol.Conversation, error)
	// AssignGroup sets the delivery group of a known conversation and
	// returns the updated record. Unknown IDs yield ErrNotFound.
	AssignGroup(id int64, group protocol.DeliveryGroup) (*protocol.Conversation, error)
	// ListByGroup returns the conversations matching the selector.
	// SelectAny matches every assigned conversation; unassigned ones never
	// match any selector.
	ListByGroup(sel protocol.GroupSelector) ([]protocol.Conversation, error)
	// List returns every registered conversation, assigned or not.
	List() ([]protocol.Conversation, error)
}

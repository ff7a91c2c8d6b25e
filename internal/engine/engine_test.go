package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bcast-io/bcast/internal/chat"
	"github.com/bcast-io/bcast/internal/connector"
	"github.com/bcast-io/bcast/internal/ticket"
	"github.com/bcast-io/bcast/pkg/protocol"
)

const operatorID int64 = 777

type sentMessage struct {
	ChatID int64
	Body   string
	Markup *connector.Markup
}

// fakeTransport records sends and can be told to fail for specific chats.
type fakeTransport struct {
	mu      sync.Mutex
	nextRef int
	failFor map[int64]bool
	sent    []sentMessage
	deleted []int64
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{failFor: make(map[int64]bool)}
}

func (f *fakeTransport) SendMessage(_ context.Context, chatID int64, body string, markup *connector.Markup) (connector.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[chatID] {
		return 0, fmt.Errorf("send to %d refused", chatID)
	}
	f.nextRef++
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Body: body, Markup: markup})
	return connector.MessageRef(f.nextRef), nil
}

func (f *fakeTransport) EditMessage(_ context.Context, chatID int64, _ connector.MessageRef, _ string) error {
	return nil
}

func (f *fakeTransport) DeleteMessage(_ context.Context, chatID int64, _ connector.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[chatID] {
		return fmt.Errorf("delete in %d refused", chatID)
	}
	f.deleted = append(f.deleted, chatID)
	return nil
}

// sentTo returns the messages delivered to one chat.
func (f *fakeTransport) sentTo(chatID int64) []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMessage
	for _, m := range f.sent {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

func newTestService(t *testing.T) (*Service, *fakeTransport) {
	t.Helper()
	dir := t.TempDir()
	registry, err := chat.NewSQLiteStore(filepath.Join(dir, "chats.db"))
	if err != nil {
		t.Fatalf("chat store: %v", err)
	}
	t.Cleanup(func() { registry.DB().Close() })

	tickets, err := ticket.NewSQLiteStore(filepath.Join(dir, "tickets.db"))
	if err != nil {
		t.Fatalf("ticket store: %v", err)
	}
	t.Cleanup(func() { tickets.DB().Close() })

	transport := newFakeTransport()
	return New(registry, tickets, transport, operatorID, nil), transport
}

func register(t *testing.T, s *Service, id int64, title string, group protocol.DeliveryGroup) {
	t.Helper()
	ev := protocol.MembershipChange{
		Chat: protocol.Conversation{ID: id, Kind: protocol.ChatGroup, Title: title},
		Old:  protocol.MemberLeft,
		New:  protocol.MemberJoined,
	}
	if err := s.HandleMembership(context.Background(), ev); err != nil {
		t.Fatalf("register %d: %v", id, err)
	}
	if group != "" {
		if _, err := s.AssignGroup(context.Background(), id, group); err != nil {
			t.Fatalf("assign %d: %v", id, err)
		}
	}
}

func TestDispatchEmptyMessage(t *testing.T) {
	s, _ := newTestService(t)

	for _, text := range []string{"", "   ", "\n"} {
		if _, err := s.Dispatch(context.Background(), text, protocol.SelectDev); !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("text %q: expected ErrEmptyMessage, got %v", text, err)
		}
	}
}

func TestDispatchPartialFailure(t *testing.T) {
	s, transport := newTestService(t)
	register(t, s, 1, "dev-1", protocol.GroupDev)
	register(t, s, 2, "dev-2", protocol.GroupDev)
	register(t, s, 3, "dev-3", protocol.GroupDev)
	transport.failFor[2] = true

	tk, err := s.Dispatch(context.Background(), "rollout starting", protocol.SelectDev)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if len(tk.Recipients) != 2 {
		t.Fatalf("expected 2 delivered recipients, got %d", len(tk.Recipients))
	}
	if len(tk.Status) != 2 {
		t.Fatalf("expected 2 status entries, got %d", len(tk.Status))
	}
	for id, st := range tk.Status {
		if st != protocol.EntryOpen {
			t.Errorf("chat %d: expected open, got %q", id, st)
		}
	}
	if _, ok := tk.Status[2]; ok {
		t.Error("failed recipient must not appear in the status map")
	}

	// Persisted record matches the delivery outcome.
	got, err := s.Ticket(tk.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Recipients) != 2 {
		t.Errorf("persisted recipients: %+v", got.Recipients)
	}
}

func TestDispatchAllFailuresStillProducesTicket(t *testing.T) {
	s, transport := newTestService(t)
	register(t, s, 1, "dev-1", protocol.GroupDev)
	transport.failFor[1] = true

	tk, err := s.Dispatch(context.Background(), "anyone there", protocol.SelectDev)
	if err != nil {
		t.Fatalf("dispatch must not fail on delivery errors: %v", err)
	}
	if len(tk.Recipients) != 0 {
		t.Errorf("expected zero recipients, got %+v", tk.Recipients)
	}
	if _, err := s.Ticket(tk.ID); err != nil {
		t.Errorf("zero-recipient ticket not persisted: %v", err)
	}
}

func TestDispatchScopeSelection(t *testing.T) {
	s, transport := newTestService(t)
	register(t, s, 1, "dev", protocol.GroupDev)
	register(t, s, 2, "prod", protocol.GroupProd)
	register(t, s, 3, "pending", "")

	tk, err := s.Dispatch(context.Background(), "to everyone", protocol.SelectAny)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(tk.Recipients) != 2 {
		t.Fatalf("ANY should reach both assigned chats, got %+v", tk.Recipients)
	}
	if got := transport.sentTo(3); len(got) > 1 {
		// One courtesy hello happens during registration; no broadcast.
		t.Errorf("unassigned chat received a broadcast: %+v", got)
	}

	// Broadcast messages carry the close button.
	msgs := transport.sentTo(1)
	last := msgs[len(msgs)-1]
	if last.Markup == nil || len(last.Markup.Rows) != 1 {
		t.Fatalf("broadcast missing close markup: %+v", last.Markup)
	}
	if want := "close_" + tk.ID; last.Markup.Rows[0][0].Data != want {
		t.Errorf("close button data: got %q want %q", last.Markup.Rows[0][0].Data, want)
	}
}

func TestRegistrationIgnoresOtherTransitions(t *testing.T) {
	s, _ := newTestService(t)

	// Removal is not a registration trigger.
	ev := protocol.MembershipChange{
		Chat: protocol.Conversation{ID: 50, Kind: protocol.ChatGroup, Title: "gone"},
		Old:  protocol.MemberJoined,
		New:  protocol.MemberKicked,
	}
	if err := s.HandleMembership(context.Background(), ev); err != nil {
		t.Fatalf("handle: %v", err)
	}
	convs, _ := s.Conversations()
	if len(convs) != 0 {
		t.Errorf("no conversation should be registered: %+v", convs)
	}
}

func TestRegistrationIdempotent(t *testing.T) {
	s, _ := newTestService(t)
	register(t, s, 9, "first title", "")
	register(t, s, 9, "second title", "")

	convs, err := s.Conversations()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("expected one record, got %d", len(convs))
	}
	if convs[0].Title != "second title" {
		t.Errorf("expected latest title, got %q", convs[0].Title)
	}
}

func TestRegistrationNotifiesOperator(t *testing.T) {
	s, transport := newTestService(t)
	register(t, s, 42, "new chat", "")

	notices := transport.sentTo(operatorID)
	if len(notices) != 1 {
		t.Fatalf("expected one operator notice, got %d", len(notices))
	}
	m := notices[0].Markup
	if m == nil || len(m.Rows) != 1 || len(m.Rows[0]) != 2 {
		t.Fatalf("assignment markup malformed: %+v", m)
	}
	if m.Rows[0][0].Data != "assign_DEV_42" || m.Rows[0][1].Data != "assign_PROD_42" {
		t.Errorf("assignment button data: %+v", m.Rows[0])
	}

	// The courtesy hello was sent to the chat and deleted again.
	if got := transport.sentTo(42); len(got) != 1 {
		t.Errorf("expected one hello message, got %d", len(got))
	}
	if len(transport.deleted) != 1 || transport.deleted[0] != 42 {
		t.Errorf("hello not cleaned up: %+v", transport.deleted)
	}
}

func TestRegistrationSurvivesCourtesyFailures(t *testing.T) {
	s, transport := newTestService(t)
	transport.failFor[42] = true

	ev := protocol.MembershipChange{
		Chat: protocol.Conversation{ID: 42, Kind: protocol.ChatGroup, Title: "quiet chat"},
		Old:  protocol.MemberKicked,
		New:  protocol.MemberAdmin,
	}
	if err := s.HandleMembership(context.Background(), ev); err != nil {
		t.Fatalf("courtesy failure must not block registration: %v", err)
	}
	if _, err := s.AssignGroup(context.Background(), 42, protocol.GroupDev); err != nil {
		t.Errorf("conversation not registered: %v", err)
	}
}

func TestAssignGroupUnknownConversation(t *testing.T) {
	s, _ := newTestService(t)

	if _, err := s.AssignGroup(context.Background(), 12345, protocol.GroupDev); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("expected chat.ErrNotFound, got %v", err)
	}
}

// TestBroadcastLifecycle runs the full scenario: register three chats, fan
// out to DEV, and close the ticket one recipient at a time.
func TestBroadcastLifecycle(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	register(t, s, 1, "A", protocol.GroupDev)
	register(t, s, 2, "B", protocol.GroupDev)
	register(t, s, 3, "C", protocol.GroupProd)

	tk, err := s.Dispatch(ctx, "release", protocol.SelectDev)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(tk.Recipients) != 2 {
		t.Fatalf("expected recipients {A,B}, got %+v", tk.Recipients)
	}
	if _, ok := tk.Status[3]; ok {
		t.Fatal("PROD chat must not be a recipient of a DEV broadcast")
	}

	res, got, err := s.Acknowledge(ctx, tk.ID, 1)
	if err != nil || res != protocol.AckClosed {
		t.Fatalf("ack A: res=%q err=%v", res, err)
	}
	if got.Status[1] != protocol.EntryClosed || got.Status[2] != protocol.EntryOpen {
		t.Fatalf("after ack A: %+v", got.Status)
	}
	if got.AllClosed() {
		t.Fatal("ticket closed with B still open")
	}

	res, got, err = s.Acknowledge(ctx, tk.ID, 2)
	if err != nil || res != protocol.AckClosed {
		t.Fatalf("ack B: res=%q err=%v", res, err)
	}
	if !got.AllClosed() || got.State != protocol.TicketClosed {
		t.Fatalf("ticket should be fully closed: %+v", got)
	}

	// Read-side filters agree.
	open, _ := s.OpenTickets(0)
	if len(open) != 0 {
		t.Errorf("open listing should be empty: %+v", open)
	}
	history, _ := s.History(0)
	if len(history) != 1 || history[0].ID != tk.ID {
		t.Errorf("history listing: %+v", history)
	}
}

func TestAcknowledgeUnknownTicket(t *testing.T) {
	s, _ := newTestService(t)

	res, tk, err := s.Acknowledge(context.Background(), "nonexistent-id", 1)
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if res != protocol.AckNotFound || tk != nil {
		t.Fatalf("expected AckNotFound, got %q %+v", res, tk)
	}
}

// TestDispatchSnapshotIsolation: a conversation assigned after the recipient
// snapshot was resolved is absent from the ticket.
func TestDispatchSnapshotIsolation(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	register(t, s, 1, "A", protocol.GroupDev)
	register(t, s, 2, "B", "")

	tk, err := s.Dispatch(ctx, "snapshot test", protocol.SelectDev)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	// Assign B to DEV after the fact; the persisted ticket is unaffected.
	if _, err := s.AssignGroup(ctx, 2, protocol.GroupDev); err != nil {
		t.Fatalf("assign: %v", err)
	}
	got, _ := s.Ticket(tk.ID)
	if len(got.Recipients) != 1 || got.Recipients[0].ChatID != 1 {
		t.Errorf("late assignment leaked into ticket: %+v", got.Recipients)
	}
}

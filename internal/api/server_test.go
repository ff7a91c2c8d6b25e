package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bcast-io/bcast/internal/engine"
	"github.com/bcast-io/bcast/internal/ticket"
	"github.com/bcast-io/bcast/pkg/protocol"
)

type fakeService struct {
	chats   []protocol.Conversation
	tickets map[string]*protocol.Ticket
}

func (f *fakeService) Conversations() ([]protocol.Conversation, error) { return f.chats, nil }

func (f *fakeService) Ticket(id string) (*protocol.Ticket, error) {
	t, ok := f.tickets[id]
	if !ok {
		return nil, ticket.ErrNotFound
	}
	return t, nil
}

func (f *fakeService) OpenTickets(int) ([]*protocol.Ticket, error) {
	var out []*protocol.Ticket
	for _, t := range f.tickets {
		if t.State == protocol.TicketOpen {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeService) History(int) ([]*protocol.Ticket, error) {
	var out []*protocol.Ticket
	for _, t := range f.tickets {
		if t.State == protocol.TicketClosed {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeService) Dispatch(_ context.Context, text string, sel protocol.GroupSelector) (*protocol.Ticket, error) {
	if strings.TrimSpace(text) == "" {
		return nil, engine.ErrEmptyMessage
	}
	t := &protocol.Ticket{ID: "t-new", Text: text, State: protocol.TicketOpen}
	f.tickets[t.ID] = t
	return t, nil
}

func newTestServer(key string) (*Server, *fakeService) {
	svc := &fakeService{
		chats: []protocol.Conversation{
			{ID: 1, Kind: protocol.ChatGroup, Title: "dev", AssignedGroup: protocol.GroupDev},
		},
		tickets: map[string]*protocol.Ticket{
			"t-open": {ID: "t-open", Text: "hello", State: protocol.TicketOpen},
		},
	}
	srv := NewServer(svc, Config{Host: "127.0.0.1", Port: 0, Key: key}, nil, nil)
	return srv, svc
}

func doRequest(t *testing.T, srv *Server, method, path, body, key string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer("")
	rec := doRequest(t, srv, "GET", "/api/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	srv, _ := newTestServer("sekrit")

	rec := doRequest(t, srv, "GET", "/api/chats", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rec.Code)
	}
	rec = doRequest(t, srv, "GET", "/api/chats", "", "sekrit")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with key, got %d", rec.Code)
	}
}

func TestListChats(t *testing.T) {
	srv, _ := newTestServer("")
	rec := doRequest(t, srv, "GET", "/api/chats", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var chats []protocol.Conversation
	if err := json.Unmarshal(rec.Body.Bytes(), &chats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(chats) != 1 || chats[0].ID != 1 {
		t.Errorf("chats: %+v", chats)
	}
}

func TestGetTicketNotFound(t *testing.T) {
	srv, _ := newTestServer("")
	rec := doRequest(t, srv, "GET", "/api/tickets/nope", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListTicketsByState(t *testing.T) {
	srv, _ := newTestServer("")

	rec := doRequest(t, srv, "GET", "/api/tickets?state=open", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var tickets []*protocol.Ticket
	json.Unmarshal(rec.Body.Bytes(), &tickets)
	if len(tickets) != 1 || tickets[0].ID != "t-open" {
		t.Errorf("open tickets: %+v", tickets)
	}

	rec = doRequest(t, srv, "GET", "/api/tickets?state=bogus", "", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad state, got %d", rec.Code)
	}
}

func TestBroadcast(t *testing.T) {
	srv, svc := newTestServer("")

	rec := doRequest(t, srv, "POST", "/api/broadcast", `{"text":"ship it","group":"dev"}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status: %d body: %s", rec.Code, rec.Body.String())
	}
	if _, ok := svc.tickets["t-new"]; !ok {
		t.Error("dispatch not invoked")
	}

	rec = doRequest(t, srv, "POST", "/api/broadcast", `{"text":"","group":"DEV"}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty text, got %d", rec.Code)
	}

	rec = doRequest(t, srv, "POST", "/api/broadcast", `{"text":"x","group":"STAGING"}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown group, got %d", rec.Code)
	}
}

package logbuf

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func newTestLogger(capacity int) (*slog.Logger, *Buffer) {
	buf := New(capacity)
	inner := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(NewHandler(inner, buf)), buf
}

func TestCaptureAndQuery(t *testing.T) {
	logger, buf := newTestLogger(10)

	logger.Debug("noise")
	logger.Info("broadcast dispatched", "ticket_id", "t-1")
	logger.Error("delivery failed", "chat_id", int64(42))

	all := buf.Query(time.Time{}, slog.LevelDebug, 0)
	if len(all) != 3 {
		t.Fatalf("expected 3 entries (debug captured despite inner filter), got %d", len(all))
	}

	errs := buf.Query(time.Time{}, slog.LevelError, 0)
	if len(errs) != 1 || errs[0].Message != "delivery failed" {
		t.Fatalf("error filter: %+v", errs)
	}
	if errs[0].Attrs["chat_id"] != int64(42) {
		t.Errorf("attrs: %+v", errs[0].Attrs)
	}
}

func TestCapacityKeepsNewest(t *testing.T) {
	logger, buf := newTestLogger(3)

	for i := 0; i < 10; i++ {
		logger.Info("entry", "n", i)
	}

	got := buf.Query(time.Time{}, slog.LevelDebug, 0)
	if len(got) != 3 {
		t.Fatalf("expected 3 retained entries, got %d", len(got))
	}
	if got[len(got)-1].Attrs["n"] != int64(9) {
		t.Errorf("newest entry missing: %+v", got)
	}
}

func TestQueryLimit(t *testing.T) {
	logger, buf := newTestLogger(10)
	for i := 0; i < 5; i++ {
		logger.Info("entry", "n", i)
	}

	got := buf.Query(time.Time{}, slog.LevelDebug, 2)
	if len(got) != 2 {
		t.Fatalf("limit ignored: %d", len(got))
	}
	if got[1].Attrs["n"] != int64(4) {
		t.Errorf("limit should keep newest entries: %+v", got)
	}
}

func TestBoundAttrs(t *testing.T) {
	logger, buf := newTestLogger(10)

	logger.With("component", "engine").Info("ready")

	got := buf.Query(time.Time{}, slog.LevelInfo, 0)
	if len(got) != 1 || got[0].Attrs["component"] != "engine" {
		t.Fatalf("bound attrs not captured: %+v", got)
	}
}

func TestGroupScopesOnlyLaterAttrs(t *testing.T) {
	logger, buf := newTestLogger(10)

	// Attrs bound before a group opens keep their plain key; only attrs
	// added after the group are qualified.
	logger.With("component", "engine").WithGroup("ticket").Info("acknowledged", "id", "t-1")

	got := buf.Query(time.Time{}, slog.LevelInfo, 0)
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	if got[0].Attrs["component"] != "engine" {
		t.Errorf("pre-group attr qualified: %+v", got[0].Attrs)
	}
	if got[0].Attrs["ticket.id"] != "t-1" {
		t.Errorf("record attr not qualified: %+v", got[0].Attrs)
	}
}

func TestAttrsBoundInsideGroup(t *testing.T) {
	logger, buf := newTestLogger(10)

	logger.WithGroup("ticket").With("id", "t-2").Info("dispatched")

	got := buf.Query(time.Time{}, slog.LevelInfo, 0)
	if len(got) != 1 || got[0].Attrs["ticket.id"] != "t-2" {
		t.Fatalf("attr bound inside group: %+v", got)
	}
}

package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInvalidSchedule(t *testing.T) {
	_, err := New("not a schedule", nil, nil, discard())
	if err == nil {
		t.Fatal("expected error for bad schedule")
	}
}

func TestFireDelivers(t *testing.T) {
	var got string
	s, err := New("@every 1h",
		func(context.Context) (string, error) { return "2 tickets open", nil },
		func(_ context.Context, text string) { got = text },
		discard())
	if err != nil {
		t.Fatal(err)
	}
	s.fire()
	if got != "2 tickets open" {
		t.Errorf("notify got %q", got)
	}
}

func TestFireSkipsEmpty(t *testing.T) {
	called := false
	s, err := New("@every 1h",
		func(context.Context) (string, error) { return "", nil },
		func(context.Context, string) { called = true },
		discard())
	if err != nil {
		t.Fatal(err)
	}
	s.fire()
	if called {
		t.Error("notify should not run when there is nothing to say")
	}
}

func TestFireSwallowsBuildError(t *testing.T) {
	called := false
	s, err := New("@every 1h",
		func(context.Context) (string, error) { return "", errors.New("db down") },
		func(context.Context, string) { called = true },
		discard())
	if err != nil {
		t.Fatal(err)
	}
	s.fire()
	if called {
		t.Error("notify should not run on build error")
	}
}

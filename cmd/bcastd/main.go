package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bcast-io/bcast/internal/api"
	"github.com/bcast-io/bcast/internal/chat"
	"github.com/bcast-io/bcast/internal/config"
	"github.com/bcast-io/bcast/internal/connector"
	"github.com/bcast-io/bcast/internal/connector/telegram"
	"github.com/bcast-io/bcast/internal/engine"
	"github.com/bcast-io/bcast/internal/logbuf"
	"github.com/bcast-io/bcast/internal/notify"
	"github.com/bcast-io/bcast/internal/scheduler"
	"github.com/bcast-io/bcast/internal/ticket"
)

func main() {
	configPath := flag.String("config", "", "Path to config JSON file")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	// Set up logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logBuf := logbuf.New(2000)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logbuf.NewHandler(jsonHandler, logBuf))

	// Load config (file or env)
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("bcastd starting", "operator_id", cfg.Bot.OperatorID)

	// 1. Open stores
	os.MkdirAll(cfg.Bot.DataDir, 0o755)
	registry, err := chat.NewSQLiteStore(cfg.Bot.DataDir + "/chats.db")
	if err != nil {
		logger.Error("failed to open chat registry", "error", err)
		os.Exit(1)
	}
	tickets, err := ticket.NewSQLiteStore(cfg.Bot.DataDir + "/tickets.db")
	if err != nil {
		logger.Error("failed to open ticket store", "error", err)
		os.Exit(1)
	}

	// 2. Build the engine over a late-bound transport; the Telegram
	// connector needs the engine for its handlers, so the concrete
	// transport is attached right after construction.
	transport := &lateTransport{}
	eng := engine.New(registry, tickets, transport, cfg.Bot.OperatorID,
		logger.With("component", "engine"))

	if cfg.Connectors.Slack != nil {
		sn, err := notify.NewSlack(notify.SlackConfig{
			Token:   cfg.Connectors.Slack.Token,
			Channel: cfg.Connectors.Slack.Channel,
		}, logger.With("component", "slack-notifier"))
		if err != nil {
			logger.Error("failed to init slack notifier", "error", err)
			os.Exit(1)
		}
		eng.Notifier = sn
	}

	// 3. Telegram connector
	tgConn, err := telegram.New(
		telegram.Config{
			Token:      cfg.Connectors.Telegram.Token,
			OperatorID: cfg.Bot.OperatorID,
		},
		eng,
		logger.With("connector", "telegram"),
	)
	if err != nil {
		logger.Error("failed to init telegram connector", "error", err)
		os.Exit(1)
	}
	transport.Transport = tgConn

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go safeGo(logger, "telegram", func() { tgConn.Start(ctx) })

	// 4. Open-ticket reminder
	if cfg.Bot.ReminderSchedule != "" {
		sched, err := scheduler.New(cfg.Bot.ReminderSchedule,
			openTicketReminder(eng),
			func(ctx context.Context, text string) {
				if _, err := tgConn.SendMessage(ctx, cfg.Bot.OperatorID, text, nil); err != nil {
					logger.Error("reminder delivery failed", "error", err)
				}
				if eng.Notifier != nil {
					if err := eng.Notifier.Notify(ctx, text); err != nil {
						logger.Error("reminder mirror failed", "error", err)
					}
				}
			},
			logger.With("component", "scheduler"),
		)
		if err != nil {
			logger.Error("failed to init scheduler", "error", err)
			os.Exit(1)
		}
		go safeGo(logger, "scheduler", func() { sched.Start(ctx) })
	}

	// 5. Admin API server
	apiSrv := api.NewServer(eng, api.Config{
		Host: cfg.API.Host,
		Port: cfg.API.Port,
		Key:  cfg.API.Key,
	}, logger.With("component", "api"), logBuf)

	go safeGo(logger, "api-server", func() { apiSrv.Start(ctx) })
	logger.Info("api server started", "port", cfg.API.Port)

	// 6. Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()
	logger.Info("bcastd stopped")
}

// openTicketReminder builds the reminder text from the current open tickets.
func openTicketReminder(eng *engine.Service) func(ctx context.Context) (string, error) {
	return func(_ context.Context) (string, error) {
		open, err := eng.OpenTickets(0)
		if err != nil {
			return "", err
		}
		if len(open) == 0 {
			return "", nil
		}
		var b strings.Builder
		fmt.Fprintf(&b, "⏰ %d open ticket(s) awaiting acknowledgement:\n", len(open))
		for _, t := range open {
			fmt.Fprintf(&b, "• %s (%d of %d open)\n", t.Text, t.OpenCount(), len(t.Recipients))
		}
		return b.String(), nil
	}
}

// safeGo runs fn with panic recovery.
func safeGo(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}

// lateTransport breaks the construction cycle between the engine and the
// Telegram connector. All calls happen after the concrete transport is set.
type lateTransport struct {
	connector.Transport
}

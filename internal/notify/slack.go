package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"
)

// SlackConfig holds Slack notifier configuration.
type SlackConfig struct {
	Token   string // xoxb-... Bot User OAuth Token
	Channel string // channel ID to post notices into
}

// Slack posts operator notices to a Slack channel.
type Slack struct {
	api     *slack.Client
	channel string
	logger  *slog.Logger
}

// NewSlack creates a Slack notifier and verifies the token.
func NewSlack(cfg SlackConfig, logger *slog.Logger) (*Slack, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("slack notifier: token is required")
	}
	if cfg.Channel == "" {
		return nil, fmt.Errorf("slack notifier: channel is required")
	}

	if logger == nil {
		logger = slog.Default()
	}

	api := slack.New(cfg.Token)

	authResp, err := api.AuthTest()
	if err != nil {
		return nil, fmt.Errorf("slack notifier: auth test: %w", err)
	}
	logger.Info("slack notifier authorized", "user", authResp.User, "team", authResp.Team)

	return &Slack{api: api, channel: cfg.Channel, logger: logger}, nil
}

// Notify posts text to the configured channel.
func (s *Slack) Notify(ctx context.Context, text string) error {
	_, _, err := s.api.PostMessageContext(ctx, s.channel, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("slack notifier: post: %w", err)
	}
	return nil
}

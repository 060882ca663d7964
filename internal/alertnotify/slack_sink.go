package alertnotify

import (
	"context"
	"fmt"

	goslack "github.com/slack-go/slack"

	"github.com/R3E-Network/repo-scout/domain"
	"github.com/R3E-Network/repo-scout/internal/logging"
)

// SlackSink posts alerts to an incoming webhook, adapted from the pack's
// token-based slack.Notifier (wisbric-nightowl) onto a webhook URL, since
// the configuration surface names a webhook rather than a bot token.
type SlackSink struct {
	webhookURL string
	log        *logging.Logger
}

func NewSlackSink(webhookURL string, log *logging.Logger) *SlackSink {
	return &SlackSink{webhookURL: webhookURL, log: log}
}

func (s *SlackSink) Send(ctx context.Context, alert domain.Alert, repo domain.Repository) error {
	if s.webhookURL == "" {
		return nil
	}
	msg := &goslack.WebhookMessage{
		Text: fmt.Sprintf("[%s/%s] %s — %s\n%s", alert.Level, alert.Type, repo.FullName, alert.Message, repo.HTMLURL),
	}
	if err := goslack.PostWebhookContext(ctx, s.webhookURL, msg); err != nil {
		s.log.WithError(err).Warn("slack alert delivery failed")
		return err
	}
	return nil
}

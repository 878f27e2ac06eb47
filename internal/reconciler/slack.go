package reconciler

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// SlackNotifier posts a one-line alert to a configured webhook whenever
// an operator chain fails permanently. Grounded on wisbric-nightowl's
// use of slack-go/slack for operational alerting.
type SlackNotifier struct {
	webhookURL string
}

// NewSlackNotifier builds a Notifier against webhookURL. An empty URL
// is rejected by callers in favor of NoopNotifier.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{webhookURL: webhookURL}
}

func (n *SlackNotifier) Notify(ctx context.Context, operator string, key Key, err error) {
	msg := &slack.WebhookMessage{
		Text: fmt.Sprintf(":rotating_light: reconciler %q permanently failed on %q: %s", operator, key, err),
	}
	_ = slack.PostWebhookContext(ctx, n.webhookURL, msg)
}

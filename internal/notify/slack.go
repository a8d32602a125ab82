package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/perimetra/vulnfeed/internal/config"
	"github.com/perimetra/vulnfeed/internal/errors"
	"github.com/perimetra/vulnfeed/internal/observability"
	"github.com/perimetra/vulnfeed/internal/types"
)

// maxBlocks caps message size below Slack's 50-block limit, leaving room
// for the trailing "and N more" context block.
const maxBlocks = 48

// SlackNotifier posts one Block Kit webhook message per batch.
type SlackNotifier struct {
	webhookURL string
	mentions   []string
	dryRun     bool
	timeout    time.Duration
	logger     *slog.Logger

	// post is swapped out in tests
	post func(ctx context.Context, url string, msg *slack.WebhookMessage) error
}

// NewSlackNotifier builds the webhook notifier from configuration.
func NewSlackNotifier(cfg config.NotifyConfig, logger *slog.Logger) *SlackNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlackNotifier{
		webhookURL: cfg.WebhookURL,
		mentions:   cfg.MentionUsers,
		dryRun:     cfg.DryRun,
		timeout:    cfg.Timeout,
		logger:     logger,
		post:       slack.PostWebhookContext,
	}
}

// Notify posts the batch as a single message, most urgent findings first.
func (n *SlackNotifier) Notify(ctx context.Context, items []types.ClassifiedItem) error {
	if len(items) == 0 {
		n.logger.Debug("no qualifying items, skipping notification")
		return nil
	}

	sorted := make([]types.ClassifiedItem, len(items))
	copy(sorted, items)
	types.SortClassified(sorted)

	msg := buildFindingsMessage(sorted, n.mentions)

	if n.dryRun {
		payload, _ := json.Marshal(msg)
		n.logger.Info("dry run, skipping notification delivery",
			"items", len(sorted),
			"payload", string(payload))
		return nil
	}

	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	metrics := observability.GetMetrics()
	if err := n.post(ctx, n.webhookURL, msg); err != nil {
		metrics.NotifyErrors.Inc()
		return errors.NewTransientf("failed to deliver notification: %v: %w", err, errors.ErrNotifyFailed)
	}

	metrics.NotificationsSent.Inc()
	metrics.NotifiedItems.Add(float64(len(sorted)))
	n.logger.Info("notification delivered", "items", len(sorted))
	return nil
}

func buildFindingsMessage(items []types.ClassifiedItem, mentions []string) *slack.WebhookMessage {
	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType,
			fmt.Sprintf("Security advisories: %d new findings", len(items)), false, false)),
	}

	if len(mentions) > 0 {
		tags := make([]string, 0, len(mentions))
		for _, user := range mentions {
			tags = append(tags, "<@"+user+">")
		}
		blocks = append(blocks, slack.NewContextBlock("",
			slack.NewTextBlockObject(slack.MarkdownType, "cc "+strings.Join(tags, " "), false, false)))
	}

	blocks = append(blocks, slack.NewDividerBlock())

	shown := 0
	for _, item := range items {
		if len(blocks) >= maxBlocks {
			break
		}
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, formatFinding(item), false, false),
			nil, nil))
		shown++
	}

	if remaining := len(items) - shown; remaining > 0 {
		blocks = append(blocks, slack.NewContextBlock("",
			slack.NewTextBlockObject(slack.MarkdownType,
				fmt.Sprintf("…and %d more findings", remaining), false, false)))
	}

	// Text is the fallback for clients that don't render blocks
	return &slack.WebhookMessage{
		Text:   fmt.Sprintf("%d new security findings", len(items)),
		Blocks: &slack.Blocks{BlockSet: blocks},
	}
}

func formatFinding(item types.ClassifiedItem) string {
	var b strings.Builder

	b.WriteString(severityEmoji(item.Severity))
	b.WriteString(" *")
	b.WriteString(string(item.Severity))
	b.WriteString("* ")

	title := slackEscape(item.Item.Title)
	if item.Item.Link != "" {
		b.WriteString("<" + item.Item.Link + "|" + title + ">")
	} else {
		b.WriteString(title)
	}

	b.WriteString("\n")
	if len(item.Products) > 0 {
		b.WriteString("*products:* " + slackEscape(strings.Join(item.Products, ", ")) + " | ")
	}
	b.WriteString("*source:* " + string(item.Item.Source))
	b.WriteString(fmt.Sprintf(" | *score:* %d", item.Score))

	if item.VersionInRange != nil && !*item.VersionInRange {
		b.WriteString("\n:warning: mentioned version is outside the deployed range")
	}

	return b.String()
}

func severityEmoji(s types.Severity) string {
	switch s {
	case types.SeverityCritical:
		return ":red_circle:"
	case types.SeverityHigh:
		return ":large_orange_circle:"
	case types.SeverityMedium:
		return ":large_yellow_circle:"
	case types.SeverityLow:
		return ":large_green_circle:"
	}
	return ":white_circle:"
}

// slackEscape escapes the three characters Slack's mrkdwn treats as
// control characters in text.
func slackEscape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

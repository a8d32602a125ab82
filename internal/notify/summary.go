package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/perimetra/vulnfeed/internal/errors"
	"github.com/perimetra/vulnfeed/internal/types"
)

// summaryRecordCap bounds how many individual records the digest lists.
const summaryRecordCap = 10

// SummaryStats is the input to the daily digest: what the store committed
// since the cutoff.
type SummaryStats struct {
	Since    time.Time
	Total    int
	BySource map[types.Source]int
	Records  []types.ProcessedRecord // newest first
}

// PostSummary posts the daily digest message. Honors dry-run the same way
// Notify does.
func (n *SlackNotifier) PostSummary(ctx context.Context, stats SummaryStats) error {
	msg := buildSummaryMessage(stats)

	if n.dryRun {
		payload, _ := json.Marshal(msg)
		n.logger.Info("dry run, skipping summary delivery",
			"total", stats.Total,
			"payload", string(payload))
		return nil
	}

	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	if err := n.post(ctx, n.webhookURL, msg); err != nil {
		return errors.NewTransientf("failed to deliver summary: %v: %w", err, errors.ErrNotifyFailed)
	}

	n.logger.Info("summary delivered", "total", stats.Total)
	return nil
}

func buildSummaryMessage(stats SummaryStats) *slack.WebhookMessage {
	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType,
			"Daily advisory digest", false, false)),
		slack.NewContextBlock("",
			slack.NewTextBlockObject(slack.MarkdownType,
				fmt.Sprintf("%d advisories processed since %s",
					stats.Total, stats.Since.UTC().Format("2006-01-02 15:04 MST")), false, false)),
	}

	if stats.Total == 0 {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, "A quiet day: nothing new processed.", false, false),
			nil, nil))
		return &slack.WebhookMessage{
			Text:   "Daily advisory digest: nothing new",
			Blocks: &slack.Blocks{BlockSet: blocks},
		}
	}

	counts := make([]string, 0, len(stats.BySource))
	for _, source := range []types.Source{types.SourceCVE, types.SourceNews, types.SourceAdvisory} {
		if c, ok := stats.BySource[source]; ok && c > 0 {
			counts = append(counts, fmt.Sprintf("*%s:* %d", source, c))
		}
	}
	if len(counts) > 0 {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, strings.Join(counts, " | "), false, false),
			nil, nil))
	}

	blocks = append(blocks, slack.NewDividerBlock())

	var lines []string
	for i, record := range stats.Records {
		if i >= summaryRecordCap {
			lines = append(lines, fmt.Sprintf("…and %d more", len(stats.Records)-summaryRecordCap))
			break
		}
		title := record.Title
		if title == "" {
			title = record.ExternalID
		}
		lines = append(lines, fmt.Sprintf("• [%s] %s", record.Source, slackEscape(title)))
	}
	if len(lines) > 0 {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, strings.Join(lines, "\n"), false, false),
			nil, nil))
	}

	return &slack.WebhookMessage{
		Text:   fmt.Sprintf("Daily advisory digest: %d processed", stats.Total),
		Blocks: &slack.Blocks{BlockSet: blocks},
	}
}

package feed

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"html"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/perimetra/vulnfeed/internal/config"
	"github.com/perimetra/vulnfeed/internal/errors"
	"github.com/perimetra/vulnfeed/internal/types"
)

var (
	cveIDPattern      = regexp.MustCompile(`(?i)cve-\d{4}-\d+`)
	htmlTagPattern    = regexp.MustCompile(`<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// RSSCollector fetches one RSS/Atom feed and maps its entries to items.
// The same collector serves the CVE feed and the news feed; only the
// external-identity rule differs between the two sources.
type RSSCollector struct {
	name   string
	source types.Source
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewCVECollector builds the collector for the CVE RSS feed. Item identity
// is the CVE id from the entry title when one is present.
func NewCVECollector(cfg config.FeedsConfig, logger *slog.Logger) *RSSCollector {
	return newRSSCollector("cve-feed", types.SourceCVE, cfg.CVEURL, cfg.Timeout, logger)
}

// NewNewsCollector builds the collector for the security news feed. Item
// identity is the article link, hashed when absent.
func NewNewsCollector(cfg config.FeedsConfig, logger *slog.Logger) *RSSCollector {
	return newRSSCollector("news-feed", types.SourceNews, cfg.NewsURL, cfg.Timeout, logger)
}

func newRSSCollector(name string, source types.Source, url string, timeout time.Duration, logger *slog.Logger) *RSSCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &RSSCollector{
		name:   name,
		source: source,
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Name identifies the collector in logs and metrics.
func (c *RSSCollector) Name() string {
	return c.name
}

// Collect fetches and parses the feed.
func (c *RSSCollector) Collect(ctx context.Context) ([]types.FeedItem, error) {
	parser := gofeed.NewParser()
	parser.Client = c.client

	parsed, err := parser.ParseURLWithContext(c.url, ctx)
	if err != nil {
		return nil, errors.NewTransientf("failed to fetch %s: %v", c.name, err)
	}

	items := make([]types.FeedItem, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		items = append(items, c.toFeedItem(entry))
	}
	return items, nil
}

func (c *RSSCollector) toFeedItem(entry *gofeed.Item) types.FeedItem {
	item := types.FeedItem{
		Source:      c.source,
		ExternalID:  c.externalID(entry),
		Title:       strings.TrimSpace(entry.Title),
		Description: stripHTML(entry.Description),
		Link:        entry.Link,
	}

	if entry.PublishedParsed != nil {
		item.Published = entry.PublishedParsed.UTC()
	} else if entry.UpdatedParsed != nil {
		item.Published = entry.UpdatedParsed.UTC()
	}

	return item
}

func (c *RSSCollector) externalID(entry *gofeed.Item) string {
	if c.source == types.SourceCVE {
		if id := cveIDPattern.FindString(entry.Title); id != "" {
			return strings.ToUpper(id)
		}
	}
	if entry.Link != "" {
		return entry.Link
	}
	return contentHash(entry.Title + entry.Link)
}

// contentHash is the last-resort identity for entries carrying no link.
func contentHash(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

// stripHTML flattens feed descriptions to plain text: tags removed,
// entities decoded, whitespace collapsed.
func stripHTML(s string) string {
	s = htmlTagPattern.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

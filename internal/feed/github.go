package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/perimetra/vulnfeed/internal/config"
	"github.com/perimetra/vulnfeed/internal/errors"
	"github.com/perimetra/vulnfeed/internal/types"
)

const githubGraphQLURL = "https://api.github.com/graphql"

// advisoryFetchLimit bounds how many advisories one run pulls; the feed is
// ordered newest first and the dedup store absorbs the overlap.
const advisoryFetchLimit = 20

const advisoryQuery = `query($first: Int!) {
  securityAdvisories(first: $first, orderBy: {field: PUBLISHED_AT, direction: DESC}) {
    nodes {
      ghsaId
      summary
      description
      severity
      publishedAt
      permalink
      identifiers {
        type
        value
      }
      vulnerabilities(first: 10) {
        nodes {
          package {
            name
            ecosystem
          }
        }
      }
    }
  }
}`

// AdvisoryCollector pulls recent GitHub security advisories over GraphQL.
// Without a token the source is skipped, not failed: the advisory feed is
// optional enrichment on top of the CVE feed.
type AdvisoryCollector struct {
	token  string
	apiURL string
	limit  int
	client *http.Client
	logger *slog.Logger
}

// NewAdvisoryCollector builds the GraphQL collector.
func NewAdvisoryCollector(cfg config.FeedsConfig, logger *slog.Logger) *AdvisoryCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdvisoryCollector{
		token:  cfg.GitHubToken,
		apiURL: githubGraphQLURL,
		limit:  advisoryFetchLimit,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Name identifies the collector in logs and metrics.
func (c *AdvisoryCollector) Name() string {
	return "github-advisories"
}

type advisoryNode struct {
	GHSAID      string    `json:"ghsaId"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Severity    string    `json:"severity"`
	PublishedAt time.Time `json:"publishedAt"`
	Permalink   string    `json:"permalink"`
	Identifiers []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"identifiers"`
	Vulnerabilities struct {
		Nodes []struct {
			Package struct {
				Name      string `json:"name"`
				Ecosystem string `json:"ecosystem"`
			} `json:"package"`
		} `json:"nodes"`
	} `json:"vulnerabilities"`
}

// Collect queries the advisories endpoint.
func (c *AdvisoryCollector) Collect(ctx context.Context) ([]types.FeedItem, error) {
	if c.token == "" {
		c.logger.Warn("no github token configured, advisory source skipped")
		return nil, nil
	}

	body, err := json.Marshal(map[string]interface{}{
		"query":     advisoryQuery,
		"variables": map[string]int{"first": c.limit},
	})
	if err != nil {
		return nil, errors.NewPermanentf("failed to marshal advisory query: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewPermanentf("failed to create advisory request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.NewTransientf("advisory query failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, errors.NewTransientf("advisory endpoint returned %s: %s",
			resp.Status, strings.TrimSpace(string(payload)))
	}

	var response struct {
		Data struct {
			SecurityAdvisories struct {
				Nodes []advisoryNode `json:"nodes"`
			} `json:"securityAdvisories"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, errors.NewTransientf("failed to decode advisory response: %v", err)
	}
	if len(response.Errors) > 0 {
		return nil, errors.NewTransientf("advisory query rejected: %s", response.Errors[0].Message)
	}

	nodes := response.Data.SecurityAdvisories.Nodes
	items := make([]types.FeedItem, 0, len(nodes))
	for _, node := range nodes {
		items = append(items, toAdvisoryItem(node))
	}
	return items, nil
}

func toAdvisoryItem(node advisoryNode) types.FeedItem {
	var cveID string
	for _, identifier := range node.Identifiers {
		if identifier.Type == "CVE" {
			cveID = identifier.Value
			break
		}
	}

	externalID := node.GHSAID
	if cveID != "" {
		externalID = cveID
	}

	title := node.Summary
	if cveID != "" && !strings.Contains(title, cveID) {
		title = cveID + ": " + title
	}

	description := node.Description
	if description == "" {
		description = node.Summary
	}
	if packages := affectedPackages(node); len(packages) > 0 {
		description += "\n\nAffected packages: " + strings.Join(packages, ", ")
	}

	link := node.Permalink
	if link == "" {
		link = "https://github.com/advisories/" + node.GHSAID
	}

	return types.FeedItem{
		Source:       types.SourceAdvisory,
		ExternalID:   externalID,
		Title:        title,
		Description:  description,
		Link:         link,
		Published:    node.PublishedAt,
		SeverityHint: node.Severity,
	}
}

func affectedPackages(node advisoryNode) []string {
	var packages []string
	for _, vuln := range node.Vulnerabilities.Nodes {
		name := vuln.Package.Name
		if name == "" {
			continue
		}
		if eco := vuln.Package.Ecosystem; eco != "" {
			name = eco + "/" + name
		}
		packages = append(packages, name)
	}
	return packages
}

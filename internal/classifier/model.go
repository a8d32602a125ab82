package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/perimetra/vulnfeed/internal/config"
	"github.com/perimetra/vulnfeed/internal/errors"
	"github.com/perimetra/vulnfeed/internal/observability"
	"github.com/perimetra/vulnfeed/internal/types"
)

const systemPrompt = "You are a security advisory triage assistant. " +
	"You respond with strict JSON and nothing else."

// descriptionLimit bounds how much item text goes into the prompt.
const descriptionLimit = 1000

// ModelClassifier classifies batches through an OpenAI-compatible
// chat-completions endpoint. The endpoint is treated as untrusted
// infrastructure: any call failure or schema violation degrades to the
// fallback heuristic instead of surfacing an error.
type ModelClassifier struct {
	endpoint    string
	model       string
	apiKey      string
	batchSize   int
	concurrency int
	products    []string        // canonical whitelist names, listed in the prompt
	known       map[string]bool // same names, for validating matched_entries
	fallback    *FallbackClassifier
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewModelClassifier builds the endpoint-backed classifier. products are the
// canonical whitelist names offered to the model and accepted back from it.
func NewModelClassifier(cfg config.ModelConfig, products []string, logger *slog.Logger) *ModelClassifier {
	if logger == nil {
		logger = slog.Default()
	}

	known := make(map[string]bool, len(products))
	for _, p := range products {
		known[strings.ToLower(strings.TrimSpace(p))] = true
	}

	return &ModelClassifier{
		endpoint:    cfg.Endpoint,
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		products:    products,
		known:       known,
		fallback:    NewFallbackClassifier(),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// New selects the classifier for a run: the model-backed one when an
// endpoint is configured, the bare heuristic otherwise.
func New(cfg config.ModelConfig, products []string, logger *slog.Logger) Classifier {
	if cfg.Endpoint == "" {
		return NewFallbackClassifier()
	}
	return NewModelClassifier(cfg, products, logger)
}

// Classify splits the input into bounded batches, dispatches them over a
// small worker pool and reassembles results in input order. Ordering is
// restored by batch slot and item identity, never by completion order.
func (c *ModelClassifier) Classify(ctx context.Context, items []types.ScoredItem) []types.ClassifiedItem {
	if len(items) == 0 {
		return nil
	}

	batches := splitBatches(items, c.batchSize)
	out := make([][]types.ClassifiedItem, len(batches))

	workers := c.concurrency
	if workers <= 0 {
		workers = 1
	}
	if workers > len(batches) {
		workers = len(batches)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				out[idx] = c.classifyBatch(ctx, batches[idx])
			}
		}()
	}

	for idx := range batches {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	merged := make([]types.ClassifiedItem, 0, len(items))
	for _, part := range out {
		merged = append(merged, part...)
	}
	return merged
}

// classifyBatch runs one endpoint call for the batch. A failed call or an
// unparseable payload degrades the whole in-flight batch to the heuristic;
// a verdict that fails validation degrades only its own item. No retries
// here: an unprocessed item comes back on the next scheduled run.
func (c *ModelClassifier) classifyBatch(ctx context.Context, batch []types.ScoredItem) []types.ClassifiedItem {
	metrics := observability.GetMetrics()

	start := time.Now()
	content, err := c.callModel(ctx, batch)
	metrics.ModelCalls.Inc()
	metrics.ModelCallDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ModelCallErrors.Inc()
		c.logger.Warn("model call failed, batch degrades to heuristic",
			"batch_size", len(batch),
			"error", err)
		return c.fallback.Classify(ctx, batch)
	}

	verdicts, err := parseVerdicts(content)
	if err != nil {
		c.logger.Warn("model response unparseable, batch degrades to heuristic",
			"batch_size", len(batch),
			"error", err)
		return c.fallback.Classify(ctx, batch)
	}

	results := make([]types.ClassifiedItem, 0, len(batch))
	for _, item := range batch {
		verdict, ok := verdicts[item.Item.Identity()]
		if !ok {
			c.logger.Debug("model omitted item, falling back",
				"item", item.Item.Identity())
			results = append(results, c.fallback.classifyOne(item))
			continue
		}

		classified, ok := c.applyVerdict(item, verdict)
		if !ok {
			c.logger.Warn("model verdict failed validation, falling back",
				"item", item.Item.Identity(),
				"severity", verdict.Severity)
			results = append(results, c.fallback.classifyOne(item))
			continue
		}
		results = append(results, classified)
	}
	return results
}

// callModel posts one chat-completions request and returns the raw message
// content of the first choice.
func (c *ModelClassifier) callModel(ctx context.Context, batch []types.ScoredItem) (string, error) {
	prompt, err := buildPrompt(batch, c.products)
	if err != nil {
		return "", fmt.Errorf("failed to build prompt: %w", err)
	}

	body, err := json.Marshal(map[string]interface{}{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.NewTransientf("model call failed: %v: %w", err, errors.ErrModelUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", errors.NewTransientf("model endpoint throttled: %w", errors.ErrRateLimit)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", errors.NewTransientf("model endpoint returned %s: %s: %w",
			resp.Status, strings.TrimSpace(string(payload)), errors.ErrModelUnavailable)
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", errors.NewTransientf("failed to decode response: %v: %w", err, errors.ErrModelUnavailable)
	}
	if len(response.Choices) == 0 {
		return "", errors.NewTransientf("no content in response: %w", errors.ErrModelUnavailable)
	}

	return response.Choices[0].Message.Content, nil
}

type promptItem struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func buildPrompt(batch []types.ScoredItem, products []string) (string, error) {
	items := make([]promptItem, 0, len(batch))
	for _, item := range batch {
		items = append(items, promptItem{
			ID:          item.Item.Identity(),
			Title:       item.Item.Title,
			Description: truncate(item.Item.Description, descriptionLimit),
		})
	}

	encoded, err := json.Marshal(items)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Extract the affected products from each security item below.\n\n")
	b.WriteString("Watched products: ")
	b.WriteString(strings.Join(products, ", "))
	b.WriteString("\n\nItems:\n")
	b.Write(encoded)
	b.WriteString("\n\nRules:\n")
	b.WriteString("- products: the concrete product/library/framework names the item is about, lowercase.\n")
	b.WriteString("  Name the product, not the technology category:\n")
	b.WriteString("  \"RedisGraph 2.x vulnerability\" -> \"redisgraph\"\n")
	b.WriteString("  \"Spring Boot Actuator flaw\" -> \"spring boot\"\n")
	b.WriteString("  \"AWS EKS privilege escalation\" -> \"eks\"\n")
	b.WriteString("- severity: exactly one of CRITICAL, HIGH, MEDIUM, LOW.\n")
	b.WriteString("- matched_entries: the watched products this item affects, [] when none.\n")
	b.WriteString("\nRespond with JSON only, one result per item id:\n")
	b.WriteString(`{"results":[{"id":"<item id>","products":["<name>"],"severity":"HIGH","matched_entries":["<watched product>"]}]}`)
	return b.String(), nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// modelVerdict is one per-item result inside the model's JSON payload.
type modelVerdict struct {
	ID             string   `json:"id"`
	Products       []string `json:"products"`
	Severity       string   `json:"severity"`
	MatchedEntries []string `json:"matched_entries"`
}

type modelPayload struct {
	Results []modelVerdict `json:"results"`
}

var (
	fencedJSONBlock = regexp.MustCompile("(?s)```json(.*?)```")
	fencedBlock     = regexp.MustCompile("(?s)```(.*?)```")
)

// extractJSON strips markdown fences and surrounding prose so the payload
// can be unmarshaled even when the model narrates around it.
func extractJSON(input string) string {
	if match := fencedJSONBlock.FindStringSubmatch(input); len(match) > 1 {
		input = match[1]
	} else if match := fencedBlock.FindStringSubmatch(input); len(match) > 1 {
		input = match[1]
	}
	input = strings.TrimSpace(input)

	start := strings.Index(input, "{")
	end := strings.LastIndex(input, "}")
	if start >= 0 && end > start {
		input = input[start : end+1]
	}
	return input
}

// parseVerdicts unmarshals the payload and keys verdicts by item id. A
// verdict without an id cannot be joined back and is dropped; duplicate ids
// keep the first verdict. Items with no verdict fall back individually.
func parseVerdicts(content string) (map[string]modelVerdict, error) {
	var payload modelPayload
	if err := json.Unmarshal([]byte(extractJSON(content)), &payload); err != nil {
		return nil, errors.NewPermanentf("failed to parse model payload: %v: %w", err, errors.ErrMalformedResponse)
	}

	verdicts := make(map[string]modelVerdict, len(payload.Results))
	for _, v := range payload.Results {
		id := strings.TrimSpace(v.ID)
		if id == "" {
			continue
		}
		if _, exists := verdicts[id]; exists {
			continue
		}
		verdicts[id] = v
	}
	return verdicts, nil
}

// applyVerdict validates one verdict against the response schema. Severity
// must normalize into the enum; matched_entries are filtered to watched
// products and merged into the item's scorer matches.
func (c *ModelClassifier) applyVerdict(item types.ScoredItem, v modelVerdict) (types.ClassifiedItem, bool) {
	severity, ok := types.ParseSeverity(v.Severity)
	if !ok {
		return types.ClassifiedItem{}, false
	}

	seen := make(map[string]bool)
	products := make([]string, 0, len(v.Products))
	for _, p := range v.Products {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" || p == "none" || seen[p] {
			continue
		}
		seen[p] = true
		products = append(products, p)
	}
	sort.Strings(products)

	entries := make(map[string]bool, len(item.MatchedEntries))
	for _, e := range item.MatchedEntries {
		entries[e] = true
	}
	for _, e := range v.MatchedEntries {
		e = strings.ToLower(strings.TrimSpace(e))
		if c.known[e] {
			entries[e] = true
		}
	}
	merged := make([]string, 0, len(entries))
	for e := range entries {
		merged = append(merged, e)
	}
	sort.Strings(merged)
	item.MatchedEntries = merged

	return types.ClassifiedItem{
		ScoredItem:   item,
		Severity:     severity,
		Products:     products,
		ClassifiedBy: types.ClassifiedByModel,
	}, true
}

func splitBatches(items []types.ScoredItem, size int) [][]types.ScoredItem {
	if size <= 0 {
		size = len(items)
	}
	var batches [][]types.ScoredItem
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}

// Package videosummary implements the video-summary tool (spec §4.2), with a
// 24h TTL cache keyed by canonical video id so repeated requests for the
// same video don't re-run the (expensive) summarization backend.
package videosummary

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/discord-agent/orchestrator/pkg/models"
)

const schemaJSON = `{
	"type": "object",
	"properties": {
		"url": {"type": "string", "description": "The video URL to summarize"}
	},
	"required": ["url"]
}`

var compiledSchema = mustCompile(schemaJSON)

func mustCompile(raw string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("videosummary.json", strings.NewReader(raw)); err != nil {
		panic(err)
	}
	s, err := c.Compile("videosummary.json")
	if err != nil {
		panic(err)
	}
	return s
}

// Summarizer produces a textual summary for a video URL. Concrete
// implementations call out to a transcript/captions backend or a
// multimodal LLM.
type Summarizer interface {
	Summarize(ctx context.Context, videoURL string) (string, error)
}

// DefaultTTL is the cache lifetime for a summarized video (spec §4.2: 24h).
const DefaultTTL = 24 * time.Hour

type cacheEntry struct {
	summary   string
	expiresAt time.Time
}

// ttlCache is a mutex-guarded last-write-wins TTL cache, following the same
// read-lock-reads/write-lock-writes shape as the teacher's dedupe cache.
type ttlCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

func newTTLCache(ttl time.Duration) *ttlCache {
	return &ttlCache{entries: make(map[string]cacheEntry), ttl: ttl}
}

func (c *ttlCache) get(key string, now time.Time) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok || now.After(entry.expiresAt) {
		return "", false
	}
	return entry.summary, true
}

func (c *ttlCache) set(key, summary string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Concurrent calls for the same video id may race here; the spec
	// tolerates last-write-wins, so no compare-and-swap is needed.
	c.entries[key] = cacheEntry{summary: summary, expiresAt: now.Add(c.ttl)}
}

// Tool is the video-summary tool.
type Tool struct {
	summarizer Summarizer
	cache      *ttlCache
	now        func() time.Time
}

// New returns a video-summary tool backed by summarizer, caching results for
// ttl (DefaultTTL if zero).
func New(summarizer Summarizer, ttl time.Duration) *Tool {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tool{summarizer: summarizer, cache: newTTLCache(ttl), now: time.Now}
}

func (t *Tool) Name() string            { return "video_summary" }
func (t *Tool) Priority() int           { return 20 }
func (t *Tool) Description() string     { return "Summarize the content of a video given its URL." }
func (t *Tool) Schema() *jsonschema.Schema { return compiledSchema }
func (t *Tool) SchemaJSON() []byte         { return []byte(schemaJSON) }

type input struct {
	URL string `json:"url"`
}

func (t *Tool) Execute(ctx context.Context, args json.RawMessage) models.ToolExecutionResult {
	result := models.ToolExecutionResult{ToolName: t.Name()}

	var in input
	if err := json.Unmarshal(args, &in); err != nil {
		result.ErrorKind = models.ErrorKindInvalidStructuredOutput
		result.Content = "invalid arguments: " + err.Error()
		return result
	}

	id, err := canonicalVideoID(in.URL)
	if err != nil {
		result.ErrorKind = models.ErrorKindInvalidStructuredOutput
		result.Content = err.Error()
		return result
	}

	now := t.now()
	if cached, ok := t.cache.get(id, now); ok {
		result.Success = true
		result.Content = cached
		return result
	}

	summary, err := t.summarizer.Summarize(ctx, in.URL)
	if err != nil {
		if ctx.Err() != nil {
			result.ErrorKind = models.ErrorKindTransientNetwork
		} else {
			result.ErrorKind = models.ErrorKindProviderError
		}
		result.Content = fmt.Sprintf("summarize failed: %v", err)
		return result
	}

	t.cache.set(id, summary, now)
	result.Success = true
	result.Content = summary
	return result
}

// canonicalVideoID normalizes a video URL to a stable cache key, handling
// the common youtu.be / youtube.com "v" query-param forms.
func canonicalVideoID(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}

	host := strings.ToLower(parsed.Host)
	switch {
	case strings.Contains(host, "youtu.be"):
		return strings.Trim(parsed.Path, "/"), nil
	case strings.Contains(host, "youtube.com"):
		if v := parsed.Query().Get("v"); v != "" {
			return v, nil
		}
	}
	return parsed.String(), nil
}

// Package websearch implements the web-search tool (spec §4.2).
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/discord-agent/orchestrator/pkg/models"
)

const schemaJSON = `{
	"type": "object",
	"properties": {
		"query": {"type": "string", "description": "The search query"},
		"result_count": {"type": "integer", "minimum": 1, "maximum": 10}
	},
	"required": ["query"]
}`

var compiledSchema = mustCompile(schemaJSON)

func mustCompile(raw string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("websearch.json", strings.NewReader(raw)); err != nil {
		panic(err)
	}
	s, err := c.Compile("websearch.json")
	if err != nil {
		panic(err)
	}
	return s
}

// Backend performs the actual network search. DuckDuckGoBackend is the
// default; a SearXNG- or Brave-backed implementation can be substituted
// without touching the Tool itself.
type Backend interface {
	Search(ctx context.Context, query string, count int) ([]models.Source, error)
}

// Config configures the web-search tool.
type Config struct {
	DefaultResultCount int
	HTTPClient         *http.Client
}

// Tool is the web-search tool.
type Tool struct {
	backend Backend
	cfg     Config
}

// New returns a web-search tool using the given Backend.
func New(backend Backend, cfg Config) *Tool {
	if cfg.DefaultResultCount <= 0 {
		cfg.DefaultResultCount = 5
	}
	return &Tool{backend: backend, cfg: cfg}
}

func (t *Tool) Name() string            { return "web_search" }
func (t *Tool) Priority() int           { return 10 }
func (t *Tool) Description() string     { return "Search the web for current information and return titles, URLs, and snippets." }
func (t *Tool) Schema() *jsonschema.Schema { return compiledSchema }
func (t *Tool) SchemaJSON() []byte         { return []byte(schemaJSON) }

type searchInput struct {
	Query       string `json:"query"`
	ResultCount int    `json:"result_count"`
}

// Execute runs the search and renders sources both as a human-readable
// summary (Content) and as structured Sources for citation display.
func (t *Tool) Execute(ctx context.Context, args json.RawMessage) models.ToolExecutionResult {
	result := models.ToolExecutionResult{ToolName: t.Name()}

	var in searchInput
	if err := json.Unmarshal(args, &in); err != nil {
		result.ErrorKind = models.ErrorKindInvalidStructuredOutput
		result.Content = "invalid arguments: " + err.Error()
		return result
	}
	if strings.TrimSpace(in.Query) == "" {
		result.ErrorKind = models.ErrorKindInvalidStructuredOutput
		result.Content = "query is required"
		return result
	}

	count := in.ResultCount
	if count <= 0 {
		count = t.cfg.DefaultResultCount
	}

	sources, err := t.backend.Search(ctx, in.Query, count)
	if err != nil {
		if ctx.Err() != nil {
			result.ErrorKind = models.ErrorKindTransientNetwork
		} else {
			result.ErrorKind = models.ErrorKindProviderError
		}
		result.Content = fmt.Sprintf("search failed: %v", err)
		return result
	}

	result.Success = true
	result.Sources = sources
	result.Content = renderSummary(in.Query, sources)
	return result
}

func renderSummary(query string, sources []models.Source) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Results for %q:\n", query)
	for i, s := range sources {
		fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, s.Title, s.URL)
		if s.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", s.Snippet)
		}
	}
	return b.String()
}

// NewDefaultHTTPClient returns the client used by concrete Backend
// implementations when the caller doesn't provide one.
func NewDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

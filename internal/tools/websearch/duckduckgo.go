package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/discord-agent/orchestrator/pkg/models"
)

// DuckDuckGoBackend queries DuckDuckGo's Instant Answer API. It has no API
// key requirement, matching the teacher's zero-config default backend.
type DuckDuckGoBackend struct {
	client *http.Client
}

// NewDuckDuckGoBackend returns a Backend using client, or a default
// 10-second-timeout client if nil.
func NewDuckDuckGoBackend(client *http.Client) *DuckDuckGoBackend {
	if client == nil {
		client = NewDefaultHTTPClient()
	}
	return &DuckDuckGoBackend{client: client}
}

type ddgResponse struct {
	AbstractText string `json:"AbstractText"`
	AbstractURL  string `json:"AbstractURL"`
	Heading      string `json:"Heading"`
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

func (b *DuckDuckGoBackend) Search(ctx context.Context, query string, count int) ([]models.Source, error) {
	endpoint := "https://api.duckduckgo.com/?" + url.Values{
		"q":      {query},
		"format": {"json"},
		"no_html": {"1"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo returned status %d", resp.StatusCode)
	}

	var parsed ddgResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	var sources []models.Source
	if parsed.AbstractText != "" {
		sources = append(sources, models.Source{
			Title:   parsed.Heading,
			URL:     parsed.AbstractURL,
			Snippet: parsed.AbstractText,
		})
	}
	for _, rt := range parsed.RelatedTopics {
		if len(sources) >= count {
			break
		}
		if rt.FirstURL == "" {
			continue
		}
		sources = append(sources, models.Source{
			Title:   rt.Text,
			URL:     rt.FirstURL,
			Snippet: rt.Text,
		})
	}

	if len(sources) > count {
		sources = sources[:count]
	}
	return sources, nil
}

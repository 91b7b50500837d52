package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const braveDefaultBaseURL = "https://api.search.brave.com/res/v1"

// WebSearchAdapter queries the Brave web search API. It needs no user
// credential, only the service API key.
type WebSearchAdapter struct {
	baseURL string
	apiKey  string
	client  *http.Client
	count   int
}

type WebSearchOption func(*WebSearchAdapter)

func WithWebSearchBaseURL(u string) WebSearchOption {
	return func(a *WebSearchAdapter) { a.baseURL = strings.TrimRight(u, "/") }
}

func WithWebSearchHTTPClient(c *http.Client) WebSearchOption {
	return func(a *WebSearchAdapter) { a.client = c }
}

func NewWebSearchAdapter(apiKey string, opts ...WebSearchOption) *WebSearchAdapter {
	a := &WebSearchAdapter{
		baseURL: braveDefaultBaseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
		count:   5,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *WebSearchAdapter) Name() string { return "web_search" }

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

func (a *WebSearchAdapter) Run(ctx context.Context, req Request) (Result, error) {
	query := strings.TrimSpace(req.Arg("query", req.Query))
	if query == "" {
		query = req.UserText
	}
	if a.apiKey == "" {
		return Result{}, fmt.Errorf("web search: API key is not configured")
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", fmt.Sprintf("%d", a.count))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/web/search?"+params.Encode(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("web search: create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Subscription-Token", a.apiKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("web search: request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("web search failed (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed braveResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Result{}, fmt.Errorf("web search: parse response: %w", err)
	}

	items := make([]Item, 0, len(parsed.Web.Results))
	for _, row := range parsed.Web.Results {
		title := strings.TrimSpace(row.Title)
		link := normalizeHTTPURL(row.URL)
		if title == "" || link == "" {
			continue
		}
		snippet := strings.TrimSpace(row.Description)
		if snippet == "" {
			snippet = title
		}
		items = append(items, Item{Title: title, URL: link, Snippet: snippet})
	}
	return Result{Query: query, Items: items}, nil
}

func normalizeHTTPURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ""
	}
	return parsed.String()
}

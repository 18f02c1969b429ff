// Package search calls the external web-search provider and folds its
// results into the context block returned to research callers.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lumenchat/request-gateway/internal/gwerr"
)

// Result is one web-search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Response is the search provider's answer for one query.
type Response struct {
	Answer  string   `json:"answer"`
	Results []Result `json:"results"`
}

// Client queries the external search provider.
type Client struct {
	baseURL    string
	apiKey     string
	maxResults int
	httpClient *http.Client
}

// NewClient builds a search client. maxResults bounds the result set
// requested per query.
func NewClient(baseURL, apiKey string, maxResults int, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		maxResults: maxResults,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type searchRequest struct {
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
}

// Search runs one query, requesting a short result set and an inline
// summarized answer. Any transport or provider failure is reported as a
// search provider error; the caller's quota must not be consumed for it.
func (c *Client) Search(ctx context.Context, query string) (*Response, error) {
	payload, err := json.Marshal(searchRequest{
		Query:         query,
		MaxResults:    c.maxResults,
		IncludeAnswer: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, gwerr.New(gwerr.KindSearchProvider, "search provider unreachable: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, gwerr.New(gwerr.KindSearchProvider,
			"search provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, gwerr.New(gwerr.KindSearchProvider, "decode search response: %v", err)
	}
	return &out, nil
}

// FormatContext folds a response into the single text block returned to the
// caller: an optional summarized-answer line followed by one numbered entry
// per result. Best-effort string building only.
func FormatContext(resp *Response) string {
	var b strings.Builder
	if strings.TrimSpace(resp.Answer) != "" {
		fmt.Fprintf(&b, "Summarized Answer: %s\n\n", strings.TrimSpace(resp.Answer))
	}
	for i, r := range resp.Results {
		fmt.Fprintf(&b, "%d. %s\n%s\n%s\n\n", i+1, r.Title, r.URL, r.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultSerpBaseURL = "https://serpapi.com"

	// webSearchTimeout bounds every outbound search call. The engine
	// treats a timeout the same as zero results.
	webSearchTimeout = 10 * time.Second
)

// SerpSearcher fetches Google results through the SERP API.
type SerpSearcher struct {
	baseURL    string
	httpClient *http.Client
}

// NewSerpSearcher creates a SerpSearcher. An empty baseURL selects the
// production endpoint.
func NewSerpSearcher(baseURL string) *SerpSearcher {
	if baseURL == "" {
		baseURL = defaultSerpBaseURL
	}
	return &SerpSearcher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: webSearchTimeout},
	}
}

type serpResponse struct {
	OrganicResults []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
		Link    string `json:"link"`
	} `json:"organic_results"`
}

// Search returns up to maxResults organic results for query.
func (c *SerpSearcher) Search(ctx context.Context, query, apiKey string, maxResults int) ([]WebResult, error) {
	if maxResults <= 0 {
		maxResults = 5
	}

	ctx, cancel := context.WithTimeout(ctx, webSearchTimeout)
	defer cancel()

	params := url.Values{}
	params.Set("q", query)
	params.Set("api_key", apiKey)
	params.Set("num", strconv.Itoa(maxResults))
	params.Set("engine", "google")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling serp api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serp api: unexpected status %d", resp.StatusCode)
	}

	var parsed serpResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding serp response: %w", err)
	}

	results := make([]WebResult, 0, maxResults)
	for _, r := range parsed.OrganicResults {
		if len(results) >= maxResults {
			break
		}
		results = append(results, WebResult{Title: r.Title, Snippet: r.Snippet, URL: r.Link})
	}
	return results, nil
}

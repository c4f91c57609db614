package itunes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/herbie30/PODCASTAPP/internal/domain"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://itunes.apple.com"

	defaultTimeout   = 15 * time.Second
	userAgent        = "podcastapp/1.0"
	searchLimit      = 50
	episodeLimit     = 200
	defaultPerMinute = 20 // Apple's documented allowance for the public API
)

// Options configures a Client
type Options struct {
	BaseURL           string
	Country           string
	Timeout           time.Duration
	RequestsPerMinute int
	HTTPClient        *http.Client
}

// Client implements domain.Catalog against the iTunes Search API
type Client struct {
	baseURL    string
	country    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a new iTunes catalog client
func NewClient(opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = defaultPerMinute
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	perSecond := rate.Limit(float64(opts.RequestsPerMinute) / 60)
	return &Client{
		baseURL:    opts.BaseURL,
		country:    opts.Country,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(perSecond, opts.RequestsPerMinute),
		logger:     logger,
	}
}

// Search finds podcasts matching query
func (c *Client) Search(ctx context.Context, query string) ([]domain.PodcastSummary, error) {
	const op = "search"
	q := url.Values{}
	q.Set("term", query)
	q.Set("media", "podcast")
	q.Set("entity", "podcast")
	q.Set("limit", strconv.Itoa(searchLimit))

	resp, err := c.get(ctx, op, "/search", q)
	if err != nil {
		return nil, err
	}

	summaries, dropped := MapPodcasts(resp.Results)
	for _, d := range dropped {
		c.logger.Warn("dropped malformed search result", "error", d, "query", query)
	}
	c.logger.Debug("search complete", "query", query, "results", len(summaries), "dropped", len(dropped))
	return summaries, nil
}

// ListEpisodes returns the catalog's episodes for podcastID
func (c *Client) ListEpisodes(ctx context.Context, podcastID string) ([]domain.Episode, error) {
	const op = "list episodes"
	q := url.Values{}
	q.Set("id", podcastID)
	q.Set("media", "podcast")
	q.Set("entity", "podcastEpisode")
	q.Set("limit", strconv.Itoa(episodeLimit))

	resp, err := c.get(ctx, op, "/lookup", q)
	if err != nil {
		return nil, err
	}
	if resp.ResultCount == 0 || len(resp.Results) == 0 {
		return nil, &domain.CatalogError{Kind: domain.CatalogNotFound, Op: op, Err: fmt.Errorf("podcast %s", podcastID)}
	}

	episodes, dropped := MapEpisodes(podcastID, resp.Results)
	for _, d := range dropped {
		c.logger.Warn("dropped malformed episode", "error", d, "podcastID", podcastID)
	}
	c.logger.Debug("fetched episodes", "podcastID", podcastID, "count", len(episodes), "dropped", len(dropped))
	return episodes, nil
}

// get performs a rate-limited GET and decodes the envelope
func (c *Client) get(ctx context.Context, op, path string, query url.Values) (*Response, error) {
	if c.country != "" {
		query.Set("country", c.country)
	}
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, query.Encode())

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &domain.CatalogError{Kind: domain.CatalogNetwork, Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	c.logger.Debug("catalog request", "url", reqURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("catalog request failed", "error", err)
		return nil, &domain.CatalogError{Kind: domain.CatalogNetwork, Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.CatalogError{Kind: domain.CatalogNetwork, Op: op, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &domain.CatalogError{Kind: domain.CatalogNotFound, Op: op, Err: errors.New(resp.Status)}
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests:
		c.logger.Error("catalog request error", "status", resp.StatusCode)
		return nil, &domain.CatalogError{Kind: domain.CatalogNetwork, Op: op, Err: errors.New(resp.Status)}
	case resp.StatusCode != http.StatusOK:
		c.logger.Error("catalog request error", "status", resp.StatusCode, "body", string(body))
		return nil, &domain.CatalogError{Kind: domain.CatalogMalformed, Op: op, Err: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
	}

	var decoded Response
	if err := json.Unmarshal(body, &decoded); err != nil {
		c.logger.Error("JSON parse error", "error", err, "bodyLen", len(body))
		return nil, &domain.CatalogError{Kind: domain.CatalogMalformed, Op: op, Err: err}
	}
	return &decoded, nil
}

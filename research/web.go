package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"
)

const (
	DefaultDuckDuckGoURL = "https://api.duckduckgo.com/"
	DefaultWikipediaURL  = "https://en.wikipedia.org/api/rest_v1/page/summary/"
	DefaultTimeout       = 10 * time.Second
	DefaultUserAgent     = "niblit/1.0"

	maxRelatedTopics = 3
	maxBodyBytes     = 1 << 20
	retryInitial     = 200 * time.Millisecond
	retryMax         = 2 * time.Second
	defaultRetries   = 2
)

// WebSearcher looks a query up on the web and returns plain-text snippets.
// No results is an empty slice and a nil error.
type WebSearcher interface {
	Search(ctx context.Context, query string) ([]string, error)
}

// HTTPSearcher queries DuckDuckGo instant answers and falls back to the
// Wikipedia page summary when DuckDuckGo has nothing.
type HTTPSearcher struct {
	client        *http.Client
	duckDuckGoURL string
	wikipediaURL  string
	userAgent     string
	timeout       time.Duration
	retries       uint64
	logger        zerolog.Logger
}

// SearcherOption configures an HTTPSearcher.
type SearcherOption func(*HTTPSearcher)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) SearcherOption {
	return func(s *HTTPSearcher) { s.client = c }
}

// WithEndpoints overrides the DuckDuckGo and Wikipedia base URLs.
func WithEndpoints(duckDuckGo, wikipedia string) SearcherOption {
	return func(s *HTTPSearcher) {
		s.duckDuckGoURL = duckDuckGo
		s.wikipediaURL = wikipedia
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) SearcherOption {
	return func(s *HTTPSearcher) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

// WithTimeout bounds a whole Search call, retries included.
func WithTimeout(d time.Duration) SearcherOption {
	return func(s *HTTPSearcher) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRetries sets how many times a transient failure is retried.
func WithRetries(n uint64) SearcherOption {
	return func(s *HTTPSearcher) { s.retries = n }
}

// NewHTTPSearcher returns a searcher for the public endpoints.
func NewHTTPSearcher(logger zerolog.Logger, opts ...SearcherOption) *HTTPSearcher {
	s := &HTTPSearcher{
		client:        http.DefaultClient,
		duckDuckGoURL: DefaultDuckDuckGoURL,
		wikipediaURL:  DefaultWikipediaURL,
		userAgent:     DefaultUserAgent,
		timeout:       DefaultTimeout,
		retries:       defaultRetries,
		logger:        logger.With().Str("component", "web_search").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ WebSearcher = (*HTTPSearcher)(nil)

type duckDuckGoResponse struct {
	AbstractText  string `json:"AbstractText"`
	RelatedTopics []struct {
		Text string `json:"Text"`
	} `json:"RelatedTopics"`
}

type wikipediaSummary struct {
	Extract string `json:"extract"`
}

// errNotFound marks a 404, which means no results rather than a failure.
var errNotFound = errors.New("not found")

// Search implements WebSearcher. A DuckDuckGo failure is only returned when
// the Wikipedia fallback fails as well.
func (s *HTTPSearcher) Search(ctx context.Context, query string) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("empty query")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	results, ddgErr := s.searchDuckDuckGo(ctx, query)
	if ddgErr == nil && len(results) > 0 {
		return results, nil
	}
	if ddgErr != nil {
		s.logger.Debug().Err(ddgErr).Str("query", query).Msg("DuckDuckGo lookup failed, trying Wikipedia")
	}

	summary, wikiErr := s.searchWikipedia(ctx, query)
	switch {
	case wikiErr == nil && summary != "":
		return []string{summary}, nil
	case wikiErr != nil && !errors.Is(wikiErr, errNotFound):
		if ddgErr != nil {
			return nil, errors.Join(ddgErr, wikiErr)
		}
		return nil, wikiErr
	case ddgErr != nil:
		return nil, ddgErr
	}
	return []string{}, nil
}

func (s *HTTPSearcher) searchDuckDuckGo(ctx context.Context, query string) ([]string, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")
	q.Set("skip_disambig", "1")

	var resp duckDuckGoResponse
	if err := s.getJSON(ctx, s.duckDuckGoURL+"?"+q.Encode(), &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("duckduckgo: %w", err)
	}

	var results []string
	if t := htmlToText(resp.AbstractText); t != "" {
		results = append(results, t)
	}
	related := 0
	for _, topic := range resp.RelatedTopics {
		if related == maxRelatedTopics {
			break
		}
		if t := htmlToText(topic.Text); t != "" {
			results = append(results, t)
			related++
		}
	}
	return results, nil
}

func (s *HTTPSearcher) searchWikipedia(ctx context.Context, query string) (string, error) {
	title := url.PathEscape(strings.ReplaceAll(query, " ", "_"))
	var resp wikipediaSummary
	if err := s.getJSON(ctx, s.wikipediaURL+title, &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return "", err
		}
		return "", fmt.Errorf("wikipedia: %w", err)
	}
	return htmlToText(resp.Extract), nil
}

// getJSON fetches target and decodes the body into v. Network errors and 5xx
// or 429 responses are retried; other statuses are permanent.
func (s *HTTPSearcher) getJSON(ctx context.Context, target string, v any) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = retryInitial
	eb.MaxInterval = retryMax
	eb.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, s.retries), ctx)

	return backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", s.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(errNotFound)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("HTTP %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("HTTP %d", resp.StatusCode))
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, v); err != nil {
			return backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	}, policy)
}

// htmlToText renders an HTML fragment as plain text with collapsed whitespace.
func htmlToText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	var buf strings.Builder
	extractText(doc, &buf)
	return strings.Join(strings.Fields(buf.String()), " ")
}

func extractText(n *html.Node, buf *strings.Builder) {
	switch {
	case n.Type == html.TextNode:
		buf.WriteString(n.Data)
	case n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style"):
		return
	case n.Type == html.ElementNode && (n.Data == "br" || n.Data == "p"):
		buf.WriteString(" ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractText(c, buf)
	}
}

// Package registry is the HTTP client for the business-registry web
// application: paginated search, session exchange, and detail-page
// scraping. Network failures surface as transient errors for the retry
// policy; session and not-found conditions map to typed errors.
package registry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/registry-scraper/internal/model"
	"github.com/sells-group/registry-scraper/internal/resilience"
)

const (
	headerChallengeToken = "x-recaptcha-token"
	headerSessionToken   = "x-search-session"
)

// Client defines the registry operations the crawl depends on.
type Client interface {
	// Search fetches one page of results for a query. Idempotent for a
	// fixed (query, page, session-validity) triple.
	Search(ctx context.Context, session model.Session, query string, page int) (model.SearchPage, error)
	// FetchDetails retrieves the registered-agent fields for a business.
	FetchDetails(ctx context.Context, session model.Session, registrationID string) (model.AgentDetails, error)
	// ExchangeToken trades a solved challenge token for a session token.
	ExchangeToken(ctx context.Context, challengeToken, query string) (string, error)
}

// Option configures the HTTP client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client, e.g. one with a proxy transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets the polite inter-request rate. Zero disables the wait.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		} else {
			c.limiter = nil
		}
	}
}

// WithUserAgent sets the User-Agent header for all requests.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		c.userAgent = ua
	}
}

type httpClient struct {
	baseURL   string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
}

// NewClient creates a registry client. The default rate limit of one
// request per second matches the registry's tolerance; requests block on
// the shared limiter so search and detail calls never overlap it.
func NewClient(baseURL string, opts ...Option) Client {
	c := &httpClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		limiter:   rate.NewLimiter(1, 1),
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) get(ctx context.Context, reqURL string, headers map[string]string) ([]byte, int, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, eris.Wrap(err, "registry: rate limiter wait")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, eris.Wrap(err, "registry: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json, text/html")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Let the retry policy classify the network failure.
		return nil, 0, resilience.NewTransientError(eris.Wrap(err, "registry: request failed"), 0)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, resp.StatusCode, resilience.NewTransientError(eris.Wrap(err, "registry: read body"), resp.StatusCode)
	}

	return body, resp.StatusCode, nil
}

func (c *httpClient) searchURL(query string, page int) string {
	return c.baseURL + "/api/search?q=" + url.QueryEscape(query) + "&page=" + strconv.Itoa(page)
}

// Search fetches one page of search results using the session token.
func (c *httpClient) Search(ctx context.Context, session model.Session, query string, page int) (model.SearchPage, error) {
	if query == "" {
		return model.SearchPage{}, eris.New("registry: empty query")
	}
	if page < 1 {
		return model.SearchPage{}, eris.Errorf("registry: invalid page %d", page)
	}

	body, status, err := c.get(ctx, c.searchURL(query, page), map[string]string{
		headerSessionToken: session.Token,
	})
	if err != nil {
		return model.SearchPage{}, err
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return model.SearchPage{}, ErrSessionExpired
	}
	if resilience.IsTransientHTTPStatus(status) {
		return model.SearchPage{}, resilience.NewTransientError(
			eris.Errorf("registry: search %q page %d: status %d", query, page, status), status)
	}
	if status != http.StatusOK {
		return model.SearchPage{}, eris.Errorf("registry: search %q page %d: unexpected status %d", query, page, status)
	}

	raw, err := decodeBody(body)
	if err != nil {
		return model.SearchPage{}, eris.Wrapf(err, "registry: search %q page %d", query, page)
	}
	if msg := stringField(raw, "error"); msg != "" {
		if isSessionError(msg) {
			return model.SearchPage{}, ErrSessionExpired
		}
		return model.SearchPage{}, eris.Errorf("registry: search %q page %d: %s", query, page, msg)
	}

	return pageFromAPI(raw, page), nil
}

// ExchangeToken requests page 1 of a search with the challenge token
// attached and returns the session token from the response. When the
// response carries no session field the challenge token itself is
// returned; some registry deployments accept it directly.
func (c *httpClient) ExchangeToken(ctx context.Context, challengeToken, query string) (string, error) {
	body, status, err := c.get(ctx, c.searchURL(query, 1), map[string]string{
		headerChallengeToken: challengeToken,
	})
	if err != nil {
		return "", err
	}

	if resilience.IsTransientHTTPStatus(status) {
		return "", resilience.NewTransientError(eris.Errorf("registry: exchange: status %d", status), status)
	}
	if status != http.StatusOK {
		return "", eris.Errorf("registry: exchange: unexpected status %d", status)
	}

	raw, err := decodeBody(body)
	if err != nil {
		return "", eris.Wrap(err, "registry: exchange")
	}
	if msg := stringField(raw, "error"); msg != "" {
		return "", eris.Errorf("registry: exchange rejected: %s", msg)
	}

	if session := stringField(raw, "session"); session != "" {
		return session, nil
	}
	return challengeToken, nil
}

// decodeBody parses a response body into a loosely-typed map so field
// extraction can default instead of erroring on schema drift.
func decodeBody(body []byte) (map[string]any, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, eris.Wrap(err, "decode response")
	}
	return raw, nil
}

// pageFromAPI assembles a SearchPage from the raw response. Every field
// defaults rather than fails: a page with no results is empty, a missing
// totalPages means a single page.
func pageFromAPI(raw map[string]any, requested int) model.SearchPage {
	page := model.SearchPage{
		Page:       intField(raw, "page"),
		TotalPages: intField(raw, "totalPages"),
		Total:      intField(raw, "total"),
	}
	if page.Page < 1 {
		page.Page = requested
	}
	if page.TotalPages < 1 {
		page.TotalPages = 1
	}

	items, _ := raw["results"].([]any)
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		page.Items = append(page.Items, model.SummaryFromAPI(m))
	}
	return page
}

func isSessionError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "session") || strings.Contains(lower, "token")
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

// intField tolerates the number representations JSON decoding produces.
func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

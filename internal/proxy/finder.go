package proxy

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultListURL   = "https://free-proxy-list.net/en/"
	defaultTestURL   = "https://httpbin.org/ip"
	defaultMaxChecks = 20
	checkConcurrency = 5
)

// CheckFunc reports whether a proxy URL can reach the test endpoint.
type CheckFunc func(ctx context.Context, proxyURL string) error

// Finder scrapes the public proxy list and picks a working candidate.
type Finder struct {
	listURL   string
	testURL   string
	maxChecks int
	http      *http.Client
	check     CheckFunc
	log       *zap.Logger
}

// FinderOption configures a Finder.
type FinderOption func(*Finder)

// WithListURL overrides the proxy-list page.
func WithListURL(u string) FinderOption {
	return func(f *Finder) { f.listURL = u }
}

// WithTestURL overrides the endpoint candidates are checked against.
func WithTestURL(u string) FinderOption {
	return func(f *Finder) { f.testURL = u }
}

// WithMaxChecks bounds how many candidates get a live check.
func WithMaxChecks(n int) FinderOption {
	return func(f *Finder) { f.maxChecks = n }
}

// WithFinderHTTPClient sets the client used to fetch the list page.
func WithFinderHTTPClient(hc *http.Client) FinderOption {
	return func(f *Finder) { f.http = hc }
}

// WithCheckFunc replaces the live proxy check (for testing).
func WithCheckFunc(fn CheckFunc) FinderOption {
	return func(f *Finder) { f.check = fn }
}

// NewFinder creates a proxy finder with production defaults.
func NewFinder(opts ...FinderOption) *Finder {
	f := &Finder{
		listURL:   defaultListURL,
		testURL:   defaultTestURL,
		maxChecks: defaultMaxChecks,
		http:      &http.Client{Timeout: 30 * time.Second},
		log:       zap.L().With(zap.String("component", "proxy.finder")),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.check == nil {
		f.check = f.httpCheck
	}
	return f
}

// Find returns a proxy URL. The highest-scoring candidate that passes a
// live check wins; if none pass, the best-scoring candidate is returned
// anyway since free proxies fail checks yet often still work.
func (f *Finder) Find(ctx context.Context) (string, error) {
	candidates, err := f.fetchList(ctx)
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		return "", eris.New("proxy: list page yielded no candidates")
	}

	ranked := rank(candidates)
	if len(ranked) > f.maxChecks {
		ranked = ranked[:f.maxChecks]
	}
	f.log.Info("checking proxy candidates", zap.Int("candidates", len(ranked)))

	working := f.checkAll(ctx, ranked)
	if len(working) > 0 {
		best := working[0]
		f.log.Info("found working proxy", zap.String("proxy", best.URL()), zap.Int("working", len(working)))
		return best.URL(), nil
	}

	fallback := ranked[0].URL()
	f.log.Warn("no candidate passed the check, using best-scored fallback", zap.String("proxy", fallback))
	return fallback, nil
}

func (f *Finder) fetchList(ctx context.Context) ([]Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.listURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "proxy: create list request")
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "proxy: fetch list page")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("proxy: list page status %d", resp.StatusCode)
	}
	return ParseList(resp.Body, f.maxChecks*3)
}

// checkAll probes candidates concurrently and returns the ones that
// passed, best score first.
func (f *Finder) checkAll(ctx context.Context, candidates []Candidate) []Candidate {
	var mu sync.Mutex
	var working []Candidate

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(checkConcurrency)
	for _, c := range candidates {
		g.Go(func() error {
			if err := f.check(gctx, c.URL()); err != nil {
				f.log.Debug("proxy check failed", zap.String("proxy", c.URL()), zap.Error(err))
				return nil
			}
			mu.Lock()
			working = append(working, c)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return rank(working)
}

// httpCheck routes a request to the test endpoint through the proxy.
func (f *Finder) httpCheck(ctx context.Context, proxyURL string) error {
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return eris.Wrapf(err, "proxy: parse %s", proxyURL)
	}

	client := &http.Client{
		Timeout:   15 * time.Second,
		Transport: &http.Transport{Proxy: http.ProxyURL(parsed)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.testURL, nil)
	if err != nil {
		return eris.Wrap(err, "proxy: create check request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return eris.Wrap(err, "proxy: check request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("proxy: check status %d", resp.StatusCode)
	}
	return nil
}

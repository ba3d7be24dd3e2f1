// Package browser manages the Chromium instance the scraper drives. The
// registry is server-rendered behind a verification challenge, so search
// sessions have to be minted from a real browser context.
package browser

import (
	"context"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// stealthScript hides the most common automation tell before any page
// script runs.
const stealthScript = `Object.defineProperty(navigator, 'webdriver', { get: () => false });`

// Options configures the browser launch.
type Options struct {
	// Headed runs the browser visibly so a human can take over the
	// challenge when the audio flow fails.
	Headed bool
	// ProxyURL routes all browser traffic through the given proxy.
	ProxyURL string
	// UserAgent overrides the default desktop Chrome user agent.
	UserAgent string
	// PageTimeout bounds individual page operations. Default: 45s.
	PageTimeout time.Duration
}

// Browser wraps a connected rod browser.
type Browser struct {
	browser     *rod.Browser
	launch      *launcher.Launcher
	userAgent   string
	pageTimeout time.Duration
}

// New launches Chromium and connects to it. Callers must Close.
func New(opts Options) (*Browser, error) {
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	pageTimeout := opts.PageTimeout
	if pageTimeout <= 0 {
		pageTimeout = 45 * time.Second
	}

	l := launcher.New().
		Headless(!opts.Headed).
		NoSandbox(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage").
		Set("disable-gpu")
	if opts.ProxyURL != "" {
		l = l.Proxy(opts.ProxyURL)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, eris.Wrap(err, "browser: launch")
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, eris.Wrap(err, "browser: connect")
	}

	zap.L().Info("browser started", zap.Bool("headed", opts.Headed), zap.Bool("proxied", opts.ProxyURL != ""))
	return &Browser{browser: b, launch: l, userAgent: ua, pageTimeout: pageTimeout}, nil
}

// OpenPage creates a stealth-prepared page and navigates it to rawURL,
// waiting for the load event.
func (b *Browser) OpenPage(ctx context.Context, rawURL string) (*rod.Page, error) {
	page, err := b.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, eris.Wrap(err, "browser: create page")
	}
	page = page.Timeout(b.pageTimeout)

	if _, err := page.EvalOnNewDocument(stealthScript); err != nil {
		page.MustClose()
		return nil, eris.Wrap(err, "browser: install stealth script")
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: b.userAgent}); err != nil {
		page.MustClose()
		return nil, eris.Wrap(err, "browser: set user agent")
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{Width: 1920, Height: 1080}); err != nil {
		page.MustClose()
		return nil, eris.Wrap(err, "browser: set viewport")
	}

	if err := page.Navigate(rawURL); err != nil {
		page.MustClose()
		return nil, eris.Wrapf(err, "browser: navigate %s", rawURL)
	}
	if err := page.WaitLoad(); err != nil {
		page.MustClose()
		return nil, eris.Wrapf(err, "browser: wait load %s", rawURL)
	}

	return page, nil
}

// Close shuts the browser down and cleans up the launcher's temp profile.
func (b *Browser) Close() {
	if b.browser != nil {
		_ = b.browser.Close()
	}
	if b.launch != nil {
		b.launch.Cleanup()
	}
	zap.L().Info("browser closed")
}

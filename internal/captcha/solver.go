// Package captcha clears the registry's human-verification gate. The
// automatic path clicks through to the audio challenge, transcribes the
// clip, and submits the answer; in headed mode a human can finish the
// challenge when the audio flow fails.
package captcha

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/registry-scraper/internal/browser"
)

// ErrRateLimited reports that the challenge provider cut off automated
// solving. Waiting, not retrying, is the only remedy.
var ErrRateLimited = eris.New("captcha: rate limited by challenge provider")

const (
	anchorFrameSelector = `iframe[src*="api2/anchor"]`
	bframeSelector      = `iframe[src*="api2/bframe"]`
	tokenScript         = `() => { const el = document.querySelector('textarea[name="g-recaptcha-response"]'); return el ? el.value : ''; }`
)

// Gate drives the verification challenge on the registry's search page.
type Gate struct {
	browser     *browser.Browser
	transcriber Transcriber
	pageURL     string
	attempts    int
	headed      bool
	http        *http.Client
	log         *zap.Logger
}

// GateConfig configures a Gate.
type GateConfig struct {
	// PageURL is the challenge-gated search page.
	PageURL string
	// Attempts bounds the audio rounds before giving up. Default: 5.
	Attempts int
	// Headed enables the manual fallback: when the audio flow fails the
	// gate polls for a human-solved token until the context expires.
	Headed bool
}

// NewGate creates a challenge gate over a running browser.
func NewGate(b *browser.Browser, t Transcriber, cfg GateConfig) *Gate {
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 5
	}
	return &Gate{
		browser:     b,
		transcriber: t,
		pageURL:     cfg.PageURL,
		attempts:    attempts,
		headed:      cfg.Headed,
		http:        &http.Client{Timeout: 30 * time.Second},
		log:         zap.L().With(zap.String("component", "captcha.gate")),
	}
}

// Solve loads the challenge page and returns the response token. The
// caller bounds the whole operation with ctx; this is the only place a
// time budget applies to challenge solving.
func (g *Gate) Solve(ctx context.Context) (string, error) {
	page, err := g.browser.OpenPage(ctx, g.pageURL)
	if err != nil {
		return "", eris.Wrap(err, "captcha: open challenge page")
	}
	defer page.MustClose()

	token, solveErr := g.solveAudio(ctx, page)
	if solveErr == nil {
		g.log.Info("challenge solved via audio transcription")
		return token, nil
	}
	if eris.Is(solveErr, ErrRateLimited) || !g.headed {
		return "", solveErr
	}

	// Headed mode: leave the browser open and wait for a human.
	g.log.Warn("audio flow failed, waiting for manual solve", zap.Error(solveErr))
	return g.waitForManualToken(ctx, page)
}

// solveAudio clicks the checkbox and, if challenged, works through up to
// g.attempts audio rounds.
func (g *Gate) solveAudio(ctx context.Context, page *rod.Page) (string, error) {
	if err := g.clickCheckbox(page); err != nil {
		return "", err
	}

	// The checkbox alone sometimes passes.
	if token := g.readToken(page); token != "" {
		return token, nil
	}

	if err := g.openAudioChallenge(page); err != nil {
		return "", err
	}

	for attempt := 1; attempt <= g.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", eris.Wrap(err, "captcha: solve canceled")
		}

		token, err := g.audioRound(ctx, page)
		if err != nil {
			if eris.Is(err, ErrRateLimited) {
				return "", err
			}
			g.log.Warn("audio round failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		if token != "" {
			return token, nil
		}
	}

	return "", eris.Errorf("captcha: no token after %d audio rounds", g.attempts)
}

func (g *Gate) clickCheckbox(page *rod.Page) error {
	anchor, err := page.Element(anchorFrameSelector)
	if err != nil {
		return eris.Wrap(err, "captcha: challenge widget not found")
	}
	frame, err := anchor.Frame()
	if err != nil {
		return eris.Wrap(err, "captcha: anchor frame")
	}
	checkbox, err := frame.Element("#recaptcha-anchor")
	if err != nil {
		return eris.Wrap(err, "captcha: checkbox not found")
	}
	if err := checkbox.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return eris.Wrap(err, "captcha: click checkbox")
	}
	time.Sleep(2 * time.Second)
	return nil
}

func (g *Gate) openAudioChallenge(page *rod.Page) error {
	frame, err := g.challengeFrame(page)
	if err != nil {
		return err
	}
	button, err := frame.Element("#recaptcha-audio-button")
	if err != nil {
		return eris.Wrap(err, "captcha: audio button not found")
	}
	if err := button.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return eris.Wrap(err, "captcha: click audio button")
	}
	time.Sleep(time.Second)
	return nil
}

// audioRound downloads the current clip, transcribes it, submits the
// answer, and reads back the token. An empty token with no error means
// the provider served a fresh clip for another round.
func (g *Gate) audioRound(ctx context.Context, page *rod.Page) (string, error) {
	frame, err := g.challengeFrame(page)
	if err != nil {
		return "", err
	}

	if g.isRateLimited(frame) {
		return "", ErrRateLimited
	}

	src, err := g.audioSource(frame)
	if err != nil {
		return "", err
	}

	audio, err := g.download(ctx, src)
	if err != nil {
		return "", err
	}

	answer, err := g.transcriber.Transcribe(ctx, audio)
	if err != nil {
		return "", eris.Wrap(err, "captcha: transcribe clip")
	}
	g.log.Debug("transcribed challenge clip", zap.Int("bytes", len(audio)))

	input, err := frame.Element("#audio-response")
	if err != nil {
		return "", eris.Wrap(err, "captcha: answer input not found")
	}
	if err := input.Input(strings.ToLower(strings.TrimSpace(answer))); err != nil {
		return "", eris.Wrap(err, "captcha: type answer")
	}

	verify, err := frame.Element("#recaptcha-verify-button")
	if err != nil {
		return "", eris.Wrap(err, "captcha: verify button not found")
	}
	if err := verify.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return "", eris.Wrap(err, "captcha: click verify")
	}
	time.Sleep(2 * time.Second)

	return g.readToken(page), nil
}

func (g *Gate) challengeFrame(page *rod.Page) (*rod.Page, error) {
	el, err := page.Element(bframeSelector)
	if err != nil {
		return nil, eris.Wrap(err, "captcha: challenge frame not found")
	}
	frame, err := el.Frame()
	if err != nil {
		return nil, eris.Wrap(err, "captcha: resolve challenge frame")
	}
	return frame, nil
}

func (g *Gate) isRateLimited(frame *rod.Page) bool {
	header, err := frame.Timeout(time.Second).Element(".rc-doscaptcha-header")
	if err != nil {
		return false
	}
	text, err := header.Text()
	return err == nil && strings.Contains(strings.ToLower(text), "try again later")
}

func (g *Gate) audioSource(frame *rod.Page) (string, error) {
	source, err := frame.Element("#audio-source")
	if err != nil {
		return "", eris.Wrap(err, "captcha: audio source not found")
	}
	src, err := source.Attribute("src")
	if err != nil || src == nil || *src == "" {
		return "", eris.New("captcha: audio source has no src")
	}
	return *src, nil
}

func (g *Gate) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "captcha: create audio request")
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "captcha: download audio")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("captcha: audio download status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
}

// readToken pulls the response token from the host page, empty when the
// challenge is still unsolved.
func (g *Gate) readToken(page *rod.Page) string {
	result, err := page.Eval(tokenScript)
	if err != nil {
		return ""
	}
	return result.Value.Str()
}

// waitForManualToken polls for a human-solved token until ctx expires.
func (g *Gate) waitForManualToken(ctx context.Context, page *rod.Page) (string, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", eris.Wrap(ctx.Err(), "captcha: manual solve window expired")
		case <-ticker.C:
			if token := g.readToken(page); token != "" {
				g.log.Info("challenge solved manually")
				return token, nil
			}
		}
	}
}

// Package headless fetches the disclosure list page through headless Chrome.
//
// The browser is a long-lived session: Open starts it, Close tears it down,
// and the supervisor recycles it periodically to bound memory growth.
package headless

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/kapwatch/internal/disclosure"
)

// DefaultPageURL is the public KAP disclosure list.
const DefaultPageURL = "https://www.kap.org.tr/tr/bildirim-sorgu"

// Source tags records produced by this fetcher.
const Source = "kap-browser"

// ErrSessionClosed is returned by Fetch when no browser is running.
var ErrSessionClosed = errors.New("browser session is not open")

// Config controls the headless fetcher.
type Config struct {
	PageURL           string
	UserAgent         string
	NavigationTimeout time.Duration
	Selectors         Selectors
}

// Fetcher implements disclosure.Fetcher and disclosure.Session.
type Fetcher struct {
	cfg    Config
	logger *zap.Logger

	mu            sync.Mutex
	browser       context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
}

// New builds a closed Fetcher; call Open before Fetch.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.PageURL == "" {
		cfg.PageURL = DefaultPageURL
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 25 * time.Second
	}
	cfg.Selectors = cfg.Selectors.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{cfg: cfg, logger: logger}
}

// Open launches a fresh browser. An already open browser is closed first.
func (f *Fetcher) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeLocked()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if f.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(f.cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	warmCtx, cancelWarm := context.WithTimeout(browserCtx, f.cfg.NavigationTimeout)
	defer cancelWarm()
	stop := forwardCancel(ctx, cancelWarm)
	defer stop()
	if err := chromedp.Run(warmCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("start browser: %w", err)
	}

	f.browser = browserCtx
	f.browserCancel = browserCancel
	f.allocCancel = allocCancel
	f.logger.Info("browser session opened")
	return nil
}

// Close stops the browser. It is safe to call on a closed Fetcher.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeLocked()
	return nil
}

func (f *Fetcher) closeLocked() {
	if f.browser == nil {
		return
	}
	f.browserCancel()
	f.allocCancel()
	f.browser = nil
	f.browserCancel = nil
	f.allocCancel = nil
	f.logger.Info("browser session closed")
}

// Fetch renders the disclosure list in a new tab and parses its rows.
func (f *Fetcher) Fetch(ctx context.Context) ([]disclosure.RawRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser == nil {
		return nil, ErrSessionClosed
	}

	tabCtx, cancelTab := chromedp.NewContext(f.browser)
	defer cancelTab()
	taskCtx, cancelTask := context.WithTimeout(tabCtx, f.cfg.NavigationTimeout)
	defer cancelTask()
	stop := forwardCancel(ctx, cancelTask)
	defer stop()

	meta := &responseMeta{}
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	html, finalURL, err := f.render(taskCtx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("render %s: %w", f.cfg.PageURL, ctxErr)
		}
		return nil, fmt.Errorf("render %s: %w", f.cfg.PageURL, err)
	}
	if status := meta.status(); status >= 400 {
		return nil, fmt.Errorf("render %s: document status %d", f.cfg.PageURL, status)
	}
	return ParseRows(html, finalURL, f.cfg.Selectors)
}

func (f *Fetcher) render(ctx context.Context) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		f.networkSetupAction(),
		chromedp.Navigate(f.cfg.PageURL),
		chromedp.WaitVisible(f.cfg.Selectors.Row, chromedp.ByQuery),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	if finalURL == "" {
		finalURL = f.cfg.PageURL
	}
	return html, finalURL, nil
}

func (f *Fetcher) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// responseMeta records the status of the main document response.
type responseMeta struct {
	mu   sync.Mutex
	code int
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok {
		return
	}
	m.capture(resp)
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	m.code = int(event.Response.Status)
	m.mu.Unlock()
}

func (m *responseMeta) status() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.code
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

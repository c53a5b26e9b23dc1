// Package headless renders JavaScript-driven pages with headless Chrome.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/storefront-ingest/internal/catalog"
)

const (
	defaultNavigationTimeout = 45 * time.Second
	defaultWaitTimeout       = 10 * time.Second
)

// Config controls the behavior of the headless renderer.
type Config struct {
	UserAgent         string
	Headers           http.Header
	NavigationTimeout time.Duration
	// WaitSelector must match at least one element before the DOM is captured.
	WaitSelector string
	WaitTimeout  time.Duration
	// SelectorOptional captures the DOM anyway when WaitSelector never
	// appears on a page whose body rendered, e.g. past the last result page.
	SelectorOptional bool
	// WindowSize is the browser viewport as width and height.
	WindowSize [2]int
}

// Page is one rendered document.
type Page struct {
	URL        string
	StatusCode int
	HTML       []byte
	Duration   time.Duration
}

// Fetcher renders pages using chromedp. Renders are serialized on one
// browser allocator.
type Fetcher struct {
	cfg         Config
	mu          sync.Mutex
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a headless renderer backed by chromedp.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.WaitSelector == "" {
		return nil, fmt.Errorf("wait selector is required")
	}
	if cfg.WindowSize[0] < 0 || cfg.WindowSize[1] < 0 {
		return nil, fmt.Errorf("window size must be >= 0")
	}
	if cfg.WindowSize == [2]int{} {
		cfg.WindowSize = [2]int{1920, 1080}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(cfg.WindowSize[0], cfg.WindowSize[1]),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close shuts the browser down.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Render navigates to rawURL, waits for the configured selector, and returns
// the rendered DOM. Navigation and wait failures are transient, except a
// selector timeout when SelectorOptional is set.
func (f *Fetcher) Render(ctx context.Context, rawURL string) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()
	stop := context.AfterFunc(ctx, taskCancel)
	defer stop()

	taskCtx, cancel := context.WithTimeout(taskCtx, f.navTimeout())
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()
	html, finalURL, err := f.run(taskCtx, rawURL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Page{}, ctxErr
		}
		return Page{}, &catalog.TransientError{Op: "render", Err: err}
	}

	status, responseURL := meta.snapshotWithFallbacks(rawURL, finalURL)
	if status < 200 || status >= 300 {
		return Page{}, &catalog.TransientError{Op: "render", StatusCode: status}
	}
	return Page{
		URL:        responseURL,
		StatusCode: status,
		HTML:       []byte(html),
		Duration:   time.Since(start),
	}, nil
}

func (f *Fetcher) run(ctx context.Context, rawURL string) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	if err := chromedp.Run(ctx,
		f.networkSetupAction(),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return "", "", fmt.Errorf("navigate: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, f.waitTimeout())
	defer cancel()
	if err := chromedp.Run(waitCtx, chromedp.WaitReady(f.cfg.WaitSelector, chromedp.ByQuery)); err != nil {
		if !f.selectorMissTolerated(ctx, err) {
			return "", "", fmt.Errorf("wait for %q: %w", f.cfg.WaitSelector, err)
		}
	}

	if err := chromedp.Run(ctx,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return "", "", fmt.Errorf("capture dom: %w", err)
	}
	return html, finalURL, nil
}

// selectorMissTolerated reports whether a failed selector wait should still
// yield the page. Only the wait's own deadline qualifies; parent is the
// navigation context and must still be live.
func (f *Fetcher) selectorMissTolerated(parent context.Context, waitErr error) bool {
	return f.cfg.SelectorOptional && errors.Is(waitErr, context.DeadlineExceeded) && parent.Err() == nil
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
		if len(f.cfg.Headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(f.cfg.Headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) navTimeout() time.Duration {
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return defaultNavigationTimeout
}

func (f *Fetcher) waitTimeout() time.Duration {
	if f.cfg.WaitTimeout > 0 {
		return f.cfg.WaitTimeout
	}
	return defaultWaitTimeout
}

// responseMeta records the status of the main document response.
type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// Only the first document response is the navigation target.
	if m.status != 0 {
		return
	}
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, string) {
	m.mu.RLock()
	status, url := m.status, m.url
	m.mu.RUnlock()
	switch {
	case finalURL != "":
		url = finalURL
	case url == "":
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, url
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		switch len(values) {
		case 0:
		case 1:
			headers[key] = values[0]
		default:
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}

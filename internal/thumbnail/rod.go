// Package thumbnail renders preview images of pens in a headless browser.
//
// After a pen is created or updated the Worker renders its composed document
// with a Renderer, writes {dir}/{id}.png and stores "/thumbnails/{id}.png"
// as the pen's thumbnail reference.
package thumbnail

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Viewport of a thumbnail.
const (
	Width  = 1200
	Height = 750
)

// blackholeProxy is an address nothing listens on. Chrome is pointed at it
// so any connection a pen opens fails, WebSockets included.
const blackholeProxy = "127.0.0.1:9"

// Renderer turns an HTML document into a PNG image.
type Renderer interface {
	Render(ctx context.Context, document string) ([]byte, error)
}

// RodRenderer renders with headless Chrome driven by go-rod. The browser is
// launched on first use and shared by later renders.
type RodRenderer struct {
	bin      string
	settle   time.Duration
	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// NewRodRenderer creates a renderer. bin is the Chrome binary; empty lets
// rod find or download one.
func NewRodRenderer(bin string) *RodRenderer {
	return &RodRenderer{bin: bin, settle: 300 * time.Millisecond}
}

func (r *RodRenderer) connect() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		return r.browser, nil
	}

	l := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("proxy-server", blackholeProxy).
		Set("proxy-bypass-list", "<-loopback>")
	if r.bin != "" {
		l = l.Bin(r.bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("thumbnail: launching chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("thumbnail: connecting to chrome: %w", err)
	}

	r.launcher = l
	r.browser = browser
	return browser, nil
}

// Render loads document into a fresh incognito page and screenshots the
// viewport. The page may not load anything over the network.
func (r *RodRenderer) Render(ctx context.Context, document string) ([]byte, error) {
	browser, err := r.connect()
	if err != nil {
		return nil, err
	}

	incognito, err := browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("thumbnail: incognito context: %w", err)
	}
	defer incognito.Close()

	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("thumbnail: creating page: %w", err)
	}
	page = page.Context(ctx)

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             Width,
		Height:            Height,
		DeviceScaleFactor: 1,
	}).Call(page); err != nil {
		return nil, fmt.Errorf("thumbnail: setting viewport: %w", err)
	}

	router, err := isolate(page)
	if err != nil {
		return nil, fmt.Errorf("thumbnail: blocking network: %w", err)
	}
	defer func() { _ = router.Stop() }()

	if err := page.SetDocumentContent(document); err != nil {
		return nil, fmt.Errorf("thumbnail: loading document: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("thumbnail: waiting for load: %w", err)
	}

	// Let animations and scripts draw their first frames.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(r.settle):
	}

	img, err := page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("thumbnail: screenshot: %w", err)
	}
	return img, nil
}

// isolate fails every request the page makes except those that never leave
// the browser.
func isolate(page *rod.Page) (*rod.HijackRouter, error) {
	router := page.HijackRequests()
	err := router.Add("*", "", func(h *rod.Hijack) {
		if localRequest(h.Request.URL().String()) {
			h.ContinueRequest(&proto.FetchContinueRequest{})
			return
		}
		h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
	})
	if err != nil {
		return nil, err
	}
	go router.Run()
	return router, nil
}

// localRequest reports whether raw is served by the browser itself.
func localRequest(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "data", "about", "blob":
		return true
	default:
		return false
	}
}

// Close shuts the browser down.
func (r *RodRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.launcher.Kill()
	r.browser = nil
	r.launcher = nil
	if err != nil {
		return fmt.Errorf("thumbnail: closing chrome: %w", err)
	}
	return nil
}

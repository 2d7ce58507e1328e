// Package browser implements dom.Page on top of a headless Chrome instance
// driven via chromedp. It is the page handle used against real
// JavaScript-rendered review feeds.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"reviewharvest-backend/lib/dom"

	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lib/browser")

type Options struct {
	Headless  bool
	UserAgent string
	// NavigationTimeout bounds Navigate, default 30s.
	NavigationTimeout time.Duration
}

// Page drives one Chrome tab. Queries are answered by capturing the
// rendered document and parsing it into a dom.Snapshot, so every
// extraction strategy sees the same typed element representation
// regardless of the underlying handle.
type Page struct {
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	navTimeout    time.Duration

	mu          sync.Mutex
	url         string
	events      []dom.LoadEvent
	requestURLs map[network.RequestID]string
}

func New(ctx context.Context, opts Options) (*Page, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	navTimeout := opts.NavigationTimeout
	if navTimeout == 0 {
		navTimeout = time.Second * 30
	}

	p := &Page{
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
		navTimeout:    navTimeout,
		requestURLs:   map[network.RequestID]string{},
	}
	chromedp.ListenTarget(browserCtx, p.onTargetEvent)

	err := chromedp.Run(browserCtx, network.Enable())
	if err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	return p, nil
}

func (p *Page) Close() {
	p.cancelBrowser()
	p.cancelAlloc()
}

func (p *Page) onTargetEvent(ev interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		p.requestURLs[e.RequestID] = e.Request.URL
	case *network.EventResponseReceived:
		p.events = append(p.events, dom.LoadEvent{
			Kind: dom.EventResourceLoaded,
			URL:  e.Response.URL,
		})
	case *network.EventLoadingFailed:
		p.events = append(p.events, dom.LoadEvent{
			Kind:  dom.EventResourceFailed,
			URL:   p.requestURLs[e.RequestID],
			Error: e.ErrorText,
		})
	case *cdppage.EventDomContentEventFired:
		p.events = append(p.events, dom.LoadEvent{Kind: dom.EventDOMReady, URL: p.url})
	case *cdppage.EventLoadEventFired:
		p.events = append(p.events, dom.LoadEvent{Kind: dom.EventLoad, URL: p.url})
	}
}

// run wraps chromedp.Run and maps a dead browser context to ErrPageGone.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	if p.browserCtx.Err() != nil {
		return dom.ErrPageGone
	}
	runCtx := p.browserCtx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(p.browserCtx, deadline)
		defer cancel()
	}
	err := chromedp.Run(runCtx, actions...)
	if err != nil && p.browserCtx.Err() != nil {
		return dom.ErrPageGone
	}
	return err
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	ctx, span := tracer.Start(ctx, "Navigate")
	defer span.End()

	p.mu.Lock()
	p.url = url
	p.events = nil
	p.requestURLs = map[network.RequestID]string{}
	p.mu.Unlock()

	navCtx, cancel := context.WithTimeout(ctx, p.navTimeout)
	defer cancel()

	err := p.run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "navigation failed")
		return err
	}
	return nil
}

func (p *Page) capture(ctx context.Context) (*dom.Snapshot, error) {
	var html string
	var location string
	err := p.run(ctx,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.url = location
	p.mu.Unlock()

	return dom.ParseSnapshot(html, location)
}

func (p *Page) QueryAll(ctx context.Context, selector string) ([]*dom.Element, error) {
	snapshot, err := p.capture(ctx)
	if err != nil {
		return nil, err
	}
	return snapshot.QueryAll(ctx, selector)
}

func (p *Page) Root(ctx context.Context) (*dom.Element, error) {
	snapshot, err := p.capture(ctx)
	if err != nil {
		return nil, err
	}
	return snapshot.Root(ctx)
}

func (p *Page) Click(ctx context.Context, selector string) error {
	clickCtx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()
	return p.run(clickCtx, chromedp.Click(selector, chromedp.ByQuery))
}

const scrollContainerScript = `(function (sel) {
	const el = document.querySelector(sel);
	if (el) {
		el.scrollBy(0, el.scrollHeight);
		return true;
	}
	return false;
})(%q);`

func (p *Page) ScrollBottom(ctx context.Context, containerSelector string) error {
	if containerSelector == "" {
		return p.run(ctx, chromedp.Evaluate(
			`window.scrollTo(0, document.body.scrollHeight);`, nil,
		))
	}
	var found bool
	err := p.run(ctx, chromedp.Evaluate(
		fmt.Sprintf(scrollContainerScript, containerSelector), &found,
	))
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("scroll container %q not found", containerSelector)
	}
	return nil
}

func (p *Page) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// Events yields the network/load events recorded since the last navigation.
func (p *Page) Events() <-chan dom.LoadEvent {
	p.mu.Lock()
	recorded := make([]dom.LoadEvent, len(p.events))
	copy(recorded, p.events)
	p.mu.Unlock()

	ch := make(chan dom.LoadEvent, len(recorded))
	for _, ev := range recorded {
		ch <- ev
	}
	close(ch)
	return ch
}

// Package staticpage implements dom.Page over a one-shot HTTP fetch. It
// serves degraded collection runs where no browser is available: the
// document is fetched and parsed once, reveal actions are accepted but
// reveal nothing, so pagination stops at no-more-content.
package staticpage

import (
	"context"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"time"

	"reviewharvest-backend/lib/dom"
	"reviewharvest-backend/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lib/staticpage")

type Options struct {
	// UserAgent overrides the default desktop Chrome user agent.
	UserAgent string
	// Timeout bounds each fetch, default 30s.
	Timeout time.Duration
}

type Page struct {
	http *resty.Client

	snapshot *dom.Snapshot
	events   []dom.LoadEvent
	gone     bool
}

func New(opts Options) (*Page, error) {
	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
	}
	client.SetHeader("user-agent", userAgent)

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Second * 30
	}
	client.SetTimeout(timeout)

	telemetry.InstrumentResty(client, "staticpage/http")

	return &Page{http: client}, nil
}

// Close releases the handle. Every call after Close reports dom.ErrPageGone.
func (p *Page) Close() {
	p.gone = true
	p.snapshot = nil
}

func (p *Page) URL() string {
	if p.snapshot == nil {
		return ""
	}
	return p.snapshot.URL()
}

func (p *Page) Navigate(ctx context.Context, target string) error {
	ctx, span := tracer.Start(ctx, "Navigate")
	defer span.End()

	if p.gone {
		return dom.ErrPageGone
	}
	if _, err := url.Parse(target); err != nil {
		return fmt.Errorf("invalid url %q: %w", target, err)
	}

	res, err := p.http.R().
		SetContext(ctx).
		Get(target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch document")
		p.events = []dom.LoadEvent{
			{Kind: dom.EventResourceFailed, URL: target, Error: err.Error()},
		}
		return err
	}

	finalURL := res.RawResponse.Request.URL.String()
	snapshot, err := dom.ParseSnapshot(string(res.Body()), finalURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse document")
		return err
	}
	p.snapshot = snapshot

	// a one-shot fetch never loads subresources, report the document alone
	p.events = []dom.LoadEvent{
		{Kind: dom.EventResourceLoaded, URL: finalURL},
		{Kind: dom.EventDOMReady, URL: finalURL},
		{Kind: dom.EventLoad, URL: finalURL},
	}
	return nil
}

func (p *Page) QueryAll(ctx context.Context, selector string) ([]*dom.Element, error) {
	if p.gone {
		return nil, dom.ErrPageGone
	}
	if p.snapshot == nil {
		return nil, fmt.Errorf("no document loaded")
	}
	return p.snapshot.QueryAll(ctx, selector)
}

func (p *Page) Root(ctx context.Context) (*dom.Element, error) {
	if p.gone {
		return nil, dom.ErrPageGone
	}
	if p.snapshot == nil {
		return nil, fmt.Errorf("no document loaded")
	}
	return p.snapshot.Root(ctx)
}

func (p *Page) Click(ctx context.Context, selector string) error {
	if p.gone {
		return dom.ErrPageGone
	}
	if p.snapshot == nil {
		return fmt.Errorf("no document loaded")
	}
	return p.snapshot.Click(ctx, selector)
}

func (p *Page) ScrollBottom(ctx context.Context, containerSelector string) error {
	if p.gone {
		return dom.ErrPageGone
	}
	return nil
}

func (p *Page) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if p.gone {
		return dom.ErrPageGone
	}
	if p.snapshot == nil {
		return fmt.Errorf("no document loaded")
	}
	return p.snapshot.WaitVisible(ctx, selector, timeout)
}

func (p *Page) Events() <-chan dom.LoadEvent {
	ch := make(chan dom.LoadEvent, len(p.events))
	for _, ev := range p.events {
		ch <- ev
	}
	close(ch)
	return ch
}

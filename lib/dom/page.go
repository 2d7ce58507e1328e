// Package dom defines the capability surface the collection core requires
// from a page handle, along with a typed element descriptor so extraction
// strategies operate on a stable abstraction rather than raw nodes.
package dom

import (
	"context"
	"errors"
	"time"
)

// ErrPageGone indicates the underlying page handle has been destroyed or is
// unreachable. It is the only page-level condition callers treat as fatal.
var ErrPageGone = errors.New("page handle destroyed or unreachable")

type EventKind int

const (
	// EventResourceLoaded fires once per successfully loaded subresource.
	EventResourceLoaded EventKind = iota
	// EventResourceFailed fires once per subresource that failed to load.
	EventResourceFailed
	// EventDOMReady fires when the document has been parsed.
	EventDOMReady
	// EventLoad fires when the load event has been dispatched.
	EventLoad
)

// LoadEvent is a network or lifecycle event observed on a page.
type LoadEvent struct {
	Kind  EventKind
	URL   string
	Error string
}

// Page is the capability surface the collection core drives. A single Page
// is exclusively owned by one collection session for its duration.
//
// Implementations: browser.Page (chromedp), staticpage.Page (resty one-shot)
// and dom.Snapshot (offline, used in tests).
type Page interface {
	// URL reports the current document location.
	URL() string
	// Navigate loads a new document.
	Navigate(ctx context.Context, url string) error
	// QueryAll returns every element matching a CSS selector.
	QueryAll(ctx context.Context, selector string) ([]*Element, error)
	// Root returns the document root for structural scans.
	Root(ctx context.Context) (*Element, error)
	// Click activates the first element matching the selector.
	Click(ctx context.Context, selector string) error
	// ScrollBottom scrolls the container matching the selector (or the
	// window when the selector is empty) to its bottom.
	ScrollBottom(ctx context.Context, containerSelector string) error
	// WaitVisible blocks until an element matching the selector is present
	// or the timeout elapses.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// Events exposes network/load events observed since the last
	// navigation. The channel is closed once the load settles.
	Events() <-chan LoadEvent
}

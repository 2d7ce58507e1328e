package dom

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Snapshot is an offline Page over a single parsed HTML document. Reveal
// actions succeed but change nothing, so pagination against a Snapshot
// naturally terminates with no-more-content. Extraction tiers and tests
// run against Snapshots directly.
type Snapshot struct {
	doc    *goquery.Document
	url    string
	events []LoadEvent
}

// ParseSnapshot parses an HTML document into an offline page handle. The
// event feed defaults to a clean DOMReady+Load sequence; use
// SnapshotEvents to simulate resource failures.
func ParseSnapshot(htmlStr, url string) (*Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html snapshot: %w", err)
	}
	return &Snapshot{
		doc: doc,
		url: url,
		events: []LoadEvent{
			{Kind: EventDOMReady, URL: url},
			{Kind: EventLoad, URL: url},
		},
	}, nil
}

// SnapshotEvents replaces the snapshot's synthetic event feed.
func (s *Snapshot) SnapshotEvents(events []LoadEvent) {
	s.events = events
}

func (s *Snapshot) URL() string {
	return s.url
}

func (s *Snapshot) Navigate(ctx context.Context, url string) error {
	// a snapshot is pinned to the document it was parsed from
	s.url = url
	return nil
}

func (s *Snapshot) QueryAll(ctx context.Context, selector string) ([]*Element, error) {
	var out []*Element
	for _, n := range s.doc.Find(selector).Nodes {
		out = append(out, &Element{node: n})
	}
	return out, nil
}

func (s *Snapshot) Root(ctx context.Context) (*Element, error) {
	sel := s.doc.Find("body")
	if len(sel.Nodes) == 0 {
		sel = s.doc.Selection
	}
	if len(sel.Nodes) == 0 {
		return nil, fmt.Errorf("snapshot has no document root")
	}
	return &Element{node: sel.Nodes[0]}, nil
}

func (s *Snapshot) Click(ctx context.Context, selector string) error {
	found, _ := s.QueryAll(ctx, selector)
	if len(found) == 0 {
		return fmt.Errorf("no element matches %q", selector)
	}
	return nil
}

func (s *Snapshot) ScrollBottom(ctx context.Context, containerSelector string) error {
	return nil
}

func (s *Snapshot) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	found, err := s.QueryAll(ctx, selector)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return fmt.Errorf("element %q did not appear", selector)
	}
	return nil
}

func (s *Snapshot) Events() <-chan LoadEvent {
	ch := make(chan LoadEvent, len(s.events))
	for _, ev := range s.events {
		ch <- ev
	}
	close(ch)
	return ch
}

package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"reviewharvest-backend/lib/dom"
)

// scriptedPage simulates a review feed whose sort order is switched by
// clicking menu controls and whose content grows stage by stage as the
// feed is scrolled. Each sort order has its own cumulative stages.
type scriptedPage struct {
	url          string
	sort         string
	stage        int
	stagesBySort map[string][]string
	initial      string
	events       []dom.LoadEvent
	gone         bool
}

func newScriptedPage(initial string, stagesBySort map[string][]string, events []dom.LoadEvent) *scriptedPage {
	return &scriptedPage{
		url:          "https://maps.example.com/place/cafe-aurora",
		stagesBySort: stagesBySort,
		initial:      initial,
		events:       events,
	}
}

func (p *scriptedPage) currentHTML() string {
	if p.sort == "" {
		return p.initial
	}
	stages := p.stagesBySort[p.sort]
	if len(stages) == 0 {
		return p.initial
	}
	idx := p.stage
	if idx >= len(stages) {
		idx = len(stages) - 1
	}
	return stages[idx]
}

func (p *scriptedPage) snapshot() (*dom.Snapshot, error) {
	if p.gone {
		return nil, dom.ErrPageGone
	}
	return dom.ParseSnapshot(p.currentHTML(), p.url)
}

func (p *scriptedPage) URL() string { return p.url }

func (p *scriptedPage) Navigate(ctx context.Context, url string) error {
	if p.gone {
		return dom.ErrPageGone
	}
	p.url = url
	p.sort = ""
	p.stage = 0
	return nil
}

func (p *scriptedPage) QueryAll(ctx context.Context, selector string) ([]*dom.Element, error) {
	snap, err := p.snapshot()
	if err != nil {
		return nil, err
	}
	return snap.QueryAll(ctx, selector)
}

func (p *scriptedPage) Root(ctx context.Context) (*dom.Element, error) {
	snap, err := p.snapshot()
	if err != nil {
		return nil, err
	}
	return snap.Root(ctx)
}

func (p *scriptedPage) Click(ctx context.Context, selector string) error {
	if p.gone {
		return dom.ErrPageGone
	}
	for _, sort := range []string{"newest", "lowest", "highest"} {
		if strings.Contains(selector, sort) {
			p.sort = sort
			p.stage = 0
			return nil
		}
	}
	snap, err := p.snapshot()
	if err != nil {
		return err
	}
	return snap.Click(ctx, selector)
}

func (p *scriptedPage) ScrollBottom(ctx context.Context, containerSelector string) error {
	if p.gone {
		return dom.ErrPageGone
	}
	if p.stage < len(p.stagesBySort[p.sort])-1 {
		p.stage++
	}
	return nil
}

func (p *scriptedPage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	snap, err := p.snapshot()
	if err != nil {
		return err
	}
	return snap.WaitVisible(ctx, selector, timeout)
}

func (p *scriptedPage) Events() <-chan dom.LoadEvent {
	ch := make(chan dom.LoadEvent, len(p.events))
	for _, ev := range p.events {
		ch <- ev
	}
	close(ch)
	return ch
}

func healthyLoadEvents() []dom.LoadEvent {
	return []dom.LoadEvent{
		{Kind: dom.EventResourceLoaded, URL: "https://maps.example.com/static/app.css"},
		{Kind: dom.EventResourceLoaded, URL: "https://maps.example.com/static/feed.js"},
		{Kind: dom.EventDOMReady},
		{Kind: dom.EventLoad},
	}
}

// reviewCardHTML renders one card in the primary desktop layout.
func reviewCardHTML(id int, author, text, date string, rating int) string {
	return fmt.Sprintf(`<div data-review-id="r%d">
		<span class="review-author">%s</span>
		<span role="img" aria-label="Rated %d out of 5"></span>
		<span class="review-date">%s</span>
		<div class="review-text">%s</div>
	</div>`, id, author, rating, date, text)
}

// feedHTML wraps cards in a page shell that carries the sort menu.
func feedHTML(cards ...string) string {
	return `<html><body>
	<button aria-label="Sort reviews">Sort</button>
	<div role="menu">
		<div data-sort="newest">Newest</div>
		<div data-sort="lowest">Lowest rated</div>
		<div data-sort="highest">Highest rated</div>
	</div>
	<div class="feed">` + strings.Join(cards, "\n") + `</div>
	</body></html>`
}

// syntheticCards renders cards for review ids [from, to).
func syntheticCards(from, to int) []string {
	var cards []string
	for i := from; i < to; i++ {
		cards = append(cards, reviewCardHTML(
			i,
			fmt.Sprintf("user-%03d", i),
			fmt.Sprintf("Great espresso and the staff remembered my order, visit number %d was as good as the first.", i),
			"2 weeks ago",
			1+i%5,
		))
	}
	return cards
}

package collector

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"reviewharvest-backend/lib/dom"
	"reviewharvest-backend/lib/textutil"

	"go.opentelemetry.io/otel/attribute"
)

// interfaceVariant names the detected page layout; sort controls render
// differently between the desktop menu and the mobile bottom sheet.
type interfaceVariant string

const (
	variantDesktop interfaceVariant = "desktop"
	variantMobile  interfaceVariant = "mobile"
)

// sortCandidate is one way a sort control has been observed to appear:
// a trigger that opens the menu (optional) and the option to click.
type sortCandidate struct {
	Trigger string
	Option  string
	// Labeled narrows the option selector by visible text, matched
	// against the category's label set.
	Labeled bool
}

var sortCandidatesByVariant = map[interfaceVariant]map[Category][]sortCandidate{
	variantDesktop: {
		CategoryRecent: {
			{Trigger: `button[aria-label*="Sort"]`, Option: `[data-sort="newest"]`},
			{Trigger: `.sort-menu-trigger`, Option: `.sort-option`, Labeled: true},
			{Option: `li[role="menuitemradio"]`, Labeled: true},
		},
		CategoryWorst: {
			{Trigger: `button[aria-label*="Sort"]`, Option: `[data-sort="lowest"]`},
			{Trigger: `.sort-menu-trigger`, Option: `.sort-option`, Labeled: true},
			{Option: `li[role="menuitemradio"]`, Labeled: true},
		},
		CategoryBest: {
			{Trigger: `button[aria-label*="Sort"]`, Option: `[data-sort="highest"]`},
			{Trigger: `.sort-menu-trigger`, Option: `.sort-option`, Labeled: true},
			{Option: `li[role="menuitemradio"]`, Labeled: true},
		},
	},
	variantMobile: {
		CategoryRecent: {
			{Trigger: `button.sort-button, .sort-sheet-trigger`, Option: `div[role="option"]`, Labeled: true},
			{Option: `.mobile-sort-chip, li[role="menuitemradio"]`, Labeled: true},
		},
		CategoryWorst: {
			{Trigger: `button.sort-button, .sort-sheet-trigger`, Option: `div[role="option"]`, Labeled: true},
			{Option: `.mobile-sort-chip, li[role="menuitemradio"]`, Labeled: true},
		},
		CategoryBest: {
			{Trigger: `button.sort-button, .sort-sheet-trigger`, Option: `div[role="option"]`, Labeled: true},
			{Option: `.mobile-sort-chip, li[role="menuitemradio"]`, Labeled: true},
		},
	},
}

// defaultSortLabels are the visible option texts accepted per category,
// compared against normalized text. Localized interfaces extend these
// through SortNavigator.Labels.
var defaultSortLabels = map[Category][]string{
	CategoryRecent: {"newest", "most recent", "latest"},
	CategoryWorst:  {"lowest", "lowest rated", "worst"},
	CategoryBest:   {"highest", "highest rated", "best"},
}

// card selectors used only to fingerprint the feed head when verifying
// that a sort actually reordered it
var fingerprintCardSelectors = []string{
	`div[data-review-id]`,
	`.review-card, .review-container`,
	`li.review-item, div.mobile-review`,
}

type NavigationResult struct {
	Success   bool
	Method    string
	ElapsedMs int64
}

// SortNavigator applies a review sort order through the page's UI and
// verifies the feed responded. Applying the order already in effect is a
// no-op reported as success.
type SortNavigator struct {
	// Labels overrides the visible option texts matched per category,
	// for localized interfaces. Categories left out keep the defaults.
	Labels map[Category][]string

	settle time.Duration

	mu          sync.Mutex
	lastApplied map[string]Category // keyed by page URL
}

func NewSortNavigator(settle time.Duration) *SortNavigator {
	if settle <= 0 {
		settle = 500 * time.Millisecond
	}
	return &SortNavigator{
		settle:      settle,
		lastApplied: map[string]Category{},
	}
}

func (n *SortNavigator) labelsFor(category Category) []string {
	if labels := n.Labels[category]; len(labels) > 0 {
		return labels
	}
	return defaultSortLabels[category]
}

// detectVariant probes for the mobile card layout before choosing which
// candidate controls to try.
func (n *SortNavigator) detectVariant(ctx context.Context, page dom.Page) (interfaceVariant, error) {
	for _, set := range DefaultSecondarySets() {
		if set.Name != "mobile" {
			continue
		}
		cards, err := page.QueryAll(ctx, set.Card)
		if err != nil {
			return variantDesktop, err
		}
		if len(cards) > 0 {
			return variantMobile, nil
		}
	}
	return variantDesktop, nil
}

// Apply switches the feed to the given category's sort order. It returns
// an error only when the page handle is gone; exhausting every candidate
// yields Success=false with Method "fallback" so the caller can proceed
// with the feed's current order.
func (n *SortNavigator) Apply(ctx context.Context, page dom.Page, category Category) (NavigationResult, error) {
	ctx, span := tracer.Start(ctx, "SortNavigator.Apply")
	defer span.End()
	span.SetAttributes(attribute.String("category", string(category)))

	start := time.Now()

	n.mu.Lock()
	already := n.lastApplied[page.URL()] == category
	n.mu.Unlock()
	if already {
		span.AddEvent("sort already applied")
		return NavigationResult{Success: true, Method: "already-applied", ElapsedMs: time.Since(start).Milliseconds()}, nil
	}

	variant, err := n.detectVariant(ctx, page)
	if err != nil {
		if errors.Is(err, dom.ErrPageGone) {
			return NavigationResult{}, err
		}
		variant = variantDesktop
	}
	span.SetAttributes(attribute.String("variant", string(variant)))

	before, err := n.fingerprint(ctx, page)
	if err != nil {
		if errors.Is(err, dom.ErrPageGone) {
			return NavigationResult{}, err
		}
		before = ""
	}

	labels := n.labelsFor(category)
	for _, candidate := range sortCandidatesByVariant[variant][category] {
		method, err := n.tryCandidate(ctx, page, candidate, labels, before)
		if err != nil {
			if errors.Is(err, dom.ErrPageGone) {
				return NavigationResult{}, err
			}
			continue
		}
		if method == "" {
			continue
		}
		n.mu.Lock()
		n.lastApplied[page.URL()] = category
		n.mu.Unlock()
		span.SetAttributes(attribute.String("method", method))
		return NavigationResult{Success: true, Method: method, ElapsedMs: time.Since(start).Milliseconds()}, nil
	}

	span.AddEvent("all sort candidates exhausted")
	return NavigationResult{Success: false, Method: "fallback", ElapsedMs: time.Since(start).Milliseconds()}, nil
}

// tryCandidate works one candidate end to end and reports the method that
// landed, or "" when the candidate did not take.
func (n *SortNavigator) tryCandidate(ctx context.Context, page dom.Page, candidate sortCandidate, labels []string, before string) (string, error) {
	if candidate.Trigger != "" {
		if err := page.Click(ctx, candidate.Trigger); err != nil {
			return "", err
		}
		if err := sleepCtx(ctx, n.settle/2); err != nil {
			return "", err
		}
	}

	option := candidate.Option
	method := option
	if candidate.Labeled {
		found, label, err := n.optionByLabel(ctx, page, candidate.Option, labels)
		if err != nil {
			return "", err
		}
		if found == "" {
			return "", nil
		}
		option = found
		method = found + " (" + label + ")"
	}
	if err := page.Click(ctx, option); err != nil {
		return "", err
	}
	if err := sleepCtx(ctx, n.settle); err != nil {
		return "", err
	}

	after, err := n.fingerprint(ctx, page)
	if err != nil {
		return "", err
	}
	// the click is only believed when the feed head changed; an unchanged
	// head with a known prior fingerprint means the control did nothing
	if before != "" && after == before {
		return "", nil
	}
	return method, nil
}

// optionByLabel narrows a broad option selector to the element whose
// visible text contains one of the accepted labels, preferring an id or
// data-sort refinement so the follow-up click lands on that element.
func (n *SortNavigator) optionByLabel(ctx context.Context, page dom.Page, selector string, labels []string) (string, string, error) {
	elements, err := page.QueryAll(ctx, selector)
	if err != nil {
		return "", "", err
	}
	for _, el := range elements {
		text := textutil.NormalizeContent(el.Text())
		for _, label := range labels {
			if !strings.Contains(text, label) {
				continue
			}
			if id := el.ID(); id != "" {
				return "#" + id, label, nil
			}
			if attr := el.Attr("data-sort"); attr != "" {
				return selector + `[data-sort="` + attr + `"]`, label, nil
			}
			return selector, label, nil
		}
	}
	return "", "", nil
}

func (n *SortNavigator) fingerprint(ctx context.Context, page dom.Page) (string, error) {
	for _, selector := range fingerprintCardSelectors {
		cards, err := page.QueryAll(ctx, selector)
		if err != nil {
			return "", err
		}
		if len(cards) == 0 {
			continue
		}
		head := cards[0]
		return head.Signature() + "|" + textutil.Truncate(textutil.NormalizeContent(head.Text()), 120), nil
	}
	return "", nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

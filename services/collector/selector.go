package collector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"reviewharvest-backend/lib/dom"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// SelectorSet names the CSS selectors for one known feed layout.
type SelectorSet struct {
	Name   string
	Card   string
	Author string
	Text   string
	Date   string
	// Rating selects elements that may carry a machine-readable rating in
	// one of ratingAttrs or their text. Star glyphs under Card are never
	// counted as a rating by selector tiers.
	Rating string
}

// attributes probed for a machine-readable rating value, in order
var ratingAttrs = []string{"aria-label", "data-rating", "title"}

// DefaultPrimarySet matches the dominant desktop feed layout.
func DefaultPrimarySet() SelectorSet {
	return SelectorSet{
		Name:   "desktop-current",
		Card:   `div[data-review-id]`,
		Author: `[data-author], .review-author`,
		Text:   `.review-text, [data-review-text]`,
		Date:   `.review-date, [data-review-date], time`,
		Rating: `[role="img"][aria-label], [data-rating]`,
	}
}

// DefaultSecondarySets covers known historical and alternate layouts,
// including the mobile variant.
func DefaultSecondarySets() []SelectorSet {
	return []SelectorSet{
		{
			Name:   "desktop-legacy",
			Card:   `.review-card, .review-container`,
			Author: `.author-name, .reviewer`,
			Text:   `.review-full-text, .review-snippet`,
			Date:   `.review-date, .date`,
			Rating: `span[aria-label*="star"], .review-stars[aria-label]`,
		},
		{
			Name:   "mobile",
			Card:   `li.review-item, div.mobile-review`,
			Author: `.review-item-author, h3`,
			Text:   `.review-item-body, p`,
			Date:   `.review-item-date, time`,
			Rating: `[data-rating], span[aria-label*="star"]`,
		},
	}
}

const (
	StrategyPrimary    = "primary"
	StrategySecondary  = "secondary"
	StrategyContent    = "content-based"
	StrategyBruteForce = "brute-force"
	StrategyNone       = "none"
)

// ExtractionContext carries per-call inputs into the selector engine.
type ExtractionContext struct {
	URL string
	// Degraded lowers reported confidence; set from the resource monitor.
	Degraded bool
	// Resources is the monitor's observation for the session, carried
	// into any diagnostic report this call produces.
	Resources ResourceStatus
	// MinReviews is the validation floor per tier, default 1.
	MinReviews int
	// MinConfidence flags results below it as low-confidence, default 0.5.
	MinConfidence float64
}

type ExtractionResult struct {
	Reviews       []RawReview
	StrategyUsed  string
	Confidence    float64
	LowConfidence bool
	Diagnostics   *DiagnosticReport
}

// SelectorEngine is a state machine over four extraction tiers, tried
// strictly in order until one yields a validated result: primary selectors,
// secondary/alternate selectors, content-pattern matching and a brute-force
// structural scan.
type SelectorEngine struct {
	primary     SelectorSet
	secondary   []SelectorSet
	diagnostics *DiagnosticStore

	mu sync.Mutex
	// index of the secondary set that validated most recently; trying it
	// first saves a wasted pass on pages that have settled on an
	// alternate layout
	lastGoodSecondary int
}

func NewSelectorEngine(diagnostics *DiagnosticStore) *SelectorEngine {
	return &SelectorEngine{
		primary:     DefaultPrimarySet(),
		secondary:   DefaultSecondarySets(),
		diagnostics: diagnostics,
	}
}

// NewSelectorEngineWithSets overrides the built-in selector sets.
func NewSelectorEngineWithSets(diagnostics *DiagnosticStore, primary SelectorSet, secondary []SelectorSet) *SelectorEngine {
	return &SelectorEngine{
		primary:     primary,
		secondary:   secondary,
		diagnostics: diagnostics,
	}
}

type tierOutcome struct {
	candidates    []contentCandidate
	elementsFound int
}

// Extract runs the tier ladder. It returns an error only when the page
// handle itself is gone; every other failure mode degrades into the next
// tier and, on total exhaustion, an empty result with a full diagnostic
// report.
func (e *SelectorEngine) Extract(ctx context.Context, page dom.Page, ec ExtractionContext) (ExtractionResult, error) {
	ctx, span := tracer.Start(ctx, "SelectorEngine.Extract")
	defer span.End()

	if ec.MinReviews <= 0 {
		ec.MinReviews = 1
	}
	if ec.MinConfidence <= 0 {
		ec.MinConfidence = 0.5
	}

	var attempts []ExtractionAttempt

	type tierSpec struct {
		name     string
		priority int
		base     float64
		run      func(context.Context) (tierOutcome, error)
	}
	tiers := []tierSpec{
		{StrategyPrimary, 1, 0.95, func(ctx context.Context) (tierOutcome, error) {
			return e.runSelectorSet(ctx, page, e.primary, ec.URL)
		}},
		{StrategySecondary, 2, 0.85, func(ctx context.Context) (tierOutcome, error) {
			return e.runSecondary(ctx, page, ec.URL)
		}},
		{StrategyContent, 3, 0.6, func(ctx context.Context) (tierOutcome, error) {
			return e.runContent(ctx, page, ec.URL)
		}},
		{StrategyBruteForce, 4, 0.45, func(ctx context.Context) (tierOutcome, error) {
			return e.runBruteForce(ctx, page, ec.URL)
		}},
	}

	for _, t := range tiers {
		start := time.Now()
		outcome, err := t.run(ctx)
		elapsed := time.Since(start).Milliseconds()

		if err != nil {
			if errors.Is(err, dom.ErrPageGone) {
				span.RecordError(err)
				span.SetStatus(codes.Error, "page handle gone")
				return ExtractionResult{}, err
			}
			attempts = append(attempts, ExtractionAttempt{
				StrategyName:  t.name,
				TierPriority:  t.priority,
				Succeeded:     false,
				FailureReason: err.Error(),
				ElapsedMs:     elapsed,
			})
			continue
		}

		reviews := make([]RawReview, 0, len(outcome.candidates))
		for _, c := range outcome.candidates {
			reviews = append(reviews, c.review)
		}

		if reason, ok := validateReviews(reviews, ec.MinReviews); !ok {
			attempts = append(attempts, ExtractionAttempt{
				StrategyName:  t.name,
				TierPriority:  t.priority,
				ElementsFound: outcome.elementsFound,
				Succeeded:     false,
				FailureReason: reason,
				ElapsedMs:     elapsed,
			})
			continue
		}

		attempts = append(attempts, ExtractionAttempt{
			StrategyName:  t.name,
			TierPriority:  t.priority,
			ElementsFound: outcome.elementsFound,
			Succeeded:     true,
			ElapsedMs:     elapsed,
		})

		confidence := scoreConfidence(t.base, outcome.candidates, ec.Degraded)
		result := ExtractionResult{
			Reviews:       reviews,
			StrategyUsed:  t.name,
			Confidence:    confidence,
			LowConfidence: confidence < ec.MinConfidence,
		}
		span.SetAttributes(
			attribute.String("strategy", t.name),
			attribute.Int("reviews", len(reviews)),
			attribute.Float64("confidence", confidence),
		)
		if result.LowConfidence {
			result.Diagnostics = e.buildReport(ctx, page, ec, attempts)
			e.storeReport(ec.URL, result.Diagnostics, PriorityNormal)
			span.AddEvent("low confidence result")
		}
		return result, nil
	}

	report := e.buildReport(ctx, page, ec, attempts)
	e.storeReport(ec.URL, report, PriorityHigh)

	span.SetStatus(codes.Error, "all extraction tiers exhausted")
	span.SetAttributes(attribute.String("strategy", StrategyNone))
	return ExtractionResult{
		Reviews:      []RawReview{},
		StrategyUsed: StrategyNone,
		Diagnostics:  report,
	}, nil
}

// validateReviews is the acceptance gate applied after every tier: enough
// reviews, each with an author or body, each rating either absent
// (explicitly unrated) or within [1,5]. A tier that located elements but
// produced nothing valid falls through to the next tier.
func validateReviews(reviews []RawReview, minCount int) (string, bool) {
	if len(reviews) < minCount {
		return fmt.Sprintf("found %d valid reviews, need at least %d", len(reviews), minCount), false
	}
	for _, r := range reviews {
		if strings.TrimSpace(r.Author) == "" && strings.TrimSpace(r.Text) == "" {
			return "review candidate with neither author nor text", false
		}
		if r.Rating != nil && (*r.Rating < 1 || *r.Rating > 5) {
			return fmt.Sprintf("rating %d outside [1,5]", *r.Rating), false
		}
	}
	return "", true
}

// scoreConfidence combines the tier's rank with the fraction of fields
// that parsed across the emitted reviews.
func scoreConfidence(tierBase float64, candidates []contentCandidate, degraded bool) float64 {
	parsed, total := 0, 0
	for _, c := range candidates {
		parsed += c.fieldsParsed
		total += c.fieldsTotal
	}
	fraction := 0.0
	if total > 0 {
		fraction = float64(parsed) / float64(total)
	}
	confidence := tierBase * (0.4 + 0.6*fraction)
	if degraded {
		confidence *= 0.85
	}
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}

func (e *SelectorEngine) runSelectorSet(ctx context.Context, page dom.Page, set SelectorSet, pageURL string) (tierOutcome, error) {
	cards, err := page.QueryAll(ctx, set.Card)
	if err != nil {
		return tierOutcome{}, err
	}

	var candidates []contentCandidate
	for _, card := range cards {
		author := textOfFirst(card, set.Author)
		body := textOfFirst(card, set.Text)
		date := textOfFirst(card, set.Date)
		rating := parseRatingFromCard(card, set)

		if author == "" && body == "" {
			continue
		}
		parsed := 0
		for _, present := range []bool{author != "", body != "", rating != nil, date != ""} {
			if present {
				parsed++
			}
		}
		candidates = append(candidates, contentCandidate{
			review:       NewRawReview(author, body, date, pageURL, rating),
			fieldsParsed: parsed,
			fieldsTotal:  4,
		})
	}
	return tierOutcome{candidates: candidates, elementsFound: len(cards)}, nil
}

func (e *SelectorEngine) runSecondary(ctx context.Context, page dom.Page, pageURL string) (tierOutcome, error) {
	e.mu.Lock()
	order := make([]int, 0, len(e.secondary))
	if e.lastGoodSecondary < len(e.secondary) {
		order = append(order, e.lastGoodSecondary)
	}
	for i := range e.secondary {
		if i != e.lastGoodSecondary {
			order = append(order, i)
		}
	}
	e.mu.Unlock()

	best := tierOutcome{}
	for _, i := range order {
		outcome, err := e.runSelectorSet(ctx, page, e.secondary[i], pageURL)
		if err != nil {
			return tierOutcome{}, err
		}
		if outcome.elementsFound > best.elementsFound {
			best = outcome
		}
		if len(outcome.candidates) > 0 {
			e.mu.Lock()
			e.lastGoodSecondary = i
			e.mu.Unlock()
			return outcome, nil
		}
	}
	return best, nil
}

func (e *SelectorEngine) runContent(ctx context.Context, page dom.Page, pageURL string) (tierOutcome, error) {
	root, err := page.Root(ctx)
	if err != nil {
		return tierOutcome{}, err
	}
	candidates := extractByContent(root, pageURL)
	return tierOutcome{candidates: candidates, elementsFound: len(candidates)}, nil
}

// runBruteForce scans for repeated sibling blocks that carry a date-like
// token, treating each block as a review card and reusing the content
// rules per block. This is the loosest heuristic and carries the lowest
// confidence floor.
func (e *SelectorEngine) runBruteForce(ctx context.Context, page dom.Page, pageURL string) (tierOutcome, error) {
	root, err := page.Root(ctx)
	if err != nil {
		return tierOutcome{}, err
	}

	blocks := repeatedSiblingBlocks(root)
	var candidates []contentCandidate
	for _, block := range blocks {
		if candidate, ok := assembleFromContainer(block, pageURL); ok {
			candidates = append(candidates, candidate)
		}
	}
	return tierOutcome{candidates: candidates, elementsFound: len(blocks)}, nil
}

// repeatedSiblingBlocks finds the parent whose same-signature children
// repeat the most, keeping only children that look date-stamped.
func repeatedSiblingBlocks(root *dom.Element) []*dom.Element {
	var best []*dom.Element

	var walk func(e *dom.Element)
	walk = func(e *dom.Element) {
		children := e.Children()
		bySignature := map[string][]*dom.Element{}
		for _, child := range children {
			sig := child.Signature()
			if sig == "" {
				continue
			}
			bySignature[sig] = append(bySignature[sig], child)
		}
		for _, group := range bySignature {
			if len(group) < 3 {
				continue
			}
			dated := make([]*dom.Element, 0, len(group))
			for _, member := range group {
				if findDateToken(member.Text()) != "" {
					dated = append(dated, member)
				}
			}
			// most of the group must look date-stamped for the block
			// shape to count as a review list
			if len(dated)*2 >= len(group) && len(dated) > len(best) {
				best = dated
			}
		}
		for _, child := range children {
			walk(child)
		}
	}
	walk(root)
	return best
}

func textOfFirst(card *dom.Element, selector string) string {
	if selector == "" {
		return ""
	}
	el := card.First(selector)
	if el == nil {
		return ""
	}
	return el.Text()
}

// parseRatingFromCard looks for a machine-readable rating on the card's
// rating elements: a numeric token in a known attribute or the element
// text. Star glyphs are deliberately not treated as evidence of a rating
// here; only the content tier may infer one, from a bounded glyph run.
func parseRatingFromCard(card *dom.Element, set SelectorSet) *int {
	if set.Rating == "" {
		return nil
	}
	for _, el := range card.Find(set.Rating) {
		for _, attr := range ratingAttrs {
			value := el.Attr(attr)
			if value == "" {
				continue
			}
			if rating, _ := parseRatingToken(value); rating != nil {
				return rating
			}
			// attributes like data-rating carry the bare number
			if rating := bareRating(value); rating != nil {
				return rating
			}
		}
		if rating, _ := parseRatingToken(el.Text()); rating != nil {
			return rating
		}
	}
	return nil
}

func bareRating(value string) *int {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return nil
	}
	rating := int(parsed + 0.5)
	if rating < 1 || rating > 5 {
		return nil
	}
	return &rating
}

// buildReport summarizes what the tiers saw against what was expected.
func (e *SelectorEngine) buildReport(ctx context.Context, page dom.Page, ec ExtractionContext, attempts []ExtractionAttempt) *DiagnosticReport {
	report := &DiagnosticReport{Attempts: attempts, ResourceStatus: ec.Resources}

	root, err := page.Root(ctx)
	if err != nil {
		report.DOMSummary = fmt.Sprintf("document root unavailable: %v", err)
		return report
	}

	total := 0
	signatures := map[string]int{}
	glyphsPresent := false
	var walk func(e *dom.Element)
	walk = func(e *dom.Element) {
		total++
		if sig := e.Signature(); sig != "" {
			signatures[sig]++
		}
		for _, child := range e.Children() {
			walk(child)
		}
	}
	walk(root)
	if glyphRunRegex.MatchString(root.Text()) {
		glyphsPresent = true
	}

	type sigCount struct {
		sig   string
		count int
	}
	var top []sigCount
	for sig, count := range signatures {
		if count > 1 {
			top = append(top, sigCount{sig, count})
		}
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].count != top[j].count {
			return top[i].count > top[j].count
		}
		return top[i].sig < top[j].sig
	})
	if len(top) > 3 {
		top = top[:3]
	}

	summary := fmt.Sprintf("%d elements", total)
	for _, t := range top {
		summary += fmt.Sprintf("; %dx %s", t.count, t.sig)
	}
	if glyphsPresent {
		summary += "; star glyphs present"
	}
	report.DOMSummary = summary

	if glyphsPresent {
		report.SuggestedFixes = append(report.SuggestedFixes,
			"star glyphs present but no machine-readable rating was parsed; check for a new rating attribute on the glyph container")
	}
	if len(top) > 0 {
		report.SuggestedFixes = append(report.SuggestedFixes,
			fmt.Sprintf("most repeated block is %q; consider adding it as a card selector", top[0].sig))
	}
	if len(report.SuggestedFixes) == 0 {
		report.SuggestedFixes = append(report.SuggestedFixes,
			"no repeated review-shaped structure found; the page may not have rendered its feed")
	}
	return report
}

func (e *SelectorEngine) storeReport(url string, report *DiagnosticReport, priority Priority) {
	if e.diagnostics == nil {
		return
	}
	id := fmt.Sprintf("extract:%s:%d", url, time.Now().UnixNano())
	e.diagnostics.Store(id, url, report, priority)
}

package collector

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"reviewharvest-backend/lib/dom"
)

// The content-pattern extractor is the selector-free last resort: it
// recognizes review-shaped text blocks by their field patterns rather than
// by CSS-addressable structure, so it keeps working when the page's class
// names have drifted beyond every known selector set.

var (
	numericDateRegex = regexp.MustCompile(`\b\d{1,2}[./-]\d{1,2}[./-]\d{2,4}\b`)
	monthDateRegex   = regexp.MustCompile(`(?i)\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2},?\s+\d{4}\b`)
	relativeDateRegex = regexp.MustCompile(`(?i)\b(?:an?|\d+)\s+(?:second|minute|hour|day|week|month|year)s?\s+ago\b`)

	numericRatingRegex = regexp.MustCompile(`(?i)\b([1-5](?:[.,]\d)?)\s*(?:/\s*5|out of 5|of 5|stars?\b)`)
	ratedPrefixRegex   = regexp.MustCompile(`(?i)\brated\s+([1-5](?:[.,]\d)?)\b`)
	glyphRunRegex      = regexp.MustCompile(`[★⭐]{1,5}[☆✩]{0,5}`)
)

func findDateToken(s string) string {
	if m := relativeDateRegex.FindString(s); m != "" {
		return m
	}
	if m := monthDateRegex.FindString(s); m != "" {
		return m
	}
	return numericDateRegex.FindString(s)
}

// parseRatingToken extracts a machine-readable rating from a text or
// attribute value. Only numeric patterns qualify; glyphs are handled
// separately so decorative stars never masquerade as parsed ratings.
func parseRatingToken(s string) (*int, float64) {
	groups := numericRatingRegex.FindStringSubmatch(s)
	if groups == nil {
		groups = ratedPrefixRegex.FindStringSubmatch(s)
	}
	if groups == nil {
		return nil, 0
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(groups[1], ",", "."), 64)
	if err != nil {
		return nil, 0
	}
	rating := int(value + 0.5)
	if rating < 1 || rating > 5 {
		return nil, 0
	}
	return &rating, 0.3
}

// glyphRunRating infers a rating from a bounded star-glyph run: one run of
// at most five filled glyphs, optionally followed by empty glyphs padding
// the run out to five. Anything else (longer runs, multiple runs) is
// treated as decoration.
func glyphRunRating(s string) (*int, float64) {
	runs := glyphRunRegex.FindAllString(s, -1)
	if len(runs) != 1 {
		return nil, 0
	}
	run := runs[0]
	filled := 0
	total := 0
	for _, c := range run {
		total++
		if c == '★' || c == '⭐' {
			filled++
		}
	}
	if filled < 1 || filled > 5 || total > 5 {
		return nil, 0
	}
	return &filled, 0.2
}

func hasLetters(s string) bool {
	for _, c := range s {
		if unicode.IsLetter(c) {
			return true
		}
	}
	return false
}

// contentCandidate is one emitted review plus the field-parse stats the
// selector engine folds into its confidence score.
type contentCandidate struct {
	review       RawReview
	fieldsParsed int
	fieldsTotal  int
}

const (
	minReviewShapeText = 25
	maxReviewShapeText = 2000

	authorConfidence = 0.4
	textConfidence   = 0.6
	// author-or-text confidence plus rating confidence must clear this
	// floor; body text alone clears it, an author name alone does not
	contentConfidenceFloor = 0.5
)

// extractByContent walks the element tree for review-shaped containers
// (the deepest blocks holding a date-like token and a plausible amount of
// text) and assembles reviews from pattern rules per field. Partial
// reviews with no parseable rating are emitted with a nil rating rather
// than dropped.
func extractByContent(root *dom.Element, pageURL string) []contentCandidate {
	if root == nil {
		return nil
	}
	containers := findReviewShaped(root)

	var out []contentCandidate
	for _, container := range containers {
		if candidate, ok := assembleFromContainer(container, pageURL); ok {
			out = append(out, candidate)
		}
	}
	return out
}

func isReviewShaped(e *dom.Element) bool {
	text := e.Text()
	if len(text) < minReviewShapeText || len(text) > maxReviewShapeText {
		return false
	}
	return findDateToken(text) != ""
}

// findReviewShaped returns the deepest review-shaped containers: a parent
// holding several reviews is skipped in favor of its children.
func findReviewShaped(e *dom.Element) []*dom.Element {
	var below []*dom.Element
	for _, child := range e.Children() {
		below = append(below, findReviewShaped(child)...)
	}
	if len(below) > 0 {
		return below
	}
	if isReviewShaped(e) {
		return []*dom.Element{e}
	}
	return nil
}

func leafTexts(e *dom.Element) []string {
	children := e.Children()
	if len(children) == 0 {
		text := e.Text()
		if text == "" {
			return nil
		}
		return []string{text}
	}
	var out []string
	for _, child := range children {
		out = append(out, leafTexts(child)...)
	}
	return out
}

func assembleFromContainer(container *dom.Element, pageURL string) (contentCandidate, bool) {
	fullText := container.Text()
	leaves := leafTexts(container)

	date := findDateToken(fullText)

	// author: a short name-like line that is not the date and not a
	// rating token, appearing near the date in the same container
	author := ""
	for _, leaf := range leaves {
		if len(leaf) > 48 || len(strings.Fields(leaf)) > 5 {
			continue
		}
		if !hasLetters(leaf) {
			continue
		}
		if findDateToken(leaf) == leaf {
			continue
		}
		if r, _ := parseRatingToken(leaf); r != nil && len(leaf) < 16 {
			continue
		}
		author = leaf
		break
	}

	// body: the longest text block that is not the author line
	body := ""
	for _, leaf := range leaves {
		if leaf == author {
			continue
		}
		if len(leaf) > len(body) {
			body = leaf
		}
	}
	if len(body) < 15 {
		body = ""
	}

	rating, ratingConf := parseRatingToken(fullText)
	if rating == nil {
		rating, ratingConf = glyphRunRating(fullText)
	}

	authorOrText := 0.0
	if author != "" {
		authorOrText = authorConfidence
	}
	if body != "" && textConfidence > authorOrText {
		authorOrText = textConfidence
	}
	if authorOrText+ratingConf < contentConfidenceFloor {
		return contentCandidate{}, false
	}

	parsed := 0
	for _, present := range []bool{author != "", body != "", rating != nil, date != ""} {
		if present {
			parsed++
		}
	}

	return contentCandidate{
		review:       NewRawReview(author, body, date, pageURL, rating),
		fieldsParsed: parsed,
		fieldsTotal:  4,
	}, true
}

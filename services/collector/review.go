package collector

import (
	"fmt"

	"reviewharvest-backend/lib/textutil"
)

// Category is one of the three sort orders a collection pass runs under.
type Category string

const (
	CategoryRecent Category = "recent"
	CategoryWorst  Category = "worst"
	CategoryBest   Category = "best"
)

// Categories in default collection order, which doubles as the default
// deduplication priority order.
var Categories = []Category{CategoryRecent, CategoryWorst, CategoryBest}

const maxReviewIDLength = 200
const reviewIDTextPrefix = 64

// RawReview is a single review as extracted from the page. Rating is nil
// when the review is explicitly unrated or no machine-readable rating could
// be parsed.
type RawReview struct {
	ID          string `json:"id"`
	Author      string `json:"author"`
	Rating      *int   `json:"rating"`
	Text        string `json:"text"`
	Date        string `json:"date"`
	OriginalURL string `json:"original_url"`
}

func (r RawReview) Rated() bool {
	return r.Rating != nil
}

// DeriveReviewID builds a deterministic identity from the normalized
// author, a bounded text prefix and the rating, so the same underlying
// review yields the same id regardless of which sort category surfaced it.
// The result never exceeds 200 bytes and contains no control characters.
func DeriveReviewID(author, text string, rating *int) string {
	a := textutil.NormalizeName(textutil.StripControl(author))
	prefix := textutil.NormalizeName(textutil.StripControl(text))
	prefix = textutil.Truncate(prefix, reviewIDTextPrefix)

	ratingToken := "u"
	if rating != nil {
		ratingToken = fmt.Sprint(*rating)
	}

	id := a + ":" + prefix + ":" + ratingToken
	return textutil.Truncate(id, maxReviewIDLength)
}

// NewRawReview assembles a review with a derived id.
func NewRawReview(author, text, date, originalURL string, rating *int) RawReview {
	return RawReview{
		ID:          DeriveReviewID(author, text, rating),
		Author:      textutil.StripControl(author),
		Rating:      rating,
		Text:        textutil.StripControl(text),
		Date:        textutil.StripControl(date),
		OriginalURL: originalURL,
	}
}

func ratingOf(n int) *int {
	return &n
}

package collector

import (
	"fmt"

	"reviewharvest-backend/lib/textutil"

	"github.com/antzucaro/matchr"
)

const (
	DuplicateReasonExactID     = "exact-id"
	DuplicateReasonContentHash = "content-hash"
	DuplicateReasonFuzzy       = "fuzzy"
)

// DuplicateGroup records one set of reviews collapsed into a single kept
// review, with the rule that matched them.
type DuplicateGroup struct {
	Reviews    []RawReview
	Reason     string
	KeptReview RawReview
	// KeptFrom is the category the kept copy was collected under.
	KeptFrom Category
}

type DedupResult struct {
	Unique []RawReview
	// KeptBy maps review id to the category whose copy won.
	KeptBy map[string]Category
	Groups []DuplicateGroup
	// Removed counts dropped duplicates per original category.
	Removed map[Category]int
}

// Deduplicator collapses reviews that were collected under multiple sort
// orders. When the same review appears in several categories, the copy
// from the earliest category in PriorityOrder is kept.
//
// Dedup is pure and deterministic: the same input always yields the same
// output, and running it over its own output removes nothing.
type Deduplicator struct {
	// PriorityOrder ranks categories; earlier wins. Defaults to
	// recent > worst > best.
	PriorityOrder []Category
	// FuzzyThreshold enables a Jaro-Winkler near-duplicate pass when
	// positive; 0 disables it.
	FuzzyThreshold float64
}

func NewDeduplicator() *Deduplicator {
	return &Deduplicator{PriorityOrder: append([]Category{}, Categories...)}
}

func (d *Deduplicator) rank(c Category) int {
	for i, p := range d.PriorityOrder {
		if p == c {
			return i
		}
	}
	return len(d.PriorityOrder)
}

// contentKey normalizes the fields that identify a review regardless of
// which id scheme the collecting tier derived.
func contentKey(r RawReview) string {
	rating := "u"
	if r.Rating != nil {
		rating = fmt.Sprintf("%d", *r.Rating)
	}
	return textutil.NormalizeContent(r.Author) + "|" + textutil.NormalizeContent(r.Text) + "|" + rating
}

type taggedReview struct {
	review   RawReview
	category Category
	index    int
}

// Run collapses duplicates across the per-category batches. Batches are
// processed in input order, so ties inside one category keep the first
// occurrence.
func (d *Deduplicator) Run(batches map[Category][]RawReview) DedupResult {
	order := d.PriorityOrder
	if len(order) == 0 {
		order = Categories
	}

	var all []taggedReview
	for _, category := range order {
		for _, r := range batches[category] {
			all = append(all, taggedReview{review: r, category: category, index: len(all)})
		}
	}
	// categories absent from the priority order still dedup, at lowest rank
	for category, rs := range batches {
		if d.rank(category) < len(order) {
			continue
		}
		for _, r := range rs {
			all = append(all, taggedReview{review: r, category: category, index: len(all)})
		}
	}

	result := DedupResult{
		KeptBy:  map[string]Category{},
		Removed: map[Category]int{},
	}

	byID := map[string]int{}      // review id -> index into kept
	byContent := map[string]int{} // content key -> index into kept
	var kept []taggedReview
	groupFor := map[int]*DuplicateGroup{} // kept index -> open group

	absorb := func(keptIdx int, tr taggedReview, reason string) {
		result.Removed[tr.category]++
		g := groupFor[keptIdx]
		if g == nil {
			g = &DuplicateGroup{
				Reviews:    []RawReview{kept[keptIdx].review},
				Reason:     reason,
				KeptReview: kept[keptIdx].review,
				KeptFrom:   kept[keptIdx].category,
			}
			groupFor[keptIdx] = g
		}
		g.Reviews = append(g.Reviews, tr.review)
	}

	for _, tr := range all {
		if idx, ok := byID[tr.review.ID]; ok {
			absorb(idx, tr, DuplicateReasonExactID)
			continue
		}
		key := contentKey(tr.review)
		if idx, ok := byContent[key]; ok {
			absorb(idx, tr, DuplicateReasonContentHash)
			byID[tr.review.ID] = idx
			continue
		}
		if d.FuzzyThreshold > 0 {
			if idx, ok := d.fuzzyMatch(kept, tr.review); ok {
				absorb(idx, tr, DuplicateReasonFuzzy)
				byID[tr.review.ID] = idx
				byContent[key] = idx
				continue
			}
		}
		byID[tr.review.ID] = len(kept)
		byContent[key] = len(kept)
		kept = append(kept, tr)
	}

	for _, tr := range kept {
		result.Unique = append(result.Unique, tr.review)
		result.KeptBy[tr.review.ID] = tr.category
	}
	for idx := range kept {
		if g := groupFor[idx]; g != nil {
			result.Groups = append(result.Groups, *g)
		}
	}
	return result
}

// fuzzyMatch finds an already-kept review whose normalized author matches
// and whose body is Jaro-Winkler-similar above the threshold. Ratings must
// agree when both sides carry one.
func (d *Deduplicator) fuzzyMatch(kept []taggedReview, r RawReview) (int, bool) {
	author := textutil.NormalizeContent(r.Author)
	body := textutil.NormalizeContent(r.Text)
	if body == "" {
		return 0, false
	}
	for i, k := range kept {
		if textutil.NormalizeContent(k.review.Author) != author {
			continue
		}
		if r.Rating != nil && k.review.Rating != nil && *r.Rating != *k.review.Rating {
			continue
		}
		other := textutil.NormalizeContent(k.review.Text)
		if other == "" {
			continue
		}
		if matchr.JaroWinkler(body, other, true) >= d.FuzzyThreshold {
			return i, true
		}
	}
	return 0, false
}

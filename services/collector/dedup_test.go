package collector

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func review(author, text string, rating *int) RawReview {
	return NewRawReview(author, text, "2 weeks ago", "https://example.com/p", rating)
}

func TestDedupPriorityAttribution(t *testing.T) {
	shared := review("Maria K.", "The seasonal menu keeps getting better every visit.", ratingOf(5))
	batches := map[Category][]RawReview{
		CategoryRecent: {shared, review("Jo B.", "Quick service on a packed Saturday afternoon.", ratingOf(4))},
		CategoryWorst:  {review("Sam T.", "Cold plate after a forty minute wait.", ratingOf(1))},
		CategoryBest:   {shared},
	}

	result := NewDeduplicator().Run(batches)

	require.Len(t, result.Unique, 3)
	// the copy collected under recent wins over the one from best
	require.Equal(t, CategoryRecent, result.KeptBy[shared.ID])
	require.Equal(t, 1, result.Removed[CategoryBest])
	require.Zero(t, result.Removed[CategoryRecent])

	require.Len(t, result.Groups, 1)
	group := result.Groups[0]
	require.Equal(t, DuplicateReasonExactID, group.Reason)
	require.Equal(t, CategoryRecent, group.KeptFrom)
	require.Len(t, group.Reviews, 2)
}

func TestDedupContentHashAcrossIDSchemes(t *testing.T) {
	// same underlying review surfaced with different ids, as happens when
	// different tiers extracted it in different categories
	a := review("Maria K.", "Great espresso and friendly staff at the counter.", ratingOf(5))
	b := a
	b.ID = "site-native-id-991"

	result := NewDeduplicator().Run(map[Category][]RawReview{
		CategoryRecent: {a},
		CategoryBest:   {b},
	})

	require.Len(t, result.Unique, 1)
	require.Equal(t, CategoryRecent, result.KeptBy[a.ID])
	require.Len(t, result.Groups, 1)
	require.Equal(t, DuplicateReasonContentHash, result.Groups[0].Reason)
}

func TestDedupIdempotent(t *testing.T) {
	batches := map[Category][]RawReview{
		CategoryRecent: {
			review("Maria K.", "The seasonal menu keeps getting better every visit.", ratingOf(5)),
			review("Jo B.", "Quick service on a packed Saturday afternoon.", ratingOf(4)),
			review("Sam T.", "Cold plate after a forty minute wait.", ratingOf(1)),
		},
	}
	d := NewDeduplicator()
	first := d.Run(batches)

	second := d.Run(map[Category][]RawReview{CategoryRecent: first.Unique})
	require.Empty(t, second.Groups)
	require.Empty(t, cmp.Diff(first.Unique, second.Unique))
}

func TestDedupDeterministic(t *testing.T) {
	batches := map[Category][]RawReview{
		CategoryRecent: {review("A", "First review body text with enough length.", ratingOf(3))},
		CategoryWorst:  {review("B", "Second review body text with enough length.", ratingOf(1))},
		CategoryBest:   {review("A", "First review body text with enough length.", ratingOf(3))},
	}
	d := NewDeduplicator()
	first := d.Run(batches)
	second := d.Run(batches)

	require.Empty(t, cmp.Diff(first.Unique, second.Unique))
	require.Empty(t, cmp.Diff(first.KeptBy, second.KeptBy))
	require.Empty(t, cmp.Diff(first.Groups, second.Groups))
}

func TestDedupPreservesFirstSeenOrder(t *testing.T) {
	r1 := review("A", "First review body text with enough length.", ratingOf(3))
	r2 := review("B", "Second review body text with enough length.", ratingOf(4))
	r3 := review("C", "Third review body text with enough length.", ratingOf(5))

	result := NewDeduplicator().Run(map[Category][]RawReview{
		CategoryRecent: {r1, r2},
		CategoryWorst:  {r3, r1},
	})

	require.Equal(t, []string{r1.ID, r2.ID, r3.ID}, []string{
		result.Unique[0].ID, result.Unique[1].ID, result.Unique[2].ID,
	})
}

func TestDedupUnratedDistinctFromRated(t *testing.T) {
	rated := review("Maria K.", "Great espresso and friendly staff at the counter.", ratingOf(5))
	unrated := review("Maria K.", "Great espresso and friendly staff at the counter.", nil)

	result := NewDeduplicator().Run(map[Category][]RawReview{
		CategoryRecent: {rated, unrated},
	})
	require.Len(t, result.Unique, 2)
}

func TestDedupFuzzyPass(t *testing.T) {
	a := review("Maria K.", "Great espresso and friendly staff at the counter.", ratingOf(5))
	// truncated rendering of the same review, as a collapsed card shows it
	b := review("Maria K.", "Great espresso and friendly staff at the count...", ratingOf(5))

	strict := NewDeduplicator()
	require.Len(t, strict.Run(map[Category][]RawReview{CategoryRecent: {a, b}}).Unique, 2)

	fuzzy := NewDeduplicator()
	fuzzy.FuzzyThreshold = 0.95
	result := fuzzy.Run(map[Category][]RawReview{CategoryRecent: {a, b}})
	require.Len(t, result.Unique, 1)
	require.Equal(t, DuplicateReasonFuzzy, result.Groups[0].Reason)
}

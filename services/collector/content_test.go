package collector

import (
	"context"
	"testing"

	"reviewharvest-backend/lib/dom"

	"github.com/stretchr/testify/require"
)

func TestFindDateToken(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"visited on 12/03/2024 with family", "12/03/2024"},
		{"reviewed Jan 5, 2025", "Jan 5, 2025"},
		{"posted 3 weeks ago", "3 weeks ago"},
		{"a month ago", "a month ago"},
		{"no date here at all", ""},
		{"version 1.2.3 of the menu", ""},
	}
	for _, c := range cases {
		require.Equal(t, c.want, findDateToken(c.input), "input %q", c.input)
	}
}

func TestParseRatingToken(t *testing.T) {
	cases := []struct {
		input string
		want  *int
	}{
		{"Rated 4 out of 5", ratingOf(4)},
		{"4/5", ratingOf(4)},
		{"3 stars", ratingOf(3)},
		{"rated 5", ratingOf(5)},
		{"4.5/5", ratingOf(5)},
		{"7/5", nil},
		{"0 stars", nil},
		{"★★★★★", nil},
		{"just text", nil},
	}
	for _, c := range cases {
		got, _ := parseRatingToken(c.input)
		if c.want == nil {
			require.Nil(t, got, "input %q", c.input)
		} else {
			require.NotNil(t, got, "input %q", c.input)
			require.Equal(t, *c.want, *got, "input %q", c.input)
		}
	}
}

func TestGlyphRunRating(t *testing.T) {
	// a single bounded run counts
	got, conf := glyphRunRating("★★★☆☆")
	require.NotNil(t, got)
	require.Equal(t, 3, *got)
	require.Greater(t, conf, 0.0)

	got, _ = glyphRunRating("★★★★★")
	require.NotNil(t, got)
	require.Equal(t, 5, *got)

	// multiple runs are decoration, not a rating
	got, _ = glyphRunRating("★★★★★ some text ★★★")
	require.Nil(t, got)

	// runs longer than five are decoration
	got, _ = glyphRunRating("★★★★★★★")
	require.Nil(t, got)

	got, _ = glyphRunRating("no glyphs")
	require.Nil(t, got)
}

// drifted markup: none of the class names match any selector set, but the
// field patterns are intact.
const driftedFeedHTML = `<html><body>
<div class="x9f">
	<div class="k2">
		<span class="a1">Maria K.</span>
		<span class="a2">2 weeks ago</span>
		<span class="a3">4/5</span>
		<p class="a4">The seasonal menu keeps getting better and the service was quick even on a packed Saturday.</p>
	</div>
	<div class="k2">
		<span class="a1">Jo B.</span>
		<span class="a2">Jan 5, 2025</span>
		<p class="a4">Waited forty minutes for a cold plate, not coming back any time soon.</p>
	</div>
</div>
</body></html>`

func TestExtractByContent(t *testing.T) {
	snap, err := dom.ParseSnapshot(driftedFeedHTML, "https://example.com/p")
	require.NoError(t, err)
	root, err := snap.Root(context.Background())
	require.NoError(t, err)

	candidates := extractByContent(root, "https://example.com/p")
	require.Len(t, candidates, 2)

	first := candidates[0].review
	require.Equal(t, "Maria K.", first.Author)
	require.Contains(t, first.Text, "seasonal menu")
	require.Equal(t, "2 weeks ago", first.Date)
	require.NotNil(t, first.Rating)
	require.Equal(t, 4, *first.Rating)
	require.Equal(t, 4, candidates[0].fieldsParsed)

	// second review has no rating token; it is emitted unrated, not dropped
	second := candidates[1].review
	require.Equal(t, "Jo B.", second.Author)
	require.Nil(t, second.Rating)
	require.False(t, second.Rated())
}

func TestExtractByContentIgnoresNonReviewText(t *testing.T) {
	html := `<html><body>
	<p>Opening hours: Monday to Friday, nine to five. Call us for catering offers.</p>
	<p>Our chef has worked here since the very beginning of the restaurant.</p>
	</body></html>`
	snap, err := dom.ParseSnapshot(html, "https://example.com/p")
	require.NoError(t, err)
	root, err := snap.Root(context.Background())
	require.NoError(t, err)

	require.Empty(t, extractByContent(root, "https://example.com/p"))
}

func TestAssembleFromContainerConfidenceFloor(t *testing.T) {
	// an author-sized line with a date but no body must not clear the floor
	html := `<html><body><div><span>Maria Katherine Johnson</span><span>2 weeks ago</span></div></body></html>`
	snap, err := dom.ParseSnapshot(html, "https://example.com/p")
	require.NoError(t, err)
	root, err := snap.Root(context.Background())
	require.NoError(t, err)

	require.Empty(t, extractByContent(root, "https://example.com/p"))
}

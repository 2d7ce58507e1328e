package collector

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"reviewharvest-backend/lib/dom"

	"github.com/stretchr/testify/require"
)

func sortableFeed() *scriptedPage {
	return newScriptedPage(
		feedHTML(syntheticCards(50, 55)...),
		map[string][]string{
			"newest":  {feedHTML(syntheticCards(0, 5)...)},
			"lowest":  {feedHTML(syntheticCards(100, 105)...)},
			"highest": {feedHTML(syntheticCards(200, 205)...)},
		},
		healthyLoadEvents(),
	)
}

func TestSortNavigatorApplies(t *testing.T) {
	page := sortableFeed()
	nav := NewSortNavigator(time.Millisecond)

	result, err := nav.Apply(context.Background(), page, CategoryRecent)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.NotEqual(t, "fallback", result.Method)
	require.Equal(t, "newest", page.sort)

	// the feed head now belongs to the requested order
	cards, err := page.QueryAll(context.Background(), `div[data-review-id]`)
	require.NoError(t, err)
	require.Equal(t, "r0", cards[0].Attr("data-review-id"))
}

func TestSortNavigatorIdempotent(t *testing.T) {
	page := sortableFeed()
	nav := NewSortNavigator(time.Millisecond)

	first, err := nav.Apply(context.Background(), page, CategoryWorst)
	require.NoError(t, err)
	require.True(t, first.Success)

	second, err := nav.Apply(context.Background(), page, CategoryWorst)
	require.NoError(t, err)
	require.True(t, second.Success)
	require.Equal(t, "already-applied", second.Method)
}

// mobileReviewCardHTML renders one card in the mobile layout.
func mobileReviewCardHTML(id int) string {
	return fmt.Sprintf(`<li class="review-item">
	<h3>user-%03d</h3>
	<span data-rating="%d"></span>
	<time>2 weeks ago</time>
	<p>Great espresso and the staff remembered my order, visit number %d was as good as the first.</p>
</li>`, id, 1+id%5, id)
}

// mobileFeedShellHTML wraps mobile cards in a page shell whose sort
// controls live in a bottom sheet instead of a desktop menu.
func mobileFeedShellHTML(from, to int) string {
	var cards []string
	for i := from; i < to; i++ {
		cards = append(cards, mobileReviewCardHTML(i))
	}
	return `<html><body>
	<button class="sort-button">Sort</button>
	<div class="sort-sheet">
		<div role="option" id="sort-newest">Newest</div>
		<div role="option" id="sort-lowest">Lowest rated</div>
		<div role="option" id="sort-highest">Highest rated</div>
	</div>
	<ul>` + strings.Join(cards, "\n") + `</ul></body></html>`
}

func TestSortNavigatorMobileVariant(t *testing.T) {
	// no desktop sort controls anywhere; only the variant-scoped mobile
	// candidates can land
	page := newScriptedPage(
		mobileFeedShellHTML(50, 55),
		map[string][]string{
			"newest":  {mobileFeedShellHTML(0, 5)},
			"lowest":  {mobileFeedShellHTML(100, 105)},
			"highest": {mobileFeedShellHTML(200, 205)},
		},
		healthyLoadEvents(),
	)
	nav := NewSortNavigator(time.Millisecond)

	result, err := nav.Apply(context.Background(), page, CategoryRecent)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Contains(t, result.Method, "#sort-newest")
	require.Equal(t, "newest", page.sort)

	cards, err := page.QueryAll(context.Background(), `li.review-item`)
	require.NoError(t, err)
	require.Contains(t, cards[0].Text(), "user-000")
}

func TestSortNavigatorLabelOverride(t *testing.T) {
	// a localized interface renders option texts the defaults never
	// mention; the caller supplies the label set
	localized := `<html><body>
	<button class="sort-button">Ordenar</button>
	<div class="sort-sheet">
		<div role="option" id="sort-newest">Más recientes</div>
		<div role="option" id="sort-lowest">Peor valorados</div>
	</div>
	<ul>` + mobileReviewCardHTML(7) + `</ul></body></html>`
	page := newScriptedPage(
		localized,
		map[string][]string{"newest": {mobileFeedShellHTML(0, 5)}},
		healthyLoadEvents(),
	)
	nav := NewSortNavigator(time.Millisecond)
	nav.Labels = map[Category][]string{CategoryRecent: {"más recientes"}}

	result, err := nav.Apply(context.Background(), page, CategoryRecent)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Contains(t, result.Method, "#sort-newest")
}

func TestSortNavigatorFallback(t *testing.T) {
	// no sort controls anywhere on the page
	page := newScriptedPage(`<html><body><div class="feed"></div></body></html>`, nil, nil)
	nav := NewSortNavigator(time.Millisecond)

	result, err := nav.Apply(context.Background(), page, CategoryBest)
	require.NoError(t, err, "navigation exhaustion is recoverable")
	require.False(t, result.Success)
	require.Equal(t, "fallback", result.Method)
}

func TestSortNavigatorPageGone(t *testing.T) {
	page := sortableFeed()
	page.gone = true
	nav := NewSortNavigator(time.Millisecond)

	_, err := nav.Apply(context.Background(), page, CategoryRecent)
	require.ErrorIs(t, err, dom.ErrPageGone)
}

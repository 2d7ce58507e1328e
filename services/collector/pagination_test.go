package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"reviewharvest-backend/lib/dom"

	"github.com/stretchr/testify/require"
)

func pagedFeed(stages ...string) *scriptedPage {
	page := newScriptedPage(stages[0], map[string][]string{"newest": stages}, healthyLoadEvents())
	page.sort = "newest"
	return page
}

func newTestPaginator() *Paginator {
	return NewPaginator(NewSelectorEngine(NewDiagnosticStore(DiagnosticStoreOptions{})))
}

func TestPaginationReachesTarget(t *testing.T) {
	page := pagedFeed(
		feedHTML(syntheticCards(0, 6)...),
		feedHTML(syntheticCards(0, 12)...),
		feedHTML(syntheticCards(0, 20)...),
	)

	reviews, result, err := newTestPaginator().Collect(
		context.Background(), page, extractionContext(),
		PaginationOptions{Target: 10, Strategy: ScrollAggressive},
		nil,
	)
	require.NoError(t, err)
	require.Equal(t, StopTargetReached, result.StopReason)
	require.GreaterOrEqual(t, len(reviews), 10)
	require.Equal(t, len(reviews), result.Collected)
	require.Equal(t, 2, result.Rounds)
	require.GreaterOrEqual(t, result.ElapsedMs, int64(0))
}

func TestPaginationMergesAcrossRounds(t *testing.T) {
	// stages overlap heavily; re-extraction of already-seen cards must not
	// double-count
	page := pagedFeed(
		feedHTML(syntheticCards(0, 8)...),
		feedHTML(syntheticCards(0, 10)...),
	)

	var progress []int
	reviews, result, err := newTestPaginator().Collect(
		context.Background(), page, extractionContext(),
		PaginationOptions{Target: 10, Strategy: ScrollAggressive},
		func(collected int) { progress = append(progress, collected) },
	)
	require.NoError(t, err)
	require.Equal(t, StopTargetReached, result.StopReason)
	require.Len(t, reviews, 10)

	ids := map[string]bool{}
	for _, r := range reviews {
		require.False(t, ids[r.ID], "review %s extracted twice", r.ID)
		ids[r.ID] = true
	}
	require.Equal(t, []int{8, 10}, progress)
}

func TestPaginationStopsWhenFeedDrains(t *testing.T) {
	page := pagedFeed(feedHTML(syntheticCards(0, 4)...))

	reviews, result, err := newTestPaginator().Collect(
		context.Background(), page, extractionContext(),
		PaginationOptions{Target: 100, Strategy: ScrollAggressive},
		nil,
	)
	require.NoError(t, err)
	require.Equal(t, StopNoMoreContent, result.StopReason)
	require.Len(t, reviews, 4, "partial results are kept")
}

func TestPaginationTimeout(t *testing.T) {
	// every stage reveals one more review, so the run never stalls and
	// only the timeout can stop it
	var stages []string
	for i := 1; i <= 50; i++ {
		stages = append(stages, feedHTML(syntheticCards(0, i)...))
	}
	page := pagedFeed(stages...)

	reviews, result, err := newTestPaginator().Collect(
		context.Background(), page, extractionContext(),
		PaginationOptions{Target: 50, Strategy: ScrollConservative, Timeout: 900 * time.Millisecond},
		nil,
	)
	require.NoError(t, err)
	require.Equal(t, StopTimeout, result.StopReason)
	require.NotEmpty(t, reviews, "partial results are kept on timeout")
	require.Less(t, len(reviews), 50)
}

func TestPaginationZeroTargetDrainsFeed(t *testing.T) {
	page := pagedFeed(
		feedHTML(syntheticCards(0, 3)...),
		feedHTML(syntheticCards(0, 5)...),
	)

	reviews, result, err := newTestPaginator().Collect(
		context.Background(), page, extractionContext(),
		PaginationOptions{Strategy: ScrollAggressive},
		nil,
	)
	require.NoError(t, err)
	require.Equal(t, StopNoMoreContent, result.StopReason)
	require.Len(t, reviews, 5)
}

func TestPaginationAttemptBudget(t *testing.T) {
	// the feed never drains, so only the attempt budget can stop a
	// target-less run
	var stages []string
	for i := 1; i <= 12; i++ {
		stages = append(stages, feedHTML(syntheticCards(0, i*5)...))
	}
	page := pagedFeed(stages...)

	reviews, result, err := newTestPaginator().Collect(
		context.Background(), page, extractionContext(),
		PaginationOptions{Strategy: ScrollAggressive, MaxAttempts: 3},
		nil,
	)
	require.NoError(t, err)
	require.Equal(t, StopError, result.StopReason)
	require.Equal(t, 3, result.Rounds)
	require.Len(t, reviews, 15, "accumulated reviews are kept")
	require.Equal(t, len(reviews), result.Collected)
}

type failingExtractor struct {
	calls int
}

func (f *failingExtractor) Extract(ctx context.Context, page dom.Page, ec ExtractionContext) (ExtractionResult, error) {
	f.calls++
	return ExtractionResult{}, errors.New("render glitch")
}

func TestPaginationBacksOffBetweenFailedRounds(t *testing.T) {
	page := pagedFeed(feedHTML(syntheticCards(0, 4)...))
	fake := &failingExtractor{}
	paginator := &Paginator{engine: fake}

	start := time.Now()
	reviews, result, err := paginator.Collect(
		context.Background(), page, extractionContext(),
		PaginationOptions{Strategy: ScrollConservative, MaxAttempts: 2},
		nil,
	)
	require.NoError(t, err)
	require.Equal(t, StopError, result.StopReason)
	require.Equal(t, 2, result.Rounds)
	require.Equal(t, 2, fake.calls)
	require.Empty(t, reviews)
	// each failed round waits before the next attempt
	require.GreaterOrEqual(t, time.Since(start), 2*paginationInitialDelay)
}

func TestPaginationPageGone(t *testing.T) {
	page := pagedFeed(feedHTML(syntheticCards(0, 4)...))
	page.gone = true

	_, _, err := newTestPaginator().Collect(
		context.Background(), page, extractionContext(),
		PaginationOptions{Target: 10},
		nil,
	)
	require.ErrorIs(t, err, dom.ErrPageGone)
}

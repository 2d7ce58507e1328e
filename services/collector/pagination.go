package collector

import (
	"context"
	"errors"
	"time"

	"reviewharvest-backend/lib/dom"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	StopTargetReached = "target-reached"
	StopNoMoreContent = "no-more-content"
	StopTimeout       = "timeout"
	StopError         = "error"
)

const (
	paginationInitialDelay = 400 * time.Millisecond
	paginationMinDelay     = 150 * time.Millisecond
	paginationMaxDelay     = 1500 * time.Millisecond
	// rounds yielding nothing new before the feed is considered drained
	paginationStallRounds = 2
)

type PaginationOptions struct {
	// Target is the review count to collect; zero means everything the
	// feed will give.
	Target   int
	Strategy ScrollStrategy
	// FeedSelector names the scrollable feed container; empty scrolls the
	// window.
	FeedSelector string
	// MoreSelector optionally names a "more" button clicked after each
	// scroll.
	MoreSelector string
	// MaxAttempts bounds total reveal rounds, failed ones included;
	// exceeding it stops the run with StopError while keeping what was
	// collected. Default 60.
	MaxAttempts int
	// Timeout bounds the whole pagination run.
	Timeout time.Duration
}

type PaginationResult struct {
	Collected    int
	StopReason   string
	Rounds       int
	ElapsedMs    int64
	FinalDelayMs int64
}

type extractor interface {
	Extract(ctx context.Context, page dom.Page, ec ExtractionContext) (ExtractionResult, error)
}

// Paginator drives a page through scroll/extract rounds until a target
// count is met or the feed is exhausted. Reviews are merged by id across
// rounds so overlapping extractions never double-count.
type Paginator struct {
	engine extractor
}

func NewPaginator(engine *SelectorEngine) *Paginator {
	return &Paginator{engine: engine}
}

// Collect runs pagination rounds against the page. The returned error is
// non-nil only when the page handle is gone; every other stop condition is
// reported through PaginationResult.StopReason with the reviews gathered
// so far.
func (p *Paginator) Collect(
	ctx context.Context,
	page dom.Page,
	ec ExtractionContext,
	opts PaginationOptions,
	onProgress func(collected int),
) ([]RawReview, PaginationResult, error) {
	ctx, span := tracer.Start(ctx, "Paginator.Collect")
	defer span.End()
	span.SetAttributes(
		attribute.Int("target", opts.Target),
		attribute.String("strategy", string(opts.Strategy)),
	)

	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 60
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	seen := map[string]int{}
	var reviews []RawReview
	merge := func(batch []RawReview) int {
		added := 0
		for _, r := range batch {
			if _, ok := seen[r.ID]; ok {
				continue
			}
			seen[r.ID] = len(reviews)
			reviews = append(reviews, r)
			added++
		}
		return added
	}

	started := time.Now()
	delay := paginationInitialDelay
	stallRounds := 0
	result := PaginationResult{}

	finish := func(reason string) ([]RawReview, PaginationResult, error) {
		result.Collected = len(reviews)
		result.StopReason = reason
		result.ElapsedMs = time.Since(started).Milliseconds()
		result.FinalDelayMs = delay.Milliseconds()
		span.SetAttributes(
			attribute.String("stop_reason", reason),
			attribute.Int("rounds", result.Rounds),
			attribute.Int("collected", len(reviews)),
		)
		return reviews, result, nil
	}

	for {
		if ctx.Err() != nil {
			return finish(StopTimeout)
		}
		// failed rounds consume the budget too, so a page that keeps
		// erroring or revealing cannot run unbounded
		if result.Rounds >= opts.MaxAttempts {
			return finish(StopError)
		}
		result.Rounds++

		extracted, err := p.engine.Extract(ctx, page, ec)
		if err != nil {
			if errors.Is(err, dom.ErrPageGone) {
				span.RecordError(err)
				span.SetStatus(codes.Error, "page handle gone")
				return reviews, result, err
			}
			span.RecordError(err)
			delay = nextDelay(delay, opts.Strategy, false)
			if err := sleepCtx(ctx, delay); err != nil {
				return finish(StopTimeout)
			}
			continue
		}

		added := merge(extracted.Reviews)
		if onProgress != nil {
			onProgress(len(reviews))
		}
		if opts.Target > 0 && len(reviews) >= opts.Target {
			return finish(StopTargetReached)
		}

		if added == 0 {
			stallRounds++
			if stallRounds >= paginationStallRounds {
				return finish(StopNoMoreContent)
			}
		} else {
			stallRounds = 0
		}

		if err := page.ScrollBottom(ctx, opts.FeedSelector); err != nil {
			if errors.Is(err, dom.ErrPageGone) {
				span.RecordError(err)
				return reviews, result, err
			}
			span.RecordError(err)
		}
		if opts.MoreSelector != "" {
			// a missing "more" button is normal near the end of a feed
			if err := page.Click(ctx, opts.MoreSelector); err != nil && errors.Is(err, dom.ErrPageGone) {
				return reviews, result, err
			}
		}

		delay = nextDelay(delay, opts.Strategy, added > 0)
		if err := sleepCtx(ctx, delay); err != nil {
			return finish(StopTimeout)
		}
	}
}

// nextDelay adapts the inter-round wait to how productive the last round
// was: shrink while content flows, back off while it stalls.
func nextDelay(current time.Duration, strategy ScrollStrategy, productive bool) time.Duration {
	switch strategy {
	case ScrollAggressive:
		return paginationMinDelay
	case ScrollConservative:
		return paginationInitialDelay
	default:
		if productive {
			current = time.Duration(float64(current) * 0.75)
		} else {
			current = time.Duration(float64(current) * 1.5)
		}
		if current < paginationMinDelay {
			current = paginationMinDelay
		}
		if current > paginationMaxDelay {
			current = paginationMaxDelay
		}
		return current
	}
}

package collector

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"reviewharvest-backend/lib/dom"
	"reviewharvest-backend/lib/retry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Orchestrator drives one collection session through its phases: navigate,
// then per category sort + paginate, then deduplicate. The page handle is
// exclusively owned by the orchestrator for the session's duration.
//
// The guiding policy is to always return what was collected: every
// recoverable condition is absorbed into metadata and diagnostics, and
// only a dead page handle ends the session with an error.
type Orchestrator struct {
	config      CollectionConfig
	engine      *SelectorEngine
	navigator   *SortNavigator
	paginator   *Paginator
	monitor     ResourceMonitor
	dedup       *Deduplicator
	diagnostics *DiagnosticStore
}

func NewOrchestrator(config CollectionConfig, diagnostics *DiagnosticStore) (*Orchestrator, error) {
	config = config.Normalize()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	engine := NewSelectorEngine(diagnostics)
	dedup := NewDeduplicator()
	dedup.FuzzyThreshold = config.FuzzyDuplicateThreshold
	return &Orchestrator{
		config:      config,
		engine:      engine,
		navigator:   NewSortNavigator(0),
		paginator:   NewPaginator(engine),
		monitor:     ResourceMonitor{Critical: config.CriticalResources},
		dedup:       dedup,
		diagnostics: diagnostics,
	}, nil
}

// Collect runs the full session against the page. The result carries
// everything gathered even when phases degraded or the global deadline
// truncated the run; the returned error is non-nil only when the page
// handle died, and even then the partial result is returned alongside it.
func (o *Orchestrator) Collect(ctx context.Context, page dom.Page, url string, sinks ...ProgressSink) (*ComprehensiveCollectionResult, error) {
	ctx, span := tracer.Start(ctx, "Orchestrator.Collect")
	defer span.End()
	span.SetAttributes(attribute.String("url", url))

	session := NewCollectionSession(url, o.config)
	span.SetAttributes(attribute.String("session_id", session.ID))

	ctx, cancel := context.WithTimeout(ctx, o.config.Timeouts.TotalCollection)
	defer cancel()

	totalTarget := 0
	for _, cat := range Categories {
		totalTarget += o.config.TargetCounts[cat]
	}
	tracker := NewProgressTracker(session.ID, totalTarget, sinks...)

	result := &ComprehensiveCollectionResult{
		SessionID:   session.ID,
		URL:         url,
		Status:      StatusComplete,
		PerCategory: map[Category][]RawReview{},
		Metadata: CollectionMetadata{
			PerCategoryCounts: map[Category]int{},
			StopReasons:       map[Category]string{},
		},
	}
	fail := func(err error) (*ComprehensiveCollectionResult, error) {
		result.Status = StatusError
		result.Metadata.CollectionTimeMs = time.Since(session.StartedAt).Milliseconds()
		tracker.SetPhase(PhaseError, "", err.Error())
		span.RecordError(err)
		span.SetStatus(codes.Error, "session terminated")
		return result, err
	}

	tracker.SetPhase(PhaseNavigating, "", "loading page")
	if err := page.Navigate(ctx, url); err != nil {
		if errors.Is(err, dom.ErrPageGone) {
			return fail(err)
		}
		// a failed initial navigation without a dead handle still gets an
		// extraction attempt against whatever the page shows
		slog.Warn("initial navigation failed, continuing against current document",
			"session", session.ID, "err", err)
	}

	status := o.monitor.Observe(ctx, page, o.config.Timeouts.SortNavigation)
	result.ResourceStatus = status
	result.Metadata.Degraded = status.DegradedMode
	if status.DegradedMode {
		slog.Warn("collecting in degraded mode",
			"session", session.ID, "failed_resources", status.FailedResources)
	}

	baseCollected := 0
	for _, category := range Categories {
		if ctx.Err() != nil {
			result.Metadata.TruncatedByTimeout = true
			for _, remaining := range Categories {
				if _, done := result.Metadata.StopReasons[remaining]; !done {
					result.Metadata.StopReasons[remaining] = StopTimeout
				}
			}
			break
		}

		tracker.SetPhase(PhaseNavigating, category, "applying sort order")
		nav, err := o.applySort(ctx, page, category)
		if err != nil {
			return fail(err)
		}
		if !nav.Success {
			if result.Metadata.SortFallbacks == nil {
				result.Metadata.SortFallbacks = map[Category]bool{}
			}
			result.Metadata.SortFallbacks[category] = true
			slog.Warn("sort navigation exhausted, collecting in current order",
				"session", session.ID, "category", category, "err", ErrNavigationFailure)
		}

		tracker.SetPhase(PhaseCollecting, category, "")
		reviews, pageResult, err := o.paginator.Collect(ctx, page,
			ExtractionContext{URL: page.URL(), Degraded: status.DegradedMode, Resources: status},
			PaginationOptions{
				Target:       o.config.TargetCounts[category],
				Strategy:     o.config.ScrollStrategy,
				FeedSelector: o.config.FeedSelector,
				MoreSelector: o.config.MoreSelector,
				MaxAttempts:  o.config.RetryLimits.PaginationAttempts,
				Timeout:      o.config.Timeouts.Pagination,
			},
			func(collected int) { tracker.SetCollected(baseCollected + collected) },
		)
		result.PerCategory[category] = reviews
		result.Metadata.PerCategoryCounts[category] = len(reviews)
		result.Metadata.StopReasons[category] = pageResult.StopReason
		result.Metadata.TotalCollected += len(reviews)
		baseCollected += len(reviews)
		if err != nil {
			return fail(err)
		}
		switch pageResult.StopReason {
		case StopNoMoreContent:
			if len(reviews) < o.config.TargetCounts[category] {
				slog.Info("feed drained below target",
					"session", session.ID, "category", category,
					"collected", len(reviews), "err", ErrPaginationStall)
			}
		case StopTimeout:
			if ctx.Err() != nil {
				result.Metadata.TruncatedByTimeout = true
			}
		}
		if len(reviews) == 0 {
			slog.Warn("category yielded no reviews",
				"session", session.ID, "category", category, "err", ErrExtractionExhausted)
		}
	}

	tracker.SetPhase(PhaseDedup, "", "")
	deduped := o.dedup.Run(result.PerCategory)
	result.UniqueReviews = deduped.Unique
	result.KeptBy = deduped.KeptBy
	result.DuplicateGroups = deduped.Groups
	result.Metadata.TotalUnique = len(deduped.Unique)
	result.Metadata.DuplicatesRemoved = result.Metadata.TotalCollected - len(deduped.Unique)
	result.Metadata.CollectionTimeMs = time.Since(session.StartedAt).Milliseconds()

	tracker.SetPhase(PhaseComplete, "", "")
	span.SetAttributes(
		attribute.Int("total_collected", result.Metadata.TotalCollected),
		attribute.Int("total_unique", result.Metadata.TotalUnique),
		attribute.Bool("degraded", result.Metadata.Degraded),
		attribute.Bool("truncated", result.Metadata.TruncatedByTimeout),
	)
	slog.Info("collection session complete",
		"session", session.ID,
		"collected", result.Metadata.TotalCollected,
		"unique", result.Metadata.TotalUnique,
		"elapsed_ms", result.Metadata.CollectionTimeMs)
	return result, nil
}

// applySort retries the sort navigation up to the configured limit. An
// exhausted retry budget is not an error; the category is collected in
// whatever order the feed currently has.
func (o *Orchestrator) applySort(ctx context.Context, page dom.Page, category Category) (NavigationResult, error) {
	navCtx, cancel := context.WithTimeout(ctx, o.config.Timeouts.SortNavigation)
	defer cancel()

	var last NavigationResult
	err := retry.Attempt(navCtx, o.config.RetryLimits.SortingAttempts,
		retry.Policy{Base: 250 * time.Millisecond, Factor: 2, Max: 2 * time.Second},
		func(ctx context.Context) error {
			nav, err := o.navigator.Apply(ctx, page, category)
			if err != nil {
				return err
			}
			last = nav
			if !nav.Success {
				return ErrNavigationFailure
			}
			return nil
		})
	if err != nil {
		if errors.Is(err, dom.ErrPageGone) {
			return NavigationResult{}, err
		}
		// timeouts and exhausted retries both fall back to default order
		return NavigationResult{Success: false, Method: "fallback"}, nil
	}
	return last, nil
}

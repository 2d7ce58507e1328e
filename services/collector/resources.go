package collector

import (
	"context"
	"strings"
	"time"

	"reviewharvest-backend/lib/dom"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ResourceStatus classifies the health of a page load.
type ResourceStatus struct {
	CriticalResourcesLoaded bool     `json:"critical_resources_loaded"`
	FailedResources         []string `json:"failed_resources"`
	LoadingTimeMs           int64    `json:"loading_time_ms"`
	DegradedMode            bool     `json:"degraded_mode"`
}

// ResourceMonitor passively observes network/load events on a page and
// decides whether extraction should run in degraded mode. It never fails:
// an inability to observe is itself reported as degraded.
type ResourceMonitor struct {
	// Critical is an allow-list of URL substrings naming the stylesheet and
	// script bundles extraction relies on for a stable layout. Empty
	// means any resource failure alone does not force degraded mode.
	Critical []string
}

func (m ResourceMonitor) Observe(ctx context.Context, page dom.Page, timeout time.Duration) ResourceStatus {
	ctx, span := tracer.Start(ctx, "ResourceMonitor.Observe")
	defer span.End()

	start := time.Now()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	var failed []string
	loaded := map[string]bool{}
	sawDOMReady := false
	sawLoad := false
	timedOut := false

	events := page.Events()

observe:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				break observe
			}
			switch ev.Kind {
			case dom.EventResourceLoaded:
				loaded[ev.URL] = true
			case dom.EventResourceFailed:
				failed = append(failed, ev.URL)
			case dom.EventDOMReady:
				sawDOMReady = true
			case dom.EventLoad:
				sawLoad = true
			}
		case <-deadline.C:
			timedOut = true
			break observe
		case <-ctx.Done():
			timedOut = true
			break observe
		}
	}

	status := ResourceStatus{
		FailedResources: failed,
		LoadingTimeMs:   time.Since(start).Milliseconds(),
	}

	criticalFailed := false
	criticalLoaded := true
	for _, pattern := range m.Critical {
		seen := false
		for _, url := range failed {
			if strings.Contains(url, pattern) {
				criticalFailed = true
				seen = true
			}
		}
		if !seen {
			for url := range loaded {
				if strings.Contains(url, pattern) {
					seen = true
					break
				}
			}
		}
		if !seen {
			// a critical resource that never showed up cannot be
			// relied on either
			criticalLoaded = false
			status.FailedResources = append(status.FailedResources, pattern+" (not observed)")
		}
	}
	if criticalFailed {
		criticalLoaded = false
	}
	status.CriticalResourcesLoaded = criticalLoaded

	incompleteDOM := !sawDOMReady && !sawLoad
	status.DegradedMode = !criticalLoaded || (timedOut && incompleteDOM)

	span.SetAttributes(
		attribute.Bool("degraded", status.DegradedMode),
		attribute.Int("failed_resources", len(status.FailedResources)),
	)
	if status.DegradedMode {
		span.AddEvent("degraded mode", trace.WithAttributes(
			attribute.Bool("critical_loaded", criticalLoaded),
			attribute.Bool("timed_out", timedOut),
		))
	}
	return status
}

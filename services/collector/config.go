package collector

import (
	"fmt"
	"time"
)

type ScrollStrategy string

const (
	ScrollAggressive   ScrollStrategy = "aggressive"
	ScrollConservative ScrollStrategy = "conservative"
	ScrollAdaptive     ScrollStrategy = "adaptive"
)

type Timeouts struct {
	SortNavigation  time.Duration `json:"sort_navigation"`
	Pagination      time.Duration `json:"pagination"`
	TotalCollection time.Duration `json:"total_collection"`
}

type RetryLimits struct {
	SortingAttempts int `json:"sorting_attempts"`
	// PaginationAttempts bounds reveal rounds per category, failed
	// rounds included.
	PaginationAttempts int `json:"pagination_attempts"`
}

// CollectionConfig carries every recognized collection option. Zero values
// are filled in by Normalize; Validate rejects values that make no sense.
type CollectionConfig struct {
	TargetCounts   map[Category]int `json:"target_counts"`
	Timeouts       Timeouts         `json:"timeouts"`
	RetryLimits    RetryLimits      `json:"retry_limits"`
	ScrollStrategy ScrollStrategy   `json:"scroll_strategy"`

	// FeedSelector is the scrollable review container; empty means window
	// scrolling. MoreSelector is an optional "load more" control.
	FeedSelector string `json:"feed_selector"`
	MoreSelector string `json:"more_selector"`

	// FuzzyDuplicateThreshold enables Jaro-Winkler near-duplicate matching
	// during deduplication when > 0. Content-hash equality remains the
	// authoritative baseline.
	FuzzyDuplicateThreshold float64 `json:"fuzzy_duplicate_threshold"`

	// CriticalResources is the allow-list of resource URL substrings the
	// extraction relies on for a stable layout.
	CriticalResources []string `json:"critical_resources"`
}

func DefaultConfig() CollectionConfig {
	return CollectionConfig{
		TargetCounts: map[Category]int{
			CategoryRecent: 100,
			CategoryWorst:  100,
			CategoryBest:   100,
		},
		Timeouts: Timeouts{
			SortNavigation:  time.Second * 10,
			Pagination:      time.Second * 30,
			TotalCollection: time.Second * 300,
		},
		RetryLimits: RetryLimits{
			SortingAttempts:    3,
			PaginationAttempts: 60,
		},
		ScrollStrategy: ScrollAdaptive,
	}
}

// Normalize fills unset fields with defaults without touching explicit
// values.
func (c CollectionConfig) Normalize() CollectionConfig {
	def := DefaultConfig()
	if c.TargetCounts == nil {
		c.TargetCounts = def.TargetCounts
	} else {
		for _, cat := range Categories {
			if _, ok := c.TargetCounts[cat]; !ok {
				c.TargetCounts[cat] = def.TargetCounts[cat]
			}
		}
	}
	if c.Timeouts.SortNavigation == 0 {
		c.Timeouts.SortNavigation = def.Timeouts.SortNavigation
	}
	if c.Timeouts.Pagination == 0 {
		c.Timeouts.Pagination = def.Timeouts.Pagination
	}
	if c.Timeouts.TotalCollection == 0 {
		c.Timeouts.TotalCollection = def.Timeouts.TotalCollection
	}
	if c.RetryLimits.SortingAttempts == 0 {
		c.RetryLimits.SortingAttempts = def.RetryLimits.SortingAttempts
	}
	if c.RetryLimits.PaginationAttempts == 0 {
		c.RetryLimits.PaginationAttempts = def.RetryLimits.PaginationAttempts
	}
	if c.ScrollStrategy == "" {
		c.ScrollStrategy = def.ScrollStrategy
	}
	return c
}

func (c CollectionConfig) Validate() error {
	for _, cat := range Categories {
		target, ok := c.TargetCounts[cat]
		if !ok {
			continue
		}
		if target < 0 {
			return ValidationError{
				Field:  fmt.Sprintf("target_counts.%s", cat),
				Reason: "target must not be negative",
			}
		}
	}
	for cat := range c.TargetCounts {
		switch cat {
		case CategoryRecent, CategoryWorst, CategoryBest:
		default:
			return ValidationError{
				Field:  fmt.Sprintf("target_counts.%s", cat),
				Reason: "unknown category",
			}
		}
	}
	if c.Timeouts.SortNavigation < 0 || c.Timeouts.Pagination < 0 || c.Timeouts.TotalCollection < 0 {
		return ValidationError{Field: "timeouts", Reason: "timeouts must not be negative"}
	}
	if c.RetryLimits.SortingAttempts < 0 || c.RetryLimits.PaginationAttempts < 0 {
		return ValidationError{Field: "retry_limits", Reason: "retry limits must not be negative"}
	}
	switch c.ScrollStrategy {
	case "", ScrollAggressive, ScrollConservative, ScrollAdaptive:
	default:
		return ValidationError{
			Field:  "scroll_strategy",
			Reason: fmt.Sprintf("unknown strategy %q", c.ScrollStrategy),
		}
	}
	if c.FuzzyDuplicateThreshold < 0 || c.FuzzyDuplicateThreshold > 1 {
		return ValidationError{
			Field:  "fuzzy_duplicate_threshold",
			Reason: "threshold must be within [0,1]",
		}
	}
	return nil
}

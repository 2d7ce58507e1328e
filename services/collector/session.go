package collector

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusComplete = "complete"
	StatusError    = "error"
)

// CollectionSession identifies one run of the orchestrator against one
// page handle.
type CollectionSession struct {
	ID        string
	URL       string
	Config    CollectionConfig
	StartedAt time.Time
}

func NewCollectionSession(url string, config CollectionConfig) CollectionSession {
	return CollectionSession{
		ID:        uuid.NewString(),
		URL:       url,
		Config:    config.Normalize(),
		StartedAt: time.Now(),
	}
}

// CollectionMetadata summarizes how a run went, including the degradations
// it absorbed along the way.
type CollectionMetadata struct {
	TotalCollected    int              `json:"totalCollected"`
	TotalUnique       int              `json:"totalUnique"`
	DuplicatesRemoved int              `json:"duplicatesRemoved"`
	CollectionTimeMs  int64            `json:"collectionTimeMs"`
	PerCategoryCounts map[Category]int `json:"perCategoryCounts"`
	// StopReasons records why each category phase ended.
	StopReasons map[Category]string `json:"stopReasons"`
	// SortFallbacks marks categories collected in the feed's default order
	// because no sort control responded.
	SortFallbacks map[Category]bool `json:"sortFallbacks,omitempty"`
	// Degraded reports that critical page resources failed to load.
	Degraded bool `json:"degraded"`
	// TruncatedByTimeout reports that the global deadline cut the run
	// short before every category phase finished.
	TruncatedByTimeout bool `json:"truncatedByTimeout"`
}

// ComprehensiveCollectionResult is the final payload of a session. It is
// immutable once produced; callers own persistence and delivery.
type ComprehensiveCollectionResult struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
	// Status is complete even for degraded or truncated runs; only a dead
	// page handle yields error.
	Status        string                   `json:"status"`
	UniqueReviews []RawReview              `json:"uniqueReviews"`
	PerCategory   map[Category][]RawReview `json:"perCategory"`
	// KeptBy attributes each unique review to the category whose copy won
	// deduplication.
	KeptBy          map[string]Category `json:"keptBy"`
	DuplicateGroups []DuplicateGroup    `json:"duplicateGroups,omitempty"`
	ResourceStatus  ResourceStatus      `json:"resourceStatus"`
	Metadata        CollectionMetadata  `json:"metadata"`
}

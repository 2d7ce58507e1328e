package collector

import (
	"fmt"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"
)

// ExtractionAttempt records one strategy attempt within an extraction call.
type ExtractionAttempt struct {
	StrategyName  string `json:"strategy_name"`
	TierPriority  int    `json:"tier_priority"`
	ElementsFound int    `json:"elements_found"`
	Succeeded     bool   `json:"succeeded"`
	FailureReason string `json:"failure_reason,omitempty"`
	ElapsedMs     int64  `json:"elapsed_ms"`
}

// DiagnosticReport is produced on extraction failure or low-confidence
// success: what was attempted, what the DOM looked like, what the resource
// monitor saw, and what an operator could do about it.
type DiagnosticReport struct {
	Attempts       []ExtractionAttempt `json:"attempts"`
	DOMSummary     string              `json:"dom_summary"`
	ResourceStatus ResourceStatus      `json:"resource_status"`
	SuggestedFixes []string            `json:"suggested_fixes"`
}

func (r *DiagnosticReport) estimateSize() int {
	if r == nil {
		return 0
	}
	size := len(r.DOMSummary)
	for _, a := range r.Attempts {
		size += len(a.StrategyName) + len(a.FailureReason) + 48
	}
	for _, f := range r.SuggestedFixes {
		size += len(f)
	}
	for _, u := range r.ResourceStatus.FailedResources {
		size += len(u)
	}
	return size + 128
}

type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

func normalizePriority(p Priority) Priority {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return p
	default:
		return PriorityNormal
	}
}

type DiagnosticStoreOptions struct {
	// MaxEntries bounds the entry count, default 256.
	MaxEntries int
	// MaxBytes bounds the estimated payload size, default 4MB.
	MaxBytes int
	// Retention per priority; entries older than their window are evicted
	// first. Defaults: low 5m, normal 30m, high 2h.
	Retention map[Priority]time.Duration
}

type diagEntry struct {
	id         string
	url        string
	payload    *DiagnosticReport
	priority   Priority
	size       int
	createdAt  time.Time
	accessedAt time.Time
}

// DiagnosticStore is a bounded, priority-aware in-memory store for failure
// diagnostics. It never fails its caller: invalid input is normalized and
// stored as a placeholder. Safe for concurrent use; last write wins per id.
type DiagnosticStore struct {
	mu sync.Mutex

	// one recency list per priority band so eviction can drain low
	// priority entries before touching high priority ones
	bands      [3]*lru.LRU[string, *diagEntry]
	bandOf     map[string]Priority
	totalBytes int

	maxEntries int
	maxBytes   int
	retention  map[Priority]time.Duration
	now        func() time.Time
}

func NewDiagnosticStore(opts DiagnosticStoreOptions) *DiagnosticStore {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 256
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 4 << 20
	}
	retention := map[Priority]time.Duration{
		PriorityLow:    time.Minute * 5,
		PriorityNormal: time.Minute * 30,
		PriorityHigh:   time.Hour * 2,
	}
	for p, d := range opts.Retention {
		retention[normalizePriority(p)] = d
	}

	s := &DiagnosticStore{
		bandOf:     map[string]Priority{},
		maxEntries: opts.MaxEntries,
		maxBytes:   opts.MaxBytes,
		retention:  retention,
		now:        time.Now,
	}
	for i := range s.bands {
		// bound and retention eviction is driven manually, but a band at
		// capacity also evicts on Add; the callback keeps the id index
		// and byte accounting in step either way
		band, err := lru.NewLRU(opts.MaxEntries, s.reconcileEviction)
		if err != nil {
			panic(fmt.Sprintf("diagnostic store band: %v", err))
		}
		s.bands[i] = band
	}
	return s
}

// reconcileEviction runs for every entry leaving a band, whether removed
// explicitly or evicted by the band's own capacity. Called with s.mu held.
func (s *DiagnosticStore) reconcileEviction(id string, entry *diagEntry) {
	s.totalBytes -= entry.size
	delete(s.bandOf, id)
}

// Store records a diagnostic payload. A nil payload is replaced with a
// placeholder report and an unknown priority is normalized; storage never
// becomes the reason an extraction fails.
func (s *DiagnosticStore) Store(id, url string, payload *DiagnosticReport, priority Priority) {
	if id == "" {
		id = fmt.Sprintf("diag-%d", s.now().UnixNano())
	}
	if payload == nil {
		payload = &DiagnosticReport{DOMSummary: "(no payload provided)"}
	}
	priority = normalizePriority(priority)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(id)

	entry := &diagEntry{
		id:         id,
		url:        url,
		payload:    payload,
		priority:   priority,
		size:       payload.estimateSize(),
		createdAt:  s.now(),
		accessedAt: s.now(),
	}
	s.bands[priority].Add(id, entry)
	s.bandOf[id] = priority
	s.totalBytes += entry.size

	s.enforceBoundsLocked()
}

func (s *DiagnosticStore) removeLocked(id string) {
	if priority, ok := s.bandOf[id]; ok {
		s.bands[priority].Remove(id)
	}
}

func (s *DiagnosticStore) enforceBoundsLocked() {
	for s.lenLocked() > s.maxEntries || s.totalBytes > s.maxBytes {
		if !s.evictOneLocked() {
			return
		}
	}
}

func (s *DiagnosticStore) lenLocked() int {
	return len(s.bandOf)
}

// evictOneLocked removes the best eviction candidate: any entry past its
// priority retention window first, otherwise the least recently accessed
// entry of the lowest priority band that has one.
func (s *DiagnosticStore) evictOneLocked() bool {
	now := s.now()
	for p := PriorityLow; p <= PriorityHigh; p++ {
		for _, key := range s.bands[p].Keys() {
			entry, ok := s.bands[p].Peek(key)
			if !ok {
				continue
			}
			if now.Sub(entry.accessedAt) > s.retention[p] {
				s.removeLocked(key)
				return true
			}
		}
	}
	for p := PriorityLow; p <= PriorityHigh; p++ {
		if key, _, ok := s.bands[p].GetOldest(); ok {
			s.removeLocked(key)
			return true
		}
	}
	return false
}

// Get returns the payload for an id and refreshes its access time.
func (s *DiagnosticStore) Get(id string) (*DiagnosticReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	priority, ok := s.bandOf[id]
	if !ok {
		return nil, false
	}
	entry, ok := s.bands[priority].Get(id)
	if !ok {
		return nil, false
	}
	entry.accessedAt = s.now()
	return entry.payload, true
}

// GetByURL returns every report stored for a url, oldest first.
func (s *DiagnosticStore) GetByURL(url string) []*DiagnosticReport {
	return s.collect(func(e *diagEntry) bool { return e.url == url })
}

// GetByPriority returns every report stored at a priority, oldest first.
func (s *DiagnosticStore) GetByPriority(p Priority) []*DiagnosticReport {
	p = normalizePriority(p)
	return s.collect(func(e *diagEntry) bool { return e.priority == p })
}

// GetByTimeRange returns every report created within [from, to], oldest
// first.
func (s *DiagnosticStore) GetByTimeRange(from, to time.Time) []*DiagnosticReport {
	return s.collect(func(e *diagEntry) bool {
		return !e.createdAt.Before(from) && !e.createdAt.After(to)
	})
}

func (s *DiagnosticStore) collect(match func(*diagEntry) bool) []*DiagnosticReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []*diagEntry
	for p := PriorityLow; p <= PriorityHigh; p++ {
		for _, key := range s.bands[p].Keys() {
			entry, ok := s.bands[p].Peek(key)
			if !ok {
				continue
			}
			if match(entry) {
				entries = append(entries, entry)
			}
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].createdAt.Before(entries[j].createdAt)
	})

	now := s.now()
	out := make([]*DiagnosticReport, 0, len(entries))
	for _, e := range entries {
		e.accessedAt = now
		out = append(out, e.payload)
	}
	return out
}

// Len reports the current entry count.
func (s *DiagnosticStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lenLocked()
}

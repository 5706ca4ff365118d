package render

import (
	"sort"
	"sync"
	"time"

	"github.com/docrender/docrender/internal/apperr"
)

// Metrics tracks render statistics per template
type Metrics struct {
	mu sync.RWMutex

	rendered  map[string]int64
	succeeded map[string]int64
	failed    map[string]int64
	// failures counts failed renders per error kind across all templates
	failures map[string]int64

	totalDuration map[string]time.Duration
	minDuration   map[string]time.Duration
	maxDuration   map[string]time.Duration

	batches      int64
	batchEntries int64
	inFlight     int64
}

// NewMetrics creates a new metrics tracker
func NewMetrics() *Metrics {
	return &Metrics{
		rendered:      make(map[string]int64),
		succeeded:     make(map[string]int64),
		failed:        make(map[string]int64),
		failures:      make(map[string]int64),
		totalDuration: make(map[string]time.Duration),
		minDuration:   make(map[string]time.Duration),
		maxDuration:   make(map[string]time.Duration),
	}
}

// RecordSuccess records a successful render
func (m *Metrics) RecordSuccess(template string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rendered[template]++
	m.succeeded[template]++
	m.updateDuration(template, duration)
}

// RecordFailure records a failed render and its error kind
func (m *Metrics) RecordFailure(template string, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rendered[template]++
	m.failed[template]++
	m.failures[apperr.KindOf(err).String()]++
	m.updateDuration(template, duration)
}

// RecordBatch records a finished batch and the number of entries it streamed
func (m *Metrics) RecordBatch(entries int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.batches++
	m.batchEntries += int64(entries)
}

func (m *Metrics) enter() {
	m.mu.Lock()
	m.inFlight++
	m.mu.Unlock()
}

func (m *Metrics) leave() {
	m.mu.Lock()
	m.inFlight--
	m.mu.Unlock()
}

// updateDuration must be called with mu held
func (m *Metrics) updateDuration(template string, duration time.Duration) {
	m.totalDuration[template] += duration
	if min, ok := m.minDuration[template]; !ok || duration < min {
		m.minDuration[template] = duration
	}
	if max, ok := m.maxDuration[template]; !ok || duration > max {
		m.maxDuration[template] = duration
	}
}

// GetStats returns statistics for one template
func (m *Metrics) GetStats(template string) TemplateStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statsLocked(template)
}

func (m *Metrics) statsLocked(template string) TemplateStats {
	s := TemplateStats{
		Template:    template,
		Rendered:    m.rendered[template],
		Succeeded:   m.succeeded[template],
		Failed:      m.failed[template],
		MinDuration: m.minDuration[template],
		MaxDuration: m.maxDuration[template],
	}
	if s.Rendered > 0 {
		s.AvgDuration = m.totalDuration[template] / time.Duration(s.Rendered)
	}
	return s
}

// Snapshot returns a consistent copy of every counter
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.rendered))
	for name := range m.rendered {
		names = append(names, name)
	}
	sort.Strings(names)

	snap := Snapshot{
		Templates:    make([]TemplateStats, 0, len(names)),
		Failures:     make(map[string]int64, len(m.failures)),
		Batches:      m.batches,
		BatchEntries: m.batchEntries,
		InFlight:     m.inFlight,
	}
	for _, name := range names {
		snap.Templates = append(snap.Templates, m.statsLocked(name))
	}
	for kind, n := range m.failures {
		snap.Failures[kind] = n
	}
	return snap
}

// TemplateStats holds statistics for one template
type TemplateStats struct {
	Template    string        `json:"template"`
	Rendered    int64         `json:"rendered"`
	Succeeded   int64         `json:"succeeded"`
	Failed      int64         `json:"failed"`
	MinDuration time.Duration `json:"min_duration"`
	MaxDuration time.Duration `json:"max_duration"`
	AvgDuration time.Duration `json:"avg_duration"`
}

// SuccessRate returns the success rate as a percentage
func (s TemplateStats) SuccessRate() float64 {
	if s.Rendered == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Rendered) * 100
}

// Snapshot is a point-in-time copy of all metrics
type Snapshot struct {
	Templates    []TemplateStats  `json:"templates"`
	Failures     map[string]int64 `json:"failures"`
	Batches      int64            `json:"batches"`
	BatchEntries int64            `json:"batch_entries"`
	InFlight     int64            `json:"in_flight"`
}

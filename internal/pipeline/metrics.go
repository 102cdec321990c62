package pipeline

import (
	"sort"
	"sync"
	"time"

	errs "github.com/conneroisu/sitepipe/internal/errors"
)

// StageMetrics tracks the runs of one stage.
type StageMetrics struct {
	Runs            int64
	Failures        int64
	Notified        int64
	LastDuration    time.Duration
	TotalDuration   time.Duration
	AverageDuration time.Duration
}

// Metrics tracks stage runs across builds and watcher rebuilds.
type Metrics struct {
	stages map[string]*StageMetrics
	mutex  sync.RWMutex
}

// NewMetrics creates an empty metrics tracker.
func NewMetrics() *Metrics {
	return &Metrics{stages: make(map[string]*StageMetrics)}
}

// Record adds one stage run.
func (m *Metrics) Record(result StageResult) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	sm, ok := m.stages[result.Name]
	if !ok {
		sm = &StageMetrics{}
		m.stages[result.Name] = sm
	}

	sm.Runs++
	sm.LastDuration = result.Duration
	sm.TotalDuration += result.Duration
	sm.AverageDuration = sm.TotalDuration / time.Duration(sm.Runs)

	switch {
	case result.Err == nil:
	case errs.IsRecoverable(result.Err):
		sm.Notified++
	default:
		sm.Failures++
	}
}

// Snapshot returns a copy of the metrics of every stage seen so far.
func (m *Metrics) Snapshot() map[string]StageMetrics {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	out := make(map[string]StageMetrics, len(m.stages))
	for name, sm := range m.stages {
		out[name] = *sm
	}
	return out
}

// Stages returns the names of recorded stages in lexical order.
func (m *Metrics) Stages() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	names := make([]string, 0, len(m.stages))
	for name := range m.stages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset clears all metrics.
func (m *Metrics) Reset() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.stages = make(map[string]*StageMetrics)
}
